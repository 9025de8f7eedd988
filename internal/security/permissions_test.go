package security

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenAppendFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "dash.log")

	file, err := OpenAppendFile(path, PermLogFile)
	if err != nil {
		t.Fatalf("OpenAppendFile() error = %v", err)
	}
	if _, err := file.WriteString("first\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	file.Close()

	file, err = OpenAppendFile(path, PermLogFile)
	if err != nil {
		t.Fatalf("OpenAppendFile() reopen error = %v", err)
	}
	file.WriteString("second\n")
	file.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "first\nsecond\n" {
		t.Errorf("file content = %q, want both lines appended", data)
	}
}

func TestIsWorldReadable(t *testing.T) {
	if !IsWorldReadable(0644) {
		t.Error("IsWorldReadable(0644) = false")
	}
	if IsWorldReadable(0640) {
		t.Error("IsWorldReadable(0640) = true")
	}
}

func TestIsWorldWritable(t *testing.T) {
	if !IsWorldWritable(0666) {
		t.Error("IsWorldWritable(0666) = false")
	}
	if IsWorldWritable(0644) {
		t.Error("IsWorldWritable(0644) = true")
	}
}

func TestValidateSecurePermissions(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name    string
		perm    os.FileMode
		wantErr bool
	}{
		{"owner only", 0600, false},
		{"group readable", 0640, false},
		{"world readable", 0644, true},
		{"world writable", 0662, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.name)
			if err := os.WriteFile(path, []byte("secret"), 0600); err != nil {
				t.Fatalf("write: %v", err)
			}
			if err := os.Chmod(path, tt.perm); err != nil {
				t.Fatalf("chmod: %v", err)
			}

			err := ValidateSecurePermissions(path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSecurePermissions() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateSecurePermissions_NonexistentFile(t *testing.T) {
	if err := ValidateSecurePermissions(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("ValidateSecurePermissions() expected error for missing file")
	}
}
