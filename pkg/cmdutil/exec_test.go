package cmdutil

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRun(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		opts    ExecOptions
		cmd     []string
		wantErr bool
	}{
		{"successful command", ExecOptions{}, []string{"echo", "hello"}, false},
		{"command with args", ExecOptions{}, []string{"echo", "hello", "world"}, false},
		{"command that fails", ExecOptions{}, []string{"ls", "/nonexistent/directory/path"}, true},
		{"empty command", ExecOptions{}, []string{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Run(ctx, tt.opts, tt.cmd)
			if (err != nil) != tt.wantErr {
				t.Errorf("Run() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if !tt.wantErr {
				if !result.OK() {
					t.Errorf("Run() exit code = %d, want 0", result.ExitCode)
				}
				if result.Duration == 0 {
					t.Error("Run() did not record execution duration")
				}
			}
		})
	}
}

func TestRun_FailureKeepsResult(t *testing.T) {
	result, err := Run(context.Background(), ExecOptions{}, []string{"sh", "-c", "exit 3"})
	if err == nil {
		t.Fatal("Run() expected error for non-zero exit")
	}
	if result == nil {
		t.Fatal("Run() returned nil result for started command")
	}
	if result.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", result.ExitCode)
	}
	if result.OK() {
		t.Error("OK() = true for failed command")
	}
}

func TestRun_Stdin(t *testing.T) {
	result, err := Run(context.Background(), ExecOptions{Stdin: strings.NewReader("hunter2\n")}, []string{"cat"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.TrimSpace(string(result.Output)) != "hunter2" {
		t.Errorf("Output = %q, want stdin echoed back", result.Output)
	}
}

func TestRun_Timeout(t *testing.T) {
	_, err := Run(context.Background(), ExecOptions{Timeout: time.Millisecond}, []string{"sleep", "10"})
	if err == nil {
		t.Error("Run() should fail when the timeout expires")
	}
}

func TestRun_WorkingDir(t *testing.T) {
	tmpDir := t.TempDir()
	result, err := Run(context.Background(), ExecOptions{Dir: tmpDir}, []string{"pwd"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(string(result.Output), tmpDir) {
		t.Errorf("pwd output %q does not contain %q", result.Output, tmpDir)
	}
}

func TestParseCommandString(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []string
		wantErr bool
	}{
		{"simple command", "sh ../dash.sh", []string{"sh", "../dash.sh"}, false},
		{"quoted argument", `systemctl restart "dash bot"`, []string{"systemctl", "restart", "dash bot"}, false},
		{"single quotes", `sh -c 'echo hi'`, []string{"sh", "-c", "echo hi"}, false},
		{"empty string", "", nil, true},
		{"whitespace only", "   ", nil, true},
		{"unterminated quote", `sh "oops`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommandString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommandString() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("ParseCommandString() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatCommand(t *testing.T) {
	tests := []struct {
		name string
		cmd  []string
		want string
	}{
		{"empty", nil, "<empty command>"},
		{"plain", []string{"sh", "../dash.sh"}, "sh ../dash.sh"},
		{"argument with space", []string{"systemctl", "restart", "dash bot"}, `systemctl restart 'dash bot'`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatCommand(tt.cmd); got != tt.want {
				t.Errorf("FormatCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeOutput(t *testing.T) {
	out := SanitizeOutput([]byte("[sudo] password: hunter2 ok"), []string{"hunter2", ""})
	if strings.Contains(string(out), "hunter2") {
		t.Errorf("SanitizeOutput() leaked secret: %q", out)
	}
	if !strings.Contains(string(out), "***REDACTED***") {
		t.Errorf("SanitizeOutput() = %q, want redaction marker", out)
	}
}
