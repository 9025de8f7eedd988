package security

import (
	"strings"
	"testing"
)

func TestValidateSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"strong random secret", "kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS2uW5yA7bD0fG3hK6", false},
		{"base64-like secret", "dGhpcyBpcyBhIHZlcnkgbG9uZyBzZWNyZXQgd2l0aCBnb29kIGVudHJvcHk=", false},
		{"too short", "kJ8mN2pQ5tR7", true},
		{"empty string", "", true},
		{"placeholder", "replace-with-secret", true},
		{"contains changeme", "changeme-kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS2", true},
		{"contains password", "my-password-kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8", true},
		{"low entropy", strings.Repeat("ab", 24), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSecret(tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSecret(%q) error = %v, wantErr %v", tt.secret, err, tt.wantErr)
			}
		})
	}
}

func TestGenerateToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		token, err := GenerateToken()
		if err != nil {
			t.Fatalf("GenerateToken() error = %v", err)
		}
		if len(token) != 48 {
			t.Errorf("GenerateToken() length = %d, want 48", len(token))
		}
		if seen[token] {
			t.Fatalf("GenerateToken() produced duplicate token %q", token)
		}
		seen[token] = true

		if err := ValidateSecret(token); err != nil {
			t.Errorf("generated token failed validation: %v", err)
		}
	}
}

func TestHashToken(t *testing.T) {
	a := HashToken("token-a")
	if len(a) != 64 {
		t.Errorf("HashToken() length = %d, want 64", len(a))
	}
	if a != HashToken("token-a") {
		t.Error("HashToken() is not deterministic")
	}
	if a == HashToken("token-b") {
		t.Error("HashToken() collided for different inputs")
	}
}

func TestCalculateEntropy(t *testing.T) {
	if got := calculateEntropy(""); got != 0 {
		t.Errorf("calculateEntropy(\"\") = %f, want 0", got)
	}
	if got := calculateEntropy("aaaa"); got != 0 {
		t.Errorf("calculateEntropy(\"aaaa\") = %f, want 0", got)
	}
	if got := calculateEntropy("ab"); got != 1 {
		t.Errorf("calculateEntropy(\"ab\") = %f, want 1", got)
	}
}

func TestIsWeakSecret(t *testing.T) {
	tests := []struct {
		secret string
		want   bool
	}{
		{"short", true},
		{strings.Repeat("a", 40), true},
		{"abcdefghijklmnopqrstuvwxyz", true},
		{"kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS", false},
	}

	for _, tt := range tests {
		if got := IsWeakSecret(tt.secret); got != tt.want {
			t.Errorf("IsWeakSecret(%q) = %v, want %v", tt.secret, got, tt.want)
		}
	}
}

func TestIsSequential(t *testing.T) {
	if !isSequential("123456789") {
		t.Error("isSequential(\"123456789\") = false, want true")
	}
	if isSequential("kJ8mN2pQ") {
		t.Error("isSequential(\"kJ8mN2pQ\") = true, want false")
	}
	if isSequential("abc") {
		t.Error("isSequential() should ignore strings shorter than 4")
	}
}
