package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

const (
	// MinSecretLength is the minimum length for the GitHub webhook secret.
	MinSecretLength = 32

	// MinEntropy is the minimum Shannon entropy threshold for secrets.
	MinEntropy = 3.5

	// tokenBytes encodes to 48 base64 characters.
	tokenBytes = 36
)

var placeholderSecrets = map[string]bool{
	"replace-with-secret":     true,
	"github-webhook-password": true,
	"topsecret":               true,
	"secret":                  true,
	"password":                true,
	"changeme":                true,
	"your-webhook-secret":     true,
}

// ValidateSecret checks that a shared secret is long, random and not a placeholder.
func ValidateSecret(secret string) error {
	if len(secret) < MinSecretLength {
		return fmt.Errorf("secret too short (minimum %d characters, got %d)", MinSecretLength, len(secret))
	}

	lower := strings.ToLower(secret)
	if placeholderSecrets[lower] {
		return fmt.Errorf("secret appears to be a placeholder value, please use a real secret")
	}
	for _, marker := range []string{"replace", "changeme", "topsecret", "password"} {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("secret appears to be a placeholder value")
		}
	}

	if entropy := calculateEntropy(secret); entropy < MinEntropy {
		return fmt.Errorf("secret has insufficient entropy (%.2f < %.2f) - use a more random secret", entropy, MinEntropy)
	}

	return nil
}

// GenerateToken creates a cryptographically secure random token suitable for
// admin bearer credentials and webhook secrets (48 URL-safe characters).
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 digest under which bearer tokens are stored.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// calculateEntropy computes the Shannon entropy of a string.
func calculateEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	for _, c := range s {
		freq[c]++
	}

	var entropy float64
	length := float64(len(s))
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}

	return entropy
}

// IsWeakSecret performs a quick check if a secret is obviously weak.
// Used for startup warnings without failing config validation.
func IsWeakSecret(secret string) bool {
	if len(secret) < 16 {
		return true
	}

	if len(strings.Trim(secret, string(secret[0]))) == 0 {
		return true
	}

	if isSequential(secret) {
		return true
	}

	return calculateEntropy(secret) < 2.5
}

// isSequential reports whether more than 70% of adjacent characters step by one.
func isSequential(s string) bool {
	if len(s) < 4 {
		return false
	}

	sequential := 0
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1]+1 || s[i] == s[i-1]-1 {
			sequential++
		}
	}

	return float64(sequential) > float64(len(s))*0.7
}
