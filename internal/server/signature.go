package server

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

const (
	// SignatureHeader carries the GitHub HMAC-SHA1 signature.
	SignatureHeader = "X-Hub-Signature"

	SignatureAlgorithm = "sha1"
)

// VerifySignature checks a "sha1=<hex>" GitHub signature over the raw
// request body. Missing or malformed headers never verify.
func VerifySignature(payload []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}

	algorithm, receivedMAC, ok := strings.Cut(signature, "=")
	if !ok || algorithm != SignatureAlgorithm || receivedMAC == "" {
		return false
	}

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(payload)
	expectedMAC := hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison to prevent timing attacks
	return hmac.Equal([]byte(expectedMAC), []byte(receivedMAC))
}
