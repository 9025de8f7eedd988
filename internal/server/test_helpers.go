package server

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
)

// MakeTestSignature generates an X-Hub-Signature value for payload. It is
// exported for tests in other packages that post signed webhooks.
func MakeTestSignature(payload []byte, secret string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(payload)
	return SignatureAlgorithm + "=" + hex.EncodeToString(mac.Sum(nil))
}
