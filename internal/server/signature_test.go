package server

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"
)

const testSecret = "kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS"

func TestVerifySignature_Valid(t *testing.T) {
	payload := []byte(`{"commits":[{"message":"fix bug"}]}`)
	signature := MakeTestSignature(payload, testSecret)

	if !VerifySignature(payload, signature, testSecret) {
		t.Error("Expected valid signature to be accepted")
	}
}

func TestVerifySignature_KnownVector(t *testing.T) {
	// HMAC-SHA1 of "hello" keyed by "secret".
	const want = "sha1=5112055c05f944f85755efc5cd8970e194e9f45b"

	if !VerifySignature([]byte("hello"), want, "secret") {
		t.Errorf("Expected %s to verify", want)
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload := []byte(`{"commits":[{"message":"fix bug"}]}`)
	signature := MakeTestSignature(payload, "another-secret-another-secret-xx")

	if VerifySignature(payload, signature, testSecret) {
		t.Error("Expected signature made with another secret to be rejected")
	}
}

func TestVerifySignature_BodyMustBeExact(t *testing.T) {
	payload := []byte(`{"commits":[{"message":"fix bug"}]}`)
	signature := MakeTestSignature(payload, testSecret)

	reserialized := []byte(`{"commits": [{"message": "fix bug"}]}`)
	if VerifySignature(reserialized, signature, testSecret) {
		t.Error("Expected re-serialized body to fail verification")
	}
}

func TestVerifySignature_MissingHeader(t *testing.T) {
	if VerifySignature([]byte(`{}`), "", testSecret) {
		t.Error("Expected missing signature to be rejected")
	}
}

func TestVerifySignature_EmptySecret(t *testing.T) {
	payload := []byte(`{}`)
	if VerifySignature(payload, MakeTestSignature(payload, ""), "") {
		t.Error("Expected verification to fail without a configured secret")
	}
}

func TestVerifySignature_MalformedSignature(t *testing.T) {
	payload := []byte(`{"commits":[]}`)

	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(payload)
	sha256Sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	digest := strings.TrimPrefix(MakeTestSignature(payload, testSecret), "sha1=")

	testCases := []struct {
		name      string
		signature string
	}{
		{"no separator", "sha1" + digest},
		{"digest only", digest},
		{"empty digest", "sha1="},
		{"wrong algorithm", "md5=" + digest},
		{"sha256 signature", sha256Sig},
		{"uppercase digest", "sha1=" + strings.ToUpper(digest)},
		{"trailing data", "sha1=" + digest + "00"},
		{"double separator", "sha1==" + digest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if VerifySignature(payload, tc.signature, testSecret) {
				t.Errorf("Expected malformed signature %q to be rejected", tc.signature)
			}
		})
	}
}

func TestVerifySignature_Deterministic(t *testing.T) {
	payload := []byte(`{"commits":[{"message":"release [deploy]"}]}`)
	signature := MakeTestSignature(payload, testSecret)

	for i := 0; i < 5; i++ {
		if !VerifySignature(payload, signature, testSecret) {
			t.Fatalf("Verification changed result on attempt %d", i)
		}
	}
}

func TestMakeTestSignature_MatchesHMACSHA1(t *testing.T) {
	payload := []byte("payload")
	mac := hmac.New(sha1.New, []byte(testSecret))
	mac.Write(payload)
	want := "sha1=" + hex.EncodeToString(mac.Sum(nil))

	if got := MakeTestSignature(payload, testSecret); got != want {
		t.Errorf("MakeTestSignature() = %q, want %q", got, want)
	}
}
