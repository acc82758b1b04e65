// Package signature authenticates inbound webhook deliveries signed with a shared secret.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// Sign returns the lower-case hex HMAC-SHA256 of body keyed by secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether sig is the hex HMAC-SHA256 of the raw body under secret.
// It returns false for an empty secret, a missing or non-hex signature, a
// signature of the wrong length, or a digest mismatch.
func Verify(body []byte, sig string, secret string) bool {
	if secret == "" {
		return false
	}

	given, err := hex.DecodeString(sig)
	if err != nil || len(given) == 0 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := mac.Sum(nil)

	// ConstantTimeCompare also rejects unequal lengths, but it must not be
	// reached with mismatched inputs.
	if len(given) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare(given, expected) == 1
}
