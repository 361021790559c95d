package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

var errAuthSecretWeak = fmt.Errorf("secret must be >= 8 bytes")

// Sign returns lowercase hex HMAC-SHA256 of challenge keyed by secret.
// `secret` must be at least 8 bytes.
func Sign(secret []byte, challenge string) (string, error) {
	if len(secret) < 8 {
		return "", errAuthSecretWeak
	}
	h := hmac.New(sha256.New, secret)
	if _, err := h.Write([]byte(challenge)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify reports whether signature is a valid Sign() output for
// secret+challenge. Constant-time; used by test servers.
func Verify(secret []byte, challenge, signature string) bool {
	expect, err := Sign(secret, challenge)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expect), []byte(signature))
}
