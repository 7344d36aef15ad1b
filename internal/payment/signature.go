package payment

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
)

// Signature computes the webhook signature: SHA-512 over the concatenation
// of order ref, status code, gross amount string and the server key. The
// gross amount must be the exact string from the payload, not a re-encoded
// number.
func Signature(orderRef, statusCode, grossAmount, serverKey string) string {
	h := sha512.Sum512([]byte(orderRef + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(h[:])
}

// Verify checks a webhook signature in constant time.
func Verify(orderRef, statusCode, grossAmount, serverKey, signature string) bool {
	want := Signature(orderRef, statusCode, grossAmount, serverKey)
	return hmac.Equal([]byte(want), []byte(signature))
}
