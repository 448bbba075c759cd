package dispatcher

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// hexHMAC returns the lowercase hex SHA-256 HMAC of body under secret, the
// same primitive the teacher's webhook verifier used for
// X-Hub-Signature-256; here it signs outbound queue-consumer requests
// instead of verifying inbound GitHub ones.
func hexHMAC(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks an X-Label-Signature-256 header value
// ("sha256=<hex>") against body, constant-time. Exported for the API
// package's queue-consumer handler.
func VerifySignature(header string, body, secret []byte) bool {
	const prefix = "sha256="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	want := header[len(prefix):]
	got := hexHMAC(body, secret)
	return hmac.Equal([]byte(want), []byte(got))
}
