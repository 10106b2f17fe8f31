package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"ticket-checkout/internal/status"
)

const (
	HeaderTimestamp = "x-webhook-timestamp"
	HeaderSignature = "x-webhook-signature"
)

// Sign returns base64(HMAC-SHA256(secret, timestamp + body)).
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against the exact bytes that were received. An
// empty secret never verifies.
func Verify(secret, timestamp, signature string, body []byte) error {
	if timestamp == "" || signature == "" {
		return status.ErrMissingSignature
	}
	if secret == "" {
		return status.ErrInvalidSignature
	}

	got, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return status.ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return status.ErrInvalidSignature
	}
	return nil
}
