package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the HMAC of the webhook payload.
const SignatureHeader = "X-Signature"

// Sign returns the uppercase hex HMAC-SHA256 of payload keyed with the API key.
func Sign(apiKey string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(apiKey))
	mac.Write(payload)
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

// Verify reports whether signature matches payload. Hex case is ignored.
func Verify(apiKey string, payload []byte, signature string) bool {
	sig, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(sig) == 0 {
		return false
	}
	mac := hmac.New(sha256.New, []byte(apiKey))
	mac.Write(payload)
	return hmac.Equal(sig, mac.Sum(nil))
}
