package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignatureHeader carries the payload signature when the webhook has a
// secret configured.
const SignatureHeader = "X-Strata-Signature"

// Sign computes the hex HMAC-SHA256 of the raw JSON body, in the header
// format "sha256=<hex>".
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the body in constant
// time.
func VerifySignature(secret string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
