package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// VerifySignature verifies an HMAC-SHA256 signature over the canonical
// string "request_id.timestamp.raw_body" (byte-for-byte, before any JSON
// parsing).
//
// The header value carries a "sha256=" prefix which is stripped before hex
// decoding. Verification never panics or errors; any malformed input is a
// plain false. The decoded signature's length is checked before the
// constant-time comparison so a length mismatch returns through the same
// path as a content mismatch.
func VerifySignature(body []byte, signature, secret, timestamp, requestID string) bool {
	if signature == "" || secret == "" {
		return false
	}

	expected := computeSignature(body, secret, timestamp, requestID)

	provided, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil {
		return false
	}
	if len(provided) != len(expected) {
		return false
	}

	return subtle.ConstantTimeCompare(expected, provided) == 1
}

// computeSignature computes the raw HMAC-SHA256 digest of the canonical
// payload.
func computeSignature(body []byte, secret, timestamp, requestID string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(requestID))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return mac.Sum(nil)
}

// Sign produces the signature header value ("sha256=<hex>") for a payload.
// Used by tests and by senders simulating the marketplace.
func Sign(body []byte, secret, timestamp, requestID string) string {
	return "sha256=" + hex.EncodeToString(computeSignature(body, secret, timestamp, requestID))
}
