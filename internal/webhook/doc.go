// Package webhook implements the inbound trust boundary: the HTTP endpoint
// receiving signed marketplace events, and the admission pipeline that runs
// before any payload is acted on.
//
// Pipeline order for POST /agents/{agentID}/webhook/events:
//
//	origin allowlist -> rate limit -> raw body capture -> signature ->
//	timestamp freshness -> replay guard -> classification -> ack
//
// The raw body bytes are captured before JSON decoding because the signature
// covers them byte-for-byte. Job invitations spawn a detached workflow; the
// HTTP response never waits for it.
package webhook
