// Package guard implements the stateful admission checks on the webhook
// ingestion path: replay suppression keyed by request id, fixed-window rate
// limiting keyed by origin, and the origin allowlist.
//
// The replay and rate-limit stores are behind interfaces so a shared store
// (Redis) can replace the in-process maps when the gateway runs more than one
// instance. The in-memory implementations are the default and are safe for
// concurrent use; each check-and-update is atomic under the store's lock.
package guard
