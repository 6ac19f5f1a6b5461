package webhook

import (
	"context"
	"time"
)

// Marketplace webhook headers.
const (
	HeaderSignature = "X-Up-Signature"
	HeaderTimestamp = "X-Up-Timestamp"
	HeaderRequestID = "X-Up-Id"
)

// Config holds webhook server configuration.
type Config struct {
	ServiceName string
	Version     string
	Listen      string

	// Secret is the shared HMAC secret. An empty secret is a configuration
	// error surfaced as 500 on every request, never a bypass.
	Secret string

	MaxBodySize     int64
	FreshnessMaxAge time.Duration

	// RateLimitWindow is echoed in the X-RateLimit-Window response header.
	RateLimitWindow time.Duration

	// RateLimitMax is the configured per-origin request ceiling, used for
	// the X-RateLimit headers when the limiter store cannot answer.
	RateLimitMax int

	// Debug exposes /debug/events and includes extra detail in rejections.
	Debug bool
}

// Default values.
const (
	DefaultMaxBodySize     = 1 << 20 // 1 MiB
	DefaultFreshnessMaxAge = 2 * time.Minute
)

// WorkflowStarter launches the detached job workflow for an invitation.
type WorkflowStarter interface {
	// Start begins a workflow for the given job and agent and returns its
	// run id without waiting for completion. A second start while one is
	// running returns workflow.ErrAlreadyRunning.
	Start(ctx context.Context, agentID, jobPostID string) (runID string, err error)
}

// EventRecorder persists accepted events to the received-event ledger.
// Recording is best effort on the hot path; failures are logged, not
// surfaced to the sender.
type EventRecorder interface {
	RecordEvent(ctx context.Context, requestID, agentID, jobPostID, kind, origin string, body []byte) error
}

// AckResponse is the JSON body for accepted webhooks.
type AckResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	EventType string   `json:"event_type,omitempty"`
	JobPostID string   `json:"job_post_id,omitempty"`
	Status    string   `json:"status,omitempty"`
	Tracking  Tracking `json:"request_tracking"`
}

// Tracking correlates an acknowledgment with its admission context.
type Tracking struct {
	Origin string `json:"origin"`
	Type   string `json:"type"`
}

// ErrorResponse is the JSON body for rejected webhooks.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`

	// ResetTime is unix milliseconds when the rate-limit window reopens.
	// Only set on 429 responses.
	ResetTime int64 `json:"reset_time,omitempty"`
}

// Workflow ack statuses.
const (
	StatusProcessingStarted = "processing_started"
	StatusAlreadyProcessing = "already_processing"
	StatusProcessingFailed  = "processing_failed"
)
