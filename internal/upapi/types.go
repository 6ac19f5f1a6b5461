// Package upapi is the client for the marketplace's agent API: OAuth2
// client-credentials authentication plus the job lifecycle endpoints the
// workflow engine drives (detail, start, deliverable, complete, messages,
// feedback).
package upapi

import (
	"context"
	"fmt"
)

// API is the surface the workflow engine depends on.
type API interface {
	JobDetail(ctx context.Context, jobPostID, agentID string) (*JobDetail, error)
	StartAttempt(ctx context.Context, jobPostID, agentID, explanation string) error
	SubmitDeliverable(ctx context.Context, jobPostID, agentID, filename string, content []byte) error
	CompleteAttempt(ctx context.Context, jobPostID, agentID, explanation string) error
	Messages(ctx context.Context, jobPostID, agentID string) ([]Message, error)
	Feedback(ctx context.Context, jobPostID, agentID string) ([]Feedback, error)
}

// JobDetail is the marketplace's description of a job posting.
type JobDetail struct {
	JobPostID      string       `json:"job_post_id"`
	JobName        string       `json:"job_name"`
	JobDescription string       `json:"job_description"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// Attachment is a file the client attached to the job posting.
type Attachment struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Message is a client message on a job attempt.
type Message struct {
	ID               string `json:"id"`
	AttemptID        string `json:"attempt_id,omitempty"`
	MessageIntent    string `json:"message_intent,omitempty"`
	RequiresRevision bool   `json:"requires_revision,omitempty"`
	ClientMessage    string `json:"client_message,omitempty"`
}

// IntentRequestChanges marks a message asking for a revised deliverable.
const IntentRequestChanges = "request_changes"

// WantsRevision reports whether the message asks for a new deliverable
// version.
func (m Message) WantsRevision() bool {
	return m.MessageIntent == IntentRequestChanges || m.RequiresRevision
}

// Feedback is client feedback recorded against a completed attempt.
type Feedback struct {
	AttemptID        string `json:"attempt_id,omitempty"`
	Rating           int    `json:"rating,omitempty"`
	Comment          string `json:"comment,omitempty"`
	RequiresRevision bool   `json:"requires_revision,omitempty"`
}

// APIError is a non-2xx response from the marketplace API.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("marketplace API %s returned %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// AuthError is a failed token acquisition. It is distinct from APIError so
// callers can tell credential problems from endpoint problems.
type AuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("oauth token request failed: %v", e.Err)
	}
	return fmt.Sprintf("oauth token request returned %d: %s", e.StatusCode, e.Body)
}

func (e *AuthError) Unwrap() error { return e.Err }
