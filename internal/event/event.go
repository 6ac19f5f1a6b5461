// Package event classifies incoming webhook payloads into a closed set of
// event kinds. Classification order matters: explicit event_type values win
// over legacy shape heuristics, and the first matching rule is final.
package event

import (
	"encoding/json"
	"fmt"
)

// Kind is the classification of a webhook payload.
type Kind string

const (
	KindHealthCheck         Kind = "health_check"
	KindJobInvitation       Kind = "job_invitation"
	KindJobMessage          Kind = "job_message"
	KindJobFeedback         Kind = "job_feedback"
	KindLegacyJobInvitation Kind = "legacy_job_invitation"
	KindClientFeedback      Kind = "client_feedback"
	KindUnclassified        Kind = "unclassified"
)

// Wire values for the explicit event_type field.
const (
	TypeHealthCheck   = "agent.health_check"
	TypeJobInvitation = "agent.job.invitation"
	TypeJobMessage    = "agent.job.message"
	TypeJobFeedback   = "agent.job.feedback"
)

// Payload is the decoded webhook body. Fields beyond these are ignored; the
// raw bytes were already consumed by signature verification upstream.
type Payload struct {
	EventType     string   `json:"event_type,omitempty"`
	JobPostID     string   `json:"job_post_id,omitempty"`
	AgentIDs      []string `json:"agent_ids,omitempty"`
	MessageType   string   `json:"message_type,omitempty"`
	AttemptID     string   `json:"attempt_id,omitempty"`
	ClientMessage string   `json:"client_message,omitempty"`
	Timestamp     string   `json:"timestamp,omitempty"`
}

// Parse decodes a raw JSON body into a Payload. The body must be a JSON
// object.
func Parse(raw []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("invalid JSON body: %w", err)
	}
	return p, nil
}

// Classify maps a payload to exactly one Kind.
func Classify(p Payload) Kind {
	// Explicit event_type takes priority over legacy shapes.
	switch p.EventType {
	case TypeHealthCheck:
		return KindHealthCheck
	case TypeJobInvitation:
		return KindJobInvitation
	case TypeJobMessage:
		return KindJobMessage
	case TypeJobFeedback:
		return KindJobFeedback
	}

	// Legacy invitation: job_post_id plus a list of agent ids, no event_type.
	if p.JobPostID != "" && len(p.AgentIDs) > 0 {
		return KindLegacyJobInvitation
	}

	// Legacy feedback: declared message_type, or an attempt with a client note.
	if p.MessageType == "client_feedback" || (p.AttemptID != "" && p.ClientMessage != "") {
		return KindClientFeedback
	}

	return KindUnclassified
}
