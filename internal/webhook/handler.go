package webhook

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/finchley/agentgw/internal/event"
	"github.com/finchley/agentgw/internal/events"
	"github.com/finchley/agentgw/internal/guard"
	"github.com/finchley/agentgw/internal/metrics"
	"github.com/finchley/agentgw/internal/workflow"
)

// rateKeyUnknown buckets requests that carry neither Origin nor Referer.
const rateKeyUnknown = "unknown"

// handleEvent runs the admission pipeline on an incoming marketplace event:
// origin allowlist, rate limit, body capture, signature, freshness, replay
// guard, then classification and acknowledgment. Checks run cheapest-first
// so hostile traffic is dropped before any crypto work.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	agentID := chi.URLParam(r, "agentID")
	origin := requestOrigin(r)

	metrics.EventReceived()

	if s.config.Secret == "" {
		s.logger.Error("webhook secret not configured, rejecting event", "agent_id", agentID)
		s.reject(w, http.StatusInternalServerError, "configuration_error", "service is not configured to verify events", metrics.ReasonConfig, origin)
		return
	}

	if !s.allowlist.Allowed(origin) {
		s.logger.Warn("origin denied", "origin", origin, "agent_id", agentID)
		s.reject(w, http.StatusForbidden, "origin_denied", "origin is not allowed", metrics.ReasonOrigin, origin)
		return
	}

	rateKey := origin
	if rateKey == "" {
		rateKey = rateKeyUnknown
	}
	res, err := s.rate.Check(ctx, rateKey)
	if err != nil {
		// A broken limiter store must not take the gateway down with it.
		// Remaining is unknown, so report the full ceiling.
		s.logger.Warn("rate limiter unavailable, admitting request", "error", err)
		res = guard.RateResult{Allowed: true, Limit: s.config.RateLimitMax, Remaining: s.config.RateLimitMax}
	}
	s.writeRateHeaders(w, res)
	if !res.Allowed {
		s.logger.Warn("rate limit exceeded", "origin", rateKey, "limit", res.Limit)
		metrics.EventRejected(metrics.ReasonRateLimit)
		s.publishRejected(metrics.ReasonRateLimit, origin, agentID)
		s.respondJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Error:     "rate_limit_exceeded",
			Message:   "too many requests from this origin",
			ResetTime: res.ResetAt.UnixMilli(),
		})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodySize+1))
	if err != nil {
		s.logger.Error("failed to read request body", "error", err)
		s.reject(w, http.StatusInternalServerError, "read_error", "failed to read request body", metrics.ReasonConfig, origin)
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.reject(w, http.StatusRequestEntityTooLarge, "payload_too_large", "request body exceeds the size limit", metrics.ReasonBodyTooBig, origin)
		return
	}

	signature := r.Header.Get(HeaderSignature)
	timestamp := r.Header.Get(HeaderTimestamp)
	requestID := r.Header.Get(HeaderRequestID)

	if !VerifySignature(body, signature, s.config.Secret, timestamp, requestID) {
		s.logger.Warn("signature verification failed",
			"agent_id", agentID,
			"origin", origin,
			"request_id", requestID,
		)
		s.reject(w, http.StatusUnauthorized, "invalid_signature", "event signature could not be verified", metrics.ReasonSignature, origin)
		return
	}

	if !Fresh(timestamp, s.config.FreshnessMaxAge, time.Now()) {
		s.logger.Warn("stale or unparseable timestamp", "timestamp", timestamp, "request_id", requestID)
		s.reject(w, http.StatusUnauthorized, "stale_timestamp", "event timestamp is missing, invalid, or too old", metrics.ReasonStale, origin)
		return
	}

	duplicate, err := s.replay.CheckAndRecord(ctx, requestID)
	if err != nil {
		s.logger.Warn("replay guard unavailable, admitting request", "error", err)
	}
	if duplicate {
		s.logger.Warn("duplicate request id", "request_id", requestID)
		s.reject(w, http.StatusConflict, "duplicate_request", "this request id was already processed", metrics.ReasonDuplicate, origin)
		return
	}

	payload, err := event.Parse(body)
	if err != nil {
		s.logger.Warn("malformed event payload", "error", err, "request_id", requestID)
		s.reject(w, http.StatusBadRequest, "malformed_payload", "event body is not valid JSON", metrics.ReasonMalformed, origin)
		return
	}
	kind := event.Classify(payload)
	metrics.EventClassified(string(kind))

	if s.recorder != nil {
		if err := s.recorder.RecordEvent(ctx, requestID, agentID, payload.JobPostID, string(kind), origin, body); err != nil {
			s.logger.Error("failed to record event", "error", err, "request_id", requestID)
		}
	}

	s.hub.Publish(events.TypeEventAccepted, map[string]string{
		"kind":        string(kind),
		"agent_id":    agentID,
		"job_post_id": payload.JobPostID,
		"request_id":  requestID,
	})

	s.acknowledge(w, r, agentID, origin, kind, payload)
}

// acknowledge maps a classified event to its 200 response, spawning the
// job workflow for invitations.
func (s *Server) acknowledge(w http.ResponseWriter, r *http.Request, agentID, origin string, kind event.Kind, payload event.Payload) {
	ack := AckResponse{
		Success:  true,
		Tracking: Tracking{Origin: origin, Type: string(kind)},
	}

	switch kind {
	case event.KindHealthCheck:
		ack.Message = "health check acknowledged"
		ack.EventType = payload.EventType

	case event.KindJobInvitation:
		if payload.JobPostID == "" {
			s.reject(w, http.StatusBadRequest, "missing_job_post_id", "job invitation without job_post_id", metrics.ReasonMalformed, origin)
			return
		}
		ack.EventType = payload.EventType
		ack.JobPostID = payload.JobPostID

		runID, err := s.workflows.Start(r.Context(), agentID, payload.JobPostID)
		switch {
		case errors.Is(err, workflow.ErrAlreadyRunning):
			ack.Message = "a workflow for this job is already in flight"
			ack.Status = StatusAlreadyProcessing
		case err != nil:
			s.logger.Error("failed to start workflow",
				"job_post_id", payload.JobPostID,
				"agent_id", agentID,
				"error", err,
			)
			ack.Message = "event accepted but workflow could not start"
			ack.Status = StatusProcessingFailed
		default:
			s.logger.Info("workflow started",
				"job_post_id", payload.JobPostID,
				"agent_id", agentID,
				"run_id", runID,
			)
			ack.Message = "job invitation accepted"
			ack.Status = StatusProcessingStarted
		}

	case event.KindLegacyJobInvitation:
		// Legacy invitations are acknowledged but never spawn a workflow.
		ack.Message = "legacy job invitation acknowledged"
		ack.JobPostID = payload.JobPostID

	case event.KindJobMessage, event.KindJobFeedback, event.KindClientFeedback:
		ack.Message = "event acknowledged"
		ack.EventType = payload.EventType
		ack.JobPostID = payload.JobPostID

	default:
		ack.Message = "event received"
	}

	s.respondJSON(w, http.StatusOK, ack)
}

// reject answers a pipeline failure and records it in metrics and telemetry.
func (s *Server) reject(w http.ResponseWriter, status int, code, message, reason, origin string) {
	metrics.EventRejected(reason)
	s.publishRejected(reason, origin, "")
	s.respondError(w, status, code, message)
}

func (s *Server) publishRejected(reason, origin, agentID string) {
	s.hub.Publish(events.TypeEventRejected, map[string]string{
		"reason":   reason,
		"origin":   origin,
		"agent_id": agentID,
	})
}

func (s *Server) writeRateHeaders(w http.ResponseWriter, res guard.RateResult) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	h.Set("X-RateLimit-Window", strconv.FormatInt(int64(s.config.RateLimitWindow.Seconds()), 10))
}

// requestOrigin resolves the caller's origin: the Origin header when
// present, otherwise Referer, otherwise empty.
func requestOrigin(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" {
		return origin
	}
	return r.Header.Get("Referer")
}
