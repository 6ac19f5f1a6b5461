package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/finchley/agentgw/internal/events"
	"github.com/finchley/agentgw/internal/metrics"
	"github.com/finchley/agentgw/internal/state"
	"github.com/finchley/agentgw/internal/upapi"
)

// runMonitor polls messages and feedback after completion, handling
// revision requests until the bounded polling window closes.
func (e *Engine) runMonitor(ctx context.Context, logger *slog.Logger, attempt *state.Attempt, detail *upapi.JobDetail) error {
	logger.Info("monitoring started", "interval", e.monitor.Interval, "max_polls", e.monitor.MaxPolls)

	// Revision triggers already acted on; a request stays visible in the
	// feed across polls and must not fire twice.
	seenMessages := make(map[string]bool)
	seenFeedback := make(map[string]bool)

	timer := time.NewTimer(e.monitor.Interval)
	defer timer.Stop()

	for poll := 1; poll <= e.monitor.MaxPolls; poll++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		timer.Reset(e.monitor.Interval)

		revision, why := e.checkForRevision(ctx, logger, attempt, seenMessages, seenFeedback)

		e.hub.Publish(events.TypeMonitorPoll, map[string]any{
			"run_id":      attempt.RunID,
			"job_post_id": attempt.JobPostID,
			"agent_id":    attempt.AgentID,
			"poll":        poll,
			"revision":    revision,
		})

		if !revision {
			continue
		}

		logger.Info("revision requested", "poll", poll, "reason", why)
		if err := e.handleRevision(ctx, logger, attempt, detail, why); err != nil {
			return e.fail(ctx, logger, attempt, StepRevision, err)
		}
	}

	logger.Info("monitoring window closed")
	metrics.WorkflowStep(StepMonitor, "ok")
	if err := e.store.Transition(ctx, attempt.ID, state.StatusClosed, StepMonitor, "monitoring window closed"); err != nil {
		logger.Error("failed to record transition", "step", StepMonitor, "error", err)
	}
	return nil
}

// checkForRevision polls the message and feedback feeds. Poll failures are
// logged and skipped; the loop keeps its budget.
func (e *Engine) checkForRevision(ctx context.Context, logger *slog.Logger, attempt *state.Attempt, seenMessages, seenFeedback map[string]bool) (bool, string) {
	msgs, err := e.api.Messages(ctx, attempt.JobPostID, attempt.AgentID)
	if err != nil {
		logger.Warn("message poll failed", "error", err)
	}
	for _, m := range msgs {
		if seenMessages[m.ID] {
			continue
		}
		seenMessages[m.ID] = true
		if m.WantsRevision() {
			return true, m.ClientMessage
		}
	}

	fbs, err := e.api.Feedback(ctx, attempt.JobPostID, attempt.AgentID)
	if err != nil {
		logger.Warn("feedback poll failed", "error", err)
	}
	for _, f := range fbs {
		if seenFeedback[f.AttemptID] {
			continue
		}
		seenFeedback[f.AttemptID] = true
		if f.RequiresRevision {
			return true, f.Comment
		}
	}

	return false, ""
}

// handleRevision regenerates the deliverable, re-uploads it, re-completes
// the attempt, and returns the state machine to monitoring.
func (e *Engine) handleRevision(ctx context.Context, logger *slog.Logger, attempt *state.Attempt, detail *upapi.JobDetail, reason string) error {
	if err := e.store.Transition(ctx, attempt.ID, state.StatusRevised, StepRevision, reason); err != nil {
		logger.Error("failed to record transition", "step", StepRevision, "error", err)
	}
	metrics.WorkflowStep(StepRevision, "ok")

	filename, size, err := e.submitDeliverable(ctx, logger, attempt, detail)
	if err != nil {
		return fmt.Errorf("revised deliverable: %w", err)
	}

	if err := e.api.CompleteAttempt(ctx, attempt.JobPostID, attempt.AgentID, completeExplanation(filename, size)); err != nil {
		return fmt.Errorf("re-complete attempt: %w", err)
	}

	if err := e.store.Transition(ctx, attempt.ID, state.StatusMonitoring, StepMonitor, ""); err != nil {
		logger.Error("failed to record transition", "step", StepMonitor, "error", err)
	}
	return nil
}
