// Package workflow executes the job attempt lifecycle: accept an
// invitation, start the attempt, submit a deliverable, complete, then
// monitor for client feedback and revision requests.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/finchley/agentgw/internal/events"
	"github.com/finchley/agentgw/internal/log"
	"github.com/finchley/agentgw/internal/metrics"
	"github.com/finchley/agentgw/internal/state"
	"github.com/finchley/agentgw/internal/upapi"
)

// Workflow step names, used in logs, metrics, and the transition log.
const (
	StepDetail      = "detail"
	StepStart       = "start"
	StepDeliverable = "deliverable"
	StepComplete    = "complete"
	StepMonitor     = "monitor"
	StepRevision    = "revision"
)

const startExplanation = "Reviewed the job brief; starting work now."

// MonitorConfig bounds the post-completion polling loop.
type MonitorConfig struct {
	Interval time.Duration
	MaxPolls int
}

// Engine runs one job attempt end to end.
type Engine struct {
	api     upapi.API
	store   *state.Store
	gen     Generator
	hub     *events.Hub
	monitor MonitorConfig
	logger  *slog.Logger
}

func NewEngine(api upapi.API, store *state.Store, gen Generator, hub *events.Hub, monitor MonitorConfig) *Engine {
	if gen == nil {
		gen = MarkdownGenerator{}
	}
	if monitor.Interval <= 0 {
		monitor.Interval = 30 * time.Second
	}
	if monitor.MaxPolls <= 0 {
		monitor.MaxPolls = 20
	}
	return &Engine{
		api:     api,
		store:   store,
		gen:     gen,
		hub:     hub,
		monitor: monitor,
		logger:  log.WithComponent("workflow"),
	}
}

// Run executes the full lifecycle for one invitation (blocking). Any step
// failure terminates the attempt; the error is logged and recorded, never
// surfaced to the webhook sender.
func (e *Engine) Run(ctx context.Context, runID, agentID, jobPostID string) error {
	logger := e.logger.With("run_id", runID, "job_post_id", jobPostID, "agent_id", agentID)
	logger.Info("workflow run starting")

	metrics.WorkflowStarted()
	defer metrics.WorkflowFinished()

	attempt, err := e.store.CreateAttempt(ctx, jobPostID, agentID, runID)
	if err != nil {
		logger.Error("failed to create attempt", "error", err)
		return fmt.Errorf("create attempt: %w", err)
	}

	detail, err := e.api.JobDetail(ctx, jobPostID, agentID)
	if err != nil {
		return e.fail(ctx, logger, attempt, StepDetail, err)
	}
	e.stepOK(logger, attempt, StepDetail)

	if err := e.api.StartAttempt(ctx, jobPostID, agentID, startExplanation); err != nil {
		return e.fail(ctx, logger, attempt, StepStart, err)
	}
	if err := e.store.Transition(ctx, attempt.ID, state.StatusStarted, StepStart, ""); err != nil {
		logger.Error("failed to record transition", "step", StepStart, "error", err)
	}
	e.stepOK(logger, attempt, StepStart)

	filename, size, err := e.submitDeliverable(ctx, logger, attempt, detail)
	if err != nil {
		return e.fail(ctx, logger, attempt, StepDeliverable, err)
	}
	if err := e.store.Transition(ctx, attempt.ID, state.StatusDeliverableSubmitted, StepDeliverable, ""); err != nil {
		logger.Error("failed to record transition", "step", StepDeliverable, "error", err)
	}
	e.stepOK(logger, attempt, StepDeliverable)

	if err := e.api.CompleteAttempt(ctx, jobPostID, agentID, completeExplanation(filename, size)); err != nil {
		return e.fail(ctx, logger, attempt, StepComplete, err)
	}
	if err := e.store.Transition(ctx, attempt.ID, state.StatusCompleted, StepComplete, ""); err != nil {
		logger.Error("failed to record transition", "step", StepComplete, "error", err)
	}
	e.stepOK(logger, attempt, StepComplete)

	if err := e.store.Transition(ctx, attempt.ID, state.StatusMonitoring, StepMonitor, ""); err != nil {
		logger.Error("failed to record transition", "step", StepMonitor, "error", err)
	}
	if err := e.runMonitor(ctx, logger, attempt, detail); err != nil {
		return err
	}

	logger.Info("workflow run finished")
	return nil
}

// completeExplanation describes the uploaded deliverable so the client
// sees what was produced, not a canned phrase.
func completeExplanation(filename string, size int) string {
	return fmt.Sprintf("Work is complete; %s (%d bytes) attached for review.", filename, size)
}

// submitDeliverable generates the next deliverable version and uploads it,
// returning the filename and byte count of what was sent.
func (e *Engine) submitDeliverable(ctx context.Context, logger *slog.Logger, attempt *state.Attempt, detail *upapi.JobDetail) (string, int, error) {
	version, err := e.store.BumpDeliverableVersion(ctx, attempt.ID)
	if err != nil {
		return "", 0, fmt.Errorf("bump deliverable version: %w", err)
	}

	filename, content, err := e.gen.Generate(ctx, detail, version)
	if err != nil {
		return "", 0, fmt.Errorf("generate deliverable: %w", err)
	}

	if err := e.api.SubmitDeliverable(ctx, attempt.JobPostID, attempt.AgentID, filename, content); err != nil {
		return "", 0, fmt.Errorf("submit deliverable: %w", err)
	}

	logger.Info("deliverable submitted", "filename", filename, "version", version, "bytes", len(content))
	return filename, len(content), nil
}

// fail terminates the attempt after a step failure.
func (e *Engine) fail(ctx context.Context, logger *slog.Logger, attempt *state.Attempt, step string, err error) error {
	logger.Error("workflow step failed", "step", step, "error", err)
	metrics.WorkflowStep(step, "error")
	e.hub.Publish(events.TypeWorkflowStep, map[string]string{
		"run_id":      attempt.RunID,
		"job_post_id": attempt.JobPostID,
		"agent_id":    attempt.AgentID,
		"step":        step,
		"outcome":     "error",
	})

	detail := fmt.Sprintf("%s: %v", step, err)
	if terr := e.store.Transition(ctx, attempt.ID, state.StatusTerminated, step, detail); terr != nil {
		logger.Error("failed to record termination", "error", terr)
	}
	return fmt.Errorf("step %s: %w", step, err)
}

func (e *Engine) stepOK(logger *slog.Logger, attempt *state.Attempt, step string) {
	logger.Info("workflow step completed", "step", step)
	metrics.WorkflowStep(step, "ok")
	e.hub.Publish(events.TypeWorkflowStep, map[string]string{
		"run_id":      attempt.RunID,
		"job_post_id": attempt.JobPostID,
		"agent_id":    attempt.AgentID,
		"step":        step,
		"outcome":     "ok",
	})
}
