package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/finchley/agentgw/internal/log"
)

// ErrAlreadyRunning reports that a workflow for the same job and agent is
// still in flight.
var ErrAlreadyRunning = errors.New("workflow already running for this job")

// Runner executes one workflow run to completion. Satisfied by *Engine.
type Runner interface {
	Run(ctx context.Context, runID, agentID, jobPostID string) error
}

// Spawner launches workflow runs detached from the webhook request and
// enforces one in-flight run per job and agent pair.
type Spawner struct {
	runner Runner
	logger *slog.Logger

	mu       sync.Mutex
	inflight map[string]string // job/agent key -> run id

	wg sync.WaitGroup
}

func NewSpawner(runner Runner) *Spawner {
	return &Spawner{
		runner:   runner,
		logger:   log.WithComponent("spawner"),
		inflight: make(map[string]string),
	}
}

// Start launches a run for the given job and agent and returns its run id
// immediately. The run outlives the caller's request; only service
// shutdown cancels it. A second start for the same pair while the first is
// in flight returns ErrAlreadyRunning.
func (s *Spawner) Start(ctx context.Context, agentID, jobPostID string) (string, error) {
	key := jobPostID + "/" + agentID

	s.mu.Lock()
	if runID, ok := s.inflight[key]; ok {
		s.mu.Unlock()
		s.logger.Info("workflow already in flight", "job_post_id", jobPostID, "agent_id", agentID, "run_id", runID)
		return "", ErrAlreadyRunning
	}
	runID := uuid.NewString()
	s.inflight[key] = runID
	s.mu.Unlock()

	runCtx := context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(key)

		if err := s.runner.Run(runCtx, runID, agentID, jobPostID); err != nil {
			s.logger.Error("workflow run failed",
				"run_id", runID,
				"job_post_id", jobPostID,
				"agent_id", agentID,
				"error", err,
			)
		}
	}()

	return runID, nil
}

// Wait blocks until all in-flight runs finish. Used during shutdown.
func (s *Spawner) Wait() {
	s.wg.Wait()
}

// InFlight returns the number of running workflows.
func (s *Spawner) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

func (s *Spawner) release(key string) {
	s.mu.Lock()
	delete(s.inflight, key)
	s.mu.Unlock()
}
