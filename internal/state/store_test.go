package state

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/finchley/agentgw/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "agentgw.db")
	db, err := storage.OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestCreateAttemptStartsInvited(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateAttempt(ctx, "j1", "a1", "run-1")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if a.Status != StatusInvited {
		t.Errorf("status = %q, want %q", a.Status, StatusInvited)
	}
	if a.ID == "" {
		t.Error("attempt id should be assigned")
	}

	got, err := s.GetAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if got.JobPostID != "j1" || got.AgentID != "a1" || got.RunID != "run-1" {
		t.Errorf("attempt = %+v, want j1/a1/run-1", got)
	}
}

func TestTransitionFollowsLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateAttempt(ctx, "j1", "a1", "run-1")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	steps := []struct {
		to   Status
		step string
	}{
		{StatusStarted, "start"},
		{StatusDeliverableSubmitted, "deliverable"},
		{StatusCompleted, "complete"},
		{StatusMonitoring, "monitor"},
		{StatusRevised, "revision"},
		{StatusMonitoring, "monitor"},
		{StatusTerminated, "monitor"},
	}
	for _, st := range steps {
		if err := s.Transition(ctx, a.ID, st.to, st.step, ""); err != nil {
			t.Fatalf("Transition to %s: %v", st.to, err)
		}
	}

	got, err := s.GetAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if got.Status != StatusTerminated {
		t.Errorf("final status = %q, want %q", got.Status, StatusTerminated)
	}

	log, err := s.Transitions(ctx, a.ID)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(log) != len(steps) {
		t.Fatalf("transition log has %d entries, want %d", len(log), len(steps))
	}
	if log[0].FromStatus != StatusInvited || log[0].ToStatus != StatusStarted {
		t.Errorf("first transition = %s -> %s, want invited -> started", log[0].FromStatus, log[0].ToStatus)
	}
}

func TestTransitionRejectsIllegalMove(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateAttempt(ctx, "j1", "a1", "run-1")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	err = s.Transition(ctx, a.ID, StatusCompleted, "complete", "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Transition invited -> completed error = %v, want ErrInvalidTransition", err)
	}

	// A rejected move must not be logged.
	log, err := s.Transitions(ctx, a.ID)
	if err != nil {
		t.Fatalf("Transitions: %v", err)
	}
	if len(log) != 0 {
		t.Errorf("transition log has %d entries, want 0", len(log))
	}
}

func TestTransitionTerminatedRecordsError(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateAttempt(ctx, "j1", "a1", "run-1")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if err := s.Transition(ctx, a.ID, StatusTerminated, "start", "start attempt failed: 502"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	got, err := s.GetAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if got.LastError == "" {
		t.Error("terminated attempt should carry last_error")
	}
}

func TestTransitionClosedIsCleanTerminal(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateAttempt(ctx, "j1", "a1", "run-1")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	for _, to := range []Status{StatusStarted, StatusDeliverableSubmitted, StatusCompleted, StatusMonitoring} {
		if err := s.Transition(ctx, a.ID, to, "step", ""); err != nil {
			t.Fatalf("Transition to %s: %v", to, err)
		}
	}
	if err := s.Transition(ctx, a.ID, StatusClosed, "monitor", "monitoring window closed"); err != nil {
		t.Fatalf("Transition to closed: %v", err)
	}

	got, err := s.GetAttempt(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetAttempt: %v", err)
	}
	if got.Status != StatusClosed {
		t.Errorf("status = %q, want %q", got.Status, StatusClosed)
	}
	// Closed means the attempt finished well; only Terminated carries an error.
	if got.LastError != "" {
		t.Errorf("last error = %q, want empty for a closed attempt", got.LastError)
	}

	err = s.Transition(ctx, a.ID, StatusMonitoring, "monitor", "")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Transition out of closed error = %v, want ErrInvalidTransition", err)
	}
}

func TestTransitionMissingAttempt(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	err := s.Transition(context.Background(), "no-such-id", StatusStarted, "start", "")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestBumpDeliverableVersion(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	a, err := s.CreateAttempt(ctx, "j1", "a1", "run-1")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	for want := 1; want <= 3; want++ {
		got, err := s.BumpDeliverableVersion(ctx, a.ID)
		if err != nil {
			t.Fatalf("BumpDeliverableVersion: %v", err)
		}
		if got != want {
			t.Errorf("version = %d, want %d", got, want)
		}
	}
}

func TestLatestAttempt(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LatestAttempt(ctx, "j1", "a1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LatestAttempt on empty store error = %v, want ErrNotFound", err)
	}

	first, err := s.CreateAttempt(ctx, "j1", "a1", "run-1")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}
	if err := s.Transition(ctx, first.ID, StatusTerminated, "start", "boom"); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	second, err := s.CreateAttempt(ctx, "j1", "a1", "run-2")
	if err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	got, err := s.LatestAttempt(ctx, "j1", "a1")
	if err != nil {
		t.Fatalf("LatestAttempt: %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("latest attempt = %s, want %s", got.ID, second.ID)
	}
}
