// Package state persists job attempts, their transition history, and the
// ledger of accepted webhook events.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is a job attempt's position in its lifecycle.
type Status string

const (
	StatusInvited              Status = "invited"
	StatusStarted              Status = "started"
	StatusDeliverableSubmitted Status = "deliverable_submitted"
	StatusCompleted            Status = "completed"
	StatusMonitoring           Status = "monitoring"
	StatusRevised              Status = "revised"
	StatusClosed               Status = "closed"
	StatusTerminated           Status = "terminated"
)

// validNext encodes the lifecycle. Terminated is reachable from any live
// state and always carries an error; Closed is the clean terminal once the
// monitoring window runs out. Revised loops back to Monitoring once the
// revision is re-uploaded.
var validNext = map[Status][]Status{
	StatusInvited:              {StatusStarted, StatusTerminated},
	StatusStarted:              {StatusDeliverableSubmitted, StatusTerminated},
	StatusDeliverableSubmitted: {StatusCompleted, StatusTerminated},
	StatusCompleted:            {StatusMonitoring, StatusTerminated},
	StatusMonitoring:           {StatusRevised, StatusClosed, StatusTerminated},
	StatusRevised:              {StatusMonitoring, StatusTerminated},
}

// ErrInvalidTransition reports an attempted lifecycle move the state machine
// does not allow.
var ErrInvalidTransition = errors.New("invalid attempt transition")

// ErrNotFound reports a missing attempt.
var ErrNotFound = errors.New("attempt not found")

// Attempt is one agent's run at one job.
type Attempt struct {
	ID                 string
	JobPostID          string
	AgentID            string
	Status             Status
	RunID              string
	DeliverableVersion int
	LastError          string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Transition is one recorded lifecycle move.
type Transition struct {
	ID         int64
	AttemptID  string
	FromStatus Status
	ToStatus   Status
	Step       string
	Detail     string
	At         time.Time
}

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateAttempt records a fresh attempt in the invited state.
func (s *Store) CreateAttempt(ctx context.Context, jobPostID, agentID, runID string) (*Attempt, error) {
	if jobPostID == "" || agentID == "" {
		return nil, fmt.Errorf("job post id and agent id are required")
	}

	now := time.Now().UTC()
	a := &Attempt{
		ID:        uuid.NewString(),
		JobPostID: jobPostID,
		AgentID:   agentID,
		Status:    StatusInvited,
		RunID:     runID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO job_attempts(id, job_post_id, agent_id, status, run_id, deliverable_version, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, 0, ?, ?);
`, a.ID, a.JobPostID, a.AgentID, string(a.Status), a.RunID, formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert attempt: %w", err)
	}
	return a, nil
}

// Transition moves an attempt to a new status and appends the move to the
// transition log in the same transaction.
func (s *Store) Transition(ctx context.Context, attemptID string, to Status, step, detail string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM job_attempts WHERE id = ?;", attemptID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("attempt %s: %w", attemptID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read attempt status: %w", err)
	}

	from := Status(current)
	if !transitionAllowed(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, ErrInvalidTransition)
	}

	now := time.Now().UTC()
	if to == StatusTerminated && detail != "" {
		_, err = tx.ExecContext(ctx, `
UPDATE job_attempts SET status = ?, last_error = ?, updated_at = ? WHERE id = ?;
`, string(to), detail, formatTime(now), attemptID)
	} else {
		_, err = tx.ExecContext(ctx, `
UPDATE job_attempts SET status = ?, updated_at = ? WHERE id = ?;
`, string(to), formatTime(now), attemptID)
	}
	if err != nil {
		return fmt.Errorf("update attempt status: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO attempt_transitions(attempt_id, from_status, to_status, step, detail, at)
VALUES(?, ?, ?, ?, ?, ?);
`, attemptID, string(from), string(to), step, detail, formatTime(now))
	if err != nil {
		return fmt.Errorf("insert transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// BumpDeliverableVersion increments the attempt's deliverable version and
// returns the new value. Version 1 is the first upload.
func (s *Store) BumpDeliverableVersion(ctx context.Context, attemptID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var version int
	err = tx.QueryRowContext(ctx, "SELECT deliverable_version FROM job_attempts WHERE id = ?;", attemptID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("attempt %s: %w", attemptID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("read deliverable version: %w", err)
	}

	version++
	_, err = tx.ExecContext(ctx, `
UPDATE job_attempts SET deliverable_version = ?, updated_at = ? WHERE id = ?;
`, version, formatTime(time.Now().UTC()), attemptID)
	if err != nil {
		return 0, fmt.Errorf("update deliverable version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return version, nil
}

// GetAttempt returns an attempt by id.
func (s *Store) GetAttempt(ctx context.Context, attemptID string) (*Attempt, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, job_post_id, agent_id, status, run_id, deliverable_version, COALESCE(last_error, ''), created_at, updated_at
FROM job_attempts WHERE id = ?;
`, attemptID)
	return scanAttempt(row)
}

// LatestAttempt returns the most recent attempt for a job and agent, or
// ErrNotFound.
func (s *Store) LatestAttempt(ctx context.Context, jobPostID, agentID string) (*Attempt, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, job_post_id, agent_id, status, run_id, deliverable_version, COALESCE(last_error, ''), created_at, updated_at
FROM job_attempts WHERE job_post_id = ? AND agent_id = ?
ORDER BY rowid DESC LIMIT 1;
`, jobPostID, agentID)
	return scanAttempt(row)
}

// Transitions returns an attempt's recorded lifecycle moves, oldest first.
func (s *Store) Transitions(ctx context.Context, attemptID string) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, attempt_id, from_status, to_status, COALESCE(step, ''), COALESCE(detail, ''), at
FROM attempt_transitions WHERE attempt_id = ? ORDER BY id;
`, attemptID)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var from, to, at string
		if err := rows.Scan(&t.ID, &t.AttemptID, &from, &to, &t.Step, &t.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.FromStatus = Status(from)
		t.ToStatus = Status(to)
		t.At, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, t)
	}
	return out, rows.Err()
}

func transitionAllowed(from, to Status) bool {
	for _, next := range validNext[from] {
		if next == to {
			return true
		}
	}
	return false
}

func scanAttempt(row *sql.Row) (*Attempt, error) {
	var a Attempt
	var status, created, updated string
	var runID sql.NullString
	err := row.Scan(&a.ID, &a.JobPostID, &a.AgentID, &status, &runID, &a.DeliverableVersion, &a.LastError, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan attempt: %w", err)
	}
	a.Status = Status(status)
	a.RunID = runID.String
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &a, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
