package state

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// ReceivedEvent is one row of the accepted-event ledger.
type ReceivedEvent struct {
	RequestID  string
	AgentID    string
	JobPostID  string
	Kind       string
	Origin     string
	BodyHash   string
	ReceivedAt time.Time
}

// RecordEvent appends an accepted webhook event to the ledger. The body is
// stored alongside a BLAKE3 fingerprint so deliveries can be audited and
// compared without re-reading full payloads. A request id already in the
// ledger is a no-op; the replay guard upstream owns rejection. Events that
// arrive without a request id get a synthesized one so they still land in
// the ledger.
func (s *Store) RecordEvent(ctx context.Context, requestID, agentID, jobPostID, kind, origin string, body []byte) error {
	if requestID == "" {
		requestID = "anon-" + uuid.NewString()
	}

	sum := blake3.Sum256(body)
	_, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO webhook_events(request_id, agent_id, job_post_id, kind, origin, body_hash, body, received_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, requestID, agentID, jobPostID, kind, origin, hex.EncodeToString(sum[:]), string(body), formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("insert webhook event: %w", err)
	}
	return nil
}

// RecentEvents returns the newest events in the ledger, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]ReceivedEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT request_id, agent_id, COALESCE(job_post_id, ''), kind, COALESCE(origin, ''), body_hash, received_at
FROM webhook_events ORDER BY received_at DESC LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query webhook events: %w", err)
	}
	defer rows.Close()

	var out []ReceivedEvent
	for rows.Next() {
		var e ReceivedEvent
		var at string
		if err := rows.Scan(&e.RequestID, &e.AgentID, &e.JobPostID, &e.Kind, &e.Origin, &e.BodyHash, &at); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		e.ReceivedAt, _ = time.Parse(time.RFC3339Nano, at)
		out = append(out, e)
	}
	return out, rows.Err()
}
