package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/scbe-labs/gate/pkg/audit"
	"github.com/scbe-labs/gate/pkg/contracts"

	_ "github.com/lib/pq"
)

// PostgresDecisionLog implements audit.Logger against PostgreSQL, giving
// operators a queryable record of every verdict alongside the line-oriented
// audit stream.
type PostgresDecisionLog struct {
	db *sql.DB
}

func NewPostgresDecisionLog(db *sql.DB) *PostgresDecisionLog {
	return &PostgresDecisionLog{db: db}
}

// Migrate creates the decisions table if it does not exist.
func (s *PostgresDecisionLog) Migrate(ctx context.Context) error {
	query := `
        CREATE TABLE IF NOT EXISTS decisions (
            id TEXT PRIMARY KEY,
            outcome TEXT NOT NULL,
            reason TEXT,
            detail TEXT,
            route TEXT NOT NULL,
            run_id TEXT,
            device_id TEXT,
            created_at TIMESTAMPTZ NOT NULL
        )`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// Record inserts one decision row.
func (s *PostgresDecisionLog) Record(ctx context.Context, event audit.Event) error {
	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	query := `
        INSERT INTO decisions (id, outcome, reason, detail, route, run_id, device_id, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (id) DO NOTHING`
	_, err := s.db.ExecContext(ctx, query,
		event.ID, string(event.Outcome), string(event.Reason), event.Detail,
		event.Route, event.RunID, event.DeviceID, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

// RejectionsByRoute counts rejections per route since the given time, grouped
// by reason. Useful for spotting routes trending toward auto-exclusion.
func (s *PostgresDecisionLog) RejectionsByRoute(ctx context.Context, route string, since time.Time) (map[contracts.Reason]int, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT reason, COUNT(*) FROM decisions
        WHERE route = $1 AND outcome = $2 AND created_at >= $3
        GROUP BY reason`,
		route, string(audit.OutcomeReject), since)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[contracts.Reason]int)
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return nil, err
		}
		counts[contracts.Reason(reason)] = n
	}
	return counts, rows.Err()
}
