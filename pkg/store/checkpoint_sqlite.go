// Package store persists policy checkpoints and decision records.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/scbe-labs/gate/pkg/policy"

	_ "modernc.org/sqlite"
)

// SQLiteCheckpointStore persists policy registry snapshots so trust state
// survives restarts. Each checkpoint row is immutable; Load reads the latest.
type SQLiteCheckpointStore struct {
	db *sql.DB
}

func NewSQLiteCheckpointStore(db *sql.DB) (*SQLiteCheckpointStore, error) {
	s := &SQLiteCheckpointStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteCheckpointStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS policy_checkpoints (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        created_at DATETIME NOT NULL,
        intents JSON NOT NULL,
        trust JSON NOT NULL
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Save writes a new checkpoint row.
func (s *SQLiteCheckpointStore) Save(ctx context.Context, snap *policy.Snapshot) error {
	intentsJSON, err := json.Marshal(snap.Intents)
	if err != nil {
		return fmt.Errorf("encode intents: %w", err)
	}
	trustJSON, err := json.Marshal(snap.Trust)
	if err != nil {
		return fmt.Errorf("encode trust: %w", err)
	}

	createdAt := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO policy_checkpoints (created_at, intents, trust) VALUES (?, ?, ?)`,
		createdAt, string(intentsJSON), string(trustJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

// Load returns the most recent checkpoint, or nil if none exist.
func (s *SQLiteCheckpointStore) Load(ctx context.Context) (*policy.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT intents, trust FROM policy_checkpoints ORDER BY id DESC LIMIT 1`)

	var intentsJSON, trustJSON string
	err := row.Scan(&intentsJSON, &trustJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := &policy.Snapshot{}
	if err := json.Unmarshal([]byte(intentsJSON), &snap.Intents); err != nil {
		return nil, fmt.Errorf("decode intents: %w", err)
	}
	if err := json.Unmarshal([]byte(trustJSON), &snap.Trust); err != nil {
		return nil, fmt.Errorf("decode trust: %w", err)
	}
	return snap, nil
}

// Prune deletes all but the newest keep checkpoints.
func (s *SQLiteCheckpointStore) Prune(ctx context.Context, keep int) error {
	if keep < 1 {
		keep = 1
	}
	_, err := s.db.ExecContext(ctx, `
        DELETE FROM policy_checkpoints
        WHERE id NOT IN (
            SELECT id FROM policy_checkpoints ORDER BY id DESC LIMIT ?
        )`, keep)
	return err
}
