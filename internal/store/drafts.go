package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrStaleDraft is returned when a save carries an older version than the stored draft.
var ErrStaleDraft = errors.New("workspace draft is newer than the save")

// Draft is the single persisted snapshot of one workflow's editable state.
type Draft struct {
	Key       string
	Data      []byte
	Version   int64
	UpdatedAt time.Time
}

// SaveWorkspaceDraft overwrites the row for workflowKey wholesale unless the
// stored version is newer.
func (s *Store) SaveWorkspaceDraft(ctx context.Context, workflowKey string, data []byte, version int64) error {
	if workflowKey == "" {
		return errors.New("workflow key is empty")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO workspace_drafts (workflow_key, data, version, updated_at) VALUES (?, ?, ?, ?)
         ON CONFLICT(workflow_key) DO UPDATE SET
             data = excluded.data,
             version = excluded.version,
             updated_at = excluded.updated_at
         WHERE excluded.version >= workspace_drafts.version`,
		workflowKey, data, version, toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("save workspace draft: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save workspace draft: %w", err)
	}
	if n == 0 {
		return ErrStaleDraft
	}
	return nil
}

// LoadWorkspaceDraft returns nil when no draft exists.
func (s *Store) LoadWorkspaceDraft(ctx context.Context, workflowKey string) (*Draft, error) {
	var (
		d       = Draft{Key: workflowKey}
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT data, version, updated_at FROM workspace_drafts WHERE workflow_key = ?`, workflowKey,
	).Scan(&d.Data, &d.Version, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load workspace draft: %w", err)
	}
	d.UpdatedAt = fromMillis(updated)
	return &d, nil
}

func (s *Store) DeleteWorkspaceDraft(ctx context.Context, workflowKey string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM workspace_drafts WHERE workflow_key = ?`, workflowKey); err != nil {
		return fmt.Errorf("delete workspace draft: %w", err)
	}
	return nil
}

// Count implements usage.Counter.
func (s *Store) Count(ctx context.Context, key string) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx, `SELECT used FROM usage_counters WHERE day_key = ?`, key).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read usage counter: %w", err)
	}
	return used, nil
}

// Increment implements usage.Counter.
func (s *Store) Increment(ctx context.Context, key string) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO usage_counters (day_key, used) VALUES (?, 1)
         ON CONFLICT(day_key) DO UPDATE SET used = used + 1
         RETURNING used`, key,
	).Scan(&used)
	if err != nil {
		return 0, fmt.Errorf("increment usage counter: %w", err)
	}
	return used, nil
}
