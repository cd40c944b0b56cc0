// Package store persists sync history to Postgres. Optional: the daemon
// runs without it when no database is configured, losing only the history
// endpoint. The tab registry itself is never persisted.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/weftlabs/calbridge/internal/router"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// SyncRow is one recorded sync, newest first in ListRecent.
type SyncRow struct {
	SyncID     string    `json:"sync_id"`
	Outcome    string    `json:"outcome"`
	EventCount int       `json:"event_count"`
	WeekOf     string    `json:"week_of,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// RecordSync implements router.History.
func (s *Store) RecordSync(ctx context.Context, rec router.SyncRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_history (sync_id, outcome, event_count, week_of, error, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), now())`,
		rec.SyncID, rec.Outcome, rec.EventCount, rec.WeekOf, rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert sync record: %w", err)
	}
	return nil
}

// ListRecent returns the most recent syncs, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]SyncRow, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT sync_id, outcome, event_count, COALESCE(week_of, ''), COALESCE(error, ''), created_at
		FROM sync_history
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sync history: %w", err)
	}
	defer rows.Close()

	var out []SyncRow
	for rows.Next() {
		var r SyncRow
		if err := rows.Scan(&r.SyncID, &r.Outcome, &r.EventCount, &r.WeekOf, &r.Error, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan sync row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync rows: %w", err)
	}
	return out, nil
}
