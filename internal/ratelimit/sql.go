package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"snapcast/internal/database"
)

// SQLStore keeps counters in the rate_limit_windows table so every web
// process sharing the database sees the same counts.
type SQLStore struct {
	db  *database.DB
	now func() time.Time
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(db *database.DB) *SQLStore {
	return &SQLStore{db: db, now: time.Now}
}

func (s *SQLStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	expiresAt := s.now().Add(ttl).Unix()

	if s.db.Dialect == database.MySQL {
		return s.incrMySQL(ctx, key, expiresAt)
	}

	var hits int64
	err := s.db.QueryRowContext(ctx, s.db.Rebind(`
		INSERT INTO rate_limit_windows (bucket_key, hits, expires_at) VALUES (?, 1, ?)
		ON CONFLICT (bucket_key) DO UPDATE SET hits = rate_limit_windows.hits + 1
		RETURNING hits`), key, expiresAt).Scan(&hits)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert rate limit window: %w", err)
	}
	return hits, nil
}

// MySQL has no RETURNING; the upsert takes a row lock that the SELECT in
// the same transaction reads under.
func (s *SQLStore) incrMySQL(ctx context.Context, key string, expiresAt int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rate_limit_windows (bucket_key, hits, expires_at) VALUES (?, 1, ?)
		ON DUPLICATE KEY UPDATE hits = hits + 1`, key, expiresAt); err != nil {
		return 0, fmt.Errorf("failed to upsert rate limit window: %w", err)
	}

	var hits int64
	if err := tx.QueryRowContext(ctx,
		"SELECT hits FROM rate_limit_windows WHERE bucket_key = ?", key,
	).Scan(&hits); err != nil {
		return 0, fmt.Errorf("failed to read rate limit window: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rate limit window: %w", err)
	}
	return hits, nil
}

// Prune deletes windows that expired before now and returns how many were removed.
func (s *SQLStore) Prune(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind("DELETE FROM rate_limit_windows WHERE expires_at < ?"), s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune rate limit windows: %w", err)
	}
	return res.RowsAffected()
}

// RunPruner calls Prune every interval until ctx is done.
func (s *SQLStore) RunPruner(ctx context.Context, interval time.Duration) {
	logger := slog.With("component", "ratelimit-pruner")
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Prune(ctx)
			if err != nil {
				logger.Error("prune failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Debug("pruned expired windows", "count", n)
			}
		}
	}
}
