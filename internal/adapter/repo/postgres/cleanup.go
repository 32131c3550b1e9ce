package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is the part of pgx.Tx the cleanup job needs.
type Tx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner starts transactions.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// PoolBeginner adapts a pgxpool.Pool to Beginner.
type PoolBeginner struct{ Pool *pgxpool.Pool }

// Begin starts a transaction on the pool.
func (b PoolBeginner) Begin(ctx context.Context) (Tx, error) {
	tx, err := b.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// CleanupService prunes match cache rows past the retention window. Rows of
// other engine versions are kept for audit; lookups already ignore them.
type CleanupService struct {
	DB        Beginner
	Retention time.Duration
	now       func() time.Time
}

// NewCleanupService creates a cleanup service. A non-positive retention
// falls back to 90 days.
func NewCleanupService(db Beginner, retention time.Duration) *CleanupService {
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &CleanupService{DB: db, Retention: retention, now: time.Now}
}

// CleanupResult reports how many rows one run deleted.
type CleanupResult struct {
	Expired int64
}

// CleanupOldData deletes expired rows in one transaction.
func (s *CleanupService) CleanupOldData(ctx context.Context) (CleanupResult, error) {
	cutoff := s.now().UTC().Add(-s.Retention)

	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("op=cleanup.begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var res CleanupResult
	tag, err := tx.Exec(ctx, `DELETE FROM match_results WHERE created_at < $1`, cutoff)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("op=cleanup.expired: %w", err)
	}
	res.Expired = tag.RowsAffected()

	if err := tx.Commit(ctx); err != nil {
		return CleanupResult{}, fmt.Errorf("op=cleanup.commit: %w", err)
	}

	slog.Info("match cache cleanup completed",
		slog.Int64("deleted_expired", res.Expired),
		slog.Time("cutoff", cutoff),
	)
	return res, nil
}

// RunPeriodic runs a cleanup immediately and then on every tick until ctx is done.
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if _, err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
