package postgres_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

type fakeTx struct {
	commitErr  error
	execErr    error
	tags       []string
	stmts      []call
	rolledBack bool
}

func (t *fakeTx) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.stmts = append(t.stmts, call{sql, args})
	if t.execErr != nil {
		return pgconn.CommandTag{}, t.execErr
	}
	tag := t.tags[0]
	t.tags = t.tags[1:]
	return pgconn.NewCommandTag(tag), nil
}
func (t *fakeTx) Commit(_ context.Context) error   { return t.commitErr }
func (t *fakeTx) Rollback(_ context.Context) error { t.rolledBack = true; return nil }

type fakeBeginner struct {
	beginErr error
	tx       *fakeTx
}

func (b *fakeBeginner) Begin(_ context.Context) (postgres.Tx, error) {
	if b.beginErr != nil {
		return nil, b.beginErr
	}
	return b.tx, nil
}

func TestCleanupService_DeletesOnlyExpired(t *testing.T) {
	tx := &fakeTx{tags: []string{"DELETE 2"}}
	svc := postgres.NewCleanupService(&fakeBeginner{tx: tx}, 24*time.Hour)

	res, err := svc.CleanupOldData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, postgres.CleanupResult{Expired: 2}, res)
	require.Len(t, tx.stmts, 1)
	assert.Contains(t, tx.stmts[0].sql, "created_at <")
	cutoff := tx.stmts[0].args[0].(time.Time)
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), cutoff, time.Minute)
}

func TestCleanupService_KeepsOtherEngineVersions(t *testing.T) {
	tx := &fakeTx{tags: []string{"DELETE 0"}}
	_, err := postgres.NewCleanupService(&fakeBeginner{tx: tx}, 0).CleanupOldData(context.Background())
	require.NoError(t, err)
	for _, st := range tx.stmts {
		assert.NotContains(t, st.sql, "engine_version")
		assert.NotContains(t, st.args, domain.EngineVersion)
	}
}

func TestCleanupService_Errors(t *testing.T) {
	_, err := postgres.NewCleanupService(&fakeBeginner{beginErr: errors.New("begin")}, 0).CleanupOldData(context.Background())
	require.Error(t, err)

	tx := &fakeTx{execErr: errors.New("locked")}
	_, err = postgres.NewCleanupService(&fakeBeginner{tx: tx}, 0).CleanupOldData(context.Background())
	require.Error(t, err)
	assert.True(t, tx.rolledBack)

	tx = &fakeTx{tags: []string{"DELETE 0"}, commitErr: errors.New("commit")}
	_, err = postgres.NewCleanupService(&fakeBeginner{tx: tx}, 0).CleanupOldData(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=cleanup.commit")
}

func TestCleanupService_RunPeriodic_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := postgres.NewCleanupService(&fakeBeginner{tx: &fakeTx{tags: []string{"DELETE 0", "DELETE 0"}}}, 0)
	done := make(chan struct{})
	go func() {
		svc.RunPeriodic(ctx, time.Hour)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RunPeriodic did not stop")
	}
}
