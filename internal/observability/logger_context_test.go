package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextWithLogger_RoundTrip(t *testing.T) {
	lg := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	ctx := ContextWithLogger(context.Background(), lg)
	assert.Same(t, lg, LoggerFromContext(ctx))

	base := context.Background()
	assert.Equal(t, base, ContextWithLogger(base, nil))
	assert.Same(t, slog.Default(), LoggerFromContext(base))
	//nolint:staticcheck // nil context is handled explicitly
	assert.Same(t, slog.Default(), LoggerFromContext(nil))
}

func TestWithLogAttrs(t *testing.T) {
	var buf bytes.Buffer
	ctx := ContextWithLogger(context.Background(), slog.New(slog.NewTextHandler(&buf, nil)))

	ctx, lg := WithLogAttrs(ctx, slog.String("jd_hash", "b94d27b9"))
	lg.Info("first")
	LoggerFromContext(ctx).Info("second")

	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("jd_hash=b94d27b9")))
}

func TestRequestID(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "01HZX")
	assert.Equal(t, "01HZX", RequestIDFromContext(ctx))

	base := context.Background()
	assert.Equal(t, base, ContextWithRequestID(base, ""))
	assert.Equal(t, "", RequestIDFromContext(base))
}
