// Command worker consumes queued analyses from Redpanda and runs them with
// the same engine as the synchronous API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	rediscache "github.com/fairyhunter13/ai-jd-matcher/internal/adapter/cache/redis"
	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/ai-jd-matcher/internal/app"
	"github.com/fairyhunter13/ai-jd-matcher/internal/config"
	"github.com/fairyhunter13/ai-jd-matcher/internal/dimension"
	"github.com/fairyhunter13/ai-jd-matcher/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// The worker exposes its own /metrics for queue and engine metrics.
	observability.InitMetrics()
	metricsSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.WorkerMetricsPort), Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	slog.Info("starting worker", slog.String("env", cfg.AppEnv), slog.String("topic", cfg.KafkaTopic))

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("db migrate failed", slog.Any("error", err))
		os.Exit(1)
	}

	rdb, err := app.NewRedisClient(ctx, cfg)
	if err != nil {
		slog.Error("redis connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = rdb.Close() }()

	analyses := postgres.NewAnalysisRepo(pool)
	cache := rediscache.NewTieredMatchCache(rdb, postgres.NewMatchCacheRepo(pool), cfg.HotCacheTTL)
	engine := app.NewExtractor(cfg, app.NewLLMClient(cfg, rdb), dimension.Default())
	analyzeSvc := usecase.NewAnalyzeService(postgres.NewResumeRepo(pool), analyses, cache, engine, usecase.AnalyzeOptionsFromConfig(cfg))

	// Dead letters use their own transactional id so the worker never fences
	// the API producer.
	dlq, err := redpanda.NewProducer(cfg.KafkaBrokers, cfg.KafkaTransactionalID+"-worker", cfg.KafkaTopic)
	if err != nil {
		slog.Error("dead letter producer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer dlq.Close()

	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, cfg.KafkaConsumerGroup, cfg.KafkaTopic, analyzeSvc, dlq, redpanda.ConsumerOptions{
		Workers:      cfg.WorkerConcurrency,
		JobTimeout:   cfg.WorkerJobTimeout,
		MaxAttempts:  cfg.WorkerMaxAttempts,
		RetryInitial: cfg.WorkerRetryInitial,
	})
	if err != nil {
		slog.Error("redpanda consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("worker error", slog.Any("error", err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	slog.Info("worker stopped")
}
