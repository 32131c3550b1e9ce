// Command server starts the JD matcher HTTP API.
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

	rediscache "github.com/fairyhunter13/ai-jd-matcher/internal/adapter/cache/redis"
	httpserver "github.com/fairyhunter13/ai-jd-matcher/internal/adapter/httpserver"
	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/repo/postgres"
	tikaext "github.com/fairyhunter13/ai-jd-matcher/internal/adapter/textextractor/tika"
	"github.com/fairyhunter13/ai-jd-matcher/internal/app"
	"github.com/fairyhunter13/ai-jd-matcher/internal/config"
	"github.com/fairyhunter13/ai-jd-matcher/internal/dimension"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

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

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
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

	// Repositories; the match cache is Postgres with a Redis hot tier.
	resumes := postgres.NewResumeRepo(pool)
	analyses := postgres.NewAnalysisRepo(pool)
	cache := rediscache.NewTieredMatchCache(rdb, postgres.NewMatchCacheRepo(pool), cfg.HotCacheTTL)

	if cfg.DataRetentionDays > 0 {
		cleanupSvc := postgres.NewCleanupService(postgres.PoolBeginner{Pool: pool}, cfg.RetentionWindow())
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started", slog.Int("retention_days", cfg.DataRetentionDays), slog.Duration("interval", cfg.CleanupInterval))
	}

	lib := dimension.Default()
	engine := app.NewExtractor(cfg, app.NewLLMClient(cfg, rdb), lib)
	analyzeSvc := usecase.NewAnalyzeService(resumes, analyses, cache, engine, usecase.AnalyzeOptionsFromConfig(cfg))
	resultSvc := usecase.NewResultService(analyses)

	// Async analyses are optional; without brokers the endpoint answers 503.
	var submitter httpserver.Submitter
	var broker app.Pinger
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := redpanda.NewProducer(cfg.KafkaBrokers, cfg.KafkaTransactionalID+"-api", cfg.KafkaTopic)
		if err != nil {
			slog.Error("redpanda producer init failed, async analyses disabled", slog.Any("error", err))
		} else {
			defer producer.Close()
			submitter = usecase.NewSubmitService(producer, cfg.DefaultTopN)
			broker = producer
		}
	}

	var extractor domain.TextExtractor
	var tikaPing app.Pinger
	if cfg.TikaURL != "" {
		tika := tikaext.New(cfg.TikaURL)
		extractor, tikaPing = tika, tika
	}

	srv := httpserver.NewServer(cfg, analyzeSvc, submitter, resultSvc, lib, extractor)
	app.ApplyReadiness(srv, app.BuildReadinessChecks(pool, app.RedisReadiness{Client: rdb}, tikaPing, broker))
	handler := app.BuildRouter(cfg, srv)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("engine_version", domain.EngineVersion))
		errCh <- srvHTTP.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
