package redpanda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	obsmetrics "github.com/fairyhunter13/ai-jd-matcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/internal/observability"
)

// Analyzer runs one analysis; usecase.AnalyzeService implements it.
type Analyzer interface {
	Analyze(ctx domain.Context, req domain.AnalyzeRequest) (domain.AnalysisReport, error)
}

// DeadLetterer receives analyses that exhausted their attempts.
type DeadLetterer interface {
	PublishDeadLetter(ctx domain.Context, req domain.AnalyzeRequest, code string, cause error) error
}

// groupClient is the consumer-group surface of *kgo.Client.
type groupClient interface {
	PollFetches(ctx context.Context) kgo.Fetches
	MarkCommitRecords(rs ...*kgo.Record)
	CommitMarkedOffsets(ctx context.Context) error
	Close()
}

// ConsumerOptions tunes a Consumer.
type ConsumerOptions struct {
	// Workers bounds analyses running at once.
	Workers     int
	JobTimeout  time.Duration
	MaxAttempts int
	// RetryInitial is the first backoff interval between attempts.
	RetryInitial time.Duration
}

func (o ConsumerOptions) withDefaults() ConsumerOptions {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 5 * time.Minute
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryInitial <= 0 {
		o.RetryInitial = 2 * time.Second
	}
	return o
}

// Consumer reads analysis requests and runs them. Offsets are committed once
// every record of a poll has been handled, so a crash replays the batch.
// Replays are cheap: scored resumes come back from the match cache.
type Consumer struct {
	client   groupClient
	analyzer Analyzer
	dlq      DeadLetterer
	opts     ConsumerOptions
}

// NewConsumer joins groupID on topic.
func NewConsumer(brokers []string, groupID, topic string, an Analyzer, dlq DeadLetterer, opts ConsumerOptions) (*Consumer, error) {
	slog.Info("creating redpanda consumer", slog.Any("brokers", brokers), slog.String("group_id", groupID), slog.String("topic", topic))
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: no seed brokers provided")
	}
	if groupID == "" {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: missing required group ID")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(groupID),
		kgo.ConsumeTopics(topic),
		kgo.FetchIsolationLevel(kgo.ReadCommitted()),
		kgo.RequireStableFetchOffsets(),
		kgo.AutoCommitMarks(),
		kgo.AutoCommitInterval(time.Second),
		kgo.SessionTimeout(30*time.Second),
		kgo.HeartbeatInterval(3*time.Second),
		kgo.FetchMaxWait(5*time.Second),
		kotelHooks(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewConsumer: %w", err)
	}
	return newConsumer(client, an, dlq, opts), nil
}

func newConsumer(client groupClient, an Analyzer, dlq DeadLetterer, opts ConsumerOptions) *Consumer {
	return &Consumer{client: client, analyzer: an, dlq: dlq, opts: opts.withDefaults()}
}

// Run polls until ctx is cancelled or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	slog.Info("redpanda consumer started", slog.Int("workers", c.opts.Workers))
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			slog.Info("redpanda consumer stopping")
			return err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			slog.Error("fetch error", slog.String("topic", topic), slog.Int("partition", int(partition)), slog.Any("error", err))
		})

		records := fetches.Records()
		if len(records) == 0 {
			continue
		}
		var g errgroup.Group
		g.SetLimit(c.opts.Workers)
		for _, rec := range records {
			g.Go(func() error {
				c.handle(ctx, rec)
				return nil
			})
		}
		_ = g.Wait()
		if err := ctx.Err(); err != nil {
			// Unfinished records are redelivered after the rebalance.
			return err
		}

		c.client.MarkCommitRecords(records...)
		if err := c.client.CommitMarkedOffsets(ctx); err != nil {
			slog.Warn("offset commit failed", slog.Any("error", err))
		}
	}
}

// Close leaves the group.
func (c *Consumer) Close() { c.client.Close() }

func header(rec *kgo.Record, key string) string {
	for _, h := range rec.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *Consumer) handle(ctx context.Context, rec *kgo.Record) {
	ctx, span := otel.Tracer("redpanda").Start(ctx, "redpanda.handle")
	defer span.End()
	span.SetAttributes(attribute.String("messaging.topic", rec.Topic), attribute.Int64("messaging.offset", rec.Offset))

	ctx = observability.ContextWithRequestID(ctx, header(rec, HeaderRequestID))
	ctx, lg := observability.WithLogAttrs(ctx,
		slog.String("submission_id", header(rec, HeaderSubmissionID)),
		slog.String("request_id", header(rec, HeaderRequestID)),
		slog.Int64("offset", rec.Offset))

	var req domain.AnalyzeRequest
	if err := json.Unmarshal(rec.Value, &req); err != nil {
		lg.Error("undecodable analysis request dropped", slog.Any("error", err))
		obsmetrics.CompleteAnalysis(CodeInvalidArgument)
		return
	}

	start := time.Now()
	attempts := 0
	op := func() error {
		attempts++
		jobCtx, cancel := context.WithTimeout(ctx, c.opts.JobTimeout)
		defer cancel()
		_, err := c.analyzer.Analyze(jobCtx, req)
		if err == nil {
			return nil
		}
		code := classifyFailure(err)
		lg.Warn("analysis attempt failed", slog.Int("attempt", attempts), slog.String("code", code), slog.Any("error", err))
		if !retryable(code) {
			return backoff.Permanent(err)
		}
		return err
	}
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.opts.RetryInitial
	bo := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(c.opts.MaxAttempts-1)), ctx)
	err := backoff.Retry(op, bo)

	code := classifyFailure(err)
	obsmetrics.CompleteAnalysis(code)
	if err == nil {
		lg.Info("queued analysis completed", slog.Int("attempts", attempts), slog.Duration("took", time.Since(start)))
		return
	}
	span.RecordError(err)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return
	}
	lg.Error("queued analysis failed", slog.String("code", code), slog.Int("attempts", attempts), slog.Any("error", err))
	if c.dlq == nil {
		return
	}
	if dlqErr := c.dlq.PublishDeadLetter(ctx, req, code, err); dlqErr != nil {
		lg.Error("dead letter publish failed", slog.Any("error", dlqErr))
	}
}
