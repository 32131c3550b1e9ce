// Package redpanda provides Redpanda/Kafka queue integration.
//
// Analyses submitted through the async API are published transactionally
// and consumed by workers that run the same engine as the synchronous
// endpoint. Analyses that cannot be completed go to a dead-letter topic.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/plugin/kotel"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/internal/observability"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/scoring"
)

// Record headers.
const (
	HeaderSubmissionID  = "submission_id"
	HeaderRequestID     = "request_id"
	HeaderEngineVersion = "engine_version"
	HeaderFailureCode   = "failure_code"
	HeaderFailure       = "failure"
)

// txnClient is the transactional producer surface of *kgo.Client.
type txnClient interface {
	BeginTransaction() error
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	EndTransaction(ctx context.Context, commit kgo.TransactionEndTry) error
	Ping(ctx context.Context) error
	Close()
}

// Producer publishes analysis requests with exactly-once semantics and
// implements domain.AnalysisQueue.
type Producer struct {
	client txnClient
	topic  string
	// txn serializes transactions; a kgo client runs one at a time.
	txn chan struct{}
}

func kotelHooks() kgo.Opt {
	tracer := kotel.NewTracer(kotel.TracerProvider(otel.GetTracerProvider()))
	return kgo.WithHooks(kotel.NewKotel(kotel.WithTracer(tracer)).Hooks()...)
}

// NewProducer connects a transactional producer and makes sure the topics exist.
func NewProducer(brokers []string, transactionalID, topic string) (*Producer, error) {
	slog.Info("creating redpanda producer", slog.Any("brokers", brokers), slog.String("transactional_id", transactionalID), slog.String("topic", topic))
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewProducer: no seed brokers provided")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.TransactionalID(transactionalID),
		kgo.DefaultProduceTopic(topic),
		kgo.RequestRetries(10),
		kgo.ProducerBatchMaxBytes(1_000_000),
		kotelHooks(),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewProducer: %w", err)
	}
	if err := EnsureTopics(context.Background(), client, topic, 4); err != nil {
		slog.Warn("failed to ensure topics, they may already exist", slog.String("topic", topic), slog.Any("error", err))
	}
	return newProducer(client, topic), nil
}

func newProducer(client txnClient, topic string) *Producer {
	return &Producer{client: client, topic: topic, txn: make(chan struct{}, 1)}
}

// EnqueueAnalysis publishes one request keyed by its JD hash, so repeated
// submissions of the same JD land on the same partition in order.
func (p *Producer) EnqueueAnalysis(ctx domain.Context, req domain.AnalyzeRequest) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("op=redpanda.EnqueueAnalysis: marshal: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(scoring.JDHash(req.JDText)),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: HeaderSubmissionID, Value: []byte(req.SubmissionID)},
			{Key: HeaderEngineVersion, Value: []byte(domain.EngineVersion)},
		},
	}
	if rid := observability.RequestIDFromContext(ctx); rid != "" {
		rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: HeaderRequestID, Value: []byte(rid)})
	}
	if err := p.publish(ctx, rec); err != nil {
		return "", fmt.Errorf("op=redpanda.EnqueueAnalysis: %w", err)
	}
	slog.Info("analysis enqueued", slog.String("submission_id", req.SubmissionID), slog.String("topic", p.topic))
	return req.SubmissionID, nil
}

// PublishDeadLetter records an analysis that failed for good.
func (p *Producer) PublishDeadLetter(ctx domain.Context, req domain.AnalyzeRequest, code string, cause error) error {
	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("op=redpanda.PublishDeadLetter: marshal: %w", err)
	}
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	rec := &kgo.Record{
		Topic: DeadLetterTopic(p.topic),
		Key:   []byte(req.SubmissionID),
		Value: b,
		Headers: []kgo.RecordHeader{
			{Key: HeaderSubmissionID, Value: []byte(req.SubmissionID)},
			{Key: HeaderFailureCode, Value: []byte(code)},
			{Key: HeaderFailure, Value: []byte(reason)},
		},
	}
	if err := p.publish(ctx, rec); err != nil {
		return fmt.Errorf("op=redpanda.PublishDeadLetter: %w", err)
	}
	return nil
}

func (p *Producer) publish(ctx context.Context, rec *kgo.Record) error {
	select {
	case p.txn <- struct{}{}:
		defer func() { <-p.txn }()
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := p.client.BeginTransaction(); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		if abortErr := p.client.EndTransaction(ctx, kgo.TryAbort); abortErr != nil {
			slog.Error("failed to abort transaction", slog.Any("error", abortErr))
		}
		return fmt.Errorf("produce: %w", err)
	}
	if err := p.client.EndTransaction(ctx, kgo.TryCommit); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Ping checks broker connectivity for readiness probes.
func (p *Producer) Ping(ctx context.Context) error { return p.client.Ping(ctx) }

// Close closes the producer.
func (p *Producer) Close() {
	if p.client != nil {
		p.client.Close()
	}
}
