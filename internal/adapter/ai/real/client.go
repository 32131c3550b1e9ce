// Package real implements the LLM client backed by an OpenAI compatible
// chat completions API.
package real

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/ai"
	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-jd-matcher/internal/config"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/ratelimiter"
)

const provider = "openai"

// Waiter blocks until a call on key may proceed.
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// Client implements domain.LLMClient.
type Client struct {
	cfg     config.Config
	api     *openai.Client
	breaker *ai.CircuitBreaker
	limiter Waiter
	cleaner *ai.ResponseCleaner
	counter *tokencount.Counter
}

// Option customizes a Client.
type Option func(*Client)

// WithLimiter shares a rate limit bucket across processes.
func WithLimiter(w Waiter) Option { return func(c *Client) { c.limiter = w } }

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *ai.CircuitBreaker) Option { return func(c *Client) { c.breaker = b } }

// WithHTTPClient replaces the instrumented HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.api = newAPI(c.cfg, hc) }
}

// New constructs the client. A missing API key is not an error here; it
// surfaces as ErrConfiguration on the first call.
func New(cfg config.Config, opts ...Option) *Client {
	timeout := cfg.LLMTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	hc := &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}
	c := &Client{
		cfg:     cfg,
		api:     newAPI(cfg, hc),
		breaker: ai.NewCircuitBreaker("llm:"+cfg.LLMModel, cfg.LLMBreakerFailures, cfg.LLMBreakerCooldown),
		cleaner: ai.NewResponseCleaner(),
		counter: tokencount.Default,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func newAPI(cfg config.Config, hc *http.Client) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.LLMAPIKey)
	if cfg.LLMBaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.LLMBaseURL, "/")
	}
	clientCfg.HTTPClient = hc
	return openai.NewClientWithConfig(clientCfg)
}

func (c *Client) getBackoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsedTime, initialInterval, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsedTime
	expo.InitialInterval = initialInterval
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return expo
}

// ChatJSON sends one system/user pair in JSON mode and returns the cleaned
// JSON object the model produced.
func (c *Client) ChatJSON(ctx domain.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if c.cfg.LLMAPIKey == "" {
		slog.Error("LLM API key missing", slog.String("provider", provider))
		return "", fmt.Errorf("op=real.ChatJSON: %w: LLM_API_KEY missing", domain.ErrConfiguration)
	}
	ctx, span := otel.Tracer("ai").Start(ctx, "ai.ChatJSON")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", c.cfg.LLMModel), attribute.Int("llm.max_tokens", maxTokens))

	if !c.breaker.Allow() {
		observability.ObserveAIRequest(provider, "breaker_open", 0)
		return "", fmt.Errorf("op=real.ChatJSON: %w: circuit %s open", domain.ErrUpstreamTimeout, c.cfg.LLMModel)
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, ratelimiter.LLMBucket(c.cfg.LLMModel)); err != nil {
			return "", fmt.Errorf("op=real.ChatJSON: %w: %w", domain.ErrUpstreamTimeout, err)
		}
	}

	req := openai.ChatCompletionRequest{
		Model: c.cfg.LLMModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		MaxTokens: maxTokens,
		// Zero is dropped by omitempty and would fall back to the provider default.
		Temperature:    math.SmallestNonzeroFloat32,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	var resp openai.ChatCompletionResponse
	op := func() error {
		start := time.Now()
		r, err := c.api.CreateChatCompletion(ctx, req)
		if err != nil {
			status := statusCode(err)
			observability.ObserveAIRequest(provider, outcome(status), time.Since(start))
			switch {
			case status == http.StatusTooManyRequests:
				slog.Warn("ai provider rate limited", slog.String("provider", provider), slog.String("model", c.cfg.LLMModel))
				return err
			case status >= 400 && status < 500:
				slog.Warn("ai provider 4xx", slog.String("provider", provider), slog.Int("status", status), slog.Any("error", err))
				return backoff.Permanent(err)
			default:
				slog.Error("ai provider error", slog.String("provider", provider), slog.Int("status", status), slog.Any("error", err))
				return err
			}
		}
		observability.ObserveAIRequest(provider, "success", time.Since(start))
		resp = r
		return nil
	}

	bo := backoff.WithContext(c.getBackoffConfig(), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		span.RecordError(err)
		status := statusCode(err)
		if status < 400 || status >= 500 || status == http.StatusTooManyRequests {
			c.breaker.RecordFailure()
		}
		return "", classify(err, status)
	}
	c.breaker.RecordSuccess()

	prompt, completion := resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	if prompt == 0 && c.counter != nil {
		if n, err := c.counter.CountChatTokens(systemPrompt, userPrompt, c.cfg.LLMModel); err == nil {
			prompt = n
		}
	}
	observability.ObserveTokens(provider, prompt, completion)

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("op=real.ChatJSON: %w: empty choices", domain.ErrSchemaInvalid)
	}
	if resp.Model != "" && resp.Model != c.cfg.LLMModel {
		slog.Debug("model substitution", slog.String("requested_model", c.cfg.LLMModel), slog.String("actual_model", resp.Model))
	}
	out, err := c.cleaner.CleanJSONResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return "", fmt.Errorf("op=real.ChatJSON: %w: %w", domain.ErrSchemaInvalid, err)
	}
	return out, nil
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

func outcome(status int) string {
	switch {
	case status == 0:
		return "transport_error"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "server_error"
	default:
		return "client_error"
	}
}

func classify(err error, status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("op=real.ChatJSON: %w: %w", domain.ErrConfiguration, err)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("op=real.ChatJSON: %w: %w", domain.ErrUpstreamRateLimit, err)
	case status >= 400 && status < 500:
		return fmt.Errorf("op=real.ChatJSON: %w: %w", domain.ErrInvalidArgument, err)
	default:
		return fmt.Errorf("op=real.ChatJSON: %w: %w", domain.ErrUpstreamTimeout, err)
	}
}
