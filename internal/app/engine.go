package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/ai/real"
	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/ai/stub"
	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-jd-matcher/internal/config"
	"github.com/fairyhunter13/ai-jd-matcher/internal/dimension"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/extraction"
	"github.com/fairyhunter13/ai-jd-matcher/internal/service/ratelimiter"
)

// NewRedisClient connects to REDIS_URL and checks the connection once.
func NewRedisClient(ctx context.Context, cfg config.Config) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("op=app.NewRedisClient: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("op=app.NewRedisClient: ping: %w", err)
	}
	return rdb, nil
}

// RedisReadiness adapts a go-redis client to RedisClient.
type RedisReadiness struct{ Client *goredis.Client }

// Ping implements RedisClient.
func (r RedisReadiness) Ping(ctx context.Context) RedisPingResult { return r.Client.Ping(ctx) }

// NewLLMClient selects the backend named by LLM_PROVIDER. A nil rdb disables
// the shared rate limit.
func NewLLMClient(cfg config.Config, rdb goredis.Scripter) domain.LLMClient {
	if strings.EqualFold(cfg.LLMProvider, config.ProviderStub) {
		slog.Warn("using the deterministic stub LLM; scores are not model based")
		return stub.New()
	}
	var opts []real.Option
	if rdb != nil {
		limiter := ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
			ratelimiter.LLMBucket(cfg.LLMModel): ratelimiter.NewBucketConfigFromPerMinute(cfg.LLMRatePerMin),
		})
		opts = append(opts, real.WithLimiter(limiter))
	}
	if !cfg.LLMConfigured() {
		slog.Warn("LLM_API_KEY is not set; analyses will fail with a configuration error")
	}
	return real.New(cfg, opts...)
}

// NewExtractor builds the structure and evidence extractor with the prompt
// limits of cfg. Prompt text is trimmed with the model's tokenizer.
func NewExtractor(cfg config.Config, llm domain.LLMClient, lib *dimension.Library) *extraction.Extractor {
	model := cfg.LLMModel
	return extraction.New(llm, lib,
		extraction.WithMaxDimensions(cfg.MaxDimensions),
		extraction.WithMaxTokens(cfg.LLMMaxTokens),
		extraction.WithPromptBudget(cfg.LLMPromptTokenBudget),
		extraction.WithTrimmer(func(text string, maxTokens int) string {
			return tokencount.Default.Truncate(text, model, maxTokens)
		}),
	)
}
