package real

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/ai"
	"github.com/fairyhunter13/ai-jd-matcher/internal/config"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

type chatReq struct {
	Model          string              `json:"model"`
	MaxTokens      int                 `json:"max_tokens"`
	Messages       []map[string]string `json:"messages"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

func testConfig(url string) config.Config {
	return config.Config{
		AppEnv:              "dev",
		LLMAPIKey:           "k",
		LLMBaseURL:          url,
		LLMModel:            "gpt-4o-mini",
		LLMTimeout:          5 * time.Second,
		LLMBreakerFailures:  3,
		LLMBreakerCooldown:  time.Minute,
		AIBackoffMaxElapsed: 100 * time.Millisecond,
		AIBackoffInitial:    5 * time.Millisecond,
		AIBackoffMax:        10 * time.Millisecond,
		AIBackoffMultiplier: 1.5,
	}
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{"index": 0, "message": map[string]any{"role": "assistant", "content": content}}},
		"usage":   map[string]any{"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17},
	})
}

func writeAPIError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"message": "boom", "type": "server_error"},
	})
}

type recordingWaiter struct{ keys []string }

func (r *recordingWaiter) Wait(_ context.Context, key string) error {
	r.keys = append(r.keys, key)
	return nil
}

func TestChatJSON_SendsJSONModeAndCleansOutput(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var cr chatReq
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cr))
		assert.Equal(t, "gpt-4o-mini", cr.Model)
		assert.Equal(t, 256, cr.MaxTokens)
		assert.Equal(t, "json_object", cr.ResponseFormat.Type)
		require.Len(t, cr.Messages, 2)
		assert.Equal(t, "system", cr.Messages[0]["role"])
		assert.Equal(t, "user prompt", cr.Messages[1]["content"])
		writeCompletion(w, "```json\n{\"ok\": true}\n```")
	}))
	defer ts.Close()

	waiter := &recordingWaiter{}
	c := New(testConfig(ts.URL), WithLimiter(waiter))
	out, err := c.ChatJSON(context.Background(), "sys", "user prompt", 256)
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)
	assert.Equal(t, []string{"llm:gpt-4o-mini"}, waiter.keys)
}

func TestChatJSON_MissingKeyIsConfigurationError(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.LLMAPIKey = ""
	_, err := New(cfg).ChatJSON(context.Background(), "sys", "user", 64)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConfiguration))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestChatJSON_RetriesServerErrors(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			writeAPIError(w, http.StatusBadGateway)
			return
		}
		writeCompletion(w, `{"ok":1}`)
	}))
	defer ts.Close()

	out, err := New(testConfig(ts.URL)).ChatJSON(context.Background(), "sys", "user", 64)
	require.NoError(t, err)
	assert.Equal(t, `{"ok":1}`, out)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestChatJSON_ClientErrorsArePermanent(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, domain.ErrInvalidArgument},
		{http.StatusUnauthorized, domain.ErrConfiguration},
	}
	for _, tc := range cases {
		var calls int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&calls, 1)
			writeAPIError(w, tc.status)
		}))
		_, err := New(testConfig(ts.URL)).ChatJSON(context.Background(), "sys", "user", 64)
		ts.Close()
		require.Error(t, err)
		assert.True(t, errors.Is(err, tc.want), "status %d: %v", tc.status, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	}
}

func TestChatJSON_RateLimitExhaustionMapsToUpstreamRateLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeAPIError(w, http.StatusTooManyRequests)
	}))
	defer ts.Close()

	_, err := New(testConfig(ts.URL)).ChatJSON(context.Background(), "sys", "user", 64)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUpstreamRateLimit))
}

func TestChatJSON_OpenBreakerFailsFast(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		writeAPIError(w, http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := New(testConfig(ts.URL), WithBreaker(ai.NewCircuitBreaker("test", 1, time.Hour)))
	_, err := c.ChatJSON(context.Background(), "sys", "user", 64)
	require.ErrorIs(t, err, domain.ErrUpstreamTimeout)
	before := atomic.LoadInt32(&calls)
	require.Positive(t, before)

	_, err = c.ChatJSON(context.Background(), "sys", "user", 64)
	require.ErrorIs(t, err, domain.ErrUpstreamTimeout)
	assert.Contains(t, err.Error(), "open")
	assert.Equal(t, before, atomic.LoadInt32(&calls))
}

func TestChatJSON_NonJSONContentIsSchemaInvalid(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeCompletion(w, "I cannot help with that.")
	}))
	defer ts.Close()

	_, err := New(testConfig(ts.URL)).ChatJSON(context.Background(), "sys", "user", 64)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSchemaInvalid))
}
