// Package redis puts a Redis hot tier in front of the durable match cache.
//
// Redis is an accelerator only: every error on the Redis side degrades to
// the durable store and is never returned to the caller.
package redis

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/observability"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

const keyPrefix = "jdmatch:"

// TieredMatchCache implements domain.MatchCache over Redis and a durable store.
type TieredMatchCache struct {
	rdb     goredis.Cmdable
	store   domain.MatchCache
	ttl     time.Duration
	version string
}

// NewTieredMatchCache wraps store. A nil rdb disables the hot tier.
func NewTieredMatchCache(rdb goredis.Cmdable, store domain.MatchCache, ttl time.Duration) *TieredMatchCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TieredMatchCache{rdb: rdb, store: store, ttl: ttl, version: domain.EngineVersion}
}

// Key is the Redis key of one cache entry. The engine version is part of the
// key so that a version bump can never read an old entry.
func (c *TieredMatchCache) Key(structureHash, resumeID string) string {
	return keyPrefix + c.version + ":" + structureHash + ":" + resumeID
}

// Lookup checks Redis first, then the durable store, backfilling Redis on a
// durable hit.
func (c *TieredMatchCache) Lookup(ctx domain.Context, structureHash, resumeID string) (domain.MatchResult, bool, error) {
	ctx, span := otel.Tracer("cache.redis").Start(ctx, "match_cache.TieredLookup")
	defer span.End()

	if c.rdb != nil {
		raw, err := c.rdb.Get(ctx, c.Key(structureHash, resumeID)).Bytes()
		switch {
		case err == nil:
			if m, ok := c.decode(raw); ok {
				observability.CacheLookup("redis", true)
				span.SetAttributes(attribute.String("cache.tier", "redis"))
				return m, true, nil
			}
		case !errors.Is(err, goredis.Nil):
			slog.Warn("redis match cache get failed", slog.Any("error", err))
		}
		observability.CacheLookup("redis", false)
	}

	m, ok, err := c.store.Lookup(ctx, structureHash, resumeID)
	if err != nil {
		return domain.MatchResult{}, false, fmt.Errorf("op=cache.Lookup: %w", err)
	}
	observability.CacheLookup("postgres", ok)
	if ok {
		c.backfill(ctx, m)
	}
	return m, ok, nil
}

// LookupMany resolves as many ids as possible from one MGET and asks the
// durable store only for the rest.
func (c *TieredMatchCache) LookupMany(ctx domain.Context, structureHash string, resumeIDs []string) (map[string]domain.MatchResult, error) {
	ctx, span := otel.Tracer("cache.redis").Start(ctx, "match_cache.TieredLookupMany")
	defer span.End()

	out := make(map[string]domain.MatchResult, len(resumeIDs))
	if len(resumeIDs) == 0 {
		return out, nil
	}
	missing := resumeIDs
	if c.rdb != nil {
		keys := make([]string, len(resumeIDs))
		for i, id := range resumeIDs {
			keys[i] = c.Key(structureHash, id)
		}
		vals, err := c.rdb.MGet(ctx, keys...).Result()
		if err != nil {
			slog.Warn("redis match cache mget failed", slog.Any("error", err))
		} else {
			missing = nil
			for i, v := range vals {
				s, isStr := v.(string)
				if isStr {
					if m, ok := c.decode([]byte(s)); ok && m.ResumeID == resumeIDs[i] {
						out[resumeIDs[i]] = m
						observability.CacheLookup("redis", true)
						continue
					}
				}
				observability.CacheLookup("redis", false)
				missing = append(missing, resumeIDs[i])
			}
		}
	}
	span.SetAttributes(attribute.Int("cache.redis_hits", len(out)), attribute.Int("cache.redis_misses", len(missing)))
	if len(missing) == 0 {
		return out, nil
	}

	durable, err := c.store.LookupMany(ctx, structureHash, missing)
	if err != nil {
		return nil, fmt.Errorf("op=cache.LookupMany: %w", err)
	}
	for _, id := range missing {
		m, ok := durable[id]
		observability.CacheLookup("postgres", ok)
		if ok {
			out[id] = m
			c.backfill(ctx, m)
		}
	}
	return out, nil
}

// Store writes the durable row first; Redis is only populated once the
// system of record has accepted the row.
func (c *TieredMatchCache) Store(ctx domain.Context, m domain.MatchResult) error {
	if m.EngineVersion == "" {
		m.EngineVersion = c.version
	}
	if err := c.store.Store(ctx, m); err != nil {
		return err
	}
	c.backfill(ctx, m)
	return nil
}

func (c *TieredMatchCache) decode(raw []byte) (domain.MatchResult, bool) {
	var m domain.MatchResult
	if err := json.Unmarshal(raw, &m); err != nil {
		slog.Warn("redis match cache entry undecodable", slog.Any("error", err))
		return domain.MatchResult{}, false
	}
	if m.EngineVersion != c.version {
		return domain.MatchResult{}, false
	}
	return m, true
}

func (c *TieredMatchCache) backfill(ctx domain.Context, m domain.MatchResult) {
	if c.rdb == nil {
		return
	}
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	if err := c.rdb.SetNX(ctx, c.Key(m.StructureHash, m.ResumeID), b, c.ttl).Err(); err != nil {
		slog.Warn("redis match cache set failed", slog.String("resume_id", m.ResumeID), slog.Any("error", err))
	}
}
