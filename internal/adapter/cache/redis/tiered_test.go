package redis_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rediscache "github.com/fairyhunter13/ai-jd-matcher/internal/adapter/cache/redis"
	"github.com/fairyhunter13/ai-jd-matcher/internal/adapter/cache/memory"
	"github.com/fairyhunter13/ai-jd-matcher/internal/domain"
)

type countingStore struct {
	*memory.MatchCache
	lookups  int
	many     [][]string
	storeErr error
}

func (s *countingStore) Lookup(ctx domain.Context, h, id string) (domain.MatchResult, bool, error) {
	s.lookups++
	return s.MatchCache.Lookup(ctx, h, id)
}

func (s *countingStore) LookupMany(ctx domain.Context, h string, ids []string) (map[string]domain.MatchResult, error) {
	s.many = append(s.many, ids)
	return s.MatchCache.LookupMany(ctx, h, ids)
}

func (s *countingStore) Store(ctx domain.Context, m domain.MatchResult) error {
	if s.storeErr != nil {
		return s.storeErr
	}
	return s.MatchCache.Store(ctx, m)
}

func setup(t *testing.T) (*rediscache.TieredMatchCache, *countingStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	store := &countingStore{MatchCache: memory.New()}
	return rediscache.NewTieredMatchCache(rdb, store, time.Hour), store, mr
}

func result(id string, score int) domain.MatchResult {
	return domain.MatchResult{StructureHash: "h", ResumeID: id, TotalScore: score, Breakdown: domain.Breakdown{"a": score}}
}

func TestTiered_StoreThenLookupHitsRedis(t *testing.T) {
	ctx := context.Background()
	c, store, mr := setup(t)

	require.NoError(t, c.Store(ctx, result("r1", 70)))
	assert.True(t, mr.Exists(c.Key("h", "r1")))
	assert.Equal(t, time.Hour, mr.TTL(c.Key("h", "r1")))

	m, ok, err := c.Lookup(ctx, "h", "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 70, m.TotalScore)
	assert.Equal(t, domain.EngineVersion, m.EngineVersion)
	assert.Zero(t, store.lookups)
}

func TestTiered_DurableHitBackfillsRedis(t *testing.T) {
	ctx := context.Background()
	c, store, mr := setup(t)
	require.NoError(t, store.MatchCache.Store(ctx, result("r1", 40)))

	_, ok, err := c.Lookup(ctx, "h", "r1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, store.lookups)
	assert.True(t, mr.Exists(c.Key("h", "r1")))
}

func TestTiered_StaleVersionInRedisIsAMiss(t *testing.T) {
	ctx := context.Background()
	c, store, mr := setup(t)
	stale := result("r1", 90)
	stale.EngineVersion = "v1.0"
	b, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, mr.Set(c.Key("h", "r1"), string(b)))

	_, ok, err := c.Lookup(ctx, "h", "r1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, store.lookups)
}

func TestTiered_LookupManySplitsTiers(t *testing.T) {
	ctx := context.Background()
	c, store, _ := setup(t)
	require.NoError(t, c.Store(ctx, result("r1", 10)))
	require.NoError(t, store.MatchCache.Store(ctx, result("r2", 20)))

	got, err := c.LookupMany(ctx, "h", []string{"r1", "r2", "r3"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, 20, got["r2"].TotalScore)
	require.Len(t, store.many, 1)
	assert.Equal(t, []string{"r2", "r3"}, store.many[0])

	got, err = c.LookupMany(ctx, "h", []string{"r1", "r2"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Len(t, store.many, 1)
}

func TestTiered_RedisDownDegradesToStore(t *testing.T) {
	ctx := context.Background()
	c, store, mr := setup(t)
	require.NoError(t, store.MatchCache.Store(ctx, result("r1", 10)))
	mr.Close()

	got, err := c.LookupMany(ctx, "h", []string{"r1"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	require.NoError(t, c.Store(ctx, result("r2", 20)))
	_, ok, err := c.Lookup(ctx, "h", "r2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestTiered_StoreFailureSkipsRedis(t *testing.T) {
	ctx := context.Background()
	c, store, mr := setup(t)
	store.storeErr = errors.Join(domain.ErrCacheWriteFailed, errors.New("unique violation"))

	err := c.Store(ctx, result("r1", 10))
	require.ErrorIs(t, err, domain.ErrCacheWriteFailed)
	assert.False(t, mr.Exists(c.Key("h", "r1")))
}

func TestTiered_NilRedisPassesThrough(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{MatchCache: memory.New()}
	c := rediscache.NewTieredMatchCache(nil, store, 0)
	require.NoError(t, c.Store(ctx, result("r1", 10)))
	_, ok, err := c.Lookup(ctx, "h", "r1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, store.lookups)
}
