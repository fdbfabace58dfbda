package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-enricher/domain"
)

func newTestShardPool(t *testing.T, n int, dailyLimit int64) (*ShardPool, []*miniredis.Miniredis) {
	t.Helper()

	servers := make([]*miniredis.Miniredis, 0, n)
	shards := make([]ShardConfig, 0, n)
	for i := 0; i < n; i++ {
		srv := miniredis.RunT(t)
		servers = append(servers, srv)
		shards = append(shards, ShardConfig{
			URL:        fmt.Sprintf("redis://%s", srv.Addr()),
			DailyLimit: dailyLimit,
		})
	}

	pool, err := NewShardPool(context.Background(), PoolConfig{
		Shards:         shards,
		HealthInterval: time.Hour, // health loop effectively off in tests
		CommandTimeout: time.Second,
	}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool, servers
}

func TestShardPool_KeyedRoutingIsStable(t *testing.T) {
	pool, servers := newTestShardPool(t, 3, 0)
	ctx := context.Background()

	require.NoError(t, pool.Set(ctx, "article:42", "payload"))

	// The same key must land on the same shard every time.
	holders := 0
	for _, srv := range servers {
		if srv.Exists("article:42") {
			holders++
		}
	}
	assert.Equal(t, 1, holders)

	for i := 0; i < 5; i++ {
		val, err := pool.Get(ctx, "article:42")
		require.NoError(t, err)
		assert.Equal(t, "payload", val)
	}
}

func TestShardPool_MissReturnsCacheMiss(t *testing.T) {
	pool, _ := newTestShardPool(t, 2, 0)

	_, err := pool.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestShardPool_DisabledUsesMemoryOnly(t *testing.T) {
	pool, err := NewShardPool(context.Background(), PoolConfig{Disabled: true}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	ctx := context.Background()
	require.NoError(t, pool.SetEx(ctx, "k", "v", time.Minute))

	val, err := pool.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)
	assert.Empty(t, pool.Stats())
}

func TestShardPool_UnhealthyShardFallsBackToMemory(t *testing.T) {
	pool, servers := newTestShardPool(t, 1, 0)
	ctx := context.Background()

	servers[0].Close()

	// The write fails against the dead shard and lands in the fallback.
	require.NoError(t, pool.Set(ctx, "k", "v"))
	val, err := pool.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	stats := pool.Stats()
	require.Len(t, stats, 1)
	assert.Greater(t, stats[0].ErrorCount, int64(0))
}

func TestShardPool_DailyQuotaExcludesShard(t *testing.T) {
	pool, servers := newTestShardPool(t, 2, 3)
	ctx := context.Background()

	// Burn through both shards' quotas.
	for i := 0; i < 6; i++ {
		require.NoError(t, pool.Set(ctx, fmt.Sprintf("key:%d", i), "v"))
	}

	// Everything is exhausted now: writes route to the fallback.
	require.NoError(t, pool.Set(ctx, "overflow", "v"))
	for _, srv := range servers {
		assert.False(t, srv.Exists("overflow"))
	}
	val, err := pool.Get(ctx, "overflow")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	stats := pool.Stats()
	deadCount := 0
	for _, s := range stats {
		if s.Dead {
			deadCount++
		}
	}
	assert.Equal(t, 2, deadCount)
}

func TestShardPool_QuotaErrorMarksShardDead(t *testing.T) {
	pool, _ := newTestShardPool(t, 2, 0)

	pool.noteError(pool.shards[0], errors.New("ERR max requests limit exceeded"))

	stats := pool.Stats()
	assert.True(t, stats[0].Dead)
	assert.False(t, stats[1].Dead)

	// Keys now route exclusively to the surviving shard.
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		require.NoError(t, pool.Set(ctx, fmt.Sprintf("key:%d", i), "v"))
	}
	stats = pool.Stats()
	assert.Equal(t, int64(0), stats[0].DailyRequests)
	assert.Equal(t, int64(4), stats[1].DailyRequests)
}

func TestShardPool_DeadShardRevivesOnNewUTCDay(t *testing.T) {
	pool, _ := newTestShardPool(t, 1, 0)
	ctx := context.Background()

	pool.noteError(pool.shards[0], errors.New("request limit exceeded"))
	require.True(t, pool.Stats()[0].Dead)

	pool.SetClock(func() time.Time { return time.Now().Add(25 * time.Hour) })

	require.NoError(t, pool.Set(ctx, "k", "v"))
	stats := pool.Stats()
	assert.False(t, stats[0].Dead)
	assert.Equal(t, int64(1), stats[0].DailyRequests)
}

func TestShardPool_ScatterGather(t *testing.T) {
	pool, _ := newTestShardPool(t, 3, 0)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Set(ctx, fmt.Sprintf("article:%d", i), "v"))
	}
	require.NoError(t, pool.Set(ctx, "commentary:1", "c"))

	keys, err := pool.Keys(ctx, "article:*")
	require.NoError(t, err)
	assert.Len(t, keys, 10)

	size, err := pool.DBSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	require.NoError(t, pool.FlushDB(ctx))
	size, err = pool.DBSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestShardPool_ListsAndHashes(t *testing.T) {
	pool, _ := newTestShardPool(t, 2, 0)
	ctx := context.Background()

	n, err := pool.RPush(ctx, "articles:world", "a1", "a2", "a3")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, pool.LTrim(ctx, "articles:world", 0, 1))
	out, err := pool.LRange(ctx, "articles:world", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "a2"}, out)

	length, err := pool.LLen(ctx, "articles:world")
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)

	require.NoError(t, pool.HSet(ctx, "queue:jobs", "commentary-1", "{}"))
	val, err := pool.HGet(ctx, "queue:jobs", "commentary-1")
	require.NoError(t, err)
	assert.Equal(t, "{}", val)

	all, err := pool.HGetAll(ctx, "queue:jobs")
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, pool.HDel(ctx, "queue:jobs", "commentary-1"))
	_, err = pool.HGet(ctx, "queue:jobs", "commentary-1")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestShardPool_TTLAndExpire(t *testing.T) {
	pool, servers := newTestShardPool(t, 1, 0)
	ctx := context.Background()

	require.NoError(t, pool.SetEx(ctx, "timed", "v", time.Minute))
	ttl, err := pool.TTL(ctx, "timed")
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	ok, err := pool.Expire(ctx, "timed", time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	servers[0].FastForward(2 * time.Hour)
	_, err = pool.Get(ctx, "timed")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestShardPool_Ping(t *testing.T) {
	pool, _ := newTestShardPool(t, 2, 0)
	assert.NoError(t, pool.Ping(context.Background()))
}
