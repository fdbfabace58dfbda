package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestMemory(t *testing.T) *MemoryCache {
	t.Helper()
	m := NewMemoryCache(time.Hour) // sweeper effectively off; expiry is lazy
	t.Cleanup(m.Close)
	return m
}

func TestMemoryCache_SetGetDel(t *testing.T) {
	m := newTestMemory(t)

	m.Set("a", "1")
	val, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", val)

	assert.Equal(t, int64(1), m.Del("a", "missing"))
	_, ok = m.Get("a")
	assert.False(t, ok)
}

func TestMemoryCache_Expiry(t *testing.T) {
	m := newTestMemory(t)

	m.SetEx("short", "v", 10*time.Millisecond)
	_, ok := m.Get("short")
	assert.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = m.Get("short")
	assert.False(t, ok)
	assert.Equal(t, time.Duration(-2), m.TTL("short"))
}

func TestMemoryCache_TTLSemantics(t *testing.T) {
	m := newTestMemory(t)

	assert.Equal(t, time.Duration(-2), m.TTL("missing"))

	m.Set("forever", "v")
	assert.Equal(t, time.Duration(-1), m.TTL("forever"))

	m.SetEx("timed", "v", time.Minute)
	assert.Greater(t, m.TTL("timed"), 50*time.Second)

	assert.True(t, m.Expire("forever", time.Minute))
	assert.Greater(t, m.TTL("forever"), 50*time.Second)
	assert.False(t, m.Expire("missing", time.Minute))
}

func TestMemoryCache_Incr(t *testing.T) {
	m := newTestMemory(t)

	assert.Equal(t, int64(1), m.Incr("counter"))
	assert.Equal(t, int64(2), m.Incr("counter"))

	m.Set("seeded", "41")
	assert.Equal(t, int64(42), m.Incr("seeded"))
}

func TestMemoryCache_Lists(t *testing.T) {
	m := newTestMemory(t)

	m.RPush("list", "a", "b", "c")
	assert.Equal(t, int64(4), m.LPush("list", "z"))
	assert.Equal(t, []string{"z", "a", "b", "c"}, m.LRange("list", 0, -1))
	assert.Equal(t, []string{"b", "c"}, m.LRange("list", -2, -1))
	assert.Equal(t, int64(4), m.LLen("list"))

	m.LTrim("list", 0, 1)
	assert.Equal(t, []string{"z", "a"}, m.LRange("list", 0, -1))

	// Trimming to an empty range removes the key.
	m.LTrim("list", 5, 10)
	assert.Equal(t, int64(0), m.LLen("list"))
	assert.Equal(t, int64(0), m.Exists("list"))
}

func TestMemoryCache_Hashes(t *testing.T) {
	m := newTestMemory(t)

	m.HSet("jobs", "j1", "payload")
	m.HSet("jobs", "j2", "payload2")

	val, ok := m.HGet("jobs", "j1")
	assert.True(t, ok)
	assert.Equal(t, "payload", val)

	all := m.HGetAll("jobs")
	assert.Len(t, all, 2)

	m.HDel("jobs", "j1", "j2")
	assert.Equal(t, int64(0), m.Exists("jobs"))
}

func TestMemoryCache_KeysGlob(t *testing.T) {
	m := newTestMemory(t)

	m.Set("article:1", "a")
	m.Set("article:2", "b")
	m.Set("commentary:1", "c")
	m.RPush("articles:world", "x")

	assert.ElementsMatch(t, []string{"article:1", "article:2"}, m.Keys("article:*"))
	assert.Len(t, m.Keys("*"), 4)
}

func TestMemoryCache_DBSizeAndFlush(t *testing.T) {
	m := newTestMemory(t)

	m.Set("a", "1")
	m.RPush("l", "x")
	m.HSet("h", "f", "v")
	assert.Equal(t, int64(3), m.DBSize())

	m.FlushDB()
	assert.Equal(t, int64(0), m.DBSize())
}
