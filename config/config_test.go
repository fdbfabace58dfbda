package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 9300, cfg.Server.Port)
	assert.Equal(t, 180*time.Second, cfg.Scheduler.RotationPeriod)
	assert.Equal(t, 8, cfg.Scheduler.SectionThreshold)
	assert.Equal(t, int64(20), cfg.Scheduler.MaxSectionCache)
	assert.Equal(t, 2, cfg.Queue.Concurrency)
	assert.Equal(t, int64(250000), cfg.AI.DailyTokenLimit)
	assert.Empty(t, cfg.Cache.Shards)
	assert.False(t, cfg.Cache.Disabled)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_URI", "postgres://enricher:pw@db:5432/articles")
	t.Setenv("ROTATION_PERIOD_SEC", "60")
	t.Setenv("SECTION_THRESHOLD", "5")
	t.Setenv("MAX_SECTION_CACHE", "10")
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("CACHE_DISABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "postgres://enricher:pw@db:5432/articles", cfg.Store.URI)
	assert.Equal(t, 60*time.Second, cfg.Scheduler.RotationPeriod)
	assert.Equal(t, 5, cfg.Scheduler.SectionThreshold)
	assert.Equal(t, int64(10), cfg.Scheduler.MaxSectionCache)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Cache.Disabled)
}

func TestLoadConfig_CacheShardScan(t *testing.T) {
	t.Setenv("CACHE_URL_1", "redis://shard-1:6379")
	t.Setenv("CACHE_TOKEN_1", "tok-1")
	t.Setenv("CACHE_URL_2", "redis://shard-2:6379")
	// No CACHE_URL_3: the scan stops, CACHE_URL_4 is ignored.
	t.Setenv("CACHE_URL_4", "redis://shard-4:6379")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Len(t, cfg.Cache.Shards, 2)
	assert.Equal(t, "redis://shard-1:6379", cfg.Cache.Shards[0].URL)
	assert.Equal(t, "tok-1", cfg.Cache.Shards[0].Token)
	assert.Equal(t, "redis://shard-2:6379", cfg.Cache.Shards[1].URL)
	assert.Empty(t, cfg.Cache.Shards[1].Token)
}

func TestLoadConfig_CredentialCollection(t *testing.T) {
	t.Setenv("AI_KEY", "ai-1")
	t.Setenv("AI_KEY_2", "ai-2")
	t.Setenv("AI_KEY_4", "ai-4")
	t.Setenv("PUBLISHER_A_KEY", "chronicle-1")
	t.Setenv("PUBLISHER_B_KEY_1", "wireline-1")
	t.Setenv("PUBLISHER_B_KEY_3", "wireline-3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"ai-1", "ai-2", "ai-4"}, cfg.AI.Keys)
	assert.Equal(t, []string{"chronicle-1"}, cfg.Publisher.ChronicleKeys)
	assert.Equal(t, []string{"wireline-1", "wireline-3"}, cfg.Publisher.WirelineKeys)
}

func TestLoadConfig_InvalidValues(t *testing.T) {
	tests := map[string]struct {
		key   string
		value string
	}{
		"bad rotation period": {"ROTATION_PERIOD_SEC", "three minutes"},
		"bad server port":     {"SERVER_PORT", "http"},
		"bad cache disabled":  {"CACHE_DISABLED", "maybe"},
		"bad queue backoff":   {"QUEUE_BACKOFF_BASE", "5 parsecs"},
		"bad section cap":     {"MAX_SECTION_CACHE", "lots"},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}

func TestValidateConfig(t *testing.T) {
	t.Run("rejects out-of-range port", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Server.Port = 70000
		assert.Error(t, validateConfig(cfg))
	})

	t.Run("rejects empty shard url", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Cache.Shards = []CacheShard{{URL: "  "}}
		assert.Error(t, validateConfig(cfg))
	})

	t.Run("empty shard url tolerated when cache disabled", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Cache.Disabled = true
		cfg.Cache.Shards = []CacheShard{{URL: ""}}
		assert.NoError(t, validateConfig(cfg))
	})

	t.Run("rejects zero rotation period", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.Scheduler.RotationPeriod = 0
		assert.Error(t, validateConfig(cfg))
	})

	t.Run("rejects empty AI model", func(t *testing.T) {
		cfg := defaultConfig()
		cfg.AI.Model = ""
		assert.Error(t, validateConfig(cfg))
	})
}
