package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	maxCacheShards  = 16
	maxAIKeys       = 4
	maxWirelineKeys = 5
)

func loadFromEnv(config *Config) error {
	if err := loadServerConfig(&config.Server); err != nil {
		return fmt.Errorf("failed to load server config: %w", err)
	}

	loadStoreConfig(&config.Store)

	if err := loadCacheConfig(&config.Cache); err != nil {
		return fmt.Errorf("failed to load cache config: %w", err)
	}

	if err := loadAIConfig(&config.AI); err != nil {
		return fmt.Errorf("failed to load AI config: %w", err)
	}

	if err := loadPublisherConfig(&config.Publisher); err != nil {
		return fmt.Errorf("failed to load publisher config: %w", err)
	}

	if err := loadSchedulerConfig(&config.Scheduler); err != nil {
		return fmt.Errorf("failed to load scheduler config: %w", err)
	}

	if err := loadQueueConfig(&config.Queue); err != nil {
		return fmt.Errorf("failed to load queue config: %w", err)
	}

	return nil
}

func loadServerConfig(cfg *ServerConfig) error {
	var err error

	if cfg.Port, err = parseIntEnv("SERVER_PORT", cfg.Port); err != nil {
		return err
	}

	if cfg.ShutdownTimeout, err = parseDurationEnv("SERVER_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return err
	}

	return nil
}

func loadStoreConfig(cfg *StoreConfig) {
	if uri := os.Getenv("STORE_URI"); uri != "" {
		cfg.URI = uri
	}
}

// loadCacheConfig collects CACHE_URL_1..M with their matching tokens. The
// scan stops at the first gap.
func loadCacheConfig(cfg *CacheConfig) error {
	var err error

	for i := 1; i <= maxCacheShards; i++ {
		url := os.Getenv(fmt.Sprintf("CACHE_URL_%d", i))
		if url == "" {
			break
		}
		cfg.Shards = append(cfg.Shards, CacheShard{
			URL:   url,
			Token: os.Getenv(fmt.Sprintf("CACHE_TOKEN_%d", i)),
		})
	}

	if cfg.Disabled, err = parseBoolEnv("CACHE_DISABLED", cfg.Disabled); err != nil {
		return err
	}

	if cfg.DailyLimit, err = parseInt64Env("CACHE_DAILY_LIMIT", cfg.DailyLimit); err != nil {
		return err
	}

	if cfg.HealthInterval, err = parseDurationEnv("CACHE_HEALTH_INTERVAL", cfg.HealthInterval); err != nil {
		return err
	}

	if cfg.CommandTimeout, err = parseDurationEnv("CACHE_COMMAND_TIMEOUT", cfg.CommandTimeout); err != nil {
		return err
	}

	return nil
}

// loadAIConfig collects AI_KEY plus AI_KEY_2..AI_KEY_4.
func loadAIConfig(cfg *AIConfig) error {
	var err error

	if key := os.Getenv("AI_KEY"); key != "" {
		cfg.Keys = append(cfg.Keys, key)
	}
	for i := 2; i <= maxAIKeys; i++ {
		if key := os.Getenv(fmt.Sprintf("AI_KEY_%d", i)); key != "" {
			cfg.Keys = append(cfg.Keys, key)
		}
	}

	if base := os.Getenv("AI_BASE_URL"); base != "" {
		cfg.BaseURL = base
	}

	if model := os.Getenv("AI_MODEL"); model != "" {
		cfg.Model = model
	}

	if cfg.Timeout, err = parseDurationEnv("AI_TIMEOUT", cfg.Timeout); err != nil {
		return err
	}

	if cfg.DailyTokenLimit, err = parseInt64Env("AI_DAILY_TOKEN_LIMIT", cfg.DailyTokenLimit); err != nil {
		return err
	}

	return nil
}

func loadPublisherConfig(cfg *PublisherConfig) error {
	var err error

	if key := os.Getenv("PUBLISHER_A_KEY"); key != "" {
		cfg.ChronicleKeys = append(cfg.ChronicleKeys, key)
	}
	for i := 1; i <= maxWirelineKeys; i++ {
		if key := os.Getenv(fmt.Sprintf("PUBLISHER_B_KEY_%d", i)); key != "" {
			cfg.WirelineKeys = append(cfg.WirelineKeys, key)
		}
	}

	if base := os.Getenv("PUBLISHER_A_BASE_URL"); base != "" {
		cfg.ChronicleBaseURL = base
	}

	if base := os.Getenv("PUBLISHER_B_BASE_URL"); base != "" {
		cfg.WirelineBaseURL = base
	}

	if cfg.Timeout, err = parseDurationEnv("PUBLISHER_TIMEOUT", cfg.Timeout); err != nil {
		return err
	}

	if cfg.DailyRequestLimit, err = parseInt64Env("PUBLISHER_DAILY_LIMIT", cfg.DailyRequestLimit); err != nil {
		return err
	}

	return nil
}

func loadSchedulerConfig(cfg *SchedulerConfig) error {
	var err error

	if raw := os.Getenv("ROTATION_PERIOD_SEC"); raw != "" {
		sec, perr := strconv.Atoi(raw)
		if perr != nil {
			return fmt.Errorf("invalid ROTATION_PERIOD_SEC: %s", raw)
		}
		cfg.RotationPeriod = time.Duration(sec) * time.Second
	}

	if cfg.SectionThreshold, err = parseIntEnv("SECTION_THRESHOLD", cfg.SectionThreshold); err != nil {
		return err
	}

	maxCache, err := parseIntEnv("MAX_SECTION_CACHE", int(cfg.MaxSectionCache))
	if err != nil {
		return err
	}
	cfg.MaxSectionCache = int64(maxCache)

	if cfg.PacingInterval, err = parseDurationEnv("FETCH_PACING_INTERVAL", cfg.PacingInterval); err != nil {
		return err
	}

	if cfg.BatchLimit, err = parseIntEnv("FETCH_BATCH_LIMIT", cfg.BatchLimit); err != nil {
		return err
	}

	return nil
}

func loadQueueConfig(cfg *QueueConfig) error {
	var err error

	if cfg.Concurrency, err = parseIntEnv("QUEUE_CONCURRENCY", cfg.Concurrency); err != nil {
		return err
	}

	if cfg.MaxAttempts, err = parseIntEnv("QUEUE_MAX_ATTEMPTS", cfg.MaxAttempts); err != nil {
		return err
	}

	if cfg.BackoffBase, err = parseDurationEnv("QUEUE_BACKOFF_BASE", cfg.BackoffBase); err != nil {
		return err
	}

	if cfg.StartLimit, err = parseIntEnv("QUEUE_START_LIMIT", cfg.StartLimit); err != nil {
		return err
	}

	if cfg.StartWindow, err = parseDurationEnv("QUEUE_START_WINDOW", cfg.StartWindow); err != nil {
		return err
	}

	if cfg.DrainDelay, err = parseDurationEnv("QUEUE_DRAIN_DELAY", cfg.DrainDelay); err != nil {
		return err
	}

	return nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		return d, nil
	}
	return defaultValue, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		return i, nil
	}
	return defaultValue, nil
}

func parseInt64Env(key string, defaultValue int64) (int64, error) {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %s", key, value)
		}
		return i, nil
	}
	return defaultValue, nil
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return false, fmt.Errorf("invalid %s: %s", key, value)
		}
		return b, nil
	}
	return defaultValue, nil
}
