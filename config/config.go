// ABOUTME: Application configuration assembled from defaults and environment
package config

import (
	"fmt"
	"time"
)

// Config is the full application configuration.
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Cache     CacheConfig
	AI        AIConfig
	Publisher PublisherConfig
	Scheduler SchedulerConfig
	Queue     QueueConfig
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
}

// StoreConfig holds the document store settings.
type StoreConfig struct {
	URI string
}

// CacheShard is one remote cache shard endpoint.
type CacheShard struct {
	URL   string
	Token string
}

// CacheConfig holds the shard pool settings.
type CacheConfig struct {
	Shards         []CacheShard
	Disabled       bool
	DailyLimit     int64
	HealthInterval time.Duration
	CommandTimeout time.Duration
}

// AIConfig holds the commentary provider settings.
type AIConfig struct {
	Keys            []string
	BaseURL         string
	Model           string
	Timeout         time.Duration
	DailyTokenLimit int64
	ReservedQuantum int64
	SafetyBuffer    int64
}

// PublisherConfig holds the upstream publisher settings.
type PublisherConfig struct {
	ChronicleKeys     []string
	WirelineKeys      []string
	ChronicleBaseURL  string
	WirelineBaseURL   string
	Timeout           time.Duration
	DailyRequestLimit int64
}

// SchedulerConfig holds rotation and fetch pipeline settings.
type SchedulerConfig struct {
	RotationPeriod   time.Duration
	SectionThreshold int
	MaxSectionCache  int64
	PacingInterval   time.Duration
	BatchLimit       int
}

// QueueConfig holds the enrichment queue settings.
type QueueConfig struct {
	Concurrency int
	MaxAttempts int
	BackoffBase time.Duration
	StartLimit  int
	StartWindow time.Duration
	DrainDelay  time.Duration
}

// LoadConfig builds the configuration from defaults and overrides provided
// via environment variables.
func LoadConfig() (*Config, error) {
	config := defaultConfig()

	if err := loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            9300,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			URI: "",
		},
		Cache: CacheConfig{
			DailyLimit:     10000,
			HealthInterval: 5 * time.Minute,
			CommandTimeout: 3 * time.Second,
		},
		AI: AIConfig{
			BaseURL:         "https://api.openai.com",
			Model:           "gpt-4o-mini",
			Timeout:         60 * time.Second,
			DailyTokenLimit: 250000,
			ReservedQuantum: 600,
			SafetyBuffer:    1000,
		},
		Publisher: PublisherConfig{
			ChronicleBaseURL:  "https://api.chronicle-news.com",
			WirelineBaseURL:   "https://api.wireline.io",
			Timeout:           30 * time.Second,
			DailyRequestLimit: 500,
		},
		Scheduler: SchedulerConfig{
			RotationPeriod:   180 * time.Second,
			SectionThreshold: 8,
			MaxSectionCache:  20,
			PacingInterval:   2 * time.Second,
			BatchLimit:       20,
		},
		Queue: QueueConfig{
			Concurrency: 2,
			MaxAttempts: 3,
			BackoffBase: 5 * time.Second,
			StartLimit:  10,
			StartWindow: 60 * time.Second,
			DrainDelay:  30 * time.Second,
		},
	}
}
