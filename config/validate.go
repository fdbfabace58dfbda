package config

import (
	"fmt"
	"strings"
)

func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if !config.Cache.Disabled {
		for i, shard := range config.Cache.Shards {
			if strings.TrimSpace(shard.URL) == "" {
				return fmt.Errorf("cache shard %d has an empty URL", i+1)
			}
		}
	}

	if config.Cache.DailyLimit < 0 {
		return fmt.Errorf("cache daily limit must be non-negative: %d", config.Cache.DailyLimit)
	}

	if config.AI.BaseURL == "" {
		return fmt.Errorf("AI base URL cannot be empty")
	}

	if config.AI.Model == "" {
		return fmt.Errorf("AI model cannot be empty")
	}

	if config.AI.Timeout <= 0 {
		return fmt.Errorf("AI timeout must be positive: %v", config.AI.Timeout)
	}

	if config.AI.DailyTokenLimit <= 0 {
		return fmt.Errorf("AI daily token limit must be positive: %d", config.AI.DailyTokenLimit)
	}

	if config.Publisher.Timeout <= 0 {
		return fmt.Errorf("publisher timeout must be positive: %v", config.Publisher.Timeout)
	}

	if config.Publisher.DailyRequestLimit <= 0 {
		return fmt.Errorf("publisher daily request limit must be positive: %d", config.Publisher.DailyRequestLimit)
	}

	if config.Scheduler.RotationPeriod <= 0 {
		return fmt.Errorf("rotation period must be positive: %v", config.Scheduler.RotationPeriod)
	}

	if config.Scheduler.SectionThreshold < 0 {
		return fmt.Errorf("section threshold must be non-negative: %d", config.Scheduler.SectionThreshold)
	}

	if config.Scheduler.MaxSectionCache <= 0 {
		return fmt.Errorf("max section cache must be positive: %d", config.Scheduler.MaxSectionCache)
	}

	if config.Queue.Concurrency <= 0 {
		return fmt.Errorf("queue concurrency must be positive: %d", config.Queue.Concurrency)
	}

	if config.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue max attempts must be positive: %d", config.Queue.MaxAttempts)
	}

	return nil
}
