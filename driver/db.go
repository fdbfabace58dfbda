// ABOUTME: Postgres connection management for the article document store
// ABOUTME: Bounded-backoff connect plus conn-busy retry for pool contention
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	connectAttempts  = 5
	connectBaseDelay = time.Second
)

// Init opens the document store pool, retrying with exponential backoff for
// up to connectAttempts tries before giving up.
func Init(ctx context.Context, uri string, logger *slog.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = slog.Default()
	}

	config, err := pgxpool.ParseConfig(uri)
	if err != nil {
		return nil, fmt.Errorf("parse store uri: %w", err)
	}
	// The store runs on a single pooled connection; contention is absorbed
	// by retryDBOperation instead of extra connections.
	config.MaxConns = 1
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.ConnConfig.ConnectTimeout = 5 * time.Second

	var pool *pgxpool.Pool
	for attempt := 1; attempt <= connectAttempts; attempt++ {
		pool, err = pgxpool.NewWithConfig(ctx, config)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				logger.InfoContext(ctx, "connected to document store",
					"max_conns", config.MaxConns,
					"attempt", attempt)
				return pool, nil
			}
			pool.Close()
		}

		if attempt == connectAttempts {
			break
		}
		delay := connectBaseDelay * time.Duration(1<<(attempt-1))
		logger.WarnContext(ctx, "document store connection failed, retrying",
			"attempt", attempt,
			"retry_in", delay,
			"error", err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("connect to document store after %d attempts: %w", connectAttempts, err)
}

// retryDBOperation retries operations that fail with pool contention errors.
func retryDBOperation(ctx context.Context, logger *slog.Logger, operation func() error, operationName string) error {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}

		if strings.Contains(err.Error(), "conn busy") && attempt < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<attempt)
			logger.WarnContext(ctx, "store connection busy, retrying",
				"operation", operationName,
				"attempt", attempt+1,
				"retry_delay", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				continue
			}
		}
		return err
	}

	return fmt.Errorf("operation %s failed after %d retries", operationName, maxRetries)
}
