package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"news-enricher/balancer"
	"news-enricher/cache"
	"news-enricher/config"
	"news-enricher/domain"
	"news-enricher/driver"
	"news-enricher/handler"
	"news-enricher/metrics"
	"news-enricher/queue"
	"news-enricher/repository"
	"news-enricher/retry"
	"news-enricher/service"
	"news-enricher/utils"
)

// Dependencies holds all application dependencies.
type Dependencies struct {
	Config    *config.Config
	DBPool    *pgxpool.Pool
	Cache     *cache.TieredCache
	Store     repository.ArticleStore
	Pools     map[string]*balancer.KeyPool
	Queue     *queue.Queue
	Worker    *service.EnrichmentWorker
	Fetcher   service.FetcherService
	Gate      service.GateService
	Scheduler service.SchedulerService
	Reader    service.ReaderService

	StatsHandler   handler.StatsHandler
	ArticleHandler handler.ArticleHandler
	HealthHandler  handler.HealthHandler

	Logger *slog.Logger
}

// BuildDependencies constructs all application dependencies.
// Returns a cleanup function that should be deferred.
func BuildDependencies(ctx context.Context, log *slog.Logger) (*Dependencies, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}

	shardPool, err := buildShardPool(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	tiered := cache.NewTieredCache(shardPool, log)

	dbPool, store := buildStore(ctx, cfg, log)

	pools, err := buildKeyPools(cfg, log)
	if err != nil {
		shardPool.Close()
		if dbPool != nil {
			dbPool.Close()
		}
		return nil, nil, err
	}

	gate := service.NewThresholdGate(store, cfg.Scheduler.SectionThreshold, log)

	generate := buildCommentaryFunc(cfg, log)
	worker := service.NewEnrichmentWorker(tiered, pools["ai"], generate, store, gate, cfg.Scheduler.MaxSectionCache, log)

	jobs := queue.New(queue.Config{
		Concurrency: cfg.Queue.Concurrency,
		MaxAttempts: cfg.Queue.MaxAttempts,
		BackoffBase: cfg.Queue.BackoffBase,
		StartLimit:  cfg.Queue.StartLimit,
		StartWindow: cfg.Queue.StartWindow,
		DrainDelay:  cfg.Queue.DrainDelay,
	}, worker, tiered, log)

	if err := jobs.Restore(ctx); err != nil {
		log.WarnContext(ctx, "queue state restore failed, starting empty", "error", err)
	}

	fetcher := instrumentedFetcher{inner: service.NewArticleFetcher(service.FetcherConfig{
		Sources: map[string]driver.Source{
			"chronicle": driver.NewChronicleSource(cfg.Publisher.ChronicleBaseURL, cfg.Publisher.Timeout, log),
			"wireline":  driver.NewWirelineSource(cfg.Publisher.WirelineBaseURL, cfg.Publisher.Timeout, log),
		},
		Pools:          pools,
		Store:          store,
		Cache:          tiered,
		Enricher:       worker,
		Jobs:           jobs,
		PacingInterval: cfg.Scheduler.PacingInterval,
		BatchLimit:     cfg.Scheduler.BatchLimit,
	}, log)}

	scheduler := service.NewRotationScheduler(fetcher, gate, cfg.Scheduler.RotationPeriod, log)
	reader := service.NewArticleReader(tiered, store, jobs, log)

	registerMetrics(jobs, tiered, pools, log)

	deps := &Dependencies{
		Config:    cfg,
		DBPool:    dbPool,
		Cache:     tiered,
		Store:     store,
		Pools:     pools,
		Queue:     jobs,
		Worker:    worker,
		Fetcher:   fetcher,
		Gate:      gate,
		Scheduler: scheduler,
		Reader:    reader,

		StatsHandler:   handler.NewStatsHandler(jobs, pools, tiered, gate, scheduler, log),
		ArticleHandler: handler.NewArticleHandler(reader, tiered, log),
		HealthHandler: handler.NewHealthHandler(map[string]handler.Pinger{
			"cache": tiered.Ping,
			"store": store.Ping,
		}, log),

		Logger: log,
	}

	cleanup := func() {
		shardPool.Close()
		if dbPool != nil {
			dbPool.Close()
		}
	}

	return deps, cleanup, nil
}

func buildShardPool(ctx context.Context, cfg *config.Config, log *slog.Logger) (*cache.ShardPool, error) {
	shards := make([]cache.ShardConfig, 0, len(cfg.Cache.Shards))
	for _, s := range cfg.Cache.Shards {
		shards = append(shards, cache.ShardConfig{
			URL:        s.URL,
			Token:      s.Token,
			DailyLimit: cfg.Cache.DailyLimit,
		})
	}

	return cache.NewShardPool(ctx, cache.PoolConfig{
		Shards:         shards,
		Disabled:       cfg.Cache.Disabled || len(shards) == 0,
		HealthInterval: cfg.Cache.HealthInterval,
		CommandTimeout: cfg.Cache.CommandTimeout,
	}, log)
}

// buildStore connects the Postgres document store. Connection establishment
// already retries with bounded backoff; when the store still cannot be
// reached the pipeline degrades to the in-memory stub instead of refusing
// to start.
func buildStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (*pgxpool.Pool, repository.ArticleStore) {
	if cfg.Store.URI == "" {
		log.Warn("STORE_URI not set, using in-memory article store")
		return nil, repository.NewMemoryStore(log)
	}

	dbPool, err := driver.Init(ctx, cfg.Store.URI, log)
	if err != nil {
		log.Error("document store unreachable, degrading to in-memory store", "error", err)
		return nil, repository.NewMemoryStore(log)
	}

	return dbPool, repository.NewArticleRepository(dbPool, log)
}

func buildKeyPools(cfg *config.Config, log *slog.Logger) (map[string]*balancer.KeyPool, error) {
	if len(cfg.AI.Keys) == 0 {
		return nil, fmt.Errorf("no AI credentials configured (AI_KEY)")
	}

	pools := make(map[string]*balancer.KeyPool, 3)

	aiPool, err := balancer.NewKeyPool(balancer.Config{
		Name:            "ai",
		DailyLimit:      cfg.AI.DailyTokenLimit,
		ReservedQuantum: cfg.AI.ReservedQuantum,
		SafetyBuffer:    cfg.AI.SafetyBuffer,
	}, cfg.AI.Keys, log)
	if err != nil {
		return nil, err
	}
	pools["ai"] = aiPool

	publisherPools := map[string][]string{
		"chronicle": cfg.Publisher.ChronicleKeys,
		"wireline":  cfg.Publisher.WirelineKeys,
	}
	for name, keys := range publisherPools {
		if len(keys) == 0 {
			log.Warn("no credentials configured for publisher, its sections will not fetch", "publisher", name)
			continue
		}
		pool, err := balancer.NewKeyPool(balancer.Config{
			Name:            name,
			DailyLimit:      cfg.Publisher.DailyRequestLimit,
			ReservedQuantum: 1,
		}, keys, log)
		if err != nil {
			return nil, err
		}
		pools[name] = pool
	}

	return pools, nil
}

// buildCommentaryFunc wraps the AI client with a circuit breaker and a
// transient-error retrier. Rate-limit and auth errors pass straight through
// so the key pool can fail over.
func buildCommentaryFunc(cfg *config.Config, log *slog.Logger) service.CommentaryFunc {
	client := driver.NewAIClient(cfg.AI.BaseURL, cfg.AI.Model, cfg.AI.Timeout, log)
	breaker := utils.NewCircuitBreaker(5, 30*time.Second)
	retrier := retry.NewRetrier(retry.RetryConfig{
		MaxAttempts:   2,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.2,
	}, func(err error) bool { return errors.Is(err, domain.ErrUpstreamTransient) }, log)

	return func(ctx context.Context, secret string, article *domain.Article) (string, int64, error) {
		start := time.Now()
		var out *driver.Commentary

		err := retrier.Do(ctx, func() error {
			return breaker.Call(func() error {
				commentary, cerr := client.GenerateCommentary(ctx, secret, article)
				if cerr != nil {
					return cerr
				}
				out = commentary
				return nil
			})
		})
		if err != nil {
			metrics.RecordGeneration(article.Section, "error", time.Since(start).Seconds())
			if errors.Is(err, utils.ErrCircuitOpen) {
				return "", 0, fmt.Errorf("%w: commentary circuit open", domain.ErrUpstreamTransient)
			}
			return "", 0, err
		}

		metrics.RecordGeneration(article.Section, "success", time.Since(start).Seconds())
		return out.Text, out.TokensUsed, nil
	}
}

func registerMetrics(jobs *queue.Queue, tiered *cache.TieredCache, pools map[string]*balancer.KeyPool, log *slog.Logger) {
	poolStats := make(map[string]func() balancer.Stats, len(pools))
	for name, pool := range pools {
		poolStats[name] = pool.Stats
	}

	collector := metrics.NewSnapshotCollector(jobs.Stats, tiered.Stats, poolStats)
	if err := prometheus.Register(collector); err != nil {
		log.Warn("metrics collector registration failed", "error", err)
	}
}

// instrumentedFetcher records fetch outcomes around the real fetcher.
type instrumentedFetcher struct {
	inner service.FetcherService
}

func (f instrumentedFetcher) FetchSection(ctx context.Context, section string, limit int) (*service.FetchResult, error) {
	result, err := f.inner.FetchSection(ctx, section, limit)
	if err != nil {
		metrics.RecordFetch(section, "error")
		return nil, err
	}
	metrics.RecordFetch(section, "success")
	return result, nil
}
