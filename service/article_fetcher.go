// ABOUTME: Article fetcher pulling one section per call from its mapped
// ABOUTME: publisher, deduping against the store, and enriching inline
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"news-enricher/balancer"
	"news-enricher/cache"
	"news-enricher/domain"
	"news-enricher/driver"
	"news-enricher/queue"
	"news-enricher/repository"
	"news-enricher/utils"
)

// DefaultSectionSources maps each section to the publisher that serves it.
var DefaultSectionSources = map[string]string{
	"world":         "chronicle",
	"us":            "chronicle",
	"politics":      "chronicle",
	"business":      "chronicle",
	"technology":    "chronicle",
	"health":        "wireline",
	"sports":        "wireline",
	"entertainment": "wireline",
	"finance":       "wireline",
}

// articleFetcher pulls a section batch through the publisher key pool,
// dedupes by url against the store, and enriches each new article inline
// with courtesy pacing between items.
type articleFetcher struct {
	sources        map[string]driver.Source
	sectionSources map[string]string
	pools          map[string]*balancer.KeyPool
	store          repository.ArticleStore
	cache          *cache.TieredCache
	enricher       EnricherService
	jobs           *queue.Queue
	pacing         *utils.RateLimiter
	batchLimit     int
	logger         *slog.Logger
	now            func() time.Time
}

// FetcherConfig wires the fetcher's collaborators.
type FetcherConfig struct {
	Sources        map[string]driver.Source
	SectionSources map[string]string
	Pools          map[string]*balancer.KeyPool
	Store          repository.ArticleStore
	Cache          *cache.TieredCache
	Enricher       EnricherService
	Jobs           *queue.Queue
	PacingInterval time.Duration
	BatchLimit     int
}

// NewArticleFetcher builds the section fetcher.
func NewArticleFetcher(cfg FetcherConfig, logger *slog.Logger) FetcherService {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SectionSources == nil {
		cfg.SectionSources = DefaultSectionSources
	}
	if cfg.PacingInterval <= 0 {
		cfg.PacingInterval = 2 * time.Second
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 20
	}
	return &articleFetcher{
		sources:        cfg.Sources,
		sectionSources: cfg.SectionSources,
		pools:          cfg.Pools,
		store:          cfg.Store,
		cache:          cfg.Cache,
		enricher:       cfg.Enricher,
		jobs:           cfg.Jobs,
		pacing:         utils.NewRateLimiter(cfg.PacingInterval),
		batchLimit:     cfg.BatchLimit,
		logger:         logger,
		now:            time.Now,
	}
}

// FetchSection runs one section pull end to end and reports what happened.
// limit > 0 caps how many fresh articles this call processes.
func (f *articleFetcher) FetchSection(ctx context.Context, section string, limit int) (*FetchResult, error) {
	start := f.now()

	if !domain.IsValidSection(section) {
		return nil, fmt.Errorf("unknown section %q", section)
	}
	sourceName := f.sectionSources[section]
	source, ok := f.sources[sourceName]
	if !ok {
		return nil, fmt.Errorf("no source registered for section %q", section)
	}
	pool, ok := f.pools[sourceName]
	if !ok {
		return nil, fmt.Errorf("no key pool registered for source %q", sourceName)
	}

	result := &FetchResult{Section: section, Source: sourceName}

	articles, err := f.fetchBatch(ctx, source, pool, section)
	if err != nil {
		return nil, fmt.Errorf("fetch section %s: %w", section, err)
	}
	result.Fetched = len(articles)

	fresh := f.dedupe(ctx, articles, result)
	if limit > 0 && len(fresh) > limit {
		fresh = fresh[:limit]
	}

	for _, article := range fresh {
		if err := f.pacing.Wait(ctx); err != nil {
			return result, err
		}
		result.New++

		f.resolveID(ctx, article, result)

		if err := f.enricher.EnrichInline(ctx, article); err != nil {
			result.Failed++
			f.deferEnrichment(ctx, article, err)
			continue
		}
		result.Enriched++
	}

	// Derived per-section response caches are stale after a batch; the FIFO
	// lists were maintained item by item and stay.
	if _, err := f.cache.InvalidateSectionDerived(ctx, section); err != nil {
		f.logger.WarnContext(ctx, "section cache invalidation failed",
			"section", section,
			"error", err)
	}

	result.Duration = f.now().Sub(start)
	f.logger.InfoContext(ctx, "section fetch finished",
		"section", section,
		"source", sourceName,
		"fetched", result.Fetched,
		"new", result.New,
		"enriched", result.Enriched,
		"failed", result.Failed,
		"duration", result.Duration)
	return result, nil
}

// fetchBatch pulls the section through the upstream response cache, spending
// publisher quota only when the cached copy has expired.
func (f *articleFetcher) fetchBatch(ctx context.Context, source driver.Source, pool *balancer.KeyPool, section string) ([]*domain.Article, error) {
	key := "upstream:" + source.Name() + ":" + section

	raw, err := f.cache.GetOrSet(ctx, key, cache.TTLUpstream, func(ctx context.Context) (string, error) {
		var batch []*domain.Article
		err := pool.Dispatch(ctx, func(ctx context.Context, secret string) (int64, error) {
			fetched, err := source.FetchSection(ctx, secret, section, f.batchLimit)
			if err != nil {
				return 0, err
			}
			batch = fetched
			return 1, nil
		})
		if err != nil {
			return "", err
		}
		encoded, err := json.Marshal(batch)
		if err != nil {
			return "", fmt.Errorf("encode upstream batch: %w", err)
		}
		return string(encoded), nil
	})
	if err != nil {
		return nil, err
	}

	var articles []*domain.Article
	if err := json.Unmarshal([]byte(raw), &articles); err != nil {
		return nil, fmt.Errorf("decode upstream batch: %w", err)
	}
	return articles, nil
}

// dedupe drops articles whose urls are already stored with commentary; a
// stored but unenriched url stays in the batch so enrichment gets another
// pass at it. A store outage degrades to processing everything rather than
// dropping the batch.
func (f *articleFetcher) dedupe(ctx context.Context, articles []*domain.Article, result *FetchResult) []*domain.Article {
	urls := make([]string, 0, len(articles))
	for _, a := range articles {
		urls = append(urls, a.URL)
	}

	enriched, err := f.store.EnrichedURLs(ctx, urls)
	if err != nil {
		f.logger.WarnContext(ctx, "url dedupe unavailable, processing full batch",
			"error", err)
		result.Degraded = true
		return articles
	}

	seen := make(map[string]bool, len(articles))
	fresh := make([]*domain.Article, 0, len(articles))
	for _, a := range articles {
		if enriched[a.URL] || seen[a.URL] {
			continue
		}
		seen[a.URL] = true
		fresh = append(fresh, a)
	}
	return fresh
}

// resolveID looks the article up by url: a stored unenriched row keeps its
// id for re-enrichment, a new article gets a fresh one. Nothing reaches the
// store until the article carries commentary. When the store cannot serve,
// the article continues under a temp- id: cacheable, never persisted or
// listed.
func (f *articleFetcher) resolveID(ctx context.Context, article *domain.Article, result *FetchResult) {
	existing, err := f.store.FindByURL(ctx, article.URL)
	if err == nil {
		article.ID = existing.ID
		return
	}
	if errors.Is(err, domain.ErrArticleNotFound) {
		article.ID = uuid.NewString()
		return
	}
	article.ID = domain.TempIDPrefix + uuid.NewString()
	result.Degraded = true
	f.logger.WarnContext(ctx, "store lookup failed, continuing with temporary id",
		"url", article.URL,
		"temp_id", article.ID,
		"error", err)
}

// deferEnrichment hands a failed inline enrichment to the queue so the
// article is retried with backoff instead of being lost.
func (f *articleFetcher) deferEnrichment(ctx context.Context, article *domain.Article, cause error) {
	f.logger.WarnContext(ctx, "inline enrichment failed, queueing for retry",
		"article_id", article.ID,
		"section", article.Section,
		"error", cause)

	if f.jobs == nil {
		return
	}
	job := &domain.EnrichmentJob{
		ArticleID: article.ID,
		Title:     article.Title,
		Content:   article.Abstract,
		Section:   article.Section,
		Article:   article,
		Priority:  domain.PriorityFor(article.PublishedDate, article.Section, f.now()),
	}
	if err := f.jobs.Submit(ctx, job); err != nil && !errors.Is(err, domain.ErrDuplicateJob) && !errors.Is(err, domain.ErrJobAlreadyDone) {
		f.logger.ErrorContext(ctx, "failed to queue enrichment job",
			"article_id", article.ID,
			"error", err)
	}
}
