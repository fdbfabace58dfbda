// ABOUTME: Enrichment worker generating commentary cache-first through the
// ABOUTME: AI key pool, with a deterministic template when generation fails
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"news-enricher/balancer"
	"news-enricher/cache"
	"news-enricher/domain"
	"news-enricher/queue"
	"news-enricher/repository"
)

const commentaryKeyPrefix = "commentary:"

// EnrichmentWorker implements EnricherService and queue.Processor over the
// same enrichment path: the queue retries what inline enrichment would do.
type EnrichmentWorker struct {
	cache         *cache.TieredCache
	aiPool        *balancer.KeyPool
	generate      CommentaryFunc
	store         repository.ArticleStore
	gate          GateService
	maxPerSection int64
	logger        *slog.Logger
	now           func() time.Time
	primeOnce     sync.Once
}

// CommentaryFunc is the raw AI call. The driver's client satisfies it; tests
// substitute fakes.
type CommentaryFunc func(ctx context.Context, secret string, article *domain.Article) (text string, tokensUsed int64, err error)

// NewEnrichmentWorker wires the enrichment path.
func NewEnrichmentWorker(
	tiered *cache.TieredCache,
	aiPool *balancer.KeyPool,
	generate CommentaryFunc,
	store repository.ArticleStore,
	gate GateService,
	maxPerSection int64,
	logger *slog.Logger,
) *EnrichmentWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPerSection <= 0 {
		maxPerSection = 20
	}
	return &EnrichmentWorker{
		cache:         tiered,
		aiPool:        aiPool,
		generate:      generate,
		store:         store,
		gate:          gate,
		maxPerSection: maxPerSection,
		logger:        logger,
		now:           time.Now,
	}
}

// EnrichInline generates commentary for the article and publishes the
// result. Rate-limit and exhaustion errors propagate so the caller can back
// off or queue the work instead.
func (w *EnrichmentWorker) EnrichInline(ctx context.Context, article *domain.Article) error {
	commentary, err := w.commentaryFor(ctx, article)
	if err != nil {
		return err
	}
	w.finish(ctx, article, commentary, domain.CommentarySourceAI)
	return nil
}

// Process is the queue entry point. The job carries the article; retryable
// upstream errors return as-is so the queue applies its backoff.
func (w *EnrichmentWorker) Process(ctx context.Context, job *domain.EnrichmentJob) error {
	article := w.articleFrom(ctx, job)
	if article == nil {
		return fmt.Errorf("%w: job %s has no article", domain.ErrInvalidJob, job.JobID)
	}
	return w.EnrichInline(ctx, article)
}

// Fallback runs when a job exhausts its attempts: the article still ships,
// carrying deterministic template commentary instead of failing the reader.
func (w *EnrichmentWorker) Fallback(ctx context.Context, job *domain.EnrichmentJob) error {
	article := w.articleFrom(ctx, job)
	if article == nil {
		return fmt.Errorf("%w: job %s has no article", domain.ErrInvalidJob, job.JobID)
	}

	commentary := FallbackCommentary(article)
	if err := w.cache.Set(ctx, commentaryKeyPrefix+article.ID, commentary, cache.TTLCommentary); err != nil {
		w.logger.WarnContext(ctx, "failed to cache fallback commentary",
			"article_id", article.ID,
			"error", err)
	}
	w.finish(ctx, article, commentary, domain.CommentarySourceFallback)

	w.logger.InfoContext(ctx, "fallback commentary published",
		"article_id", article.ID,
		"section", article.Section)
	return nil
}

// commentaryFor is cache-first: an existing commentary:{id} entry skips the
// AI call entirely, and concurrent misses coalesce into one generation.
func (w *EnrichmentWorker) commentaryFor(ctx context.Context, article *domain.Article) (string, error) {
	return w.cache.GetOrSet(ctx, commentaryKeyPrefix+article.ID, cache.TTLCommentary,
		func(ctx context.Context) (string, error) {
			var text string
			err := w.aiPool.Dispatch(ctx, func(ctx context.Context, secret string) (int64, error) {
				generated, tokens, err := w.generate(ctx, secret, article)
				if err != nil {
					return 0, err
				}
				text = generated
				return tokens, nil
			})
			if err != nil {
				return "", err
			}
			return text, nil
		})
}

// finish attaches the commentary, persists the article, and caches the
// snapshot. The store write comes first so the gate count includes this
// article when its snapshot is admitted. Store failures are logged, never
// fatal: the cache copy serves readers until the store recovers.
func (w *EnrichmentWorker) finish(ctx context.Context, article *domain.Article, commentary string, source domain.CommentarySource) {
	now := w.now()
	article.AICommentary = commentary
	article.CommentaryGeneratedAt = &now
	article.CommentarySource = source

	if !article.IsTemporary() {
		if id, err := w.store.UpsertByURL(ctx, article); err != nil {
			w.logger.ErrorContext(ctx, "failed to persist enriched article, cache copy remains authoritative",
				"article_id", article.ID,
				"url", article.URL,
				"error", err)
		} else {
			article.ID = id
		}
	}

	w.publishSnapshot(ctx, article, source)
}

// publishSnapshot writes article:{id}; the section FIFOs only admit ids
// while the threshold gate reads open across all sections.
func (w *EnrichmentWorker) publishSnapshot(ctx context.Context, article *domain.Article, source domain.CommentarySource) {
	snap := domain.SnapshotOf(article, source, w.now())

	gateOpen := false
	if w.gate != nil {
		met, err := w.gate.AllMet(ctx)
		if err != nil {
			w.logger.WarnContext(ctx, "threshold gate check failed, withholding list admission",
				"section", article.Section,
				"error", err)
		}
		gateOpen = met && err == nil
	}

	if gateOpen && !article.IsTemporary() {
		w.primeSectionLists(ctx)
		if err := w.cache.PublishArticle(ctx, snap, cache.TTLArticleWorker, w.maxPerSection); err != nil {
			w.logger.WarnContext(ctx, "failed to publish article to section list",
				"article_id", article.ID,
				"error", err)
		}
		return
	}
	if err := w.cache.SetJSON(ctx, "article:"+article.ID, snap, cache.TTLArticleWorker); err != nil {
		w.logger.WarnContext(ctx, "failed to cache article snapshot",
			"article_id", article.ID,
			"error", err)
	}
}

// primeSectionLists runs once per process when the gate first reads open.
// Articles enriched while the gate was closed were cached but never listed;
// this pushes the store's enriched coverage into the section FIFOs so the
// lists reflect more than post-open publishes.
func (w *EnrichmentWorker) primeSectionLists(ctx context.Context) {
	w.primeOnce.Do(func() {
		for _, section := range domain.Sections {
			articles, err := w.store.RecentBySection(ctx, section, int(w.maxPerSection))
			if err != nil {
				w.logger.WarnContext(ctx, "section list priming failed",
					"section", section,
					"error", err)
				continue
			}
			// RecentBySection is newest first; push oldest first so the FIFO
			// tail holds the newest ids.
			for i := len(articles) - 1; i >= 0; i-- {
				a := articles[i]
				if !a.IsEnriched() {
					continue
				}
				snap := domain.SnapshotOf(a, a.CommentarySource, w.now())
				if err := w.cache.PublishArticle(ctx, snap, cache.TTLArticleWorker, w.maxPerSection); err != nil {
					w.logger.WarnContext(ctx, "failed to admit article during list priming",
						"article_id", a.ID,
						"error", err)
				}
			}
		}
		w.logger.InfoContext(ctx, "section lists primed after threshold opened")
	})
}

// AlreadyEnriched implements queue admission: work whose commentary already
// exists in the store, or can be back-filled into it from the cache, never
// enqueues.
func (w *EnrichmentWorker) AlreadyEnriched(ctx context.Context, articleID string) (bool, error) {
	if domain.IsTempID(articleID) {
		return false, nil
	}
	article, err := w.store.FindByID(ctx, articleID)
	if err != nil {
		if errors.Is(err, domain.ErrArticleNotFound) {
			return false, nil
		}
		return false, err
	}
	if article.IsEnriched() {
		return true, nil
	}
	commentary, err := w.cache.Get(ctx, commentaryKeyPrefix+articleID)
	if err != nil {
		return false, nil
	}
	// The cache still holds commentary the store lost: back-fill instead of
	// regenerating.
	w.finish(ctx, article, commentary, domain.CommentarySourceAI)
	w.logger.InfoContext(ctx, "store commentary back-filled from cache",
		"article_id", articleID)
	return true, nil
}

// articleFrom recovers the job's article, falling back to the store and then
// to the job's own fields.
func (w *EnrichmentWorker) articleFrom(ctx context.Context, job *domain.EnrichmentJob) *domain.Article {
	if job.Article != nil {
		return job.Article
	}
	if !domain.IsTempID(job.ArticleID) {
		if article, err := w.store.FindByID(ctx, job.ArticleID); err == nil {
			return article
		} else if !errors.Is(err, domain.ErrArticleNotFound) {
			w.logger.WarnContext(ctx, "store lookup failed while resolving job article",
				"article_id", job.ArticleID,
				"error", err)
		}
	}
	if job.Title == "" {
		return nil
	}
	return &domain.Article{
		ID:       job.ArticleID,
		Title:    job.Title,
		Abstract: job.Content,
		Section:  job.Section,
	}
}

// FallbackCommentary renders the deterministic three-section template used
// when generation terminally fails. Same article in, same text out.
func FallbackCommentary(article *domain.Article) string {
	title := strings.TrimSpace(article.Title)
	section := article.Section
	if section == "" {
		section = "news"
	}

	var b strings.Builder
	b.WriteString("Key Points: ")
	b.WriteString(title)
	b.WriteString(". This ")
	b.WriteString(section)
	b.WriteString(" story is developing and automated analysis is temporarily unavailable.")
	if abstract := strings.TrimSpace(article.Abstract); abstract != "" {
		b.WriteString(" ")
		b.WriteString(abstract)
	}
	b.WriteString("\nImpact Analysis: The full implications of this development are still being assessed. Readers following the ")
	b.WriteString(section)
	b.WriteString(" beat should treat early reports as provisional.")
	b.WriteString("\nFuture Outlook: Further reporting is expected as the story develops. Updated analysis will replace this summary when it becomes available.")
	return b.String()
}


var _ queue.Processor = (*EnrichmentWorker)(nil)
var _ queue.AdmissionChecker = (*EnrichmentWorker)(nil)
var _ EnricherService = (*EnrichmentWorker)(nil)
