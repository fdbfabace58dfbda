package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"news-enricher/cache"
	"news-enricher/domain"
	"news-enricher/queue"
	"news-enricher/repository"
)

// articleReader serves single-article reads: cache snapshot first, store
// second. An un-enriched article is served immediately with the
// commentaryQueued marker while a high-priority job generates its analysis.
type articleReader struct {
	cache  *cache.TieredCache
	store  repository.ArticleStore
	jobs   *queue.Queue
	logger *slog.Logger
}

// NewArticleReader builds the read path.
func NewArticleReader(tiered *cache.TieredCache, store repository.ArticleStore, jobs *queue.Queue, logger *slog.Logger) ReaderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &articleReader{
		cache:  tiered,
		store:  store,
		jobs:   jobs,
		logger: logger,
	}
}

// ReadArticle resolves an article by id.
func (r *articleReader) ReadArticle(ctx context.Context, id string) (*ArticleView, error) {
	var snap domain.CachedArticle
	if err := r.cache.GetJSON(ctx, "article:"+id, &snap); err == nil {
		return &ArticleView{
			Article: &domain.Article{
				ID:               snap.ID,
				Title:            snap.Title,
				Abstract:         snap.Abstract,
				URL:              snap.URL,
				PublishedDate:    snap.PublishedDate,
				Byline:           snap.Byline,
				ImageURL:         snap.ImageURL,
				Section:          snap.Section,
				AICommentary:     snap.AICommentary,
				CommentarySource: snap.CommentarySource,
			},
			FromCache: true,
		}, nil
	}

	article, err := r.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrArticleNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("read article %s: %w", id, err)
	}

	view := &ArticleView{Article: article}

	if article.IsEnriched() {
		// Warm the read-path snapshot for the next caller.
		snap := domain.SnapshotOf(article, article.CommentarySource, time.Now())
		if err := r.cache.SetJSON(ctx, "article:"+id, snap, cache.TTLArticle); err != nil {
			r.logger.WarnContext(ctx, "failed to warm article snapshot", "article_id", id, "error", err)
		}
		return view, nil
	}

	// Serve the incomplete article now; commentary catches up via the queue.
	view.CommentaryQueued = true
	r.queueEnrichment(ctx, article)
	return view, nil
}

func (r *articleReader) queueEnrichment(ctx context.Context, article *domain.Article) {
	if r.jobs == nil {
		return
	}
	job := &domain.EnrichmentJob{
		ArticleID: article.ID,
		Title:     article.Title,
		Content:   article.Abstract,
		Section:   article.Section,
		Article:   article,
		Priority:  domain.PriorityHighest, // a reader is waiting
	}
	err := r.jobs.Submit(ctx, job)
	if err != nil && !errors.Is(err, domain.ErrDuplicateJob) && !errors.Is(err, domain.ErrJobAlreadyDone) {
		r.logger.ErrorContext(ctx, "failed to queue read-path enrichment",
			"article_id", article.ID,
			"error", err)
		return
	}
	r.logger.InfoContext(ctx, "read-path enrichment queued",
		"article_id", article.ID,
		"already_queued", errors.Is(err, domain.ErrDuplicateJob))
}
