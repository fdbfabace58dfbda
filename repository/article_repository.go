// ABOUTME: Postgres-backed ArticleStore wrapping the driver SQL functions
package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"news-enricher/domain"
	"news-enricher/driver"
)

// ArticleStore implementation over Postgres.
type articleRepository struct {
	db     *pgxpool.Pool
	logger *slog.Logger
}

// NewArticleRepository creates the Postgres article store.
func NewArticleRepository(db *pgxpool.Pool, logger *slog.Logger) ArticleStore {
	return &articleRepository{
		db:     db,
		logger: logger,
	}
}

// UpsertByURL writes the article keyed by its url.
func (r *articleRepository) UpsertByURL(ctx context.Context, article *domain.Article) (string, error) {
	if r.db == nil {
		return "", fmt.Errorf("upsert article: %w", domain.ErrStoreUnavailable)
	}

	id, err := driver.UpsertArticleByURL(ctx, r.db, article)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to upsert article", "error", err, "url", article.URL)
		return "", fmt.Errorf("failed to upsert article: %w", err)
	}

	r.logger.InfoContext(ctx, "article upserted",
		"id", id,
		"url", article.URL,
		"section", article.Section,
		"enriched", article.IsEnriched())
	return id, nil
}

// FindByURL fetches one article by url.
func (r *articleRepository) FindByURL(ctx context.Context, url string) (*domain.Article, error) {
	if r.db == nil {
		return nil, fmt.Errorf("find article by url: %w", domain.ErrStoreUnavailable)
	}
	article, err := driver.GetArticleByURL(ctx, r.db, url)
	if err != nil {
		return nil, err
	}
	return article, nil
}

// FindByID fetches one article by id.
func (r *articleRepository) FindByID(ctx context.Context, id string) (*domain.Article, error) {
	if r.db == nil {
		return nil, fmt.Errorf("find article by id: %w", domain.ErrStoreUnavailable)
	}
	article, err := driver.GetArticleByID(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	return article, nil
}

// ExistingURLs reports which urls are already stored.
func (r *articleRepository) ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	if r.db == nil {
		return nil, fmt.Errorf("check existing urls: %w", domain.ErrStoreUnavailable)
	}
	existing, err := driver.FilterExistingURLs(ctx, r.db, r.logger, urls)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to check existing urls", "error", err, "count", len(urls))
		return nil, fmt.Errorf("failed to check existing urls: %w", err)
	}
	return existing, nil
}

// EnrichedURLs reports which urls are stored with commentary.
func (r *articleRepository) EnrichedURLs(ctx context.Context, urls []string) (map[string]bool, error) {
	if r.db == nil {
		return nil, fmt.Errorf("check enriched urls: %w", domain.ErrStoreUnavailable)
	}
	enriched, err := driver.FilterEnrichedURLs(ctx, r.db, r.logger, urls)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to check enriched urls", "error", err, "count", len(urls))
		return nil, fmt.Errorf("failed to check enriched urls: %w", err)
	}
	return enriched, nil
}

// CountBySection counts stored articles for a section.
func (r *articleRepository) CountBySection(ctx context.Context, section string) (int, error) {
	if r.db == nil {
		return 0, fmt.Errorf("count by section: %w", domain.ErrStoreUnavailable)
	}
	count, err := driver.CountArticlesBySection(ctx, r.db, section)
	if err != nil {
		return 0, fmt.Errorf("failed to count articles for %s: %w", section, err)
	}
	return count, nil
}

// CountEnrichedBySection counts enriched stored articles for a section.
func (r *articleRepository) CountEnrichedBySection(ctx context.Context, section string) (int, error) {
	if r.db == nil {
		return 0, fmt.Errorf("count enriched by section: %w", domain.ErrStoreUnavailable)
	}
	count, err := driver.CountEnrichedBySection(ctx, r.db, section)
	if err != nil {
		return 0, fmt.Errorf("failed to count enriched articles for %s: %w", section, err)
	}
	return count, nil
}

// RecentBySection returns the newest stored articles for a section.
func (r *articleRepository) RecentBySection(ctx context.Context, section string, limit int) ([]*domain.Article, error) {
	if r.db == nil {
		return nil, fmt.Errorf("recent by section: %w", domain.ErrStoreUnavailable)
	}
	articles, err := driver.GetRecentBySection(ctx, r.db, section, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch recent articles for %s: %w", section, err)
	}
	return articles, nil
}

// Ping verifies the pool is reachable.
func (r *articleRepository) Ping(ctx context.Context) error {
	if r.db == nil {
		return domain.ErrStoreUnavailable
	}
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrStoreUnavailable, err)
	}
	return nil
}
