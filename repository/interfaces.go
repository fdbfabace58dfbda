package repository

import (
	"context"

	"news-enricher/domain"
)

// ArticleStore is the document store boundary. The Postgres adapter is the
// real implementation; the in-memory store covers degraded operation and
// tests.
type ArticleStore interface {
	// UpsertByURL writes the article, updating the existing row when the
	// url is already stored, and returns the stored id.
	UpsertByURL(ctx context.Context, article *domain.Article) (string, error)
	// FindByURL returns domain.ErrArticleNotFound on a miss.
	FindByURL(ctx context.Context, url string) (*domain.Article, error)
	// FindByID returns domain.ErrArticleNotFound on a miss.
	FindByID(ctx context.Context, id string) (*domain.Article, error)
	// ExistingURLs reports which of the urls are already stored.
	ExistingURLs(ctx context.Context, urls []string) (map[string]bool, error)
	// EnrichedURLs reports which of the urls are stored with commentary.
	EnrichedURLs(ctx context.Context, urls []string) (map[string]bool, error)
	// CountBySection counts all stored articles in a section.
	CountBySection(ctx context.Context, section string) (int, error)
	// CountEnrichedBySection counts stored articles with commentary.
	CountEnrichedBySection(ctx context.Context, section string) (int, error)
	// RecentBySection returns the newest stored articles for a section.
	RecentBySection(ctx context.Context, section string, limit int) ([]*domain.Article, error)
	// Ping reports store reachability.
	Ping(ctx context.Context) error
}
