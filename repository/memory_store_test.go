package repository

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-enricher/domain"
)

func storeArticle(url, section, commentary string, published time.Time) *domain.Article {
	return &domain.Article{
		Title:         "title for " + url,
		URL:           url,
		Section:       section,
		AICommentary:  commentary,
		PublishedDate: published,
	}
}

func TestMemoryStore_UpsertIsKeyedByURL(t *testing.T) {
	s := NewMemoryStore(slog.Default())
	ctx := context.Background()

	id1, err := s.UpsertByURL(ctx, storeArticle("https://example.com/a", "world", "", time.Now()))
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	// Same url updates in place and keeps the id.
	id2, err := s.UpsertByURL(ctx, storeArticle("https://example.com/a", "world", "commentary", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := s.FindByURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, got.IsEnriched())

	byID, err := s.FindByID(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, got.URL, byID.URL)
}

func TestMemoryStore_EnrichmentNeverRegresses(t *testing.T) {
	s := NewMemoryStore(slog.Default())
	ctx := context.Background()

	_, err := s.UpsertByURL(ctx, storeArticle("https://example.com/a", "world", "existing commentary", time.Now()))
	require.NoError(t, err)

	// A later upsert without commentary must not clear it.
	_, err = s.UpsertByURL(ctx, storeArticle("https://example.com/a", "world", "", time.Now()))
	require.NoError(t, err)

	got, err := s.FindByURL(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, "existing commentary", got.AICommentary)
}

func TestMemoryStore_NotFound(t *testing.T) {
	s := NewMemoryStore(slog.Default())
	ctx := context.Background()

	_, err := s.FindByURL(ctx, "https://example.com/missing")
	assert.ErrorIs(t, err, domain.ErrArticleNotFound)

	_, err = s.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrArticleNotFound)
}

func TestMemoryStore_ExistingURLs(t *testing.T) {
	s := NewMemoryStore(slog.Default())
	ctx := context.Background()

	_, err := s.UpsertByURL(ctx, storeArticle("https://example.com/a", "world", "", time.Now()))
	require.NoError(t, err)

	existing, err := s.ExistingURLs(ctx, []string{"https://example.com/a", "https://example.com/b"})
	require.NoError(t, err)
	assert.True(t, existing["https://example.com/a"])
	assert.False(t, existing["https://example.com/b"])
}

func TestMemoryStore_EnrichedURLs(t *testing.T) {
	s := NewMemoryStore(slog.Default())
	ctx := context.Background()

	_, err := s.UpsertByURL(ctx, storeArticle("https://example.com/a", "world", "commentary", time.Now()))
	require.NoError(t, err)
	_, err = s.UpsertByURL(ctx, storeArticle("https://example.com/b", "world", "", time.Now()))
	require.NoError(t, err)

	enriched, err := s.EnrichedURLs(ctx, []string{
		"https://example.com/a", "https://example.com/b", "https://example.com/c",
	})
	require.NoError(t, err)
	assert.True(t, enriched["https://example.com/a"])
	assert.False(t, enriched["https://example.com/b"])
	assert.False(t, enriched["https://example.com/c"])
}

func TestMemoryStore_SectionCounts(t *testing.T) {
	s := NewMemoryStore(slog.Default())
	ctx := context.Background()

	now := time.Now()
	for i, a := range []*domain.Article{
		storeArticle("https://example.com/1", "world", "c1", now),
		storeArticle("https://example.com/2", "world", "", now),
		storeArticle("https://example.com/3", "tech", "c3", now),
	} {
		_, err := s.UpsertByURL(ctx, a)
		require.NoError(t, err, "article %d", i)
	}

	count, err := s.CountBySection(ctx, "world")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	enriched, err := s.CountEnrichedBySection(ctx, "world")
	require.NoError(t, err)
	assert.Equal(t, 1, enriched)
}

func TestMemoryStore_RecentBySection(t *testing.T) {
	s := NewMemoryStore(slog.Default())
	ctx := context.Background()

	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, url := range []string{"https://e.com/1", "https://e.com/2", "https://e.com/3"} {
		_, err := s.UpsertByURL(ctx, storeArticle(url, "us", "", base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
	}

	recent, err := s.RecentBySection(ctx, "us", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "https://e.com/3", recent[0].URL)
	assert.Equal(t, "https://e.com/2", recent[1].URL)
}
