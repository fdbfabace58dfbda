package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-enricher/cache"
	"news-enricher/domain"
	"news-enricher/queue"
	"news-enricher/repository"
)

type noopProcessor struct{}

func (noopProcessor) Process(context.Context, *domain.EnrichmentJob) error  { return nil }
func (noopProcessor) Fallback(context.Context, *domain.EnrichmentJob) error { return nil }

func readerQueue(t *testing.T) *queue.Queue {
	t.Helper()
	return queue.New(queue.Config{}, noopProcessor{}, nil, slog.Default())
}

func TestReadArticle_ServesCachedSnapshot(t *testing.T) {
	tc := newTestCache(t)
	store := repository.NewMemoryStore(slog.Default())
	ctx := context.Background()

	snap := domain.SnapshotOf(&domain.Article{
		ID:           "a1",
		Title:        "Cached title",
		Section:      "world",
		AICommentary: "commentary",
	}, domain.CommentarySourceAI, time.Now())
	require.NoError(t, tc.SetJSON(ctx, "article:a1", snap, cache.TTLArticle))

	r := NewArticleReader(tc, store, readerQueue(t), slog.Default())
	view, err := r.ReadArticle(ctx, "a1")
	require.NoError(t, err)

	assert.True(t, view.FromCache)
	assert.False(t, view.CommentaryQueued)
	assert.Equal(t, "Cached title", view.Article.Title)
	assert.Equal(t, "commentary", view.Article.AICommentary)
}

func TestReadArticle_EnrichedStoreHitWarmsSnapshot(t *testing.T) {
	tc := newTestCache(t)
	store := repository.NewMemoryStore(slog.Default())
	ctx := context.Background()

	id, err := store.UpsertByURL(ctx, &domain.Article{
		Title:        "Stored title",
		URL:          "https://example.com/stored",
		Section:      "world",
		AICommentary: "commentary",
	})
	require.NoError(t, err)

	r := NewArticleReader(tc, store, readerQueue(t), slog.Default())
	view, err := r.ReadArticle(ctx, id)
	require.NoError(t, err)

	assert.False(t, view.FromCache)
	assert.False(t, view.CommentaryQueued)

	// The next read comes straight from the warmed snapshot.
	view, err = r.ReadArticle(ctx, id)
	require.NoError(t, err)
	assert.True(t, view.FromCache)
}

func TestReadArticle_UnenrichedQueuesHighPriorityJob(t *testing.T) {
	tc := newTestCache(t)
	store := repository.NewMemoryStore(slog.Default())
	ctx := context.Background()

	id, err := store.UpsertByURL(ctx, &domain.Article{
		Title:   "Bare title",
		URL:     "https://example.com/bare",
		Section: "world",
	})
	require.NoError(t, err)

	jobs := readerQueue(t)
	r := NewArticleReader(tc, store, jobs, slog.Default())

	view, err := r.ReadArticle(ctx, id)
	require.NoError(t, err)

	// Served immediately with the queued marker.
	assert.True(t, view.CommentaryQueued)
	assert.Empty(t, view.Article.AICommentary)

	job, ok := jobs.Job(domain.JobIDFor(id))
	require.True(t, ok)
	assert.Equal(t, domain.PriorityHighest, job.Priority)

	// A second impatient read tolerates the duplicate submission.
	view, err = r.ReadArticle(ctx, id)
	require.NoError(t, err)
	assert.True(t, view.CommentaryQueued)
}

func TestReadArticle_NotFound(t *testing.T) {
	tc := newTestCache(t)
	store := repository.NewMemoryStore(slog.Default())

	r := NewArticleReader(tc, store, readerQueue(t), slog.Default())
	_, err := r.ReadArticle(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrArticleNotFound)
}
