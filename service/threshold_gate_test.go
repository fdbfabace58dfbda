package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-enricher/domain"
	"news-enricher/repository"
)

type failingStore struct {
	repository.ArticleStore
}

func (failingStore) CountEnrichedBySection(context.Context, string) (int, error) {
	return 0, errors.New("store down")
}

func TestThresholdGate_MetAtThreshold(t *testing.T) {
	store := repository.NewMemoryStore(slog.Default())
	ctx := context.Background()

	gate := NewThresholdGate(store, 3, slog.Default())

	met, err := gate.Met(ctx, "world")
	require.NoError(t, err)
	assert.False(t, met)

	for i := 0; i < 3; i++ {
		_, err := store.UpsertByURL(ctx, &domain.Article{
			Title:        "t",
			URL:          "https://example.com/" + string(rune('a'+i)),
			Section:      "world",
			AICommentary: "commentary",
		})
		require.NoError(t, err)
	}

	met, err = gate.Met(ctx, "world")
	require.NoError(t, err)
	assert.True(t, met)
}

func TestThresholdGate_OnlyEnrichedCount(t *testing.T) {
	store := repository.NewMemoryStore(slog.Default())
	ctx := context.Background()

	// Two stored, one enriched: a threshold of 2 is not met.
	_, err := store.UpsertByURL(ctx, &domain.Article{Title: "t", URL: "https://e.com/1", Section: "us", AICommentary: "c"})
	require.NoError(t, err)
	_, err = store.UpsertByURL(ctx, &domain.Article{Title: "t", URL: "https://e.com/2", Section: "us"})
	require.NoError(t, err)

	gate := NewThresholdGate(store, 2, slog.Default())
	met, err := gate.Met(ctx, "us")
	require.NoError(t, err)
	assert.False(t, met)
}

func TestThresholdGate_AllMetNeedsEverySection(t *testing.T) {
	store := repository.NewMemoryStore(slog.Default())
	ctx := context.Background()
	gate := NewThresholdGate(store, 1, slog.Default())

	// Seed every section except the last.
	for _, section := range domain.Sections[:len(domain.Sections)-1] {
		_, err := store.UpsertByURL(ctx, &domain.Article{
			Title:        "t",
			URL:          "https://example.com/all/" + section,
			Section:      section,
			AICommentary: "commentary",
		})
		require.NoError(t, err)
	}

	met, err := gate.AllMet(ctx)
	require.NoError(t, err)
	assert.False(t, met)

	last := domain.Sections[len(domain.Sections)-1]
	_, err = store.UpsertByURL(ctx, &domain.Article{
		Title:        "t",
		URL:          "https://example.com/all/" + last,
		Section:      last,
		AICommentary: "commentary",
	})
	require.NoError(t, err)

	met, err = gate.AllMet(ctx)
	require.NoError(t, err)
	assert.True(t, met)
}

func TestThresholdGate_StoreErrorReadsClosed(t *testing.T) {
	gate := NewThresholdGate(failingStore{}, 0, slog.Default())

	met, err := gate.Met(context.Background(), "world")
	assert.Error(t, err)
	assert.False(t, met)

	met, err = gate.AllMet(context.Background())
	assert.Error(t, err)
	assert.False(t, met)
}

func TestThresholdGate_StatsCoversAllSections(t *testing.T) {
	store := repository.NewMemoryStore(slog.Default())
	gate := NewThresholdGate(store, 0, slog.Default())

	stats := gate.Stats(context.Background())
	assert.Len(t, stats, len(domain.Sections))
	for _, s := range stats {
		assert.Equal(t, DefaultSectionThreshold, s.Threshold)
		assert.False(t, s.Met)
	}
}
