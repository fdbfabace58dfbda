package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"news-enricher/balancer"
	"news-enricher/cache"
	"news-enricher/domain"
	"news-enricher/queue"
	"news-enricher/repository"
	"news-enricher/service"
)

type noopProcessor struct{}

func (noopProcessor) Process(context.Context, *domain.EnrichmentJob) error  { return nil }
func (noopProcessor) Fallback(context.Context, *domain.EnrichmentJob) error { return nil }

type stubFetcher struct{}

func (stubFetcher) FetchSection(_ context.Context, section string, _ int) (*service.FetchResult, error) {
	return &service.FetchResult{Section: section}, nil
}

func testCache(t *testing.T) *cache.TieredCache {
	t.Helper()
	pool, err := cache.NewShardPool(context.Background(), cache.PoolConfig{Disabled: true}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return cache.NewTieredCache(pool, slog.Default())
}

func testPools(t *testing.T) map[string]*balancer.KeyPool {
	t.Helper()
	pool, err := balancer.NewKeyPool(balancer.Config{
		Name:            "ai",
		DailyLimit:      1000,
		ReservedQuantum: 10,
	}, []string{"secret"}, slog.Default())
	require.NoError(t, err)
	return map[string]*balancer.KeyPool{"ai": pool}
}

func doRequest(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestStatsEndpoints(t *testing.T) {
	tc := testCache(t)
	store := repository.NewMemoryStore(slog.Default())
	jobs := queue.New(queue.Config{}, noopProcessor{}, nil, slog.Default())
	gate := service.NewThresholdGate(store, 0, slog.Default())
	scheduler := service.NewRotationScheduler(stubFetcher{}, gate, time.Hour, slog.Default())

	h := NewStatsHandler(jobs, testPools(t), tc, gate, scheduler, slog.Default())

	e := echo.New()
	e.GET("/v1/stats/queue", h.Queue)
	e.GET("/v1/stats/keys", h.Keys)
	e.GET("/v1/stats/shards", h.Shards)
	e.GET("/v1/stats/threshold", h.Threshold)
	e.GET("/v1/stats/rotation", h.Rotation)

	t.Run("queue", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/v1/stats/queue")
		require.Equal(t, http.StatusOK, rec.Code)

		var stats queue.Stats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Equal(t, "healthy", stats.Health)
	})

	t.Run("keys", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/v1/stats/keys")
		require.Equal(t, http.StatusOK, rec.Code)

		var stats map[string]balancer.Stats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		require.Contains(t, stats, "ai")
		assert.Equal(t, 1, stats["ai"].Alive)
	})

	t.Run("shards", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/v1/stats/shards")
		require.Equal(t, http.StatusOK, rec.Code)

		var stats cache.TieredStats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Empty(t, stats.Shards)
	})

	t.Run("threshold", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/v1/stats/threshold")
		require.Equal(t, http.StatusOK, rec.Code)

		var stats map[string]service.SectionGate
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.Len(t, stats, len(domain.Sections))
	})

	t.Run("rotation", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/v1/stats/rotation")
		require.Equal(t, http.StatusOK, rec.Code)

		var stats service.RotationStats
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
		assert.False(t, stats.Running)
	})
}

func TestGetArticle(t *testing.T) {
	tc := testCache(t)
	store := repository.NewMemoryStore(slog.Default())
	jobs := queue.New(queue.Config{}, noopProcessor{}, nil, slog.Default())
	reader := service.NewArticleReader(tc, store, jobs, slog.Default())

	id, err := store.UpsertByURL(context.Background(), &domain.Article{
		Title:        "Stored",
		URL:          "https://example.com/stored",
		Section:      "world",
		AICommentary: "commentary",
	})
	require.NoError(t, err)

	h := NewArticleHandler(reader, tc, slog.Default())
	e := echo.New()
	e.GET("/v1/articles/:id", h.GetArticle)

	t.Run("found", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/v1/articles/"+id)
		require.Equal(t, http.StatusOK, rec.Code)

		var view service.ArticleView
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		assert.Equal(t, "Stored", view.Article.Title)
	})

	t.Run("not found", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/v1/articles/missing")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListSection(t *testing.T) {
	tc := testCache(t)
	ctx := context.Background()

	snap := domain.SnapshotOf(&domain.Article{
		ID:           "a1",
		Title:        "Listed",
		Section:      "world",
		AICommentary: "commentary",
	}, domain.CommentarySourceAI, time.Now())
	require.NoError(t, tc.PublishArticle(ctx, snap, cache.TTLArticleWorker, 20))

	store := repository.NewMemoryStore(slog.Default())
	jobs := queue.New(queue.Config{}, noopProcessor{}, nil, slog.Default())
	reader := service.NewArticleReader(tc, store, jobs, slog.Default())

	h := NewArticleHandler(reader, tc, slog.Default())
	e := echo.New()
	e.GET("/v1/sections/:section", h.ListSection)
	e.GET("/v1/homepage", h.Homepage)

	t.Run("lists published articles", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/v1/sections/world")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Section  string                  `json:"section"`
			Count    int                     `json:"count"`
			Articles []*domain.CachedArticle `json:"articles"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "world", body.Section)
		require.Equal(t, 1, body.Count)
		assert.Equal(t, "a1", body.Articles[0].ID)
	})

	t.Run("unknown section", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/v1/sections/horoscopes")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid limit", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/v1/sections/world?limit=nope")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("homepage carries the published article", func(t *testing.T) {
		rec := doRequest(e, http.MethodGet, "/v1/homepage")
		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Count int `json:"count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Count)
	})
}

func TestHealthCheck(t *testing.T) {
	tests := map[string]struct {
		checks     map[string]Pinger
		wantStatus string
	}{
		"all dependencies reachable": {
			checks: map[string]Pinger{
				"cache": func(context.Context) error { return nil },
				"store": func(context.Context) error { return nil },
			},
			wantStatus: "healthy",
		},
		"store unreachable reports degraded": {
			checks: map[string]Pinger{
				"cache": func(context.Context) error { return nil },
				"store": func(context.Context) error { return errors.New("conn refused") },
			},
			wantStatus: "degraded",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			h := NewHealthHandler(tc.checks, slog.Default())
			e := echo.New()
			e.GET("/health", h.Check)

			rec := doRequest(e, http.MethodGet, "/health")
			require.Equal(t, http.StatusOK, rec.Code)

			var body struct {
				Status string `json:"status"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantStatus, body.Status)
		})
	}
}
