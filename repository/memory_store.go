// ABOUTME: In-memory ArticleStore used when the document store is unreachable
package repository

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"news-enricher/domain"
)

// memoryStore keeps articles keyed by url so the pipeline stays functional
// for the process lifetime when Postgres is down. Nothing survives a restart.
type memoryStore struct {
	byURL  map[string]*domain.Article
	byID   map[string]*domain.Article
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewMemoryStore creates the degraded-mode article store.
func NewMemoryStore(logger *slog.Logger) ArticleStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &memoryStore{
		byURL:  make(map[string]*domain.Article),
		byID:   make(map[string]*domain.Article),
		logger: logger,
	}
}

func (s *memoryStore) UpsertByURL(_ context.Context, article *domain.Article) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *article
	if existing, ok := s.byURL[article.URL]; ok {
		stored.ID = existing.ID
		// Enrichment only moves forward, matching the SQL upsert.
		if !stored.IsEnriched() && existing.IsEnriched() {
			stored.AICommentary = existing.AICommentary
			stored.CommentaryGeneratedAt = existing.CommentaryGeneratedAt
			stored.CommentarySource = existing.CommentarySource
		}
	} else if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	s.byURL[stored.URL] = &stored
	s.byID[stored.ID] = &stored
	return stored.ID, nil
}

func (s *memoryStore) FindByURL(_ context.Context, url string) (*domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byURL[url]
	if !ok {
		return nil, domain.ErrArticleNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memoryStore) FindByID(_ context.Context, id string) (*domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrArticleNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memoryStore) ExistingURLs(_ context.Context, urls []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(urls))
	for _, u := range urls {
		if _, ok := s.byURL[u]; ok {
			out[u] = true
		}
	}
	return out, nil
}

func (s *memoryStore) EnrichedURLs(_ context.Context, urls []string) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]bool, len(urls))
	for _, u := range urls {
		if a, ok := s.byURL[u]; ok && a.IsEnriched() {
			out[u] = true
		}
	}
	return out, nil
}

func (s *memoryStore) CountBySection(_ context.Context, section string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, a := range s.byURL {
		if a.Section == section {
			count++
		}
	}
	return count, nil
}

func (s *memoryStore) CountEnrichedBySection(_ context.Context, section string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, a := range s.byURL {
		if a.Section == section && a.IsEnriched() {
			count++
		}
	}
	return count, nil
}

func (s *memoryStore) RecentBySection(_ context.Context, section string, limit int) ([]*domain.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Article
	for _, a := range s.byURL {
		if a.Section == section {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PublishedDate.After(out[j].PublishedDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) Ping(context.Context) error { return nil }
