package service

import (
	"context"
	"time"

	"news-enricher/domain"
)

// EnricherService generates commentary for articles. Inline enrichment is
// the fetcher's synchronous path; the queue drives the same implementation
// through its Processor interface.
type EnricherService interface {
	EnrichInline(ctx context.Context, article *domain.Article) error
}

// FetcherService pulls one section's articles from its publisher and
// enriches the new ones. limit > 0 caps how many fresh articles one call
// processes; 0 means the whole batch.
type FetcherService interface {
	FetchSection(ctx context.Context, section string, limit int) (*FetchResult, error)
}

// GateService decides whether enough enriched coverage exists for the cache
// lists to be served. Cache admission keys off AllMet; the per-section Met
// drives backfill targeting and stats.
type GateService interface {
	Met(ctx context.Context, section string) (bool, error)
	AllMet(ctx context.Context) (bool, error)
	Stats(ctx context.Context) map[string]SectionGate
}

// SchedulerService rotates the fetcher through the section list.
type SchedulerService interface {
	Start(ctx context.Context)
	Stop()
	RunBackfill(ctx context.Context) error
	Stats() RotationStats
}

// ReaderService is the user-facing read path: cache first, store fallback,
// enrichment kick-off for incomplete articles.
type ReaderService interface {
	ReadArticle(ctx context.Context, id string) (*ArticleView, error)
}

// FetchResult summarizes one section pull.
type FetchResult struct {
	Section    string        `json:"section"`
	Source     string        `json:"source"`
	Fetched    int           `json:"fetched"`
	New        int           `json:"new"`
	Enriched   int           `json:"enriched"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
	Degraded   bool          `json:"degraded"`
}

// SectionGate is one section's threshold status.
type SectionGate struct {
	Section   string `json:"section"`
	Enriched  int    `json:"enriched"`
	Threshold int    `json:"threshold"`
	Met       bool   `json:"met"`
}

// RotationStats is the scheduler's observability snapshot.
type RotationStats struct {
	Running       bool           `json:"running"`
	Period        string         `json:"period"`
	CurrentIndex  int            `json:"current_index"`
	LastSection   string         `json:"last_section,omitempty"`
	LastRunAt     time.Time      `json:"last_run_at"`
	Wraps         int            `json:"wraps"`
	SectionCounts map[string]int `json:"section_counts"`
	LastWrapID    string         `json:"last_wrap_id,omitempty"`
}

// ArticleView is the read-path response shape. CommentaryQueued marks an
// article served before its commentary finished generating.
type ArticleView struct {
	Article          *domain.Article `json:"article"`
	FromCache        bool            `json:"from_cache"`
	CommentaryQueued bool            `json:"commentary_queued"`
}
