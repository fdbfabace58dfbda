package domain

import (
	"strings"
	"time"
)

// CommentarySource identifies how an article's commentary was produced.
type CommentarySource string

const (
	// CommentarySourceAI marks commentary generated by the AI provider.
	CommentarySourceAI CommentarySource = "ai"
	// CommentarySourceFallback marks deterministic template commentary.
	CommentarySourceFallback CommentarySource = "fallback"
)

// TempIDPrefix marks ephemeral article ids that must never reach the store
// or the section FIFO lists.
const TempIDPrefix = "temp-"

// Article is the canonical article shape. Every source adapter normalizes
// into this record; raw upstream shapes never cross the driver boundary.
type Article struct {
	ID                    string           `json:"id"`
	Title                 string           `json:"title"`
	Abstract              string           `json:"abstract"`
	URL                   string           `json:"url"`
	PublishedDate         time.Time        `json:"published_date"`
	Byline                string           `json:"byline,omitempty"`
	ImageURL              string           `json:"image_url,omitempty"`
	Source                string           `json:"source"`
	Section               string           `json:"section"`
	Keywords              []string         `json:"keywords,omitempty"`
	AICommentary          string           `json:"ai_commentary,omitempty"`
	CommentaryGeneratedAt *time.Time       `json:"commentary_generated_at,omitempty"`
	CommentarySource      CommentarySource `json:"commentary_source,omitempty"`
}

// IsEnriched reports whether the article is complete. An empty commentary
// string is treated as absent.
func (a *Article) IsEnriched() bool {
	return a != nil && strings.TrimSpace(a.AICommentary) != ""
}

// IsTemporary reports whether the article carries an ephemeral id.
func (a *Article) IsTemporary() bool {
	return IsTempID(a.ID)
}

// IsTempID reports whether id carries the ephemeral prefix.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// CachedArticle is the enriched snapshot written to the cache tier under
// article:{id}. The underscore fields are cache-only metadata that never
// reaches the store.
type CachedArticle struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Abstract         string           `json:"abstract"`
	URL              string           `json:"url"`
	PublishedDate    time.Time        `json:"published_date"`
	Byline           string           `json:"byline,omitempty"`
	ImageURL         string           `json:"image_url,omitempty"`
	Section          string           `json:"section"`
	AICommentary     string           `json:"ai_commentary"`
	CommentarySource CommentarySource `json:"_commentary_source"`
	CachedAt         time.Time        `json:"_cached_at"`
}

// SnapshotOf builds the cache snapshot for an enriched article.
func SnapshotOf(a *Article, source CommentarySource, now time.Time) *CachedArticle {
	return &CachedArticle{
		ID:               a.ID,
		Title:            a.Title,
		Abstract:         a.Abstract,
		URL:              a.URL,
		PublishedDate:    a.PublishedDate,
		Byline:           a.Byline,
		ImageURL:         a.ImageURL,
		Section:          a.Section,
		AICommentary:     a.AICommentary,
		CommentarySource: source,
		CachedAt:         now,
	}
}
