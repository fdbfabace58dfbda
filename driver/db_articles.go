package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"news-enricher/domain"
)

const articleColumns = `
	id, title, abstract, url, published_date, byline, image_url,
	source, section, keywords, ai_commentary, commentary_generated_at,
	commentary_source`

// UpsertArticleByURL inserts the article or refreshes the existing row with
// the same url. A caller-assigned id is honored on insert so cache keys stay
// stable; on conflict the existing row keeps its id. Enrichment fields only
// move forward: an upsert without commentary never clears commentary already
// stored.
func UpsertArticleByURL(ctx context.Context, db *pgxpool.Pool, a *domain.Article) (string, error) {
	if db == nil {
		return "", fmt.Errorf("database connection is nil")
	}

	query := `
		INSERT INTO articles (
			id, title, abstract, url, published_date, byline, image_url,
			source, section, keywords, ai_commentary, commentary_generated_at,
			commentary_source, updated_at
		)
		VALUES (
			COALESCE(NULLIF($1, ''), gen_random_uuid()::text),
			$2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW()
		)
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			abstract = EXCLUDED.abstract,
			published_date = EXCLUDED.published_date,
			byline = EXCLUDED.byline,
			image_url = EXCLUDED.image_url,
			source = EXCLUDED.source,
			section = EXCLUDED.section,
			keywords = EXCLUDED.keywords,
			ai_commentary = CASE
				WHEN EXCLUDED.ai_commentary <> '' THEN EXCLUDED.ai_commentary
				ELSE articles.ai_commentary
			END,
			commentary_generated_at = COALESCE(EXCLUDED.commentary_generated_at, articles.commentary_generated_at),
			commentary_source = CASE
				WHEN EXCLUDED.ai_commentary <> '' THEN EXCLUDED.commentary_source
				ELSE articles.commentary_source
			END,
			updated_at = NOW()
		RETURNING id
	`

	var id string
	err := db.QueryRow(ctx, query,
		a.ID, a.Title, a.Abstract, a.URL, nullableTime(a.PublishedDate), a.Byline,
		a.ImageURL, a.Source, a.Section, a.Keywords, a.AICommentary,
		a.CommentaryGeneratedAt, string(a.CommentarySource),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("upsert article %s: %w", a.URL, err)
	}
	return id, nil
}

// GetArticleByURL fetches one article by its url.
func GetArticleByURL(ctx context.Context, db *pgxpool.Pool, url string) (*domain.Article, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	query := `SELECT ` + articleColumns + ` FROM articles WHERE url = $1`
	return scanArticle(db.QueryRow(ctx, query, url))
}

// GetArticleByID fetches one article by its id.
func GetArticleByID(ctx context.Context, db *pgxpool.Pool, id string) (*domain.Article, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	query := `SELECT ` + articleColumns + ` FROM articles WHERE id = $1`
	return scanArticle(db.QueryRow(ctx, query, id))
}

// FilterExistingURLs returns the subset of urls already stored.
func FilterExistingURLs(ctx context.Context, db *pgxpool.Pool, logger *slog.Logger, urls []string) (map[string]bool, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if len(urls) == 0 {
		return map[string]bool{}, nil
	}

	existing := make(map[string]bool, len(urls))
	err := retryDBOperation(ctx, logger, func() error {
		rows, err := db.Query(ctx, `SELECT url FROM articles WHERE url = ANY($1)`, urls)
		if err != nil {
			return err
		}
		defer rows.Close()

		clear(existing)
		for rows.Next() {
			var u string
			if err := rows.Scan(&u); err != nil {
				return err
			}
			existing[u] = true
		}
		return rows.Err()
	}, "FilterExistingURLs")
	if err != nil {
		return nil, err
	}
	return existing, nil
}

// FilterEnrichedURLs returns the subset of urls stored with commentary.
func FilterEnrichedURLs(ctx context.Context, db *pgxpool.Pool, logger *slog.Logger, urls []string) (map[string]bool, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	if len(urls) == 0 {
		return map[string]bool{}, nil
	}

	enriched := make(map[string]bool, len(urls))
	err := retryDBOperation(ctx, logger, func() error {
		rows, err := db.Query(ctx,
			`SELECT url FROM articles WHERE url = ANY($1) AND ai_commentary <> ''`, urls)
		if err != nil {
			return err
		}
		defer rows.Close()

		clear(enriched)
		for rows.Next() {
			var u string
			if err := rows.Scan(&u); err != nil {
				return err
			}
			enriched[u] = true
		}
		return rows.Err()
	}, "FilterEnrichedURLs")
	if err != nil {
		return nil, err
	}
	return enriched, nil
}

// CountArticlesBySection counts stored articles for one section.
func CountArticlesBySection(ctx context.Context, db *pgxpool.Pool, section string) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}
	var count int
	err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM articles WHERE section = $1`, section,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// CountEnrichedBySection counts stored articles with commentary for one
// section.
func CountEnrichedBySection(ctx context.Context, db *pgxpool.Pool, section string) (int, error) {
	if db == nil {
		return 0, fmt.Errorf("database connection is nil")
	}
	var count int
	err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM articles WHERE section = $1 AND ai_commentary <> ''`, section,
	).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

// GetRecentBySection fetches the newest stored articles for a section.
func GetRecentBySection(ctx context.Context, db *pgxpool.Pool, section string, limit int) ([]*domain.Article, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	query := `SELECT ` + articleColumns + `
		FROM articles
		WHERE section = $1
		ORDER BY published_date DESC NULLS LAST
		LIMIT $2`

	rows, err := db.Query(ctx, query, section, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Article
	for rows.Next() {
		a, err := scanArticleRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row pgx.Row) (*domain.Article, error) {
	a, err := scanArticleRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrArticleNotFound
		}
		return nil, err
	}
	return a, nil
}

func scanArticleRow(row rowScanner) (*domain.Article, error) {
	var a domain.Article
	var published *time.Time
	var source string

	err := row.Scan(
		&a.ID, &a.Title, &a.Abstract, &a.URL, &published, &a.Byline,
		&a.ImageURL, &a.Source, &a.Section, &a.Keywords, &a.AICommentary,
		&a.CommentaryGeneratedAt, &source,
	)
	if err != nil {
		return nil, err
	}
	if published != nil {
		a.PublishedDate = *published
	}
	a.CommentarySource = domain.CommentarySource(source)
	return &a, nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
