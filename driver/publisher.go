// ABOUTME: Publisher API clients normalizing upstream article shapes into the
// ABOUTME: canonical Article; raw upstream records never leave this package
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"news-enricher/domain"
)

// Source is one publisher API. FetchSection pulls the current articles for a
// section using the supplied credential; the key pool owns credential
// selection and quota accounting (one unit per call).
type Source interface {
	Name() string
	FetchSection(ctx context.Context, secret, section string, limit int) ([]*domain.Article, error)
}

// chronicleSource is the curated top-stories publisher. One credential,
// section-scoped endpoints.
type chronicleSource struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewChronicleSource builds the top-stories publisher client.
func NewChronicleSource(baseURL string, timeout time.Duration, logger *slog.Logger) Source {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &chronicleSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (s *chronicleSource) Name() string { return "chronicle" }

type chronicleEnvelope struct {
	Status  string             `json:"status"`
	Results []chronicleArticle `json:"results"`
}

type chronicleArticle struct {
	Title         string    `json:"title"`
	Abstract      string    `json:"abstract"`
	URL           string    `json:"url"`
	Byline        string    `json:"byline"`
	PublishedDate time.Time `json:"published_date"`
	Section       string    `json:"section"`
	DesFacet      []string  `json:"des_facet"`
	Multimedia    []struct {
		URL    string `json:"url"`
		Format string `json:"format"`
	} `json:"multimedia"`
}

func (s *chronicleSource) FetchSection(ctx context.Context, secret, section string, limit int) ([]*domain.Article, error) {
	endpoint := fmt.Sprintf("%s/svc/topstories/v2/%s.json?api-key=%s",
		s.baseURL, url.PathEscape(section), url.QueryEscape(secret))

	var envelope chronicleEnvelope
	if err := fetchJSON(ctx, s.client, endpoint, nil, &envelope); err != nil {
		return nil, fmt.Errorf("chronicle %s: %w", section, err)
	}

	articles := make([]*domain.Article, 0, len(envelope.Results))
	for _, raw := range envelope.Results {
		if raw.URL == "" || raw.Title == "" {
			continue
		}
		a := &domain.Article{
			Title:         raw.Title,
			Abstract:      raw.Abstract,
			URL:           raw.URL,
			PublishedDate: raw.PublishedDate,
			Byline:        raw.Byline,
			Source:        s.Name(),
			Section:       section,
			Keywords:      raw.DesFacet,
		}
		for _, m := range raw.Multimedia {
			if m.URL != "" {
				a.ImageURL = m.URL
				break
			}
		}
		articles = append(articles, a)
		if limit > 0 && len(articles) >= limit {
			break
		}
	}

	s.logger.InfoContext(ctx, "fetched section from chronicle",
		"section", section,
		"articles", len(articles))
	return articles, nil
}

// wirelineSource is the headline aggregation publisher. Pooled credentials,
// category-scoped endpoint.
type wirelineSource struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewWirelineSource builds the headline aggregator client.
func NewWirelineSource(baseURL string, timeout time.Duration, logger *slog.Logger) Source {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &wirelineSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (s *wirelineSource) Name() string { return "wireline" }

type wirelineEnvelope struct {
	Status   string            `json:"status"`
	Articles []wirelineArticle `json:"articles"`
}

type wirelineArticle struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	URLToImage  string    `json:"urlToImage"`
	PublishedAt time.Time `json:"publishedAt"`
	Author      string    `json:"author"`
	SourceInfo  struct {
		Name string `json:"name"`
	} `json:"source"`
}

func (s *wirelineSource) FetchSection(ctx context.Context, secret, section string, limit int) ([]*domain.Article, error) {
	if limit <= 0 {
		limit = 20
	}
	endpoint := fmt.Sprintf("%s/v2/top-headlines?category=%s&pageSize=%d",
		s.baseURL, url.QueryEscape(section), limit)

	headers := map[string]string{"X-Api-Key": secret}
	var envelope wirelineEnvelope
	if err := fetchJSON(ctx, s.client, endpoint, headers, &envelope); err != nil {
		return nil, fmt.Errorf("wireline %s: %w", section, err)
	}

	articles := make([]*domain.Article, 0, len(envelope.Articles))
	for _, raw := range envelope.Articles {
		if raw.URL == "" || raw.Title == "" {
			continue
		}
		byline := raw.Author
		if byline == "" {
			byline = raw.SourceInfo.Name
		}
		articles = append(articles, &domain.Article{
			Title:         raw.Title,
			Abstract:      raw.Description,
			URL:           raw.URL,
			PublishedDate: raw.PublishedAt,
			Byline:        byline,
			ImageURL:      raw.URLToImage,
			Source:        s.Name(),
			Section:       section,
		})
	}

	s.logger.InfoContext(ctx, "fetched section from wireline",
		"section", section,
		"articles", len(articles))
	return articles, nil
}

// fetchJSON issues a GET and decodes the body, mapping error statuses onto
// the shared taxonomy.
func fetchJSON(ctx context.Context, client *http.Client, endpoint string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrUpstreamTransient, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode); err != nil {
		return err
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read response: %s", domain.ErrUpstreamTransient, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
