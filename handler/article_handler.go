// ABOUTME: Read-path endpoints serving articles from the tiered cache with
// ABOUTME: store fallback and read-triggered enrichment
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"news-enricher/cache"
	"news-enricher/domain"
	"news-enricher/service"
)

type articleHandler struct {
	reader service.ReaderService
	cache  *cache.TieredCache
	logger *slog.Logger
}

// NewArticleHandler creates the article read handler.
func NewArticleHandler(reader service.ReaderService, tiered *cache.TieredCache, logger *slog.Logger) ArticleHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &articleHandler{
		reader: reader,
		cache:  tiered,
		logger: logger,
	}
}

// GetArticle resolves a single article by id.
func (h *articleHandler) GetArticle(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "missing article id"})
	}

	view, err := h.reader.ReadArticle(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrArticleNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "article not found"})
		}
		h.logger.ErrorContext(c.Request().Context(), "article read failed",
			"article_id", id,
			"error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	return c.JSON(http.StatusOK, view)
}

// ListSection returns the section's cached article list, newest first.
func (h *articleHandler) ListSection(c echo.Context) error {
	section := c.Param("section")
	if !domain.IsValidSection(section) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "unknown section"})
	}

	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid limit"})
		}
		limit = n
	}

	articles, err := h.cache.SectionArticles(c.Request().Context(), section, limit)
	if err != nil {
		h.logger.ErrorContext(c.Request().Context(), "section list read failed",
			"section", section,
			"error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"section":  section,
		"count":    len(articles),
		"articles": articles,
	})
}

// Homepage returns the hot list of recently published articles.
func (h *articleHandler) Homepage(c echo.Context) error {
	articles, err := h.cache.Homepage(c.Request().Context())
	if err != nil {
		h.logger.ErrorContext(c.Request().Context(), "homepage read failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"count":    len(articles),
		"articles": articles,
	})
}
