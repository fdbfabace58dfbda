package handler

import (
	"github.com/labstack/echo/v4"
)

// StatsHandler serves the observability endpoints.
type StatsHandler interface {
	Queue(c echo.Context) error
	Keys(c echo.Context) error
	Shards(c echo.Context) error
	Threshold(c echo.Context) error
	Rotation(c echo.Context) error
}

// ArticleHandler serves the article read path.
type ArticleHandler interface {
	GetArticle(c echo.Context) error
	ListSection(c echo.Context) error
	Homepage(c echo.Context) error
}

// HealthHandler reports service and dependency health.
type HealthHandler interface {
	Check(c echo.Context) error
}
