package service

import (
	"context"
	"log/slog"

	"news-enricher/domain"
	"news-enricher/repository"
)

// DefaultSectionThreshold is the enriched-article count a section needs
// before its cache lists are served.
const DefaultSectionThreshold = 8

// thresholdGate counts enriched coverage per section from the store. The
// gate only controls cache list admission; enrichment and persistence run
// regardless of its answer.
type thresholdGate struct {
	store     repository.ArticleStore
	threshold int
	logger    *slog.Logger
}

// NewThresholdGate builds the gate. threshold <= 0 takes the default.
func NewThresholdGate(store repository.ArticleStore, threshold int, logger *slog.Logger) GateService {
	if threshold <= 0 {
		threshold = DefaultSectionThreshold
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &thresholdGate{
		store:     store,
		threshold: threshold,
		logger:    logger,
	}
}

// Met reports whether the section's enriched count has reached the
// threshold. A store error reads as gate closed so degraded operation never
// serves thin sections.
func (g *thresholdGate) Met(ctx context.Context, section string) (bool, error) {
	count, err := g.store.CountEnrichedBySection(ctx, section)
	if err != nil {
		return false, err
	}
	return count >= g.threshold, nil
}

// AllMet reports whether every section has reached the threshold. Cache
// admission is global: one thin section keeps all lists unpublished.
func (g *thresholdGate) AllMet(ctx context.Context) (bool, error) {
	for _, section := range domain.Sections {
		met, err := g.Met(ctx, section)
		if err != nil {
			return false, err
		}
		if !met {
			return false, nil
		}
	}
	return true, nil
}

// Stats snapshots every section's gate status.
func (g *thresholdGate) Stats(ctx context.Context) map[string]SectionGate {
	out := make(map[string]SectionGate, len(domain.Sections))
	for _, section := range domain.Sections {
		count, err := g.store.CountEnrichedBySection(ctx, section)
		if err != nil {
			g.logger.WarnContext(ctx, "failed to count enriched articles",
				"section", section,
				"error", err)
		}
		out[section] = SectionGate{
			Section:   section,
			Enriched:  count,
			Threshold: g.threshold,
			Met:       err == nil && count >= g.threshold,
		}
	}
	return out
}
