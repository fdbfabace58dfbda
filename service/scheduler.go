// ABOUTME: Section rotation scheduler walking the fixed section list
// ABOUTME: round-robin, one section per tick, plus the boot-time backfill
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"news-enricher/domain"
)

// DefaultRotationPeriod is the tick interval between section pulls.
const DefaultRotationPeriod = 180 * time.Second

// backfillRounds bounds the boot-time pass: each section gets at most this
// many fetch rounds before the rotation loop takes over.
const backfillRounds = 2

type rotationScheduler struct {
	fetcher  FetcherService
	gate     GateService
	sections []string
	period   time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	running     bool
	idx         int
	lastSection string
	lastRunAt   time.Time
	wraps       int
	counts      map[string]int
	lastWrapID  string
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewRotationScheduler builds the scheduler over the canonical section list.
func NewRotationScheduler(fetcher FetcherService, gate GateService, period time.Duration, logger *slog.Logger) SchedulerService {
	if period <= 0 {
		period = DefaultRotationPeriod
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &rotationScheduler{
		fetcher:  fetcher,
		gate:     gate,
		sections: domain.Sections,
		period:   period,
		counts:   make(map[string]int),
		logger:   logger,
	}
}

// Start launches the single-worker rotation loop. Idempotent: a running
// scheduler ignores further Start calls.
func (s *rotationScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "rotation scheduler started",
		"period", s.period,
		"sections", len(s.sections))

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(s.period)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.tick(ctx)
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the loop and waits for the in-progress tick. Idempotent.
func (s *rotationScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	doneCh := s.doneCh
	s.mu.Unlock()

	<-doneCh
	s.logger.Info("rotation scheduler stopped")
}

// tick processes exactly one section and advances the cursor. Completing a
// full cycle emits a wrap event with the per-section enriched counts.
func (s *rotationScheduler) tick(ctx context.Context) {
	s.mu.Lock()
	section := s.sections[s.idx]
	s.idx = (s.idx + 1) % len(s.sections)
	wrapped := s.idx == 0
	s.mu.Unlock()

	// One article per tick; the batch pace belongs to the backfill.
	result, err := s.fetcher.FetchSection(ctx, section, 1)

	s.mu.Lock()
	s.lastSection = section
	s.lastRunAt = time.Now()
	if err == nil {
		s.counts[section] += result.Enriched
	}
	if wrapped {
		s.wraps++
		s.lastWrapID = uuid.NewString()
	}
	wrapID := s.lastWrapID
	counts := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		counts[k] = v
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.ErrorContext(ctx, "rotation tick failed",
			"section", section,
			"error", err)
		return
	}

	if wrapped {
		s.logger.InfoContext(ctx, "rotation cycle completed",
			"wrap_id", wrapID,
			"section_counts", counts)
	}
}

// RunBackfill is the boot-time pass: it walks every section whose threshold
// gate is still closed and fetches until the gate opens or the round budget
// runs out. Runs once; the rotation loop owns steady state.
func (s *rotationScheduler) RunBackfill(ctx context.Context) error {
	s.logger.InfoContext(ctx, "threshold backfill started")

	for round := 1; round <= backfillRounds; round++ {
		pending := 0
		for _, section := range s.sections {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			met, err := s.gate.Met(ctx, section)
			if err != nil {
				s.logger.WarnContext(ctx, "gate check failed during backfill",
					"section", section,
					"error", err)
			}
			if met {
				continue
			}
			pending++

			result, err := s.fetcher.FetchSection(ctx, section, 0)
			if err != nil {
				s.logger.WarnContext(ctx, "backfill fetch failed",
					"section", section,
					"round", round,
					"error", err)
				continue
			}

			s.mu.Lock()
			s.counts[section] += result.Enriched
			s.mu.Unlock()
		}
		if pending == 0 {
			break
		}
	}

	s.logger.InfoContext(ctx, "threshold backfill finished")
	return nil
}

// Stats snapshots the rotation state.
func (s *rotationScheduler) Stats() RotationStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int, len(s.counts))
	for k, v := range s.counts {
		counts[k] = v
	}
	return RotationStats{
		Running:       s.running,
		Period:        s.period.String(),
		CurrentIndex:  s.idx,
		LastSection:   s.lastSection,
		LastRunAt:     s.lastRunAt,
		Wraps:         s.wraps,
		SectionCounts: counts,
		LastWrapID:    s.lastWrapID,
	}
}
