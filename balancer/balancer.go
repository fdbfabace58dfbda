// ABOUTME: Key-pool load balancer distributing requests across pooled credentials
// ABOUTME: Tracks per-credential daily usage, quarantines exhausted keys until UTC midnight
package balancer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"news-enricher/domain"
)

// Op is one upstream call executed with a chosen credential. It returns the
// observed usage: token count for the AI provider, 1 for publisher APIs.
type Op func(ctx context.Context, secret string) (used int64, err error)

// Config tunes a key pool.
type Config struct {
	// Name labels the pool in logs and stats ("ai", "chronicle", ...).
	Name string
	// DailyLimit is the per-credential quota in usage units.
	DailyLimit int64
	// ReservedQuantum is the usage a single request is assumed to consume
	// when checking eligibility (600 tokens for AI, 1 for publishers).
	ReservedQuantum int64
	// SafetyBuffer is withheld from every credential's daily limit
	// (1000 units for AI, 0 for publishers).
	SafetyBuffer int64
}

// KeyPool distributes requests across N credentials round-robin, skipping
// dead or quota-exhausted keys. Counters reset at the first operation after
// UTC midnight.
type KeyPool struct {
	cfg       Config
	creds     []*domain.Credential
	nextIndex int
	lastReset time.Time
	logger    *slog.Logger
	now       func() time.Time
	mu        sync.Mutex
}

// CredentialStats is the per-credential slice of a stats snapshot.
type CredentialStats struct {
	ID              int    `json:"id"`
	TokensUsedToday int64  `json:"tokens_used_today"`
	DailyLimit      int64  `json:"daily_limit"`
	IsAvailable     bool   `json:"is_available"`
	IsDead          bool   `json:"is_dead"`
	LastError       string `json:"last_error,omitempty"`
}

// Stats is a point-in-time snapshot of pool usage.
type Stats struct {
	Pool        string            `json:"pool"`
	Credentials []CredentialStats `json:"credentials"`
	TotalUsed   int64             `json:"total_used"`
	TotalLimit  int64             `json:"total_limit"`
	Alive       int               `json:"alive"`
	NextReset   time.Time         `json:"next_reset"`
}

// NewKeyPool builds a pool from raw secrets. Credential ids are ordinal
// starting at 1.
func NewKeyPool(cfg Config, secrets []string, logger *slog.Logger) (*KeyPool, error) {
	if len(secrets) == 0 {
		return nil, fmt.Errorf("key pool %s: no credentials configured", cfg.Name)
	}
	if logger == nil {
		logger = slog.Default()
	}

	now := time.Now()
	creds := make([]*domain.Credential, 0, len(secrets))
	for i, secret := range secrets {
		creds = append(creds, &domain.Credential{
			ID:          i + 1,
			Secret:      secret,
			DailyLimit:  cfg.DailyLimit,
			IsAvailable: true,
			ResetAt:     domain.NextUTCMidnight(now),
		})
	}

	return &KeyPool{
		cfg:       cfg,
		creds:     creds,
		lastReset: now,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Dispatch invokes op with a chosen credential, failing over to the next
// eligible credential on rate-limit and transient errors (up to N-1
// additional tries). Auth errors poison the credential for the process
// lifetime. Returns domain.ErrExhaustedAllCredentials when quota leaves
// nothing able to serve the request today; when every credential failed
// transiently the transient error itself comes back.
func (p *KeyPool) Dispatch(ctx context.Context, op Op) error {
	tried := make(map[int]bool, len(p.creds))
	var lastErr error

	for attempt := 0; attempt < len(p.creds); attempt++ {
		cred := p.acquire(tried)
		if cred == nil {
			break
		}
		tried[cred.ID] = true

		used, err := op(ctx, cred.Secret)
		if err == nil {
			p.recordUsage(cred, used)
			return nil
		}

		lastErr = err
		p.recordFailure(cred, err)

		if errors.Is(err, domain.ErrAuth) || errors.Is(err, domain.ErrRateLimit) ||
			errors.Is(err, domain.ErrUpstreamTransient) {
			continue // fail over to the next eligible credential
		}
		return err // non-failover error: surface as-is
	}

	// Last resort: the least-used live credential, even if the reservation
	// check excluded it.
	if cred := p.leastUsed(tried); cred != nil {
		used, err := op(ctx, cred.Secret)
		if err == nil {
			p.recordUsage(cred, used)
			return nil
		}
		p.recordFailure(cred, err)
		lastErr = err
	}

	if lastErr != nil {
		// A transient upstream failure on every credential is not quota
		// exhaustion: bubble it so callers retry instead of falling back.
		if errors.Is(lastErr, domain.ErrUpstreamTransient) {
			return lastErr
		}
		return fmt.Errorf("%w: %s", domain.ErrExhaustedAllCredentials, lastErr)
	}
	return domain.ErrExhaustedAllCredentials
}

// acquire selects the next eligible credential round-robin. Returns nil when
// no credential passes the reservation check.
func (p *KeyPool) acquire(tried map[int]bool) *domain.Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetIfNewDayLocked()

	n := len(p.creds)
	for i := 0; i < n; i++ {
		cred := p.creds[(p.nextIndex+i)%n]
		if tried[cred.ID] || !p.eligibleLocked(cred) {
			continue
		}
		p.nextIndex = (p.nextIndex + i + 1) % n
		return cred
	}
	return nil
}

func (p *KeyPool) eligibleLocked(c *domain.Credential) bool {
	if c.IsDead || c.AuthFailed || !c.IsAvailable {
		return false
	}
	return c.TokensUsedToday+p.cfg.ReservedQuantum < c.DailyLimit-p.cfg.SafetyBuffer
}

// leastUsed returns the untried live credential with the lowest usage.
func (p *KeyPool) leastUsed(tried map[int]bool) *domain.Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *domain.Credential
	for _, c := range p.creds {
		if tried[c.ID] || c.IsDead || c.AuthFailed {
			continue
		}
		if best == nil || c.TokensUsedToday < best.TokensUsedToday {
			best = c
		}
	}
	return best
}

func (p *KeyPool) recordUsage(c *domain.Credential, used int64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if used <= 0 {
		used = p.cfg.ReservedQuantum
	}
	c.TokensUsedToday += used
	if c.TokensUsedToday > c.DailyLimit {
		p.logger.Warn("credential usage exceeded daily limit, clamping",
			"pool", p.cfg.Name,
			"credential_id", c.ID,
			"used_today", c.TokensUsedToday,
			"daily_limit", c.DailyLimit)
		c.TokensUsedToday = c.DailyLimit
	}
	c.LastError = ""
}

func (p *KeyPool) recordFailure(c *domain.Credential, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c.LastError = err.Error()

	switch {
	case errors.Is(err, domain.ErrRateLimit):
		c.IsDead = true
		c.IsAvailable = false
		c.ResetAt = domain.NextUTCMidnight(p.now())
		p.logger.Warn("credential quarantined until UTC midnight",
			"pool", p.cfg.Name,
			"credential_id", c.ID,
			"reset_at", c.ResetAt)
	case errors.Is(err, domain.ErrAuth):
		c.AuthFailed = true
		c.IsAvailable = false
		p.logger.Error("credential authentication failed, disabled for process lifetime",
			"pool", p.cfg.Name,
			"credential_id", c.ID)
	default:
		// Transient failure: leave the credential selectable on the next
		// dispatch.
		p.logger.Warn("credential call failed",
			"pool", p.cfg.Name,
			"credential_id", c.ID,
			"error", err)
	}
}

// resetIfNewDayLocked clears daily counters and quarantine flags the first
// time the pool is touched after UTC midnight. Auth failures survive the
// reset.
func (p *KeyPool) resetIfNewDayLocked() {
	now := p.now()
	if domain.SameUTCDay(p.lastReset, now) {
		return
	}

	for _, c := range p.creds {
		c.TokensUsedToday = 0
		c.IsDead = false
		c.LastError = ""
		c.ResetAt = domain.NextUTCMidnight(now)
		if !c.AuthFailed {
			c.IsAvailable = true
		}
	}
	p.lastReset = now

	p.logger.Info("daily credential counters reset",
		"pool", p.cfg.Name,
		"credentials", len(p.creds),
		"next_reset", domain.NextUTCMidnight(now))
}

// Stats returns a snapshot of per-credential usage and availability.
func (p *KeyPool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.resetIfNewDayLocked()

	s := Stats{
		Pool:      p.cfg.Name,
		NextReset: domain.NextUTCMidnight(p.now()),
	}
	for _, c := range p.creds {
		s.Credentials = append(s.Credentials, CredentialStats{
			ID:              c.ID,
			TokensUsedToday: c.TokensUsedToday,
			DailyLimit:      c.DailyLimit,
			IsAvailable:     c.IsAvailable,
			IsDead:          c.IsDead,
			LastError:       c.LastError,
		})
		s.TotalUsed += c.TokensUsedToday
		s.TotalLimit += c.DailyLimit
		if !c.IsDead && !c.AuthFailed {
			s.Alive++
		}
	}
	return s
}

// SetClock overrides the pool's time source. Test hook.
func (p *KeyPool) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}
