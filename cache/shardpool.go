// ABOUTME: Cache shard pool presenting one KV+list interface over M Redis shards
// ABOUTME: Consistent-hash routing, per-shard daily quotas, in-process fallback
package cache

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"news-enricher/domain"
)

// ShardConfig describes one remote cache instance.
type ShardConfig struct {
	URL        string
	Token      string
	DailyLimit int64
}

// PoolConfig configures the shard pool.
type PoolConfig struct {
	Shards         []ShardConfig
	Disabled       bool
	HealthInterval time.Duration
	CommandTimeout time.Duration
}

type shard struct {
	id                int
	endpoint          string
	client            *redis.Client
	dailyLimit        int64
	healthy           bool
	dead              bool
	dailyRequests     int64
	errorCount        int64
	latency           time.Duration
	lastHealthCheckAt time.Time
	resetAt           time.Time
}

// ShardStats is the observability snapshot for one shard.
type ShardStats struct {
	ID                int           `json:"id"`
	Endpoint          string        `json:"endpoint"`
	Healthy           bool          `json:"healthy"`
	Dead              bool          `json:"dead"`
	DailyRequests     int64         `json:"daily_requests"`
	DailyLimit        int64         `json:"daily_limit"`
	ErrorCount        int64         `json:"error_count"`
	LatencyMs         int64         `json:"latency_ms"`
	LastHealthCheckAt time.Time     `json:"last_health_check_at"`
	Latency           time.Duration `json:"-"`
}

// ShardPool fans cache commands out over the configured shards. Keyed
// operations hash onto the healthy, under-quota shard set; global operations
// scatter-gather; when no shard can serve, the in-process MemoryCache takes
// over so the pipeline degrades instead of failing.
type ShardPool struct {
	shards   []*shard
	fallback *MemoryCache
	cfg      PoolConfig
	logger   *slog.Logger
	now      func() time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
}

// NewShardPool connects to every configured shard and pings it once to
// record initial health. Construction never fails on unreachable shards.
func NewShardPool(ctx context.Context, cfg PoolConfig, logger *slog.Logger) (*ShardPool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 5 * time.Minute
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}

	p := &ShardPool{
		cfg:      cfg,
		fallback: NewMemoryCache(time.Minute),
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}

	if cfg.Disabled {
		logger.Info("remote cache disabled, using in-process cache only")
		return p, nil
	}

	for i, sc := range cfg.Shards {
		opts, err := redis.ParseURL(sc.URL)
		if err != nil {
			return nil, err
		}
		if sc.Token != "" {
			opts.Password = sc.Token
		}
		opts.DialTimeout = cfg.CommandTimeout
		opts.ReadTimeout = cfg.CommandTimeout
		opts.WriteTimeout = cfg.CommandTimeout

		s := &shard{
			id:         i + 1,
			endpoint:   opts.Addr,
			client:     redis.NewClient(opts),
			dailyLimit: sc.DailyLimit,
			resetAt:    domain.NextUTCMidnight(time.Now()),
		}
		p.checkShard(ctx, s)
		p.shards = append(p.shards, s)
	}

	logger.Info("cache shard pool initialized",
		"shards", len(p.shards),
		"healthy", p.healthyCount())

	go p.healthLoop()

	return p, nil
}

// Close stops the health loop and closes every client.
func (p *ShardPool) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	for _, s := range p.shards {
		_ = s.client.Close()
	}
	p.fallback.Close()
}

func (p *ShardPool) healthLoop() {
	ticker := time.NewTicker(p.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), p.cfg.CommandTimeout)
			for _, s := range p.shards {
				p.checkShard(ctx, s)
			}
			cancel()
		case <-p.stopCh:
			return
		}
	}
}

// checkShard pings one shard, records latency, and revives quota-dead
// shards whose UTC day has rolled over.
func (p *ShardPool) checkShard(ctx context.Context, s *shard) {
	start := time.Now()
	err := s.client.Ping(ctx).Err()

	p.mu.Lock()
	defer p.mu.Unlock()

	s.latency = time.Since(start)
	s.lastHealthCheckAt = time.Now()
	s.healthy = err == nil

	p.reviveIfNewDayLocked(s)

	if err != nil {
		p.logger.Warn("cache shard unhealthy",
			"shard_id", s.id,
			"endpoint", s.endpoint,
			"error", err)
	}
}

func (p *ShardPool) reviveIfNewDayLocked(s *shard) {
	now := p.now()
	if now.Before(s.resetAt) {
		return
	}
	if s.dead || s.dailyRequests > 0 {
		p.logger.Info("cache shard daily quota reset",
			"shard_id", s.id,
			"requests_yesterday", s.dailyRequests)
	}
	s.dead = false
	s.dailyRequests = 0
	s.resetAt = domain.NextUTCMidnight(now)
}

func (p *ShardPool) healthyCount() int {
	n := 0
	for _, s := range p.shards {
		if s.healthy && !s.dead {
			n++
		}
	}
	return n
}

// eligibleLocked returns the shards a keyed command may route to, in stable
// id order.
func (p *ShardPool) eligibleLocked() []*shard {
	var out []*shard
	for _, s := range p.shards {
		p.reviveIfNewDayLocked(s)
		if !s.healthy || s.dead {
			continue
		}
		if s.dailyLimit > 0 && s.dailyRequests >= s.dailyLimit {
			s.dead = true
			p.logger.Warn("cache shard exhausted daily quota",
				"shard_id", s.id,
				"daily_limit", s.dailyLimit)
			continue
		}
		out = append(out, s)
	}
	return out
}

// shardFor routes a key onto the current eligible shard set. A stable key
// always lands on the same shard while the set is stable. Returns nil when
// every shard is out.
func (p *ShardPool) shardFor(key string) *shard {
	p.mu.Lock()
	defer p.mu.Unlock()

	eligible := p.eligibleLocked()
	if len(eligible) == 0 {
		return nil
	}
	s := eligible[xxhash.Sum64String(key)%uint64(len(eligible))]
	s.dailyRequests++
	return s
}

// leastUsed picks the eligible shard with the fewest requests today. Used
// for commands without a routing key.
func (p *ShardPool) leastUsed() *shard {
	p.mu.Lock()
	defer p.mu.Unlock()

	eligible := p.eligibleLocked()
	var best *shard
	for _, s := range eligible {
		if best == nil || s.dailyRequests < best.dailyRequests {
			best = s
		}
	}
	if best != nil {
		best.dailyRequests++
	}
	return best
}

// noteError records a command failure; a provider quota signal kills the
// shard for the rest of the UTC day.
func (p *ShardPool) noteError(s *shard, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s.errorCount++
	if isQuotaError(err) {
		s.dead = true
		p.logger.Warn("cache shard reported quota exhaustion, marking dead",
			"shard_id", s.id,
			"error", err)
	}
}

func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "limit exceeded") || strings.Contains(msg, "max requests")
}

// Get returns the value at key, or domain.ErrCacheMiss.
func (p *ShardPool) Get(ctx context.Context, key string) (string, error) {
	if s := p.shardFor(key); s != nil {
		val, err := s.client.Get(ctx, key).Result()
		if err == nil {
			return val, nil
		}
		if err != redis.Nil {
			p.noteError(s, err)
		}
	}
	// Values written while the shard set was degraded live in the fallback.
	if val, ok := p.fallback.Get(key); ok {
		return val, nil
	}
	return "", domain.ErrCacheMiss
}

// Set stores key without expiry.
func (p *ShardPool) Set(ctx context.Context, key, value string) error {
	if s := p.shardFor(key); s != nil {
		if err := s.client.Set(ctx, key, value, 0).Err(); err == nil {
			return nil
		} else {
			p.noteError(s, err)
		}
	}
	p.fallback.Set(key, value)
	return nil
}

// SetEx stores key with a TTL.
func (p *ShardPool) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if s := p.shardFor(key); s != nil {
		if err := s.client.SetEx(ctx, key, value, ttl).Err(); err == nil {
			return nil
		} else {
			p.noteError(s, err)
		}
	}
	p.fallback.SetEx(key, value, ttl)
	return nil
}

// Del deletes each key on its routed shard and in the fallback.
func (p *ShardPool) Del(ctx context.Context, keys ...string) (int64, error) {
	var deleted int64
	for _, key := range keys {
		if s := p.shardFor(key); s != nil {
			n, err := s.client.Del(ctx, key).Result()
			if err != nil {
				p.noteError(s, err)
			} else {
				deleted += n
			}
		}
		deleted += p.fallback.Del(key)
	}
	return deleted, nil
}

// Exists counts present keys.
func (p *ShardPool) Exists(ctx context.Context, keys ...string) (int64, error) {
	var n int64
	for _, key := range keys {
		if s := p.shardFor(key); s != nil {
			c, err := s.client.Exists(ctx, key).Result()
			if err != nil {
				p.noteError(s, err)
			} else if c > 0 {
				n++
				continue
			}
		}
		if p.fallback.Exists(key) > 0 {
			n++
		}
	}
	return n, nil
}

// TTL returns the remaining lifetime of key.
func (p *ShardPool) TTL(ctx context.Context, key string) (time.Duration, error) {
	if s := p.shardFor(key); s != nil {
		d, err := s.client.TTL(ctx, key).Result()
		if err == nil {
			return d, nil
		}
		p.noteError(s, err)
	}
	return p.fallback.TTL(key), nil
}

// Incr increments the counter at key.
func (p *ShardPool) Incr(ctx context.Context, key string) (int64, error) {
	if s := p.shardFor(key); s != nil {
		n, err := s.client.Incr(ctx, key).Result()
		if err == nil {
			return n, nil
		}
		p.noteError(s, err)
	}
	return p.fallback.Incr(key), nil
}

// Expire attaches a TTL to key.
func (p *ShardPool) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s := p.shardFor(key); s != nil {
		ok, err := s.client.Expire(ctx, key, ttl).Result()
		if err == nil {
			return ok, nil
		}
		p.noteError(s, err)
	}
	return p.fallback.Expire(key, ttl), nil
}

// Keys scatters the pattern to every healthy shard and merges the results
// with the fallback's matches.
func (p *ShardPool) Keys(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]bool)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, s := range p.liveShards() {
		s := s
		g.Go(func() error {
			keys, err := s.client.Keys(gctx, pattern).Result()
			if err != nil {
				p.noteError(s, err)
				return nil // degrade, do not fail the gather
			}
			mu.Lock()
			for _, k := range keys {
				seen[k] = true
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, k := range p.fallback.Keys(pattern) {
		seen[k] = true
	}

	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	return out, nil
}

// liveShards snapshots the currently usable shards, counting one request
// against each (scatter commands touch them all).
func (p *ShardPool) liveShards() []*shard {
	p.mu.Lock()
	defer p.mu.Unlock()
	eligible := p.eligibleLocked()
	for _, s := range eligible {
		s.dailyRequests++
	}
	return eligible
}

// HGet reads a hash field.
func (p *ShardPool) HGet(ctx context.Context, key, field string) (string, error) {
	if s := p.shardFor(key); s != nil {
		val, err := s.client.HGet(ctx, key, field).Result()
		if err == nil {
			return val, nil
		}
		if err != redis.Nil {
			p.noteError(s, err)
		}
	}
	if val, ok := p.fallback.HGet(key, field); ok {
		return val, nil
	}
	return "", domain.ErrCacheMiss
}

// HSet writes a hash field.
func (p *ShardPool) HSet(ctx context.Context, key, field, value string) error {
	if s := p.shardFor(key); s != nil {
		if err := s.client.HSet(ctx, key, field, value).Err(); err == nil {
			return nil
		} else {
			p.noteError(s, err)
		}
	}
	p.fallback.HSet(key, field, value)
	return nil
}

// HGetAll copies a whole hash.
func (p *ShardPool) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if s := p.shardFor(key); s != nil {
		m, err := s.client.HGetAll(ctx, key).Result()
		if err == nil {
			return m, nil
		}
		p.noteError(s, err)
	}
	return p.fallback.HGetAll(key), nil
}

// HDel removes hash fields.
func (p *ShardPool) HDel(ctx context.Context, key string, fields ...string) error {
	if s := p.shardFor(key); s != nil {
		if err := s.client.HDel(ctx, key, fields...).Err(); err != nil {
			p.noteError(s, err)
		}
	}
	p.fallback.HDel(key, fields...)
	return nil
}

// LPush prepends to a list.
func (p *ShardPool) LPush(ctx context.Context, key string, values ...string) (int64, error) {
	args := toAny(values)
	if s := p.shardFor(key); s != nil {
		n, err := s.client.LPush(ctx, key, args...).Result()
		if err == nil {
			return n, nil
		}
		p.noteError(s, err)
	}
	return p.fallback.LPush(key, values...), nil
}

// RPush appends to a list.
func (p *ShardPool) RPush(ctx context.Context, key string, values ...string) (int64, error) {
	args := toAny(values)
	if s := p.shardFor(key); s != nil {
		n, err := s.client.RPush(ctx, key, args...).Result()
		if err == nil {
			return n, nil
		}
		p.noteError(s, err)
	}
	return p.fallback.RPush(key, values...), nil
}

// LRange reads a list slice.
func (p *ShardPool) LRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	if s := p.shardFor(key); s != nil {
		out, err := s.client.LRange(ctx, key, start, stop).Result()
		if err == nil {
			return out, nil
		}
		p.noteError(s, err)
	}
	return p.fallback.LRange(key, start, stop), nil
}

// LLen returns a list's length.
func (p *ShardPool) LLen(ctx context.Context, key string) (int64, error) {
	if s := p.shardFor(key); s != nil {
		n, err := s.client.LLen(ctx, key).Result()
		if err == nil {
			return n, nil
		}
		p.noteError(s, err)
	}
	return p.fallback.LLen(key), nil
}

// LTrim trims a list in place.
func (p *ShardPool) LTrim(ctx context.Context, key string, start, stop int64) error {
	if s := p.shardFor(key); s != nil {
		if err := s.client.LTrim(ctx, key, start, stop).Err(); err == nil {
			return nil
		} else {
			p.noteError(s, err)
		}
	}
	p.fallback.LTrim(key, start, stop)
	return nil
}

// DBSize sums key counts across all healthy shards plus the fallback.
func (p *ShardPool) DBSize(ctx context.Context) (int64, error) {
	var total int64
	for _, s := range p.liveShards() {
		n, err := s.client.DBSize(ctx).Result()
		if err != nil {
			p.noteError(s, err)
			continue
		}
		total += n
	}
	return total + p.fallback.DBSize(), nil
}

// FlushDB clears every healthy shard and the fallback.
func (p *ShardPool) FlushDB(ctx context.Context) error {
	for _, s := range p.liveShards() {
		if err := s.client.FlushDB(ctx).Err(); err != nil {
			p.noteError(s, err)
		}
	}
	p.fallback.FlushDB()
	return nil
}

// Ping exercises the shard with the lowest usage today.
func (p *ShardPool) Ping(ctx context.Context) error {
	if s := p.leastUsed(); s != nil {
		return s.client.Ping(ctx).Err()
	}
	return nil // fallback is always up
}

// Stats returns per-shard health and usage.
func (p *ShardPool) Stats() []ShardStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]ShardStats, 0, len(p.shards))
	for _, s := range p.shards {
		out = append(out, ShardStats{
			ID:                s.id,
			Endpoint:          s.endpoint,
			Healthy:           s.healthy,
			Dead:              s.dead,
			DailyRequests:     s.dailyRequests,
			DailyLimit:        s.dailyLimit,
			ErrorCount:        s.errorCount,
			LatencyMs:         s.latency.Milliseconds(),
			LastHealthCheckAt: s.lastHealthCheckAt,
			Latency:           s.latency,
		})
	}
	return out
}

// SetClock overrides the pool's time source. Test hook.
func (p *ShardPool) SetClock(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = now
}

func toAny(values []string) []interface{} {
	out := make([]interface{}, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
