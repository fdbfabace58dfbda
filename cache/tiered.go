// ABOUTME: Tiered cache facade over the shard pool with TTL classes and
// ABOUTME: singleflight miss coalescing, section FIFO lists, glob invalidation
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"news-enricher/domain"
)

// TTL classes. Every cached value uses one of these.
const (
	// TTLCommentary covers generated commentary, keyed commentary:{id}.
	TTLCommentary = 24 * time.Hour
	// TTLArticle covers article snapshots written on the read path.
	TTLArticle = 5 * time.Minute
	// TTLArticleWorker covers article snapshots written by the worker.
	TTLArticleWorker = 30 * time.Minute
	// TTLUpstream covers raw publisher API responses.
	TTLUpstream = 30 * time.Minute
	// TTLShort covers hot, frequently recomputed values.
	TTLShort = time.Minute
	// TTLLong covers section FIFO lists and other slow-moving structures.
	TTLLong = 7 * 24 * time.Hour
)

const (
	articleKeyPrefix = "article:"
	homepageKey      = "homepage:top20"
	homepageMax      = 20
)

func sectionListKey(section string) string {
	return "section:" + section + ":articles"
}

// TieredCache is the single cache surface the services talk to. It layers
// singleflight coalescing and the domain key conventions on top of the
// shard pool; the pool itself already degrades to the in-process tier.
type TieredCache struct {
	pool   *ShardPool
	sf     singleflight.Group
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// TieredStats is the facade's observability snapshot.
type TieredStats struct {
	Hits   int64        `json:"hits"`
	Misses int64        `json:"misses"`
	Shards []ShardStats `json:"shards"`
}

// NewTieredCache wraps a shard pool.
func NewTieredCache(pool *ShardPool, logger *slog.Logger) *TieredCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &TieredCache{pool: pool, logger: logger}
}

// Get returns the raw value at key or domain.ErrCacheMiss.
func (t *TieredCache) Get(ctx context.Context, key string) (string, error) {
	val, err := t.pool.Get(ctx, key)
	if err != nil {
		t.misses.Add(1)
		return "", err
	}
	t.hits.Add(1)
	return val, nil
}

// Set stores a raw value under one of the TTL classes.
func (t *TieredCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl > 0 {
		return t.pool.SetEx(ctx, key, value, ttl)
	}
	return t.pool.Set(ctx, key, value)
}

// Del removes keys.
func (t *TieredCache) Del(ctx context.Context, keys ...string) (int64, error) {
	return t.pool.Del(ctx, keys...)
}

// GetJSON unmarshals the cached value at key into v.
func (t *TieredCache) GetJSON(ctx context.Context, key string, v any) error {
	raw, err := t.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode cached value %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals v and stores it under key.
func (t *TieredCache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode value for %s: %w", key, err)
	}
	return t.Set(ctx, key, string(raw), ttl)
}

// GetOrSet returns the cached value at key, invoking loader on a miss and
// caching its result. Concurrent misses on the same key are coalesced into
// a single loader call; the other callers share its result.
func (t *TieredCache) GetOrSet(ctx context.Context, key string, ttl time.Duration, loader func(ctx context.Context) (string, error)) (string, error) {
	if val, err := t.Get(ctx, key); err == nil {
		return val, nil
	}

	val, err, _ := t.sf.Do(key, func() (any, error) {
		// A coalesced caller may have populated the key already.
		if cached, err := t.pool.Get(ctx, key); err == nil {
			return cached, nil
		}
		loaded, err := loader(ctx)
		if err != nil {
			return "", err
		}
		if err := t.Set(ctx, key, loaded, ttl); err != nil {
			t.logger.WarnContext(ctx, "failed to cache loaded value",
				"key", key,
				"error", err)
		}
		return loaded, nil
	})
	if err != nil {
		return "", err
	}
	return val.(string), nil
}

// Invalidate deletes every key matching the glob pattern and returns the
// number removed.
func (t *TieredCache) Invalidate(ctx context.Context, pattern string) (int64, error) {
	keys, err := t.pool.Keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := t.pool.Del(ctx, keys...)
	if err != nil {
		return deleted, err
	}
	t.logger.InfoContext(ctx, "cache invalidated",
		"pattern", pattern,
		"deleted", deleted)
	return deleted, nil
}

// PushToList appends values to a capped list, trimming from the head when
// the list exceeds maxLen. The list carries the long TTL class.
func (t *TieredCache) PushToList(ctx context.Context, key string, maxLen int64, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	n, err := t.pool.RPush(ctx, key, values...)
	if err != nil {
		return err
	}
	if maxLen > 0 && n > maxLen {
		if err := t.pool.LTrim(ctx, key, -maxLen, -1); err != nil {
			return err
		}
	}
	_, err = t.pool.Expire(ctx, key, TTLLong)
	return err
}

// PublishArticle writes an enriched snapshot under article:{id} and admits
// the id into its section FIFO. Temporary ids are cached but never listed.
func (t *TieredCache) PublishArticle(ctx context.Context, snap *domain.CachedArticle, snapshotTTL time.Duration, maxPerSection int64) error {
	if err := t.SetJSON(ctx, articleKeyPrefix+snap.ID, snap, snapshotTTL); err != nil {
		return err
	}
	if domain.IsTempID(snap.ID) {
		return nil
	}
	if err := t.ManageSectionFIFO(ctx, snap.Section, snap.ID, maxPerSection); err != nil {
		return err
	}
	t.updateHomepage(ctx, snap.ID)
	return nil
}

// ManageSectionFIFO appends articleID to the section's publication list,
// oldest first. When the list exceeds maxLen, the overflow ids fall off the
// head and their article:{id} companions are deleted so the cache never
// references evicted entries. Re-publishing an id moves it to the tail.
func (t *TieredCache) ManageSectionFIFO(ctx context.Context, section, articleID string, maxLen int64) error {
	key := sectionListKey(section)

	current, err := t.pool.LRange(ctx, key, 0, -1)
	if err != nil {
		return err
	}
	kept := make([]string, 0, len(current)+1)
	for _, id := range current {
		if id != articleID {
			kept = append(kept, id)
		}
	}
	kept = append(kept, articleID)

	var evicted []string
	if maxLen > 0 && int64(len(kept)) > maxLen {
		cut := int64(len(kept)) - maxLen
		evicted = kept[:cut]
		kept = kept[cut:]
	}

	// Rewrite the list atomically enough for a single-writer pipeline: the
	// scheduler and workers serialize per section.
	if _, err := t.pool.Del(ctx, key); err != nil {
		return err
	}
	if _, err := t.pool.RPush(ctx, key, kept...); err != nil {
		return err
	}
	if _, err := t.pool.Expire(ctx, key, TTLLong); err != nil {
		return err
	}

	for _, id := range evicted {
		if _, err := t.pool.Del(ctx, articleKeyPrefix+id); err != nil {
			t.logger.WarnContext(ctx, "failed to delete evicted article snapshot",
				"article_id", id,
				"error", err)
		}
	}
	return nil
}

// SectionArticles returns the cached snapshots for a section, newest first.
// Ids whose snapshots have expired are skipped.
func (t *TieredCache) SectionArticles(ctx context.Context, section string, limit int) ([]*domain.CachedArticle, error) {
	ids, err := t.pool.LRange(ctx, sectionListKey(section), 0, -1)
	if err != nil {
		return nil, err
	}

	out := make([]*domain.CachedArticle, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		var snap domain.CachedArticle
		if err := t.GetJSON(ctx, articleKeyPrefix+ids[i], &snap); err != nil {
			continue // expired snapshot, id ages out of the list on its own
		}
		out = append(out, &snap)
	}
	return out, nil
}

// SectionLen returns the number of ids in a section's FIFO list.
func (t *TieredCache) SectionLen(ctx context.Context, section string) (int64, error) {
	return t.pool.LLen(ctx, sectionListKey(section))
}

// InvalidateSectionDerived deletes the derived section:{section}:* cache
// entries while preserving the section's FIFO list, returning the number
// removed.
func (t *TieredCache) InvalidateSectionDerived(ctx context.Context, section string) (int64, error) {
	keys, err := t.pool.Keys(ctx, "section:"+section+":*")
	if err != nil {
		return 0, err
	}
	listKey := sectionListKey(section)
	targets := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != listKey {
			targets = append(targets, k)
		}
	}
	if len(targets) == 0 {
		return 0, nil
	}
	deleted, err := t.pool.Del(ctx, targets...)
	if err != nil {
		return deleted, err
	}
	t.logger.InfoContext(ctx, "derived section caches invalidated",
		"section", section,
		"deleted", deleted)
	return deleted, nil
}

// InvalidateSection drops a section's FIFO list and every companion
// snapshot it references.
func (t *TieredCache) InvalidateSection(ctx context.Context, section string) error {
	key := sectionListKey(section)
	ids, err := t.pool.LRange(ctx, key, 0, -1)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, articleKeyPrefix+id)
	}
	keys = append(keys, key)
	_, err = t.pool.Del(ctx, keys...)
	return err
}

// Homepage returns the hot-list snapshots, newest first. Best effort: a
// missing list or expired snapshots degrade to fewer results.
func (t *TieredCache) Homepage(ctx context.Context) ([]*domain.CachedArticle, error) {
	ids, err := t.pool.LRange(ctx, homepageKey, 0, homepageMax-1)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.CachedArticle, 0, len(ids))
	for _, id := range ids {
		var snap domain.CachedArticle
		if err := t.GetJSON(ctx, articleKeyPrefix+id, &snap); err != nil {
			continue
		}
		out = append(out, &snap)
	}
	return out, nil
}

func (t *TieredCache) updateHomepage(ctx context.Context, articleID string) {
	if _, err := t.pool.LPush(ctx, homepageKey, articleID); err != nil {
		t.logger.WarnContext(ctx, "homepage list push failed", "error", err)
		return
	}
	if err := t.pool.LTrim(ctx, homepageKey, 0, homepageMax-1); err != nil {
		t.logger.WarnContext(ctx, "homepage list trim failed", "error", err)
	}
	_, _ = t.pool.Expire(ctx, homepageKey, TTLLong)
}

// HSet, HGet, HGetAll, HDel expose hash storage for queue persistence.
func (t *TieredCache) HSet(ctx context.Context, key, field, value string) error {
	return t.pool.HSet(ctx, key, field, value)
}

func (t *TieredCache) HGet(ctx context.Context, key, field string) (string, error) {
	return t.pool.HGet(ctx, key, field)
}

func (t *TieredCache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return t.pool.HGetAll(ctx, key)
}

func (t *TieredCache) HDel(ctx context.Context, key string, fields ...string) error {
	return t.pool.HDel(ctx, key, fields...)
}

// Ping proxies a liveness probe to the pool.
func (t *TieredCache) Ping(ctx context.Context) error {
	return t.pool.Ping(ctx)
}

// Stats snapshots hit/miss counters plus per-shard state.
func (t *TieredCache) Stats() TieredStats {
	return TieredStats{
		Hits:   t.hits.Load(),
		Misses: t.misses.Load(),
		Shards: t.pool.Stats(),
	}
}
