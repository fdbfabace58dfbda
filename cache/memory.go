// ABOUTME: In-process cache used as the last-resort tier when every shard is down
// ABOUTME: Lazy per-key expiry plus a periodic sweeper instead of per-entry timers
package cache

import (
	"path"
	"strconv"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e *memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryCache is a concurrency-safe string/list/hash store with TTL support.
// Expiry is checked lazily on read; a sweeper prunes abandoned entries.
type MemoryCache struct {
	entries map[string]*memoryEntry
	lists   map[string][]string
	hashes  map[string]map[string]string
	mu      sync.RWMutex
	stopCh  chan struct{}
	once    sync.Once
}

// NewMemoryCache builds the cache and starts its sweeper.
func NewMemoryCache(sweepInterval time.Duration) *MemoryCache {
	if sweepInterval <= 0 {
		sweepInterval = time.Minute
	}
	m := &MemoryCache{
		entries: make(map[string]*memoryEntry),
		lists:   make(map[string][]string),
		hashes:  make(map[string]map[string]string),
		stopCh:  make(chan struct{}),
	}
	go m.sweep(sweepInterval)
	return m
}

func (m *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			now := time.Now()
			m.mu.Lock()
			for k, e := range m.entries {
				if e.expired(now) {
					delete(m.entries, k)
				}
			}
			m.mu.Unlock()
		case <-m.stopCh:
			return
		}
	}
}

// Close stops the sweeper.
func (m *MemoryCache) Close() {
	m.once.Do(func() { close(m.stopCh) })
}

// Get returns the value for key, or ok=false on miss or expiry.
func (m *MemoryCache) Get(key string) (string, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	if e.expired(time.Now()) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return "", false
	}
	return e.value, true
}

// Set stores key without expiry.
func (m *MemoryCache) Set(key, value string) {
	m.SetEx(key, value, 0)
}

// SetEx stores key with a TTL. ttl <= 0 means no expiry.
func (m *MemoryCache) SetEx(key, value string, ttl time.Duration) {
	var exp time.Time
	if ttl > 0 {
		exp = time.Now().Add(ttl)
	}
	m.mu.Lock()
	m.entries[key] = &memoryEntry{value: value, expiresAt: exp}
	m.mu.Unlock()
}

// Del removes keys from every namespace and returns the number deleted.
func (m *MemoryCache) Del(keys ...string) int64 {
	var deleted int64
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		if _, ok := m.entries[k]; ok {
			delete(m.entries, k)
			deleted++
			continue
		}
		if _, ok := m.lists[k]; ok {
			delete(m.lists, k)
			deleted++
			continue
		}
		if _, ok := m.hashes[k]; ok {
			delete(m.hashes, k)
			deleted++
		}
	}
	return deleted
}

// Exists counts how many of the keys are present.
func (m *MemoryCache) Exists(keys ...string) int64 {
	var n int64
	now := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, k := range keys {
		if e, ok := m.entries[k]; ok && !e.expired(now) {
			n++
			continue
		}
		if _, ok := m.lists[k]; ok {
			n++
			continue
		}
		if _, ok := m.hashes[k]; ok {
			n++
		}
	}
	return n
}

// TTL returns the remaining lifetime: -2 on missing key, -1 on no expiry.
func (m *MemoryCache) TTL(key string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	if !ok || e.expired(time.Now()) {
		return -2
	}
	if e.expiresAt.IsZero() {
		return -1
	}
	return time.Until(e.expiresAt)
}

// Incr increments the integer stored at key, creating it at 1.
func (m *MemoryCache) Incr(key string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	if e, ok := m.entries[key]; ok && !e.expired(time.Now()) {
		n, _ = strconv.ParseInt(e.value, 10, 64)
	}
	n++
	m.entries[key] = &memoryEntry{value: strconv.FormatInt(n, 10)}
	return n
}

// Expire attaches a TTL to an existing key.
func (m *MemoryCache) Expire(key string, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.expired(time.Now()) {
		return false
	}
	e.expiresAt = time.Now().Add(ttl)
	return true
}

// Keys returns all live keys matching a glob pattern.
func (m *MemoryCache) Keys(pattern string) []string {
	now := time.Now()
	var out []string
	m.mu.RLock()
	defer m.mu.RUnlock()
	for k, e := range m.entries {
		if e.expired(now) {
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	for k := range m.lists {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	for k := range m.hashes {
		if ok, _ := path.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	return out
}

// HGet reads one hash field.
func (m *MemoryCache) HGet(key, field string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.hashes[key]
	if !ok {
		return "", false
	}
	v, ok := h[field]
	return v, ok
}

// HSet writes one hash field.
func (m *MemoryCache) HSet(key, field, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hashes[key] == nil {
		m.hashes[key] = make(map[string]string)
	}
	m.hashes[key][field] = value
}

// HGetAll copies a whole hash.
func (m *MemoryCache) HGetAll(key string) map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.hashes[key]))
	for f, v := range m.hashes[key] {
		out[f] = v
	}
	return out
}

// HDel removes hash fields.
func (m *MemoryCache) HDel(key string, fields ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[key]
	if !ok {
		return
	}
	for _, f := range fields {
		delete(h, f)
	}
	if len(h) == 0 {
		delete(m.hashes, key)
	}
}

// LPush prepends values and returns the new length.
func (m *MemoryCache) LPush(key string, values ...string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[key]
	for _, v := range values {
		list = append([]string{v}, list...)
	}
	m.lists[key] = list
	return int64(len(list))
}

// RPush appends values and returns the new length.
func (m *MemoryCache) RPush(key string, values ...string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[key] = append(m.lists[key], values...)
	return int64(len(m.lists[key]))
}

// LRange returns list entries between start and stop inclusive; negative
// indexes count from the tail.
func (m *MemoryCache) LRange(key string, start, stop int64) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.lists[key]
	n := int64(len(list))
	start, stop = normalizeRange(start, stop, n)
	if start > stop || n == 0 {
		return nil
	}
	out := make([]string, stop-start+1)
	copy(out, list[start:stop+1])
	return out
}

// LLen returns the list length.
func (m *MemoryCache) LLen(key string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.lists[key]))
}

// LTrim keeps only entries between start and stop inclusive.
func (m *MemoryCache) LTrim(key string, start, stop int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.lists[key]
	n := int64(len(list))
	start, stop = normalizeRange(start, stop, n)
	if start > stop || n == 0 {
		delete(m.lists, key)
		return
	}
	trimmed := make([]string, stop-start+1)
	copy(trimmed, list[start:stop+1])
	m.lists[key] = trimmed
}

// DBSize counts live keys across all namespaces.
func (m *MemoryCache) DBSize() int64 {
	now := time.Now()
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, e := range m.entries {
		if !e.expired(now) {
			n++
		}
	}
	return n + int64(len(m.lists)) + int64(len(m.hashes))
}

// FlushDB drops everything.
func (m *MemoryCache) FlushDB() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*memoryEntry)
	m.lists = make(map[string][]string)
	m.hashes = make(map[string]map[string]string)
}

func normalizeRange(start, stop, n int64) (int64, int64) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	return start, stop
}
