// Package cache holds recently resolved intents keyed by normalized
// utterance text.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/normanking/jarvis/internal/intent"
)

// Defaults.
const (
	DefaultTTL        = 5 * time.Minute
	DefaultMaxEntries = 1000
)

// Entry is a cached intent and its expiry.
type Entry struct {
	Intent    intent.Intent
	ExpiresAt time.Time
}

// Stats counts cache traffic.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Expired   int64 `json:"expired"`
	Evictions int64 `json:"evictions"`
}

// ResultCache is a TTL cache bounded by least-recently-used eviction.
// Expired entries are dropped when read, not by a sweeper.
type ResultCache struct {
	mu    sync.Mutex
	lru   *lru.Cache[string, Entry]
	ttl   time.Duration
	now   func() time.Time
	stats Stats
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithClock injects a time source.
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) {
		c.now = now
	}
}

// New creates a cache holding at most maxEntries intents for ttl each.
func New(ttl time.Duration, maxEntries int, opts ...Option) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}

	c := &ResultCache{ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}

	// lru.New only fails for a non-positive size.
	c.lru, _ = lru.New[string, Entry](maxEntries)
	return c
}

// Get returns the live intent stored under key.
func (c *ResultCache) Get(key string) (intent.Intent, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		return intent.Intent{}, false
	}
	if !c.now().Before(e.ExpiresAt) {
		c.lru.Remove(key)
		c.stats.Expired++
		c.stats.Misses++
		return intent.Intent{}, false
	}
	c.stats.Hits++
	return e.Intent, true
}

// Set stores in under key, replacing any existing entry.
func (c *ResultCache) Set(key string, in intent.Intent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.addLocked(key, Entry{Intent: in, ExpiresAt: c.now().Add(c.ttl)})
}

// SetIfAbsent stores in only when key has no live entry. It reports whether
// the value was stored.
func (c *ResultCache) SetIfAbsent(key string, in intent.Intent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.lru.Peek(key); ok && now.Before(e.ExpiresAt) {
		return false
	}
	c.addLocked(key, Entry{Intent: in, ExpiresAt: now.Add(c.ttl)})
	return true
}

func (c *ResultCache) addLocked(key string, e Entry) {
	if c.lru.Add(key, e) {
		c.stats.Evictions++
	}
}

// Len returns the number of stored entries, including expired ones not yet
// read.
func (c *ResultCache) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *ResultCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
}

// Stats returns a copy of the traffic counters.
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// TTL returns the entry lifetime.
func (c *ResultCache) TTL() time.Duration {
	return c.ttl
}
