package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
	"github.com/tejasgit/nylo/internal/core/metrics"
	"github.com/tejasgit/nylo/internal/core/partition"
)

// DefaultWindow is how long an admitted key suppresses redelivery.
const DefaultWindow = 60 * time.Second

// Key derives the idempotency key for one event: sha256 over
// sessionId|eventType|timestamp, where timestamp is the text the client sent.
func Key(sessionID, eventType, timestampRaw string) string {
	sum := sha256.Sum256([]byte(sessionID + "|" + eventType + "|" + timestampRaw))
	return hex.EncodeToString(sum[:])
}

// KeyFor derives the key for a decoded event.
func KeyFor(event *v1.Event) string {
	return Key(event.SessionID, event.EventType, event.Timestamp.String())
}

type shard struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

// Cache is a sharded, time-windowed set of recently admitted event keys.
// It is process-local and the only authority on the window: once a key
// expires the same event is accepted as new.
type Cache struct {
	window time.Duration
	now    func() time.Time
	shards *partition.Sharded[*shard]
}

// Option customises a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache with the given window. A non-positive window uses DefaultWindow.
func New(window time.Duration, opts ...Option) *Cache {
	if window <= 0 {
		window = DefaultWindow
	}
	c := &Cache{
		window: window,
		now:    time.Now,
		shards: partition.NewSharded(func() *shard {
			return &shard{entries: make(map[string]time.Time)}
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Window returns the configured suppression window.
func (c *Cache) Window() time.Duration {
	return c.window
}

// Admit records key and reports whether it was new. An unexpired key is
// rejected; an expired or absent key is (re)written with a fresh expiry.
// Check and write happen under one shard lock.
func (c *Cache) Admit(key string) bool {
	s := c.shards.Get(key)
	now := c.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if expireAt, ok := s.entries[key]; ok && now.Before(expireAt) {
		metrics.DedupHits.Inc()
		return false
	}
	s.entries[key] = now.Add(c.window)
	return true
}

// Seen reports whether key is currently inside its window without admitting it.
func (c *Cache) Seen(key string) bool {
	s := c.shards.Get(key)
	now := c.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	expireAt, ok := s.entries[key]
	return ok && now.Before(expireAt)
}

// Forget releases keys so a later retry is admitted, e.g. when persisting
// the events they guarded failed.
func (c *Cache) Forget(keys ...string) {
	for _, key := range keys {
		s := c.shards.Get(key)
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
	}
}

// Sweep drops expired keys and returns how many were removed.
func (c *Cache) Sweep() int {
	now := c.now()
	removed := 0
	c.shards.Each(func(_ int, s *shard) bool {
		s.mu.Lock()
		for key, expireAt := range s.entries {
			if !now.Before(expireAt) {
				delete(s.entries, key)
				removed++
			}
		}
		s.mu.Unlock()
		return true
	})
	if removed > 0 {
		slog.Debug("[Dedup] Swept expired keys", "removed", removed)
	}
	return removed
}

// Len returns the number of tracked keys, expired or not.
func (c *Cache) Len() int {
	total := 0
	c.shards.Each(func(_ int, s *shard) bool {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
		return true
	})
	return total
}
