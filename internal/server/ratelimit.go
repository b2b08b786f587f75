package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	httperr "github.com/tejasgit/nylo/internal/core/errors"
	"github.com/tejasgit/nylo/internal/core/metrics"
	"github.com/tejasgit/nylo/internal/core/partition"
)

// RateLimitConfig sets the per-client token bucket.
type RateLimitConfig struct {
	// RequestsPerSecond is the refill rate. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	// IdleTTL is how long an untouched bucket survives a sweep.
	IdleTTL time.Duration
}

func (c RateLimitConfig) normalized() RateLimitConfig {
	if c.Burst <= 0 {
		c.Burst = int(c.RequestsPerSecond)
		if c.Burst < 1 {
			c.Burst = 1
		}
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 10 * time.Minute
	}
	return c
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type limiterShard struct {
	mu      sync.Mutex
	buckets map[string]*bucket
}

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	cfg    RateLimitConfig
	now    func() time.Time
	shards *partition.Sharded[*limiterShard]
}

// NewRateLimiter creates a limiter. It registers a gauge of tracked clients.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	rl := &RateLimiter{
		cfg: cfg.normalized(),
		now: time.Now,
		shards: partition.NewSharded(func() *limiterShard {
			return &limiterShard{buckets: make(map[string]*bucket)}
		}),
	}
	metrics.RegisterGauge("ratelimit", "clients", "Clients with a live token bucket.", func() float64 {
		return float64(rl.Len())
	})
	return rl
}

// Enabled reports whether requests are limited at all.
func (rl *RateLimiter) Enabled() bool {
	return rl.cfg.RequestsPerSecond > 0
}

// Allow takes one token for key. When the bucket is empty it returns false
// and how long until the next token.
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	if !rl.Enabled() {
		return true, 0
	}

	s := rl.shards.Get(key)
	now := rl.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(rl.cfg.RequestsPerSecond), rl.cfg.Burst)}
		s.buckets[key] = b
	}
	b.lastSeen = now

	r := b.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, delay
	}
	return true, 0
}

// Sweep drops buckets idle for longer than IdleTTL.
func (rl *RateLimiter) Sweep() int {
	cutoff := rl.now().Add(-rl.cfg.IdleTTL)
	removed := 0
	rl.shards.Each(func(_ int, s *limiterShard) bool {
		s.mu.Lock()
		for key, b := range s.buckets {
			if b.lastSeen.Before(cutoff) {
				delete(s.buckets, key)
				removed++
			}
		}
		s.mu.Unlock()
		return true
	})
	if removed > 0 {
		slog.Debug("[RateLimit] Swept idle buckets", "removed", removed)
	}
	return removed
}

// Len returns the number of tracked clients.
func (rl *RateLimiter) Len() int {
	total := 0
	rl.shards.Each(func(_ int, s *limiterShard) bool {
		s.mu.Lock()
		total += len(s.buckets)
		s.mu.Unlock()
		return true
	})
	return total
}

// Middleware rejects requests over the client's rate with 429 and Retry-After.
// Clients are keyed by gin's ClientIP.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, retryAfter := rl.Allow(c.ClientIP())
		if !ok {
			metrics.RateLimited.Inc()
			httperr.Write(c, httperr.RateLimited(retryAfter))
			return
		}
		c.Next()
	}
}
