package maintenance

import (
	"context"
	"log/slog"
	"time"
)

// DefaultInterval is used when a scheduler is built with a non-positive interval.
const DefaultInterval = time.Minute

// Sweeper evicts expired entries and reports how many it removed.
// dedup.Cache, server.RateLimiter and crossdomain.FingerprintIndex satisfy it.
type Sweeper interface {
	Sweep() int
}

// SweeperFunc adapts a function to Sweeper.
type SweeperFunc func() int

func (f SweeperFunc) Sweep() int { return f() }

// Job is one named sweep run on every tick.
type Job struct {
	Name    string
	Sweeper Sweeper
}

// Scheduler runs sweep jobs on a periodic interval. It holds no state of its
// own: each tick asks every job to evict what has expired since the last one.
type Scheduler struct {
	interval time.Duration
	jobs     []Job
}

// NewScheduler creates a scheduler for jobs. Jobs with a nil Sweeper are skipped.
func NewScheduler(interval time.Duration, jobs ...Job) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	kept := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if job.Sweeper == nil {
			slog.Warn("[Scheduler] Skipping job without sweeper", "job", job.Name)
			continue
		}
		kept = append(kept, job)
	}
	return &Scheduler{interval: interval, jobs: kept}
}

// Start sweeps every interval until ctx is cancelled, then runs a final pass.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting maintenance scheduler",
		"interval", s.interval,
		"jobs", len(s.jobs),
	)

	for {
		select {
		case <-ticker.C:
			s.RunOnce()
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled)")
			s.RunOnce()
			slog.Info("[Scheduler] Final sweep complete")
			return nil
		}
	}
}

// RunOnce runs every job once and returns the total number of evicted entries.
func (s *Scheduler) RunOnce() int {
	total := 0
	for _, job := range s.jobs {
		started := time.Now()
		removed := job.Sweeper.Sweep()
		total += removed
		if removed > 0 {
			slog.Debug("[Scheduler] Sweep finished",
				"job", job.Name,
				"removed", removed,
				"duration", time.Since(started),
			)
		}
	}
	return total
}
