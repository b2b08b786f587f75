package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
)

// ErrCircuitOpen is returned while the breaker suppresses sends.
var ErrCircuitOpen = errors.New("delivery: circuit breaker open")

// State is the pipeline's position in its send cycle.
type State int

const (
	StateIdle State = iota
	StateSending
	StateBackoffWait
	StateCircuitOpen
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateBackoffWait:
		return "backoff_wait"
	case StateCircuitOpen:
		return "circuit_open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats is a point-in-time snapshot of the pipeline.
type Stats struct {
	State        State
	Queued       int
	PendingRetry int
	Retries      int
	RetryAt      time.Time
	BreakerUntil time.Time
}

// Pipeline queues events and moves them to a Transport in batches, retrying
// failed batches with exponential backoff and opening a circuit breaker after
// MaxRetries consecutive failures. It is safe for concurrent use; sends are
// serialised.
type Pipeline struct {
	cfg       Config
	transport Transport
	now       func() time.Time

	mu           sync.Mutex
	queue        []v1.Event
	retryQueue   []*v1.Batch
	retries      int
	state        State
	retryAt      time.Time
	breakerUntil time.Time

	sendMu sync.Mutex
	wake   chan struct{}
}

// NewPipeline creates a pipeline. Zero config fields take their defaults.
func NewPipeline(cfg Config, transport Transport) *Pipeline {
	if transport == nil {
		panic("delivery: transport must not be nil")
	}
	return &Pipeline{
		cfg:       cfg.normalized(),
		transport: transport,
		now:       time.Now,
		wake:      make(chan struct{}, 1),
	}
}

// Enqueue appends evt. Once the queue holds three batches' worth of events an
// immediate send is requested from Run.
func (p *Pipeline) Enqueue(evt v1.Event) {
	p.mu.Lock()
	p.queue = append(p.queue, evt)
	if over := len(p.queue) - p.cfg.MaxQueue; over > 0 {
		p.queue = slices.Delete(p.queue, 0, over)
		eventsDropped.WithLabelValues(dropQueueFull).Add(float64(over))
	}
	pressure := len(p.queue) >= 3*p.cfg.BatchSize
	p.mu.Unlock()

	if pressure {
		p.signal()
	}
}

// Flush performs one scheduled send of at most one batch. It is a no-op while
// a backoff wait is pending and returns ErrCircuitOpen while the breaker is
// open and work is waiting.
func (p *Pipeline) Flush(ctx context.Context) error {
	_, err := p.send(ctx, false)
	return err
}

// Drain sends everything queued, ignoring any backoff wait. It stops at the
// first failure and does not bypass an open breaker.
func (p *Pipeline) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		sent, err := p.send(ctx, true)
		if err != nil {
			return err
		}
		if !sent {
			return nil
		}
	}
}

// Run flushes on every FlushInterval tick, on backpressure and when a backoff
// or cooldown elapses. Cancelling ctx triggers a final Drain.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	slog.Info("[Delivery] Pipeline started",
		"endpoint", p.cfg.Endpoint,
		"batch_size", p.cfg.BatchSize,
		"flush_interval", p.cfg.FlushInterval,
	)

	for {
		select {
		case <-ticker.C:
			p.flushLogged(ctx)
		case <-p.wake:
			p.flushLogged(ctx)
			if p.underPressure() {
				p.signal()
			}
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := p.Drain(shutdownCtx); err != nil {
				stats := p.Stats()
				slog.Warn("[Delivery] Final drain incomplete",
					"error", err,
					"queued", stats.Queued,
					"pending_retry", stats.PendingRetry,
				)
				return nil
			}
			slog.Info("[Delivery] Final drain complete")
			return nil
		}
	}
}

// Stats returns a snapshot of the pipeline state.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		State:        p.state,
		Queued:       len(p.queue),
		PendingRetry: len(p.retryQueue),
		Retries:      p.retries,
		RetryAt:      p.retryAt,
		BreakerUntil: p.breakerUntil,
	}
}

func (p *Pipeline) flushLogged(ctx context.Context) {
	if err := p.Flush(ctx); err != nil && !errors.Is(err, ErrCircuitOpen) {
		slog.Debug("[Delivery] Send failed", "error", err)
	}
}

func (p *Pipeline) underPressure() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) >= 3*p.cfg.BatchSize && p.state == StateIdle
}

func (p *Pipeline) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// send transmits one batch. It reports whether a batch left the pipeline.
func (p *Pipeline) send(ctx context.Context, force bool) (bool, error) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	p.mu.Lock()
	now := p.now()

	if p.state == StateCircuitOpen {
		if now.Before(p.breakerUntil) {
			pending := len(p.queue) > 0 || len(p.retryQueue) > 0
			p.mu.Unlock()
			if pending {
				return false, ErrCircuitOpen
			}
			return false, nil
		}
		p.state = StateIdle
		p.retries = 0
		slog.Info("[Delivery] Circuit breaker closed")
	}

	if p.state == StateBackoffWait && !force && now.Before(p.retryAt) {
		p.mu.Unlock()
		return false, nil
	}

	batch, err := p.nextBatch()
	if batch == nil {
		p.mu.Unlock()
		return false, err
	}
	p.state = StateSending
	p.mu.Unlock()

	sendErr := p.transport.Send(ctx, batch)

	p.mu.Lock()
	defer p.mu.Unlock()

	if sendErr == nil {
		p.retries = 0
		p.state = StateIdle
		batchesSent.Inc()
		return true, nil
	}

	batchesFailed.Inc()

	if errors.Is(sendErr, ErrBatchRejected) {
		p.state = StateIdle
		eventsDropped.WithLabelValues(dropRejected).Add(float64(batch.Len()))
		slog.Warn("[Delivery] Batch rejected, dropping",
			"batch_id", batch.BatchID,
			"events", batch.Len(),
			"error", sendErr,
		)
		return true, nil
	}

	p.requeue(batch)
	p.retries++
	now = p.now()

	if p.retries >= p.cfg.MaxRetries {
		p.state = StateCircuitOpen
		p.breakerUntil = now.Add(p.cfg.BreakerCooldown)
		breakerOpened.Inc()
		time.AfterFunc(p.cfg.BreakerCooldown, p.signal)
		slog.Warn("[Delivery] Circuit breaker opened",
			"failures", p.retries,
			"cooldown", p.cfg.BreakerCooldown,
			"error", sendErr,
		)
		return false, sendErr
	}

	delay := p.cfg.Backoff(p.retries)
	p.state = StateBackoffWait
	p.retryAt = now.Add(delay)
	time.AfterFunc(delay, p.signal)
	slog.Debug("[Delivery] Batch send failed, backing off",
		"batch_id", batch.BatchID,
		"attempt", p.retries,
		"delay", delay,
		"error", sendErr,
	)
	return false, sendErr
}

// nextBatch pops the oldest failed batch, or builds one from the queue.
// Caller holds p.mu.
func (p *Pipeline) nextBatch() (*v1.Batch, error) {
	if len(p.retryQueue) > 0 {
		batch := p.retryQueue[0]
		p.retryQueue = slices.Delete(p.retryQueue, 0, 1)
		return batch, nil
	}
	if len(p.queue) == 0 {
		return nil, nil
	}

	n := min(p.cfg.BatchSize, len(p.queue))
	events := slices.Clone(p.queue[:n])
	p.queue = slices.Delete(p.queue, 0, n)

	batch, err := v1.NewBatch(events, p.cfg.Compress)
	if err != nil {
		eventsDropped.WithLabelValues(dropRejected).Add(float64(n))
		return nil, fmt.Errorf("failed to build batch: %w", err)
	}
	return batch, nil
}

// requeue puts batch back at the head of the retry queue. Caller holds p.mu.
func (p *Pipeline) requeue(batch *v1.Batch) {
	p.retryQueue = slices.Insert(p.retryQueue, 0, batch)
	if over := len(p.retryQueue) - p.cfg.MaxRetryQueue; over > 0 {
		for _, dropped := range p.retryQueue[len(p.retryQueue)-over:] {
			eventsDropped.WithLabelValues(dropRetryFull).Add(float64(dropped.Len()))
		}
		p.retryQueue = p.retryQueue[:len(p.retryQueue)-over]
	}
}
