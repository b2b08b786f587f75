package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	v1 "github.com/tejasgit/nylo/internal/api/v1"
)

type scriptedTransport struct {
	mu      sync.Mutex
	errs    []error
	batches []*v1.Batch
}

func (s *scriptedTransport) Send(ctx context.Context, batch *v1.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return err
	}
	return nil
}

func (s *scriptedTransport) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func (s *scriptedTransport) delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += b.Len()
	}
	return n
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestPipeline(t *testing.T, cfg Config, transport Transport) (*Pipeline, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	p := NewPipeline(cfg, transport)
	p.now = clock.now
	return p, clock
}

func testEvent(i int) v1.Event {
	return v1.Event{
		EventType: "page_view",
		SessionID: "sess_1",
		WaiTag:    "wai_x",
		Domain:    "shop.example.com",
		Timestamp: v1.NewTimestamp(time.UnixMilli(1700000000000 + int64(i))),
	}
}

var errUnavailable = errors.New("503 service unavailable")

func TestPipeline_FlushSendsOneBatch(t *testing.T) {
	transport := &scriptedTransport{}
	p, _ := newTestPipeline(t, Config{BatchSize: 10}, transport)

	for i := 0; i < 15; i++ {
		p.Enqueue(testEvent(i))
	}

	require.NoError(t, p.Flush(context.Background()))
	require.Equal(t, 1, transport.calls())
	require.Equal(t, 10, transport.batches[0].Len())
	require.Equal(t, 5, p.Stats().Queued)

	require.NoError(t, p.Flush(context.Background()))
	require.Equal(t, 15, transport.delivered())

	// Nothing queued: no request is made.
	require.NoError(t, p.Flush(context.Background()))
	require.Equal(t, 2, transport.calls())
}

func TestPipeline_BackoffThenCircuitBreaker(t *testing.T) {
	transport := &scriptedTransport{errs: []error{errUnavailable, errUnavailable, errUnavailable}}
	cfg := Config{BatchSize: 10, MaxRetries: 3, RetryBaseDelay: time.Second, BreakerCooldown: time.Minute}
	p, clock := newTestPipeline(t, cfg, transport)
	ctx := context.Background()

	p.Enqueue(testEvent(1))

	var delays []time.Duration
	for attempt := 1; attempt < cfg.MaxRetries; attempt++ {
		sentAt := clock.now()
		require.ErrorIs(t, p.Flush(ctx), errUnavailable)

		stats := p.Stats()
		require.Equal(t, StateBackoffWait, stats.State)
		require.Equal(t, attempt, stats.Retries)
		require.Equal(t, 1, stats.PendingRetry)
		delays = append(delays, stats.RetryAt.Sub(sentAt))

		// Scheduled sends wait out the backoff.
		calls := transport.calls()
		require.NoError(t, p.Flush(ctx))
		require.Equal(t, calls, transport.calls())

		clock.advance(stats.RetryAt.Sub(sentAt))
	}
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)

	require.ErrorIs(t, p.Flush(ctx), errUnavailable)
	stats := p.Stats()
	require.Equal(t, StateCircuitOpen, stats.State)
	require.Equal(t, clock.now().Add(time.Minute), stats.BreakerUntil)

	// No attempts at all while open, even when forced.
	calls := transport.calls()
	require.ErrorIs(t, p.Flush(ctx), ErrCircuitOpen)
	require.ErrorIs(t, p.Drain(ctx), ErrCircuitOpen)
	clock.advance(59 * time.Second)
	require.ErrorIs(t, p.Flush(ctx), ErrCircuitOpen)
	require.Equal(t, calls, transport.calls())

	clock.advance(time.Second)
	require.NoError(t, p.Flush(ctx))
	stats = p.Stats()
	require.Equal(t, StateIdle, stats.State)
	require.Equal(t, 0, stats.Retries)
	require.Equal(t, 0, stats.PendingRetry)

	// The retried batch is the original one.
	last := transport.batches[len(transport.batches)-1]
	require.Equal(t, transport.batches[0].BatchID, last.BatchID)
}

func TestPipeline_SuccessResetsRetryCounter(t *testing.T) {
	transport := &scriptedTransport{errs: []error{errUnavailable}}
	p, clock := newTestPipeline(t, Config{BatchSize: 10, MaxRetries: 3}, transport)
	ctx := context.Background()

	p.Enqueue(testEvent(1))
	require.Error(t, p.Flush(ctx))
	require.Equal(t, 1, p.Stats().Retries)

	clock.advance(time.Second)
	require.NoError(t, p.Flush(ctx))
	require.Equal(t, 0, p.Stats().Retries)
	require.Equal(t, StateIdle, p.Stats().State)
}

func TestPipeline_DrainIgnoresBackoff(t *testing.T) {
	transport := &scriptedTransport{errs: []error{errUnavailable}}
	p, _ := newTestPipeline(t, Config{BatchSize: 2}, transport)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		p.Enqueue(testEvent(i))
	}
	require.Error(t, p.Flush(ctx))
	require.Equal(t, StateBackoffWait, p.Stats().State)

	require.NoError(t, p.Drain(ctx))
	// The failed batch of two is counted on both attempts.
	require.Equal(t, 7, transport.delivered())

	stats := p.Stats()
	require.Zero(t, stats.Queued)
	require.Zero(t, stats.PendingRetry)
}

func TestPipeline_DrainStopsAtFirstFailure(t *testing.T) {
	transport := &scriptedTransport{errs: []error{nil, errUnavailable}}
	p, _ := newTestPipeline(t, Config{BatchSize: 1}, transport)

	for i := 0; i < 3; i++ {
		p.Enqueue(testEvent(i))
	}
	require.ErrorIs(t, p.Drain(context.Background()), errUnavailable)
	require.Equal(t, 2, transport.calls())

	stats := p.Stats()
	require.Equal(t, 1, stats.Queued)
	require.Equal(t, 1, stats.PendingRetry)
}

func TestPipeline_RejectedBatchIsDropped(t *testing.T) {
	rejected := fmt.Errorf("%w: status 400", ErrBatchRejected)
	transport := &scriptedTransport{errs: []error{rejected}}
	p, _ := newTestPipeline(t, Config{BatchSize: 10}, transport)

	p.Enqueue(testEvent(1))
	require.NoError(t, p.Flush(context.Background()))

	stats := p.Stats()
	require.Equal(t, StateIdle, stats.State)
	require.Zero(t, stats.Retries)
	require.Zero(t, stats.PendingRetry)
}

func TestPipeline_EnqueueBackpressure(t *testing.T) {
	p, _ := newTestPipeline(t, Config{BatchSize: 2}, &scriptedTransport{})

	for i := 0; i < 5; i++ {
		p.Enqueue(testEvent(i))
	}
	require.Len(t, p.wake, 0)

	p.Enqueue(testEvent(6))
	require.Len(t, p.wake, 1)
}

func TestPipeline_QueueIsBounded(t *testing.T) {
	p, _ := newTestPipeline(t, Config{BatchSize: 1, MaxQueue: 4}, &scriptedTransport{})

	for i := 0; i < 10; i++ {
		p.Enqueue(testEvent(i))
	}
	require.Equal(t, 4, p.Stats().Queued)

	p.mu.Lock()
	oldest := p.queue[0]
	p.mu.Unlock()
	require.Equal(t, testEvent(6).Timestamp, oldest.Timestamp)
}

func TestPipeline_RunSendsOnBackpressureAndDrainsOnCancel(t *testing.T) {
	transport := &scriptedTransport{}
	p := NewPipeline(Config{BatchSize: 2, FlushInterval: time.Hour}, transport)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	for i := 0; i < 6; i++ {
		p.Enqueue(testEvent(i))
	}
	require.Eventually(t, func() bool { return transport.delivered() >= 2 }, 2*time.Second, 10*time.Millisecond)

	p.Enqueue(testEvent(7))
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	require.Equal(t, 7, transport.delivered())
	require.Zero(t, p.Stats().Queued)
}

func TestNewPipeline_PanicsWithoutTransport(t *testing.T) {
	require.Panics(t, func() { NewPipeline(DefaultConfig(), nil) })
}

func TestState_String(t *testing.T) {
	require.Equal(t, "idle", StateIdle.String())
	require.Equal(t, "circuit_open", StateCircuitOpen.String())
	require.Equal(t, "state(9)", State(9).String())
}
