package metrics

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "nylo"

var (
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_duration_seconds",
		Help:      "Duration of HTTP requests.",
	}, []string{"path", "method", "status"})

	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tracking",
		Name:      "events_received_total",
		Help:      "Events received on ingestion endpoints, by outcome.",
	}, []string{"outcome"})

	DedupHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "dedup",
		Name:      "hits_total",
		Help:      "Events suppressed as duplicates within the dedup window.",
	})

	VerificationChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "verification",
		Name:      "checks_total",
		Help:      "Domain verification attempts, by resulting status and method.",
	}, []string{"status", "method"})

	CrossDomainCorrelations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "crossdomain",
		Name:      "correlations_total",
		Help:      "Cross-domain correlation attempts, by method and result.",
	}, []string{"method", "result"})

	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Requests rejected by the per-client rate limiter.",
	})
)

// Event outcomes for EventsReceived.
const (
	OutcomeStored    = "stored"
	OutcomeDuplicate = "duplicate"
	OutcomeInvalid   = "invalid"
	OutcomeFailed    = "failed"
)

// RegisterGauge exposes fn as a gauge. Gauges backed by per-instance state are
// registered at construction time; a second registration under the same name
// (tests, restarts of a component) keeps the first collector.
func RegisterGauge(subsystem, name, help string, fn func() float64) {
	registerCollector(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn))
}

func registerCollector(collector prometheus.Collector) {
	err := prometheus.Register(collector)
	if err == nil {
		return
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		return
	}
	slog.Warn("[Metrics] Failed to register collector", "error", err)
}
