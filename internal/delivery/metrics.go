package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nylo",
		Subsystem: "delivery",
		Name:      "batches_sent_total",
		Help:      "Batches acknowledged by the tracking server.",
	})

	batchesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nylo",
		Subsystem: "delivery",
		Name:      "batches_failed_total",
		Help:      "Batch send attempts that failed.",
	})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "nylo",
		Subsystem: "delivery",
		Name:      "events_dropped_total",
		Help:      "Events discarded before acknowledgement, by reason.",
	}, []string{"reason"})

	breakerOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "nylo",
		Subsystem: "delivery",
		Name:      "breaker_opened_total",
		Help:      "Times the circuit breaker opened after consecutive failures.",
	})
)

const (
	dropQueueFull = "queue_full"
	dropRetryFull = "retry_queue_full"
	dropRejected  = "rejected"
)
