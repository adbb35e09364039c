// Package metrics provides Prometheus metrics for badgehub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "badgehub"

// Fetch outcomes.
const (
	OutcomeComplete = "complete"
	OutcomeTimeout  = "timeout"
	OutcomeFailed   = "failed"
)

var (
	// FetchesTotal tracks bounded fetches by purpose and outcome
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "total",
			Help:      "Total number of bounded fetches by purpose and outcome",
		},
		[]string{"purpose", "outcome"},
	)

	// FetchAttemptsTotal tracks individual query attempts including retries
	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "attempts_total",
			Help:      "Total number of query attempts including retries",
		},
		[]string{"purpose"},
	)

	// FetchDuration tracks wall time spent in bounded fetches
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "Duration of bounded fetches in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10},
		},
		[]string{"purpose"},
	)

	// FetchRecords tracks records returned per fetch
	FetchRecords = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "records",
			Help:      "Number of records returned per bounded fetch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"purpose"},
	)

	// CacheOperationsTotal tracks definition cache hits, misses and writes
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "operations_total",
			Help:      "Total number of definition cache operations by result",
		},
		[]string{"provider", "result"},
	)

	// PendingAwardsServed tracks awards returned without a resolved definition
	PendingAwardsServed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "awards",
			Name:      "pending_served_total",
			Help:      "Total number of awards served as pending placeholders",
		},
	)

	// DisplayPublishesTotal tracks display list publishes by result
	DisplayPublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "display",
			Name:      "publishes_total",
			Help:      "Total number of display list publishes by result",
		},
		[]string{"result"},
	)

	// DisplayConfirmationsTotal tracks background confirmation results
	DisplayConfirmationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "display",
			Name:      "confirmations_total",
			Help:      "Total number of display list confirmations by result",
		},
		[]string{"result"},
	)

	// DomainEventsTotal tracks domain events delivered to subscribers
	DomainEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "delivered_total",
			Help:      "Total number of domain events by type and delivery result",
		},
		[]string{"type", "result"},
	)

	// LiveClients tracks connected websocket clients
	LiveClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "clients",
			Help:      "Number of connected live update clients",
		},
	)

	// HTTPRequestsTotal tracks inbound API requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "route", "status_code"},
	)

	// HTTPRequestDuration tracks inbound API request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)
)
