// Package metrics exposes Prometheus instrumentation for the processing pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Classification outcomes.
const (
	OutcomeTransaction = "transaction"
	OutcomeRejected    = "rejected"
)

var (
	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smsexpensor",
			Name:      "messages_received_total",
			Help:      "Total number of messages received from readers.",
		},
		[]string{"source"},
	)

	MessagesClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smsexpensor",
			Name:      "messages_classified_total",
			Help:      "Total number of classified messages.",
		},
		[]string{"outcome"}, // transaction, rejected
	)

	DuplicatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "smsexpensor",
			Name:      "duplicates_dropped_total",
			Help:      "Total number of messages dropped as duplicates.",
		},
	)

	TransactionsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "smsexpensor",
			Name:      "transactions_written_total",
			Help:      "Total number of transactions handed to a writer.",
		},
		[]string{"writer"},
	)

	ProcessingDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "smsexpensor",
			Name:      "message_processing_duration_seconds",
			Help:      "Duration of processing one message.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)
)

// ObserveProcessing records the time elapsed since start for source.
func ObserveProcessing(source string, start time.Time) {
	ProcessingDuration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
