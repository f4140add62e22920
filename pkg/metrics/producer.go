package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ProducerMetrics contains Prometheus metrics for the synthetic result generator.
type ProducerMetrics struct {
	TestsRegistered    prometheus.Counter
	ResultsPublished   prometheus.Counter
	GenerationFailures *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	ActiveProducers    prometheus.Gauge
}

// NewProducerMetrics creates generator metrics without registering them.
func NewProducerMetrics(namespace string) *ProducerMetrics {
	return &ProducerMetrics{
		TestsRegistered: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "producer",
				Name:      "tests_registered_total",
				Help:      "Total number of synthetic tests registered",
			},
		),
		ResultsPublished: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "producer",
				Name:      "results_published_total",
				Help:      "Total number of synthetic results published",
			},
		),
		GenerationFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "producer",
				Name:      "generation_failures_total",
				Help:      "Total number of failed generation rounds",
			},
			[]string{"stage", "reason"}, // stage: register, marshal, publish
		),
		GenerationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "producer",
				Name:      "generation_duration_seconds",
				Help:      "Duration of generation stages",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		ActiveProducers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "producer",
				Name:      "active_producers",
				Help:      "Number of currently active producers",
			},
		),
	}
}

// RegisterProducerMetrics creates and registers generator metrics.
func RegisterProducerMetrics(namespace string) *ProducerMetrics {
	m := NewProducerMetrics(namespace)
	MustRegister(
		m.TestsRegistered,
		m.ResultsPublished,
		m.GenerationFailures,
		m.GenerationDuration,
		m.ActiveProducers,
	)
	return m
}
