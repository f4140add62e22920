package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// IngestMetrics contains Prometheus metrics for the result ingestion pipeline.
type IngestMetrics struct {
	ResultsTotal         *prometheus.CounterVec
	IngestDuration       prometheus.Histogram
	InsaneValues         *prometheus.CounterVec
	NetworkTypeSource    *prometheus.CounterVec
	DroppedOperatorCodes *prometheus.CounterVec
	ResultsInFlight      prometheus.Gauge
}

// NewIngestMetrics creates ingestion metrics without registering them.
func NewIngestMetrics(namespace string) *IngestMetrics {
	return &IngestMetrics{
		ResultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "results_total",
				Help:      "Total number of submitted results by outcome",
			},
			[]string{"outcome"}, // outcome: success or the error kind
		),
		IngestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "duration_seconds",
				Help:      "Duration of a single result ingestion including commit",
				Buckets:   prometheus.DefBuckets,
			},
		),
		InsaneValues: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "insane_values_total",
				Help:      "Total number of results rejected for an out-of-range sample",
			},
			[]string{"metric"},
		),
		NetworkTypeSource: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "network_type_source_total",
				Help:      "Which observation decided the network type of a result",
			},
			[]string{"source"}, // source: baseline, aggregate, none
		),
		DroppedOperatorCodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "dropped_operator_codes_total",
				Help:      "Total number of operator codes dropped as malformed",
			},
			[]string{"field"},
		),
		ResultsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "ingest",
				Name:      "results_in_flight",
				Help:      "Number of results currently being ingested",
			},
		),
	}
}

// Collectors returns every collector of m.
func (m *IngestMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ResultsTotal,
		m.IngestDuration,
		m.InsaneValues,
		m.NetworkTypeSource,
		m.DroppedOperatorCodes,
		m.ResultsInFlight,
	}
}

// RegisterIngestMetrics creates and registers ingestion metrics.
func RegisterIngestMetrics(namespace string) *IngestMetrics {
	m := NewIngestMetrics(namespace)
	MustRegister(m.Collectors()...)
	return m
}
