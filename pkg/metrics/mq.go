package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MQMetrics contains Prometheus metrics for the result queue client.
type MQMetrics struct {
	MessagesPushed    *prometheus.CounterVec
	PushFailures      *prometheus.CounterVec
	PushDuration      *prometheus.HistogramVec
	ReconnectAttempts prometheus.Counter
	ConnectionStatus  prometheus.Gauge
	MessagesConsumed  *prometheus.CounterVec
	MessagesRejected  *prometheus.CounterVec
	MessagesRequeued  *prometheus.CounterVec
}

// NewMQMetrics creates queue client metrics without registering them.
func NewMQMetrics(namespace string) *MQMetrics {
	return &MQMetrics{
		MessagesPushed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "messages_pushed_total",
				Help:      "Total number of messages pushed to RabbitMQ",
			},
			[]string{"queue"},
		),
		PushFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "push_failures_total",
				Help:      "Total number of failed message pushes",
			},
			[]string{"queue", "reason"},
		),
		PushDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "push_duration_seconds",
				Help:      "Duration of confirmed message pushes",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"queue"},
		),
		ReconnectAttempts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "reconnect_attempts_total",
				Help:      "Total number of reconnection attempts",
			},
		),
		ConnectionStatus: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "connection_status",
				Help:      "Current connection status (1=connected, 0=disconnected)",
			},
		),
		MessagesConsumed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "messages_consumed_total",
				Help:      "Total number of messages acknowledged after processing",
			},
			[]string{"queue"},
		),
		MessagesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "messages_rejected_total",
				Help:      "Total number of messages dropped without a retry",
			},
			[]string{"queue", "reason"},
		),
		MessagesRequeued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "mq",
				Name:      "messages_requeued_total",
				Help:      "Total number of messages handed back to the queue",
			},
			[]string{"queue"},
		),
	}
}

// RegisterMQMetrics creates and registers queue client metrics.
func RegisterMQMetrics(namespace string) *MQMetrics {
	m := NewMQMetrics(namespace)
	MustRegister(
		m.MessagesPushed,
		m.PushFailures,
		m.PushDuration,
		m.ReconnectAttempts,
		m.ConnectionStatus,
		m.MessagesConsumed,
		m.MessagesRejected,
		m.MessagesRequeued,
	)
	return m
}
