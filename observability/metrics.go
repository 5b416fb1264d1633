// Package observability provides metric instruments and tracing for the
// delivery engine. Both are optional; a nil Metrics or Tracer disables them.
package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the engine's Prometheus instruments.
type Metrics struct {
	// NotificationsTotal counts Notify calls by result
	// (accepted, config_missing, event_disabled, invalid_payload).
	NotificationsTotal *prometheus.CounterVec

	// DeliveriesTotal counts delivery attempts by status
	// (delivered, retried, failed).
	DeliveriesTotal *prometheus.CounterVec

	// DeliveryLatency observes per-attempt latency in seconds.
	DeliveryLatency prometheus.Histogram

	// RetryQueueDepth tracks the number of queued retry entries.
	RetryQueueDepth prometheus.Gauge

	// BatchFlushesTotal counts batch buffer flushes.
	BatchFlushesTotal prometheus.Counter

	// RateLimitRejectionsTotal counts admissions rejected by the
	// sliding-window limiter.
	RateLimitRejectionsTotal prometheus.Counter

	// DLQSize tracks dead letter queue growth.
	DLQSize prometheus.Gauge
}

// NewMetrics creates and registers the engine's instruments on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		NotificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalpost_notifications_total",
			Help: "Notify calls by result.",
		}, []string{"result"}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalpost_deliveries_total",
			Help: "Delivery attempts by status.",
		}, []string{"status"}),
		DeliveryLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalpost_delivery_latency_seconds",
			Help:    "Latency of delivery attempts.",
			Buckets: prometheus.DefBuckets,
		}),
		RetryQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalpost_retry_queue_depth",
			Help: "Entries currently waiting in the retry queue.",
		}),
		BatchFlushesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalpost_batch_flushes_total",
			Help: "Batch buffer flushes.",
		}),
		RateLimitRejectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalpost_rate_limit_rejections_total",
			Help: "Sends rejected by the sliding-window rate limiter.",
		}),
		DLQSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalpost_dlq_size",
			Help: "Entries currently in the dead letter queue.",
		}),
	}

	reg.MustRegister(
		m.NotificationsTotal,
		m.DeliveriesTotal,
		m.DeliveryLatency,
		m.RetryQueueDepth,
		m.BatchFlushesTotal,
		m.RateLimitRejectionsTotal,
		m.DLQSize,
	)
	return m
}

// RecordDelivery records one delivery attempt with its status and latency.
func (m *Metrics) RecordDelivery(status string, latencySeconds float64) {
	m.DeliveriesTotal.WithLabelValues(status).Inc()
	m.DeliveryLatency.Observe(latencySeconds)
}

// RecordNotify records one Notify call result.
func (m *Metrics) RecordNotify(result string) {
	m.NotificationsTotal.WithLabelValues(result).Inc()
}
