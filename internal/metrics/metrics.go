package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder exposes pipeline counters and latencies via Prometheus.
type Recorder struct {
	messagesTotal  *prometheus.CounterVec
	rejectedTotal  *prometheus.CounterVec
	ordersTotal    *prometheus.CounterVec
	outcomesTotal  *prometheus.CounterVec
	cacheHitsTotal prometheus.Counter
	latency        *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		messagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_messages_total",
				Help: "Total number of messages processed by the pipeline",
			},
			[]string{"channel"},
		),
		rejectedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_rejected_total",
				Help: "Total number of rejected signals by reason",
			},
			[]string{"reason"},
		),
		ordersTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_orders_total",
				Help: "Total number of orders handed to the broker sink",
			},
			[]string{"asset", "action"},
		),
		outcomesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalflow_outcomes_total",
				Help: "Total number of trade outcomes by result",
			},
			[]string{"result"},
		),
		cacheHitsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "signalflow_cache_hits_total",
				Help: "Total number of analysis cache hits",
			},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalflow_operation_duration_seconds",
				Help:    "Duration of pipeline operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordMessage records a processed message for a channel.
func (r *Recorder) RecordMessage(channel string) {
	r.messagesTotal.WithLabelValues(channel).Inc()
}

// RecordRejection records a rejection by reason.
func (r *Recorder) RecordRejection(reason string) {
	r.rejectedTotal.WithLabelValues(reason).Inc()
}

// RecordOrder records an order handed to the broker.
func (r *Recorder) RecordOrder(asset, action string) {
	r.ordersTotal.WithLabelValues(asset, action).Inc()
}

// RecordOutcome records a trade outcome result ("win", "loss", "breakeven").
func (r *Recorder) RecordOutcome(result string) {
	r.outcomesTotal.WithLabelValues(result).Inc()
}

// RecordCacheHit records an analysis cache hit.
func (r *Recorder) RecordCacheHit() {
	r.cacheHitsTotal.Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
