package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Tracks routing recommendations by objective and outcome.
	RoutingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fx_routing_requests_total",
			Help: "Total number of routing recommendations served (by objective and result).",
		},
		[]string{"objective", "result"},
	)

	// Measures duration of routing and pricing computations.
	EngineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fx_engine_duration_seconds",
			Help:    "Duration of core engine computations in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100µs → ~0.2s
		},
		[]string{"engine"},
	)

	// Tracks quotes issued by segment and rate type.
	QuotesIssuedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fx_quotes_issued_total",
			Help: "Total number of customer quotes issued.",
		},
		[]string{"segment", "rate_type"},
	)

	// Tracks deal state transitions.
	DealTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fx_deal_transitions_total",
			Help: "Total number of deal state transitions (by target state).",
		},
		[]string{"to_state"},
	)

	// Tracks rate cache hits, misses and stale serves.
	RateCacheAccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fx_rate_cache_access_total",
			Help: "Number of rate cache accesses by result (fresh | miss | stale).",
		},
		[]string{"result"},
	)

	// Tracks NATS messages published by subject and result.
	NATSMessageCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nats_messages_total",
			Help: "Total number of NATS messages published.",
		},
		[]string{"subject", "result"}, // result = "ok" | "error"
	)

	NATSMessageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nats_message_latency_seconds",
			Help:    "Time taken to publish NATS messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"subject"},
	)

	// Tracks total errors (aggregated).
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fx_router_errors_total",
			Help: "Count of service-level errors by component.",
		},
		[]string{"component", "reason"},
	)

	// Gauges the last successful reference-data reload (seconds since epoch).
	LastReloadTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fx_last_reload_timestamp",
			Help: "Timestamp (unix seconds) of the last successful reference or rules reload.",
		},
		[]string{"table"},
	)
)

// ObserveDuration records the time taken for a function and updates the given histogram.
func ObserveDuration(v interface{}, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()

	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	default:
		// counters are not meant for duration tracking
	}
}

func IncRouting(objective, result string) {
	RoutingRequestsTotal.WithLabelValues(objective, result).Inc()
}

func IncQuote(segment, rateType string) {
	QuotesIssuedTotal.WithLabelValues(segment, rateType).Inc()
}

func IncDealTransition(toState string) {
	DealTransitionsTotal.WithLabelValues(toState).Inc()
}

func IncRateCache(result string) {
	RateCacheAccess.WithLabelValues(result).Inc()
}

func IncNATSMessage(subject, result string) {
	NATSMessageCount.WithLabelValues(subject, result).Inc()
}

func IncError(component, reason string) {
	ErrorsTotal.WithLabelValues(component, reason).Inc()
}

func SetLastReload(table string, t time.Time) {
	LastReloadTimestamp.WithLabelValues(table).Set(float64(t.Unix()))
}
