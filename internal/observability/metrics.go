// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingress metrics
	CandidatesSeen    *prometheus.CounterVec
	CandidatesDeduped prometheus.Counter
	TrendingPollError prometheus.Counter

	// Gate metrics
	MarketsAdmitted prometheus.Counter
	MarketsRejected *prometheus.CounterVec

	// Subscriber metrics
	TradeEventsProcessed *prometheus.CounterVec
	TradeEventsDropped   *prometheus.CounterVec
	MintEventsProcessed  prometheus.Counter
	ActiveSubscriptions  prometheus.Gauge

	// Alert metrics
	AlertsEmitted *prometheus.CounterVec

	// Aggregator metrics
	AggregatorRequestLatency *prometheus.HistogramVec
	AggregatorRequestErrors  *prometheus.CounterVec

	// Health metrics
	WatchlistSize *prometheus.GaugeVec
	UptimeSeconds prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dexwatch"
	}

	return &Metrics{
		// Ingress metrics
		CandidatesSeen: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "candidates_seen_total",
			Help:      "Total number of market candidates seen by source",
		}, []string{"chain", "source"}),
		CandidatesDeduped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "candidates_deduped_total",
			Help:      "Total number of trending candidates suppressed by the dedup set",
		}),
		TrendingPollError: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingress",
			Name:      "trending_poll_errors_total",
			Help:      "Total number of trending poller failures",
		}),

		// Gate metrics
		MarketsAdmitted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "markets_admitted_total",
			Help:      "Total number of markets admitted by the gate pipeline",
		}),
		MarketsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gate",
			Name:      "markets_rejected_total",
			Help:      "Total number of markets rejected by check",
		}, []string{"check"}),

		// Subscriber metrics
		TradeEventsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriber",
			Name:      "trade_events_processed_total",
			Help:      "Total number of trade events folded into windows",
		}, []string{"chain", "market_type"}),
		TradeEventsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriber",
			Name:      "trade_events_dropped_total",
			Help:      "Total number of trade events dropped by reason",
		}, []string{"reason"}),
		MintEventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "subscriber",
			Name:      "mint_events_processed_total",
			Help:      "Total number of V2 liquidity-add events processed",
		}),
		ActiveSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "subscriber",
			Name:      "active_subscriptions",
			Help:      "Current number of per-market subscriptions holding a slot",
		}),

		// Alert metrics
		AlertsEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "emitted_total",
			Help:      "Total number of alerts emitted by level",
		}, []string{"level"}),

		// Aggregator metrics
		AggregatorRequestLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "request_latency_seconds",
			Help:      "Market-aggregator HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		AggregatorRequestErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregator",
			Name:      "request_errors_total",
			Help:      "Total number of market-aggregator request failures",
		}, []string{"endpoint"}),

		// Health metrics
		WatchlistSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watchlist",
			Name:      "markets",
			Help:      "Current number of watchlist entries by status",
		}, []string{"status"}),
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordCandidateSeen increments the candidates-seen counter.
func RecordCandidateSeen(chain, source string) {
	DefaultMetrics.CandidatesSeen.WithLabelValues(chain, source).Inc()
}

// RecordCandidateDeduped increments the dedup-suppression counter.
func RecordCandidateDeduped() {
	DefaultMetrics.CandidatesDeduped.Inc()
}

// RecordTrendingPollError increments the trending poller failure counter.
func RecordTrendingPollError() {
	DefaultMetrics.TrendingPollError.Inc()
}

// RecordMarketAdmitted increments the admitted-markets counter.
func RecordMarketAdmitted() {
	DefaultMetrics.MarketsAdmitted.Inc()
}

// RecordMarketRejected increments the rejected-markets counter for a check.
func RecordMarketRejected(check string) {
	DefaultMetrics.MarketsRejected.WithLabelValues(check).Inc()
}

// RecordTradeProcessed increments the processed trade-event counter.
func RecordTradeProcessed(chain, marketType string) {
	DefaultMetrics.TradeEventsProcessed.WithLabelValues(chain, marketType).Inc()
}

// RecordTradeDropped increments the dropped trade-event counter.
func RecordTradeDropped(reason string) {
	DefaultMetrics.TradeEventsDropped.WithLabelValues(reason).Inc()
}

// RecordMintProcessed increments the liquidity-add counter.
func RecordMintProcessed() {
	DefaultMetrics.MintEventsProcessed.Inc()
}

// SetActiveSubscriptions updates the live subscription gauge.
func SetActiveSubscriptions(n int) {
	DefaultMetrics.ActiveSubscriptions.Set(float64(n))
}

// RecordAlertEmitted increments the emitted-alerts counter.
func RecordAlertEmitted(level string) {
	DefaultMetrics.AlertsEmitted.WithLabelValues(level).Inc()
}

// RecordAggregatorRequest records one aggregator request outcome.
func RecordAggregatorRequest(endpoint string, seconds float64, err error) {
	DefaultMetrics.AggregatorRequestLatency.WithLabelValues(endpoint).Observe(seconds)
	if err != nil {
		DefaultMetrics.AggregatorRequestErrors.WithLabelValues(endpoint).Inc()
	}
}

// AddUptime accrues process uptime.
func AddUptime(seconds float64) {
	DefaultMetrics.UptimeSeconds.Add(seconds)
}

// SetWatchlistSize updates the watchlist gauge for one status.
func SetWatchlistSize(status string, n int) {
	DefaultMetrics.WatchlistSize.WithLabelValues(status).Set(float64(n))
}
