// Package metrics exposes Prometheus instrumentation for the fleet: a
// shared registry of counters and gauges plus a sidecar HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registered once at package load; every process shares the set and
// scrapes expose only the series it touched.
var (
	AgentTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duckswarm_agent_ticks_total",
		Help: "Analysis ticks completed, by agent",
	}, []string{"agent"})

	AgentTickErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duckswarm_agent_tick_errors_total",
		Help: "Analysis ticks that returned an error, by agent",
	}, []string{"agent"})

	SignalsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duckswarm_signals_emitted_total",
		Help: "Signals produced, by agent and type",
	}, []string{"agent", "type"})

	ChainWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duckswarm_chain_writes_total",
		Help: "On-chain transactions sent, by operation and outcome",
	}, []string{"op", "outcome"})

	PriceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duckswarm_price_fetches_total",
		Help: "Price lookups served, by source",
	}, []string{"source"})

	HubIngress = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "duckswarm_hub_ingress_total",
		Help: "Hub ingress events accepted, by endpoint",
	}, []string{"endpoint"})

	HubSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duckswarm_hub_subscribers",
		Help: "Connected websocket subscribers",
	})

	ConsensusNormalized = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "duckswarm_consensus_normalized",
		Help: "Latest weighted consensus score in [-1,1]",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "duckswarm_http_request_duration_ms",
		Help:    "Hub HTTP request duration in milliseconds",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
	}, []string{"method", "path", "status"})
)

// RecordHTTPRequest feeds the request histogram.
func RecordHTTPRequest(method, path, status string, durationMs float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(durationMs)
}
