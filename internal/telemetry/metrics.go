// Package telemetry exposes the process's Prometheus metrics:
// quotes ingested, opportunities detected, broadcast batch sizes, and
// per-venue connection health.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var QuotesIngested = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "venuemesh",
		Subsystem: "ingest",
		Name:      "quotes_total",
		Help:      "Total number of quotes ingested by the aggregator, by venue.",
	},
	[]string{"venue"},
)

var OpportunitiesDetected = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "venuemesh",
		Subsystem: "detector",
		Name:      "opportunities_total",
		Help:      "Total number of arbitrage opportunities emitted, by symbol.",
	},
	[]string{"symbol"},
)

var SpreadObserved = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "venuemesh",
		Subsystem: "detector",
		Name:      "spread_percent",
		Help:      "Spread percent of emitted opportunities, by symbol.",
		Buckets:   []float64{0.1, 0.2, 0.3, 0.5, 1, 2, 3, 5},
	},
	[]string{"symbol"},
)

var BroadcastBatchSize = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "venuemesh",
		Subsystem: "broadcaster",
		Name:      "batch_size",
		Help:      "Number of PriceUpdate entries in each flushed batch.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 500, 1000},
	},
)

var VenueConnectionState = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "venuemesh",
		Subsystem: "venue",
		Name:      "connection_state",
		Help:      "Venue adapter connection state (0=connecting,1=open,2=degraded,3=closed).",
	},
	[]string{"venue"},
)

var VenueReconnectErrors = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "venuemesh",
		Subsystem: "venue",
		Name:      "reconnect_errors_total",
		Help:      "Total number of reconnect failures, by venue.",
	},
	[]string{"venue"},
)

var ConnectedClients = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "venuemesh",
		Subsystem: "gateway",
		Name:      "connected_clients",
		Help:      "Current number of connected gateway clients.",
	},
)

// RecordQuote increments the ingest counter for one venue.
func RecordQuote(venue string) {
	QuotesIngested.WithLabelValues(venue).Inc()
}

// RecordOpportunity increments the detector counter and observes the
// spread for one symbol.
func RecordOpportunity(symbol string, spreadPct float64) {
	OpportunitiesDetected.WithLabelValues(symbol).Inc()
	SpreadObserved.WithLabelValues(symbol).Observe(spreadPct)
}

// RecordBatch observes one flushed broadcaster batch's size.
func RecordBatch(size int) {
	BroadcastBatchSize.Observe(float64(size))
}

// SetVenueState updates the connection-state gauge for one venue.
func SetVenueState(venue string, state int) {
	VenueConnectionState.WithLabelValues(venue).Set(float64(state))
}

// RecordReconnectError increments the reconnect-error counter for one
// venue.
func RecordReconnectError(venue string) {
	VenueReconnectErrors.WithLabelValues(venue).Inc()
}
