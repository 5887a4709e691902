// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FlowEvents counts conversation engine outcomes, labeled by flow and event
	// (start, step, invalid, complete, cancel, fail, busy, expired).
	FlowEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "penny_flow_events_total",
		Help: "Conversation flow transitions by flow and event",
	}, []string{"flow", "event"})

	// Callbacks counts gateway callbacks by event name, memo type and outcome.
	Callbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "penny_callbacks_total",
		Help: "Gateway callbacks processed by event, tx type and outcome",
	}, []string{"event", "tx_type", "outcome"})

	// GatewayLatency observes outbound gateway call duration.
	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "penny_gateway_request_duration_seconds",
		Help:    "Latency distribution of transaction gateway calls",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"op", "status"})

	// HTTPRequests counts inbound HTTP requests on the shared server.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "penny_http_requests_total",
		Help: "Total HTTP requests processed, labeled by route and status code",
	}, []string{"method", "route", "status"})

	// HTTPLatency observes inbound request duration.
	HTTPLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "penny_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "route"})

	// Updates counts Telegram updates by kind.
	Updates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "penny_telegram_updates_total",
		Help: "Telegram updates handled, labeled by kind",
	}, []string{"kind"})

	// Handlers counts routed Telegram handlers by name and outcome.
	Handlers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "penny_telegram_handlers_total",
		Help: "Telegram handlers run, labeled by handler and outcome",
	}, []string{"handler", "outcome"})

	// HandlerLatency observes how long a routed handler took, sends included.
	HandlerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "penny_telegram_handler_duration_seconds",
		Help:    "Latency distribution of Telegram handlers",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"handler"})

	// Sends counts outbound Bot API jobs by action and outcome (ok or error kind).
	Sends = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "penny_telegram_sends_total",
		Help: "Outbound Telegram calls by action and outcome",
	}, []string{"action", "outcome"})

	// Sessions reports the number of live conversation sessions.
	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "penny_sessions_active",
		Help: "Conversation sessions currently held by the store",
	})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
