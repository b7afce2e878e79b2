package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topicbridge_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "topicbridge_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Update-processing metrics
var (
	UpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topicbridge_updates_total",
		Help: "Total number of webhook updates processed, by kind",
	}, []string{"kind"})

	FilteredMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topicbridge_filtered_messages_total",
		Help: "Total number of inbound messages dropped by the filtering pipeline",
	}, []string{"outcome"})

	RelayFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topicbridge_relay_failures_total",
		Help: "Total number of messages that could not be relayed after recovery",
	})
)

// Gateway metrics
var (
	GatewayCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topicbridge_gateway_calls_total",
		Help: "Total number of Bot API calls, by method and outcome",
	}, []string{"method", "outcome"})
)
