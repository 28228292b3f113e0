package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "roomchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	// Connection metrics
	OpenConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_open_connections",
			Help: "Websocket transports currently open",
		},
	)

	AuthenticatedSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "roomchat_authenticated_sessions",
			Help: "Connections currently in the registry",
		},
	)

	AuthFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_auth_failures_total",
			Help: "Rejected authenticate attempts",
		},
	)

	// Event metrics
	InboundEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_inbound_events_total",
			Help: "Inbound client events by name",
		},
		[]string{"event"},
	)

	MessagesCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_messages_created_total",
			Help: "Messages persisted by send_message",
		},
	)

	DroppedDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roomchat_dropped_deliveries_total",
			Help: "Outbound events dropped because a connection could not keep up",
		},
	)

	RateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_rate_limited_total",
			Help: "Requests rejected by a rate limiter",
		},
		[]string{"scope"},
	)

	// Infrastructure metrics
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_store_errors_total",
			Help: "Persistence failures by operation",
		},
		[]string{"op"},
	)

	Uploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roomchat_uploads_total",
			Help: "File uploads by outcome",
		},
		[]string{"outcome"},
	)
)
