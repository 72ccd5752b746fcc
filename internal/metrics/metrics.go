package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialdm_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "socialdm_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Gateway metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "socialdm_ws_connections_active",
			Help: "Live authorized WebSocket connections",
		},
	)

	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialdm_ws_connections_rejected_total",
			Help: "Connections closed during authorization, by close code",
		},
		[]string{"code"},
	)

	CommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialdm_ws_commands_total",
			Help: "Commands handled by the gateway",
		},
		[]string{"command", "result"}, // "ok" or "error"
	)

	// Business metrics
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socialdm_messages_sent_total",
			Help: "Messages persisted and broadcast",
		},
	)

	MessagesBlocked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialdm_messages_blocked_total",
			Help: "Send attempts refused before persistence",
		},
		[]string{"reason"},
	)

	MessagesAutoRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socialdm_messages_auto_read_total",
			Help: "Messages marked read because the recipient was viewing the room",
		},
	)

	// Fan-out and push
	BroadcastDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socialdm_broadcast_dropped_total",
			Help: "Events dropped because a connection's buffer was full",
		},
	)

	BroadcastErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socialdm_broadcast_errors_total",
			Help: "Events that could not be published to the broker",
		},
	)

	PushSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socialdm_push_sent_total",
			Help: "Push notifications handed to the provider",
		},
	)

	PushFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialdm_push_failures_total",
			Help: "Push fallback failures",
		},
		[]string{"stage"}, // "tokens", "send", "panic"
	)
)
