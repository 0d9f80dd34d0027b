package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// API metrics
var (
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	APIAuthFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_auth_failures_total",
			Help: "Total number of API authentication failures",
		},
	)

	APIRateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "api_rate_limited_total",
			Help: "Total number of requests rejected by the rate limiter",
		},
	)
)

// Composition metrics
var (
	MessagesComposedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_composed_total",
			Help: "Total number of pending messages persisted",
		},
		[]string{"event_type"},
	)

	MessagesSkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "messages_skipped_total",
			Help: "Total number of send requests skipped because the event is disabled",
		},
		[]string{"event_type"},
	)

	ReadConfirmationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "read_confirmations_total",
			Help: "Total number of messages marked as read",
		},
	)
)

// Delivery metrics
var (
	DeliveryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_attempts_total",
			Help: "Total number of delivery outcomes per message",
		},
		[]string{"result"}, // sent, error, no_transport
	)

	DeliveryTransportErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "delivery_transport_errors_total",
			Help: "Total number of transport failures by kind",
		},
		[]string{"kind"}, // timeout, auth_failure, unknown
	)

	DeliveryGroupsFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_groups_failed_total",
			Help: "Total number of tenant groups abandoned during a pass",
		},
	)

	DeliveryCandidates = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "delivery_candidates",
			Help: "Number of messages loaded by the last delivery pass",
		},
	)

	DeliveryPassDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "delivery_pass_duration_seconds",
			Help:    "Duration of delivery passes",
			Buckets: prometheus.DefBuckets,
		},
	)

	DeliveryPassErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_pass_errors_total",
			Help: "Total number of delivery passes aborted before sending",
		},
	)
)

// Database metrics
var (
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)
