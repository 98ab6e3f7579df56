package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "board_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_messages_posted_total",
			Help: "Total messages posted",
		},
		[]string{"priority"},
	)

	MessagesRead = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "board_messages_read_total",
			Help: "Total messages marked read",
		},
	)

	MessagesCleaned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "board_messages_cleaned_total",
			Help: "Total messages removed by cleanup",
		},
		[]string{"reason"}, // "short", "duplicate" or "expired"
	)

	SearchQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "board_search_queries_total",
			Help: "Total search queries",
		},
	)

	// Wait metrics
	WaitsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "board_waits_started_total",
			Help: "Total wait calls started",
		},
	)

	WaitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "board_wait_hits_total",
			Help: "Total waits resolved with a message",
		},
	)

	WaitTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "board_wait_timeouts_total",
			Help: "Total waits that timed out empty",
		},
	)

	WaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "board_wait_duration_seconds",
			Help:    "Time spent blocked in wait calls",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300, 600},
		},
	)

	// Presence metrics
	PresenceHeartbeats = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "board_presence_heartbeats_total",
			Help: "Total presence heartbeats",
		},
	)
)
