package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Stream metrics
	ActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notifier_streams_active",
		Help: "The current number of live upstream event streams.",
	})
	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_stream_reconnects_total",
		Help: "The total number of upstream stream reconnect attempts.",
	})
	EventsReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_events_received_total",
		Help: "The total number of stream events received, by kind.",
	}, []string{"kind"})
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_events_dropped_total",
		Help: "The total number of stream events dropped, by reason.",
	}, []string{"reason"})

	// Pipeline metrics
	DuplicatesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_duplicate_bids_suppressed_total",
		Help: "The total number of redelivered bid events suppressed by the ledger.",
	})
	AlertsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_alerts_dispatched_total",
		Help: "The total number of alerts pushed to session feeds, by kind.",
	}, []string{"kind"})
	SignalsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_signals_published_total",
		Help: "The total number of invalidation signals published, by topic.",
	}, []string{"topic"})

	// Session metrics
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notifier_sessions_active",
		Help: "The current number of active sessions.",
	})
	SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_sessions_swept_total",
		Help: "The total number of expired sessions removed by the janitor.",
	})

	// Listing cache metrics
	ListingRefetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_listing_refetches_total",
		Help: "The total number of open-auction list refetches from the marketplace.",
	})
)
