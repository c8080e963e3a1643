// Package metrics defines and registers all custom Prometheus metrics for the
// marketplace transaction API. It is the single source of truth for metric
// names, labels, and help strings.
//
// Metrics are registered with the default Prometheus registry on package
// initialisation; RegisterQueueDepth must be called once the notification
// dispatcher exists.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marketplace"

// ── Webhook metrics ───────────────────────────────────────────────────────────

// WebhookEventsTotal counts acknowledged webhook deliveries.
// Label:
//   - outcome: "applied", "replayed", "unmatched", "conflict" or "ignored"
var WebhookEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_events_total",
		Help:      "Total number of acknowledged payment webhook events, by outcome.",
	},
	[]string{"outcome"},
)

// WebhookErrorsTotal counts deliveries that were not acknowledged.
// Label:
//   - reason: "signature", "payload" or "internal"
var WebhookErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "webhook_errors_total",
		Help:      "Total number of payment webhook deliveries rejected or failed.",
	},
	[]string{"reason"},
)

// WebhookProcessingDuration measures how long one delivery takes to handle.
var WebhookProcessingDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "webhook_processing_duration_seconds",
		Help:      "Duration of webhook handling from receipt to response.",
		Buckets:   prometheus.DefBuckets,
	},
)

// ── Checkout metrics ──────────────────────────────────────────────────────────

// CheckoutsTotal counts checkout requests.
// Labels:
//   - source: "bid" or "order"
//   - result: "created", "reused" or "error"
var CheckoutsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkouts_total",
		Help:      "Total number of checkout requests, by source and result.",
	},
	[]string{"source", "result"},
)

// ── Bid metrics ───────────────────────────────────────────────────────────────

// BidTransitionsTotal counts bid status changes requested over the API.
// Label:
//   - status: the status the bid moved to
var BidTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bid_transitions_total",
		Help:      "Total number of bid status transitions, by target status.",
	},
	[]string{"status"},
)

// BidsExpiredTotal counts bids expired by the background sweeper.
var BidsExpiredTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bids_expired_total",
		Help:      "Total number of bids expired by the sweeper.",
	},
)

// ── Notification metrics ──────────────────────────────────────────────────────

// NotificationsDroppedTotal counts notifications dropped because a worker
// shard was full.
var NotificationsDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_dropped_total",
		Help:      "Total number of notifications dropped on a full dispatcher shard.",
	},
)

// RegisterQueueDepth exposes the dispatcher backlog as a gauge. depth is
// sampled on every scrape.
func RegisterQueueDepth(depth func() int) {
	promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notifications_queue_depth",
			Help:      "Current number of notifications waiting in the dispatcher.",
		},
		func() float64 { return float64(depth()) },
	)
}
