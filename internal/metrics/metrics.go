package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Evaluation metrics
	CyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricemonitor_evaluation_cycles_total",
			Help: "Total number of evaluation cycles",
		},
		[]string{"status"}, // status: ok, failed
	)

	CycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricemonitor_evaluation_cycle_duration_seconds",
			Help:    "Wall-clock duration of a full evaluation cycle",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	SubjectsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricemonitor_subjects_skipped_total",
			Help: "Subjects skipped during evaluation for lack of price data",
		},
	)

	TriggersFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricemonitor_triggers_fired_total",
			Help: "Accepted rule firings",
		},
		[]string{"rule_type"},
	)

	TriggersSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricemonitor_triggers_suppressed_total",
			Help: "Rule firings suppressed before acceptance",
		},
		[]string{"reason"}, // reason: cooldown, continuation, duplicate
	)

	MalformedRules = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricemonitor_malformed_rules_total",
			Help: "Rules skipped because their condition payload failed to parse",
		},
	)

	// Dispatch metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pricemonitor_dispatch_queue_depth",
			Help: "Current depth of the notification dispatch queue",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricemonitor_notifications_total",
			Help: "Notification delivery outcomes",
		},
		[]string{"status"}, // status: sent, failed, fallback
	)

	NotificationRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricemonitor_notification_retries_total",
			Help: "Delivery attempts beyond the first",
		},
	)

	// FallbackFailures is the unrecoverable-loss signal: the primary channel
	// was exhausted and the durable local sink also failed.
	FallbackFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricemonitor_fallback_failures_total",
			Help: "Fallback sink writes that failed after primary delivery was exhausted",
		},
	)

	FallbackWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricemonitor_fallback_writes_total",
			Help: "Alerts persisted to the durable local fallback sink",
		},
	)

	// Feed metrics
	PriceFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricemonitor_price_fetches_total",
			Help: "Price feed fetch outcomes",
		},
		[]string{"status"}, // status: ok, error
	)
)
