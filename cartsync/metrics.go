package cartsync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// syncResolutions counts sync requests by resolution strategy
	syncResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartsync_sync_resolutions_total",
		Help: "Cart sync requests by resolution strategy",
	}, []string{"strategy"})

	// syncConflicts counts logged conflicts by type
	syncConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartsync_sync_conflicts_total",
		Help: "Conflicts logged during cart sync by type",
	}, []string{"type"})

	mergeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartsync_merge_total",
		Help: "Guest-to-user cart merges by result",
	}, []string{"result"})

	mergeItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartsync_merge_items_total",
		Help: "Guest cart items processed during merges by outcome",
	}, []string{"outcome"})

	validationIssues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartsync_validation_issues_total",
		Help: "Pre-checkout validation findings by severity and code",
	}, []string{"severity", "code"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cartsync_operation_duration_seconds",
		Help:    "Cart operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	}, []string{"operation", "result"})
)

func observe(operation string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	operationDuration.WithLabelValues(operation, result).Observe(time.Since(start).Seconds())
}
