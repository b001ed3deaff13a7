package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "charla",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat turns that reached the provider",
		},
		[]string{"kind", "mode", "model"},
	)

	ConversationsCreatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "charla",
			Subsystem: "chat",
			Name:      "conversations_created_total",
			Help:      "Conversations created by the turn pipeline",
		},
	)

	ProviderErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "charla",
			Subsystem: "chat",
			Name:      "provider_errors_total",
			Help:      "Provider streams that failed to start",
		},
		[]string{"kind"},
	)

	StorageBranchFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "charla",
			Subsystem: "chat",
			Name:      "storage_branch_failures_total",
			Help:      "Failures swallowed by the detached persistence branch",
		},
		[]string{"stage"},
	)

	GuestDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "charla",
			Subsystem: "guest",
			Name:      "decisions_total",
			Help:      "Guest throttle outcomes",
		},
		[]string{"outcome"},
	)

	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "charla",
			Subsystem: "uploads",
			Name:      "stored_total",
			Help:      "Files stored in the blob store",
		},
		[]string{"resource_type"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "charla",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency until the handler returns",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)
