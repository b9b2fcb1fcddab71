package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, path and status code",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	CollectionsInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collections_initiated_total",
		Help: "Mobile money collection attempts started",
	})

	CollectionsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collections_resolved_total",
		Help: "Collection attempts reaching a terminal state, by outcome",
	}, []string{"outcome", "source"})

	CallbacksRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "callbacks_rejected_total",
		Help: "Gateway callbacks acknowledged with a non-200 business code",
	}, []string{"code"})

	SweepRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_sweep_runs_total",
		Help: "Reconciliation sweep passes",
	})

	BillingRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_runs_total",
		Help: "Monthly billing executions, by result",
	}, []string{"result"})

	ArrearsNotices = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arrears_notices_total",
		Help: "Arrears reminder notifications attempted",
	})
)
