// Package metrics registers the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScanAttempts counts every dispatcher attempt per provider and outcome
	// (success, transient_error, fatal_error).
	ScanAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentha_scan_attempts_total",
			Help: "Scan attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// ScanDuration observes provider call latency per attempt.
	ScanDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mentha_scan_duration_seconds",
			Help:    "Provider search duration in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider"},
	)

	// JobsCompleted counts scan jobs reaching a terminal state.
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentha_scan_jobs_total",
			Help: "Scan jobs by terminal status",
		},
		[]string{"provider", "status"},
	)

	// TokensUsed tracks provider token consumption.
	TokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentha_provider_tokens_total",
			Help: "Provider tokens consumed",
		},
		[]string{"provider", "model"},
	)

	// QueueDepth is the combined ready+delayed queue length, sampled by the
	// scheduler tick.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mentha_queue_depth",
			Help: "Scan jobs waiting or delayed in the queue",
		},
	)

	// ScansEnqueued counts scheduler enqueues by origin (recurring, manual)
	// and result (enqueued, duplicate).
	ScansEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentha_scans_enqueued_total",
			Help: "Scan jobs enqueued by origin and result",
		},
		[]string{"origin", "result"},
	)

	// AnalysisResults counts persisted results by recommendation type.
	AnalysisResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentha_analysis_results_total",
			Help: "Persisted scan results by recommendation type",
		},
		[]string{"recommendation_type"},
	)

	// NotableChanges counts visibility/recommendation flips detected.
	NotableChanges = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mentha_notable_changes_total",
			Help: "Notable visibility changes detected",
		},
	)
)
