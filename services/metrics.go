package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for preferencesRecorded.
const (
	resultAppended  = "appended"
	resultDuplicate = "duplicate"
	resultInvalid   = "invalid"
	resultNotFound  = "not_found"
	resultError     = "error"
)

// Prometheus metrics for ingestion and matching runs
var (
	// preferencesRecorded counts RecordPreference calls by outcome.
	preferencesRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prestige_preferences_recorded_total",
		Help: "Total number of preference appends by result",
	}, []string{"result"})

	// matchRuns counts matching runs by final status.
	matchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prestige_match_runs_total",
		Help: "Total number of matching runs by status",
	}, []string{"status"})

	// matchRunPasses observes the passes needed by converged runs.
	matchRunPasses = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "prestige_match_run_passes",
		Help:    "Passes executed by converged matching runs",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	// matchRunDuration measures a run from snapshot read to publication.
	matchRunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "prestige_match_run_duration_seconds",
		Help:    "Matching run latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// matchedProfiles is the number of matched profiles in the last published run.
	matchedProfiles = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "prestige_matched_profiles",
		Help: "Matched profiles in the last published run",
	})
)
