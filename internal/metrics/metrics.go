package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insiteforge_runs_started_total",
			Help: "Total number of analysis runs started",
		},
		[]string{"mode"},
	)

	RunsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insiteforge_runs_completed_total",
			Help: "Total number of analysis runs completed",
		},
		[]string{"mode", "status"},
	)

	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insiteforge_run_duration_seconds",
			Help:    "Analysis run duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// Loader metrics
	RowsLoaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insiteforge_rows_loaded_total",
			Help: "Rows accepted per source kind",
		},
		[]string{"source"},
	)

	RowsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insiteforge_rows_dropped_total",
			Help: "Rows dropped during type coercion per source kind",
		},
		[]string{"source"},
	)

	SchemaFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insiteforge_schema_failures_total",
			Help: "Sources present but failing required-column validation",
		},
		[]string{"source"},
	)

	// Reasoner metrics
	FindingsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insiteforge_findings_emitted_total",
			Help: "Findings emitted per kind",
		},
		[]string{"kind"},
	)

	FindingsRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insiteforge_findings_rejected_total",
			Help: "Findings rejected for having no citable evidence",
		},
	)

	// Mode metrics
	ModeDegradations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insiteforge_mode_degradations_total",
			Help: "Deep runs degraded to quick-shaped output",
		},
	)

	// Memory metrics
	MemoryUpdates = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insiteforge_memory_updates_total",
			Help: "Domain memory update operations",
		},
	)

	MemoryLoadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insiteforge_memory_load_failures_total",
			Help: "Domain memory loads that fell back to an empty record",
		},
	)

	// Generation metrics
	GenerationFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "insiteforge_generation_fallbacks_total",
			Help: "Prose generation attempts that fell back to templated rendering",
		},
	)
)
