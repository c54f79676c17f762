package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veridian_events_processed_total",
			Help: "Total number of processed events run through the reasoning pipeline",
		},
		[]string{"outcome"},
	)

	PipelineDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "veridian_pipeline_duration_seconds",
			Help:    "Duration of full pipeline runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Alert metrics
	AlertsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veridian_alerts_created_total",
			Help: "Total number of alerts created, by classification",
		},
		[]string{"classification"},
	)

	RuleMatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "veridian_rule_matches_total",
			Help: "Total number of matched rule evaluations",
		},
	)

	// Decision metrics
	DecisionsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veridian_decisions_recorded_total",
			Help: "Total number of analyst decisions recorded, by action",
		},
		[]string{"action"},
	)

	ScoringErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "veridian_scoring_errors_total",
			Help: "Total number of anomaly scoring failures",
		},
	)
)
