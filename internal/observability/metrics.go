// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Launch pipeline metrics
	PipelineRunsTotal *prometheus.CounterVec
	PipelineDuration  prometheus.Histogram
	StagesFinished    *prometheus.CounterVec

	// Autopilot metrics
	CyclesTotal        prometheus.Counter
	CyclesSkipped      prometheus.Counter
	CycleDuration      prometheus.Histogram
	CampaignsEvaluated prometheus.Counter
	ActionsExecuted    *prometheus.CounterVec
	SuggestionsCreated *prometheus.CounterVec

	// Event feed metrics
	WSClientsConnected prometheus.Gauge
	EventsPublished    *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "adpilot"
	}

	return &Metrics{
		// Launch pipeline metrics
		PipelineRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of launch pipeline runs by terminal status",
		}, []string{"status"}),
		PipelineDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "duration_seconds",
			Help:      "Launch pipeline execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		StagesFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stages_finished_total",
			Help:      "Total number of pipeline stages finished by stage",
		}, []string{"stage"}),

		// Autopilot metrics
		CyclesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autopilot",
			Name:      "cycles_total",
			Help:      "Total number of evaluation cycles run",
		}),
		CyclesSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autopilot",
			Name:      "cycles_skipped_total",
			Help:      "Total number of ticks skipped because a cycle was still running",
		}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "autopilot",
			Name:      "cycle_duration_seconds",
			Help:      "Evaluation cycle duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		CampaignsEvaluated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autopilot",
			Name:      "campaigns_evaluated_total",
			Help:      "Total number of campaign records evaluated",
		}),
		ActionsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autopilot",
			Name:      "actions_executed_total",
			Help:      "Total number of actions executed by kind and outcome",
		}, []string{"kind", "outcome"}),
		SuggestionsCreated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autopilot",
			Name:      "suggestions_created_total",
			Help:      "Total number of suggestions queued by kind",
		}, []string{"kind"}),

		// Event feed metrics
		WSClientsConnected: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "ws_clients_connected",
			Help:      "Current number of connected WebSocket clients",
		}),
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of events published by type",
		}, []string{"type"}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		LastSuccessfulCycle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of the last successful evaluation cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordPipelineRun records one terminal pipeline run.
func RecordPipelineRun(status string, durationSeconds float64) {
	DefaultMetrics.PipelineRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.PipelineDuration.Observe(durationSeconds)
}

// RecordStageFinished increments the finished counter for one stage.
func RecordStageFinished(stage string) {
	DefaultMetrics.StagesFinished.WithLabelValues(stage).Inc()
}

// RecordCycle records one evaluation cycle.
func RecordCycle(evaluated int, durationSeconds float64) {
	DefaultMetrics.CyclesTotal.Inc()
	DefaultMetrics.CycleDuration.Observe(durationSeconds)
	DefaultMetrics.CampaignsEvaluated.Add(float64(evaluated))
}

// RecordCycleSkipped increments the skipped-tick counter.
func RecordCycleSkipped() {
	DefaultMetrics.CyclesSkipped.Inc()
}

// RecordActionExecuted records one executed action.
func RecordActionExecuted(kind string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	DefaultMetrics.ActionsExecuted.WithLabelValues(kind, outcome).Inc()
}

// RecordSuggestionCreated records one queued suggestion.
func RecordSuggestionCreated(kind string) {
	DefaultMetrics.SuggestionsCreated.WithLabelValues(kind).Inc()
}

// RecordEventPublished records one published feed event.
func RecordEventPublished(eventType string) {
	DefaultMetrics.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
