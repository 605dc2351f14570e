package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/rag-eval/internal/core/domain"
)

const namespace = "rag_eval"

// EvalMetrics records pipeline and run events. It satisfies
// usecase.Observer and is safe for concurrent use.
type EvalMetrics struct {
	registry *prometheus.Registry

	questionsTotal       *prometheus.CounterVec
	questionDuration     *prometheus.HistogramVec
	stageDuration        *prometheus.HistogramVec
	stageErrorsTotal     *prometheus.CounterVec
	expansionDegraded    prometheus.Counter
	sourceFailuresTotal  *prometheus.CounterVec
	rerankDroppedTotal   prometheus.Counter
	runsTotal            *prometheus.CounterVec
	runDuration          *prometheus.HistogramVec
	runsInFlight         prometheus.Gauge
	comparisonsTotal     *prometheus.CounterVec
	comparisonMetricDiff *prometheus.GaugeVec
	retriesTotal         *prometheus.CounterVec
	breakerState         *prometheus.GaugeVec
}

func NewEvalMetrics(service string) *EvalMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	questionsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "questions_total",
			Help:        "Total evaluated questions by pipeline and status.",
			ConstLabels: constLabels,
		},
		[]string{"pipeline", "status"},
	)
	questionDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "question_duration_seconds",
			Help:        "End-to-end question evaluation duration in seconds.",
			Buckets:     []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 180},
			ConstLabels: constLabels,
		},
		[]string{"pipeline"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "stage_duration_seconds",
			Help:        "Pipeline stage duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"pipeline", "stage"},
	)
	stageErrorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "pipeline",
			Name:        "stage_errors_total",
			Help:        "Total failed pipeline stages.",
			ConstLabels: constLabels,
		},
		[]string{"pipeline", "stage"},
	)
	expansionDegraded := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "expansion",
			Name:        "degraded_total",
			Help:        "Total expansions that fell back to the original query only.",
			ConstLabels: constLabels,
		},
	)
	sourceFailuresTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "retrieval",
			Name:        "source_failures_total",
			Help:        "Total failed retrieval source calls by source.",
			ConstLabels: constLabels,
		},
		[]string{"source"},
	)
	rerankDroppedTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "rerank",
			Name:        "dropped_candidates_total",
			Help:        "Total candidates dropped because scoring failed.",
			ConstLabels: constLabels,
		},
	)
	runsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "run",
			Name:        "total",
			Help:        "Total finished runs by pipeline and status.",
			ConstLabels: constLabels,
		},
		[]string{"pipeline", "status"},
	)
	runDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "run",
			Name:        "duration_seconds",
			Help:        "Run duration in seconds.",
			Buckets:     []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
			ConstLabels: constLabels,
		},
		[]string{"pipeline"},
	)
	runsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "run",
			Name:        "in_flight",
			Help:        "Number of runs being evaluated.",
			ConstLabels: constLabels,
		},
	)
	comparisonsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "comparison",
			Name:        "total",
			Help:        "Total comparisons by verdict.",
			ConstLabels: constLabels,
		},
		[]string{"target_met"},
	)
	comparisonMetricDiff := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "comparison",
			Name:        "delta_pct",
			Help:        "Latest percentage change per metric; absent when undefined.",
			ConstLabels: constLabels,
		},
		[]string{"metric"},
	)

	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "resilience",
			Name:        "retries_total",
			Help:        "Retries scheduled per outbound operation.",
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "resilience",
			Name:        "breaker_state",
			Help:        "Circuit breaker state per operation: 0 closed, 1 half-open, 2 open.",
			ConstLabels: constLabels,
		},
		[]string{"operation"},
	)

	registry.MustRegister(
		retriesTotal,
		breakerState,
		questionsTotal,
		questionDuration,
		stageDuration,
		stageErrorsTotal,
		expansionDegraded,
		sourceFailuresTotal,
		rerankDroppedTotal,
		runsTotal,
		runDuration,
		runsInFlight,
		comparisonsTotal,
		comparisonMetricDiff,
	)

	return &EvalMetrics{
		registry:             registry,
		questionsTotal:       questionsTotal,
		questionDuration:     questionDuration,
		stageDuration:        stageDuration,
		stageErrorsTotal:     stageErrorsTotal,
		expansionDegraded:    expansionDegraded,
		sourceFailuresTotal:  sourceFailuresTotal,
		rerankDroppedTotal:   rerankDroppedTotal,
		runsTotal:            runsTotal,
		runDuration:          runDuration,
		runsInFlight:         runsInFlight,
		comparisonsTotal:     comparisonsTotal,
		comparisonMetricDiff: comparisonMetricDiff,
		retriesTotal:         retriesTotal,
		breakerState:         breakerState,
	}
}

// Registry lets other collectors (HTTP middleware) share the /metrics endpoint.
func (m *EvalMetrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *EvalMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *EvalMetrics) ObserveStage(pipeline, stage string, duration time.Duration, err error) {
	m.stageDuration.WithLabelValues(pipeline, stage).Observe(duration.Seconds())
	if err != nil {
		m.stageErrorsTotal.WithLabelValues(pipeline, stage).Inc()
	}
}

func (m *EvalMetrics) ExpansionDegraded() {
	m.expansionDegraded.Inc()
}

func (m *EvalMetrics) RetrievalSourceFailed(source string) {
	if source == "" {
		source = "unknown"
	}
	m.sourceFailuresTotal.WithLabelValues(source).Inc()
}

func (m *EvalMetrics) RerankCandidatesDropped(count int) {
	if count <= 0 {
		return
	}
	m.rerankDroppedTotal.Add(float64(count))
}

func (m *EvalMetrics) QuestionFinished(pipeline string, failed bool, duration time.Duration) {
	status := "success"
	if failed {
		status = "error"
	}
	m.questionsTotal.WithLabelValues(pipeline, status).Inc()
	m.questionDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
}

func (m *EvalMetrics) StartRun() {
	m.runsInFlight.Inc()
}

func (m *EvalMetrics) FinishRun(pipeline string, duration time.Duration, err error) {
	m.runsInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.runsTotal.WithLabelValues(pipeline, status).Inc()
	m.runDuration.WithLabelValues(pipeline).Observe(duration.Seconds())
}

// RecordComparison exports only defined deltas; a metric whose delta became
// undefined is removed from the gauge.
func (m *EvalMetrics) RecordComparison(cmp *domain.ComparisonResult) {
	if cmp == nil {
		return
	}
	m.comparisonsTotal.WithLabelValues(strconv.FormatBool(cmp.TargetMet)).Inc()
	for metric, mc := range cmp.PerMetric {
		if !mc.DeltaPct.Defined {
			m.comparisonMetricDiff.DeleteLabelValues(metric)
			continue
		}
		m.comparisonMetricDiff.WithLabelValues(metric).Set(mc.DeltaPct.Value)
	}
}

func (m *EvalMetrics) RetryScheduled(operation string) {
	m.retriesTotal.WithLabelValues(operation).Inc()
}

func (m *EvalMetrics) BreakerStateChanged(operation, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	m.breakerState.WithLabelValues(operation).Set(v)
}
