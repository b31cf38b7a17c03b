package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	questionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querybuddy_questions_total",
			Help: "Total number of natural-language questions received.",
		},
	)
	answersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybuddy_answers_total",
			Help: "Total number of workflow outcomes by status.",
		},
		[]string{"status"},
	)
	workflowStageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querybuddy_workflow_stage_duration_seconds",
			Help:    "Workflow stage latency.",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)
	llmRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybuddy_llm_requests_total",
			Help: "Total number of LLM completion requests by model and outcome.",
		},
		[]string{"model", "outcome"},
	)
	llmRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querybuddy_llm_request_duration_seconds",
			Help:    "LLM completion latency by model.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 45},
		},
		[]string{"model"},
	)
	sqlRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybuddy_sql_rejected_total",
			Help: "Total number of generated queries rejected by the guard, by reason.",
		},
		[]string{"reason"},
	)
	targetQueryDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querybuddy_target_query_duration_seconds",
			Help:    "Execution latency of queries against the target database.",
			Buckets: []float64{0.001, 0.005, 0.025, 0.1, 0.25, 1, 2.5, 10},
		},
	)
	exportsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querybuddy_exports_total",
			Help: "Total number of result exports by format.",
		},
		[]string{"format"},
	)
)

func init() {
	prometheus.MustRegister(
		questionsTotal,
		answersTotal,
		workflowStageDurationSeconds,
		llmRequestsTotal,
		llmRequestDurationSeconds,
		sqlRejectedTotal,
		targetQueryDurationSeconds,
		exportsTotal,
	)
}

func ObserveQuestion() {
	questionsTotal.Inc()
}

func ObserveAnswer(status string) {
	answersTotal.WithLabelValues(status).Inc()
}

func ObserveWorkflowStage(stage string, elapsed time.Duration) {
	workflowStageDurationSeconds.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func ObserveLLMRequest(model, outcome string, elapsed time.Duration) {
	llmRequestsTotal.WithLabelValues(model, outcome).Inc()
	llmRequestDurationSeconds.WithLabelValues(model).Observe(elapsed.Seconds())
}

func ObserveSQLRejected(reason string) {
	sqlRejectedTotal.WithLabelValues(reason).Inc()
}

func ObserveTargetQuery(elapsed time.Duration) {
	targetQueryDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveExport(format string) {
	exportsTotal.WithLabelValues(format).Inc()
}
