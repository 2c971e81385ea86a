// Package observability exposes the Prometheus series the turn pipeline
// reports: per-stage execution latency and outcome, LLM request volume and
// token counts, and outbound channel sends.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every collector the pipeline records into. Construct one
// per process with NewMetrics and share it.
type Metrics struct {
	stageDuration *prometheus.HistogramVec
	stageOutcomes *prometheus.CounterVec

	llmRequests     *prometheus.CounterVec
	llmLatency      *prometheus.HistogramVec
	llmInputTokens  *prometheus.CounterVec
	llmOutputTokens *prometheus.CounterVec

	channelSends *prometheus.CounterVec

	turnsProcessed *prometheus.CounterVec
}

// NewMetrics registers all collectors with reg (use
// prometheus.DefaultRegisterer in production, a fresh registry in tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "turn_stage_duration_seconds",
			Help:    "Wall-clock duration of each pipeline stage execution.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		stageOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "turn_stage_executions_total",
			Help: "Pipeline stage executions by terminal status (ok, error, panic).",
		}, []string{"stage", "status"}),
		llmRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_requests_total",
			Help: "LLM calls by provider, model, and status.",
		}, []string{"provider", "model", "status"}),
		llmLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_request_duration_seconds",
			Help:    "LLM call latency by provider and model.",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"provider", "model"}),
		llmInputTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_input_tokens_total",
			Help: "Input tokens consumed by provider and model.",
		}, []string{"provider", "model"}),
		llmOutputTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_output_tokens_total",
			Help: "Output tokens produced by provider and model.",
		}, []string{"provider", "model"}),
		channelSends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "channel_sends_total",
			Help: "Outbound channel deliveries by channel type and status.",
		}, []string{"channel", "status"}),
		turnsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "turns_processed_total",
			Help: "Completed turns by finish reason.",
		}, []string{"finish_reason"}),
	}
}

// RecordStageExecution reports one pipeline stage run.
func (m *Metrics) RecordStageExecution(stage, status string, seconds float64) {
	m.stageDuration.WithLabelValues(stage).Observe(seconds)
	m.stageOutcomes.WithLabelValues(stage, status).Inc()
}

// RecordLLMRequest reports one LLM call with its token accounting.
func (m *Metrics) RecordLLMRequest(provider, model, status string, seconds float64, inputTokens, outputTokens int) {
	m.llmRequests.WithLabelValues(provider, model, status).Inc()
	m.llmLatency.WithLabelValues(provider, model).Observe(seconds)
	if inputTokens > 0 {
		m.llmInputTokens.WithLabelValues(provider, model).Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.llmOutputTokens.WithLabelValues(provider, model).Add(float64(outputTokens))
	}
}

// RecordChannelSend reports one outbound delivery attempt.
func (m *Metrics) RecordChannelSend(channel, status string) {
	m.channelSends.WithLabelValues(channel, status).Inc()
}

// RecordTurn reports one completed turn.
func (m *Metrics) RecordTurn(finishReason string) {
	m.turnsProcessed.WithLabelValues(finishReason).Inc()
}
