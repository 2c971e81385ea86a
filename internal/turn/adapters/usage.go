package adapters

import (
	"github.com/arcbound/turnloop/internal/observability"
	"github.com/arcbound/turnloop/internal/turn/model"
	"github.com/arcbound/turnloop/internal/usage"
)

// UsageAdapter implements ports.UsageTrackingPort over usage.Tracker,
// converting the Tool Loop's per-call LlmUsage into a usage.Record. When
// Metrics is set, every recorded call also feeds the LLM request/token
// Prometheus series.
type UsageAdapter struct {
	Tracker *usage.Tracker
	Metrics *observability.Metrics
}

// NewUsageAdapter wraps tracker.
func NewUsageAdapter(tracker *usage.Tracker) *UsageAdapter {
	return &UsageAdapter{Tracker: tracker}
}

// WithMetrics attaches a Prometheus metrics recorder. Safe to leave unset.
func (a *UsageAdapter) WithMetrics(m *observability.Metrics) *UsageAdapter {
	a.Metrics = m
	return a
}

// RecordUsage converts and records one LLM call's token accounting.
func (a *UsageAdapter) RecordUsage(providerID, modelName string, u model.LlmUsage) {
	a.Tracker.Record(usage.Record{
		Provider:  providerID,
		Model:     modelName,
		ChannelID: u.SessionID,
		Usage: usage.Usage{
			InputTokens:  u.InputTokens,
			OutputTokens: u.OutputTokens,
		},
		Timestamp: u.Timestamp,
	})
	if a.Metrics != nil {
		a.Metrics.RecordLLMRequest(providerID, modelName, "success", u.Latency.Seconds(), int(u.InputTokens), int(u.OutputTokens))
	}
}
