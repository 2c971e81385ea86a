package model

import "time"

// FinishReason is the terminal state of a Tool Loop turn.
type FinishReason string

const (
	FinishSuccess   FinishReason = "SUCCESS"
	FinishToolLimit FinishReason = "TOOL_LIMIT"
	FinishLLMError  FinishReason = "LLM_ERROR"
	FinishCancelled FinishReason = "CANCELLED"
)

// TurnOutcome is the result the Tool Loop returns for one turn.
type TurnOutcome struct {
	FinishReason FinishReason
	AssistantText string
	Error         error
}

// RoutingOutcome records what Response Routing actually did.
type RoutingOutcome struct {
	Attempted   bool
	SentText    bool
	SentVoice   bool
	ChannelType string
	Error       error
}

// LlmUsage is one LLM call's token accounting, recorded best-effort into
// usage tracking.
type LlmUsage struct {
	InputTokens  int64
	OutputTokens int64
	Latency      time.Duration
	Timestamp    time.Time
	SessionID    string
	Model        string
	ProviderID   string
}

// RuntimeEventType enumerates the turn lifecycle events the orchestrator can
// publish to channels.
type RuntimeEventType string

const (
	EventTurnStarted  RuntimeEventType = "TURN_STARTED"
	EventTurnFinished RuntimeEventType = "TURN_FINISHED"
	EventTurnFailed   RuntimeEventType = "TURN_FAILED"
)

// RuntimeEvent is a turn lifecycle notification routed to a channel alongside
// (or instead of) the textual response.
type RuntimeEvent struct {
	Type        RuntimeEventType
	Timestamp   time.Time
	SessionID   string
	ChannelType string
	ChatID      string
	Payload     map[string]any
}

// PlanReadyEvent is published when Plan Finalization moves a plan to READY.
type PlanReadyEvent struct {
	PlanID string
	ChatID string
}
