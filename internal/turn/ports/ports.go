// Package ports declares every external collaborator the turn orchestrator
// consumes or is consumed by. Implementations live outside this package
// (concrete LLM providers, channel adapters, storage backends); the
// orchestrator core depends only on these interfaces.
package ports

import (
	"context"
	"time"

	"github.com/arcbound/turnloop/internal/turn/model"
)

// LlmRequest is the outbound request built by the Conversation View Builder.
type LlmRequest struct {
	Model           string
	ReasoningEffort string
	System          string
	Messages        []model.Message
	Tools           []model.ToolDefinition
}

// LlmResponse is the LLM's answer for one turn of the Tool Loop.
type LlmResponse struct {
	Content   string
	ToolCalls []model.ToolCall
	Usage     *model.LlmUsage
}

// LlmChunk is one piece of a streamed response.
type LlmChunk struct {
	TextDelta string
	ToolCalls []model.ToolCall
	Usage     *model.LlmUsage
	Done      bool
	Err       error
}

// LlmPort is the outbound capability the Tool Loop drives each iteration.
type LlmPort interface {
	Chat(ctx context.Context, req LlmRequest) (*LlmResponse, error)
	ChatStream(ctx context.Context, req LlmRequest) (<-chan LlmChunk, error)
	IsAvailable() bool
	ProviderID() string
	SupportsStreaming() bool
	SupportedModels() []string
	CurrentModel() string
}

// ToolExecutorPort executes one tool call and returns its outcome. Tool
// calls are always submitted one at a time, in order; this port has no
// concept of batching.
type ToolExecutorPort interface {
	Execute(ctx context.Context, call model.ToolCall) model.ToolExecutionOutcome
}

// McpPort bridges skill-declared MCP servers into tool definitions and
// executable adapters.
type McpPort interface {
	GetOrStartClient(ctx context.Context, skill model.Skill) ([]model.ToolDefinition, error)
	CreateToolAdapter(skillName string, def model.ToolDefinition) (ToolExecutorPort, error)
}

// RagPort is the optional retrieval-augmented-context collaborator.
type RagPort interface {
	IsAvailable() bool
	Query(ctx context.Context, sessionID, text string) (string, error)
}

// SkillMatchResult is what the matcher decides for one routing query.
type SkillMatchResult struct {
	SelectedSkill     string
	Confidence        float64
	ModelTier         string
	Reason            string
	LlmClassifierUsed bool
	Latency           time.Duration
}

// SkillMatcherPort classifies a routing query against the available skills.
type SkillMatcherPort interface {
	IsEnabled() bool
	IsReady() bool
	IndexSkills(ctx context.Context, skills []model.Skill) error
	Match(ctx context.Context, query string, skills []model.Skill, recent []model.Message) (*SkillMatchResult, error)
}

// SessionPort resolves the session for a (channelType, chatId) pair and
// durably records the messages a turn appends to it.
type SessionPort interface {
	GetOrCreate(ctx context.Context, channelType, chatID string) (*model.Session, error)

	// Persist mirrors session.Messages[fromIndex:] into durable storage.
	Persist(ctx context.Context, session *model.Session, fromIndex int) error
}

// RateLimitResult is the verdict from a RateLimitPort check.
type RateLimitResult struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RateLimitPort gates turns before the pipeline runs.
type RateLimitPort interface {
	TryConsume(key string) RateLimitResult
}

// ConfirmationPort asks a human to approve a sensitive tool call.
type ConfirmationPort interface {
	Ask(ctx context.Context, toolName string, args map[string]any) (bool, error)
}

// UsageTrackingPort records LLM usage. Implementations must swallow their
// own errors; usage tracking is best-effort and never surfaces a failure to
// the Tool Loop.
type UsageTrackingPort interface {
	RecordUsage(providerID, model string, usage model.LlmUsage)
}

// PreferencesPort resolves user-facing, localized copy by message key — the
// rate-limit rejection and the feedback-guarantee fallback both come from
// here rather than being hardcoded in the pipeline.
type PreferencesPort interface {
	GetMessage(chatID, key string, args ...any) string
}

// ModelSelectionPort resolves a symbolic model tier to a concrete model and
// reasoning effort for the Tool Loop to request.
type ModelSelectionPort interface {
	Resolve(tier string) (modelName string, reasoningEffort string)
}

// MemoryPort supplies the durable "# Memory" section of the system prompt.
// The memory store itself is an external collaborator; this is its read
// interface from the turn orchestrator's perspective.
type MemoryPort interface {
	GetMemoryContext(ctx context.Context, sessionID string) (string, error)
}

// MemoryWriterPort persists a distilled record of a completed exchange so
// later turns can recall it. Writes are best-effort; a failed write never
// fails the turn.
type MemoryWriterPort interface {
	Remember(ctx context.Context, sessionID, userText, assistantText string) error
}

// PromptSectionService renders the ordered, templated portion of the system
// prompt. A disabled service (or one returning zero sections) falls back to
// the default identity line.
type PromptSectionService interface {
	IsEnabled() bool
	Sections(ctx context.Context) ([]model.PromptSection, error)
}

// AutoModePort supplies the "# Goals" section and model tier for a turn the
// last user message tagged auto.mode=true.
type AutoModePort interface {
	GoalsContext(ctx context.Context, session *model.Session) (string, error)
	ModelTier() string
}

// SendOptions carries optional attachment/voice hints for ChannelPort.SendMessage.
type SendOptions struct {
	Attachments    []string
	VoiceRequested bool
}

// ChannelPort is an inbound-dispatch collaborator: one per messaging
// platform, selected by channel type at Response Routing time.
type ChannelPort interface {
	ChannelType() string
	SendMessage(ctx context.Context, chatID, text string, opts *SendOptions) error
	SendRuntimeEvent(ctx context.Context, chatID string, event model.RuntimeEvent) error
}

// VoiceResponseHandler attempts a voice-channel fallback alongside text.
type VoiceResponseHandler interface {
	IsAvailable() bool
	TrySendVoice(ctx context.Context, session *model.Session, chatID, text string) error
}

// EventPublisher is the message-passing sink the orchestrator injects for
// plan-ready and runtime events, avoiding a global event bus.
type EventPublisher interface {
	PublishPlanReady(event model.PlanReadyEvent)
	PublishRuntimeEvent(event model.RuntimeEvent)
}
