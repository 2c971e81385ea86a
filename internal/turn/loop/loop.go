// Package loop implements the Tool Loop: a bounded, in-turn iteration
// between LLM calls and tool executions. It owns raw-history persistence
// (via the History Writer), conversation-view flattening on model switch,
// and — per the wiring choice recorded in DESIGN.md — plan-mode
// interception of proposed tool calls.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/arcbound/turnloop/internal/turn/history"
	"github.com/arcbound/turnloop/internal/turn/model"
	"github.com/arcbound/turnloop/internal/turn/plan"
	"github.com/arcbound/turnloop/internal/turn/ports"
	"github.com/arcbound/turnloop/internal/turn/turnctx"
	"github.com/arcbound/turnloop/internal/turn/view"
)

// ControlToolPlanSetContent is the one control tool the loop intercepts
// itself rather than ever handing to the executor.
const ControlToolPlanSetContent = "plan_set_content"

// Config bounds the Tool Loop's iteration.
type Config struct {
	// MaxIterations caps LLM<->tool round trips within one turn.
	MaxIterations int
}

// DefaultConfig bounds a turn to ten LLM<->tool round trips.
func DefaultConfig() Config {
	return Config{MaxIterations: 10}
}

func sanitizeConfig(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = defaults.MaxIterations
	}
	return cfg
}

// Loop drives the LLM<->tool iteration for a single turn.
type Loop struct {
	llm         ports.LlmPort
	executor    ports.ToolExecutorPort
	writer      *history.Writer
	modelSelect ports.ModelSelectionPort
	usage       ports.UsageTrackingPort
	plans       *plan.Service
	confirm     ports.ConfirmationPort

	config       Config
	defaultModel string
	logger       *slog.Logger
}

// New builds a Tool Loop. cfg's zero values are replaced by DefaultConfig().
func New(llm ports.LlmPort, executor ports.ToolExecutorPort, writer *history.Writer, modelSelect ports.ModelSelectionPort, usage ports.UsageTrackingPort, plans *plan.Service, defaultModel string, cfg Config) *Loop {
	return &Loop{
		llm:          llm,
		executor:     executor,
		writer:       writer,
		modelSelect:  modelSelect,
		usage:        usage,
		plans:        plans,
		config:       sanitizeConfig(cfg),
		defaultModel: defaultModel,
		logger:       slog.Default().With("component", "tool_loop"),
	}
}

// WithConfirmation wires a human-in-the-loop gate for tools whose
// definition requires it. Safe to leave unset.
func (l *Loop) WithConfirmation(c ports.ConfirmationPort) *Loop {
	l.confirm = c
	return l
}

// ProcessTurn runs the bounded LLM<->tool iteration for tc, writing every
// assistant/tool message it produces to tc.Session via the History Writer.
func (l *Loop) ProcessTurn(ctx context.Context, tc *turnctx.Context) model.TurnOutcome {
	chatID := tc.Session.ChatID

	for iteration := 0; iteration < l.config.MaxIterations; iteration++ {
		tc.CurrentIteration = iteration

		if ctx.Err() != nil || tc.Bool(turnctx.KeyCancel) {
			outcome := model.TurnOutcome{FinishReason: model.FinishCancelled, Error: ctx.Err()}
			tc.TurnOutcome = &outcome
			return outcome
		}

		selectedModel, reasoningEffort, modelSwitch := l.resolveModel(tc)

		viewMessages, diags := view.Build(tc.Session.Snapshot(), modelSwitch)
		for _, d := range diags {
			l.logger.Debug("conversation view diagnostic", "message_id", d.MessageID, "note", d.Note)
		}

		resp, err := l.llm.Chat(ctx, ports.LlmRequest{
			Model:           selectedModel,
			ReasoningEffort: reasoningEffort,
			System:          tc.SystemPrompt,
			Messages:        viewMessages,
			Tools:           tc.AvailableTools,
		})
		if err != nil || resp == nil {
			outcome := model.TurnOutcome{FinishReason: model.FinishLLMError, Error: err}
			tc.TurnOutcome = &outcome
			return outcome
		}

		l.recordUsage(resp, selectedModel, chatID)

		if len(resp.ToolCalls) == 0 {
			l.writer.AppendFinalAssistant(tc.Session, resp.Content)
			tc.Set(turnctx.KeyFinalAnswerReady, true)
			tc.Set(turnctx.KeyLoopComplete, true)
			tc.Set(turnctx.KeyLLMResponse, resp.Content)
			outcome := model.TurnOutcome{FinishReason: model.FinishSuccess, AssistantText: resp.Content}
			tc.TurnOutcome = &outcome
			return outcome
		}

		l.writer.AppendAssistant(tc.Session, resp.Content, resp.ToolCalls)

		planActive := l.plans != nil && l.plans.IsActive(chatID)
		for _, call := range resp.ToolCalls {
			outcome := l.handleToolCall(ctx, tc, call, planActive)
			tc.ToolResults[call.ID] = outcome.Result
			l.writer.AppendTool(tc.Session, call.ID, call.Name, outcome.MessageContent)
		}
	}

	lastContent := lastAssistantContent(tc.Session.Messages)
	if lastContent != "" {
		tc.Set(turnctx.KeyLLMResponse, lastContent)
	}
	outcome := model.TurnOutcome{FinishReason: model.FinishToolLimit, AssistantText: lastContent}
	tc.TurnOutcome = &outcome
	return outcome
}

func lastAssistantContent(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleAssistant && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}

func (l *Loop) resolveModel(tc *turnctx.Context) (selectedModel, reasoningEffort string, modelSwitch bool) {
	selectedModel = l.defaultModel
	if tc.ModelTier != "" && l.modelSelect != nil {
		selectedModel, reasoningEffort = l.modelSelect.Resolve(tc.ModelTier)
	}
	if selectedModel == "" {
		selectedModel = l.defaultModel
	}
	modelSwitch = selectedModel != tc.Session.LastModel()
	tc.Session.SetLastModel(selectedModel)
	return selectedModel, reasoningEffort, modelSwitch
}

func (l *Loop) recordUsage(resp *ports.LlmResponse, selectedModel, sessionID string) {
	if l.usage == nil || resp.Usage == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Warn("usage tracker panicked, ignoring", "panic", r)
		}
	}()
	usage := *resp.Usage
	usage.Model = selectedModel
	usage.SessionID = sessionID
	l.usage.RecordUsage(l.llm.ProviderID(), selectedModel, usage)
}

func (l *Loop) handleToolCall(ctx context.Context, tc *turnctx.Context, call model.ToolCall, planActive bool) model.ToolExecutionOutcome {
	if planActive {
		return l.interceptForPlan(tc, call)
	}

	if call.Name == ControlToolPlanSetContent {
		tc.Set(turnctx.KeyPlanSetContentReq, true)
		return model.SyntheticSuccess(call, "plan content recorded", map[string]any{"control": true})
	}

	if l.confirm != nil && requiresConfirmation(tc.AvailableTools, call.Name) {
		approved, err := l.confirm.Ask(ctx, call.Name, call.Arguments)
		if err != nil || !approved {
			return model.SyntheticOutcome(call, model.ToolFailurePolicy, "tool call not approved by user")
		}
	}

	return l.execute(ctx, call)
}

func requiresConfirmation(tools []model.ToolDefinition, name string) bool {
	for _, t := range tools {
		if t.Name == name {
			return t.RequiresConfirmation
		}
	}
	return false
}

func (l *Loop) execute(ctx context.Context, call model.ToolCall) (outcome model.ToolExecutionOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = model.SyntheticOutcome(call, model.ToolFailureExecution, fmt.Sprintf("tool panicked: %v", r))
		}
	}()
	return l.executor.Execute(ctx, call)
}

func (l *Loop) interceptForPlan(tc *turnctx.Context, call model.ToolCall) model.ToolExecutionOutcome {
	p, ok := l.plans.ActivePlan(tc.Session.ChatID)
	if !ok {
		return l.execute(context.Background(), call)
	}
	description := summarizeArguments(call.Arguments)
	if _, err := l.plans.AddStep(p.ID, call.Name, call.Arguments, description); err != nil {
		return model.SyntheticOutcome(call, model.ToolFailureExecution, err.Error())
	}
	msg := fmt.Sprintf("[Planned] %s(%s)", call.Name, description)
	return model.SyntheticSuccess(call, msg, map[string]any{"planned": true})
}

func summarizeArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, args[k]))
	}
	return strings.Join(parts, ", ")
}
