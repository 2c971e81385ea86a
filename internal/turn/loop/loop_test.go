package loop

import (
	"context"
	"errors"
	"testing"

	"github.com/arcbound/turnloop/internal/turn/history"
	"github.com/arcbound/turnloop/internal/turn/model"
	"github.com/arcbound/turnloop/internal/turn/plan"
	"github.com/arcbound/turnloop/internal/turn/ports"
	"github.com/arcbound/turnloop/internal/turn/turnctx"
)

type scriptedLLM struct {
	responses []ports.LlmResponse
	errs      []error
	calls     int
}

func (f *scriptedLLM) Chat(ctx context.Context, req ports.LlmRequest) (*ports.LlmResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i >= len(f.responses) {
		return &ports.LlmResponse{Content: "out of script"}, nil
	}
	r := f.responses[i]
	return &r, nil
}

func (f *scriptedLLM) ChatStream(ctx context.Context, req ports.LlmRequest) (<-chan ports.LlmChunk, error) {
	return nil, errors.New("not implemented")
}
func (f *scriptedLLM) IsAvailable() bool         { return true }
func (f *scriptedLLM) ProviderID() string        { return "fake" }
func (f *scriptedLLM) SupportsStreaming() bool   { return false }
func (f *scriptedLLM) SupportedModels() []string { return []string{"fake-model"} }
func (f *scriptedLLM) CurrentModel() string      { return "fake-model" }

type fakeExecutor struct {
	outcome model.ToolExecutionOutcome
	calls   []model.ToolCall
}

func (f *fakeExecutor) Execute(ctx context.Context, call model.ToolCall) model.ToolExecutionOutcome {
	f.calls = append(f.calls, call)
	out := f.outcome
	out.ToolCallID = call.ID
	out.ToolName = call.Name
	return out
}

type panicExecutor struct{}

func (panicExecutor) Execute(ctx context.Context, call model.ToolCall) model.ToolExecutionOutcome {
	panic("executor exploded")
}

type fakeUsage struct {
	records []model.LlmUsage
}

func (f *fakeUsage) RecordUsage(providerID, modelName string, u model.LlmUsage) {
	f.records = append(f.records, u)
}

func newLoopSession(chatID string) *model.Session {
	return &model.Session{ID: "sess-1", ChannelType: "slack", ChatID: chatID}
}

func TestLoop_ProcessTurn_NoToolCallsReturnsSuccess(t *testing.T) {
	llm := &scriptedLLM{responses: []ports.LlmResponse{{Content: "final answer"}}}
	l := New(llm, &fakeExecutor{}, history.NewWriter(nil), nil, nil, nil, "fake-model", Config{})
	tc := turnctx.New(newLoopSession("C1"))

	outcome := l.ProcessTurn(context.Background(), tc)

	if outcome.FinishReason != model.FinishSuccess {
		t.Fatalf("FinishReason = %s, want SUCCESS", outcome.FinishReason)
	}
	if outcome.AssistantText != "final answer" {
		t.Fatalf("AssistantText = %q, want %q", outcome.AssistantText, "final answer")
	}
	if !tc.Bool(turnctx.KeyLoopComplete) || !tc.Bool(turnctx.KeyFinalAnswerReady) {
		t.Fatal("loop.complete/final.answer.ready not set on success")
	}
	if len(tc.Session.Messages) != 1 {
		t.Fatalf("session.Messages = %v, want one appended final assistant message", tc.Session.Messages)
	}
}

func TestLoop_ProcessTurn_ToolCallThenFinalAnswer(t *testing.T) {
	llm := &scriptedLLM{responses: []ports.LlmResponse{
		{ToolCalls: []model.ToolCall{{ID: "call-1", Name: "search", Arguments: map[string]any{"q": "go"}}}},
		{Content: "here's what I found"},
	}}
	executor := &fakeExecutor{outcome: model.ToolExecutionOutcome{Result: model.ToolSuccess("42 results"), MessageContent: "42 results"}}
	l := New(llm, executor, history.NewWriter(nil), nil, nil, nil, "fake-model", Config{})
	tc := turnctx.New(newLoopSession("C1"))

	outcome := l.ProcessTurn(context.Background(), tc)

	if outcome.FinishReason != model.FinishSuccess {
		t.Fatalf("FinishReason = %s, want SUCCESS", outcome.FinishReason)
	}
	if len(executor.calls) != 1 || executor.calls[0].Name != "search" {
		t.Fatalf("executor.calls = %v, want exactly one call to search", executor.calls)
	}
	// assistant (with tool call) + tool result + final assistant = 3 messages
	if len(tc.Session.Messages) != 3 {
		t.Fatalf("session.Messages = %v, want 3 appended messages", tc.Session.Messages)
	}
}

func TestLoop_ProcessTurn_LLMErrorStopsImmediately(t *testing.T) {
	wantErr := errors.New("provider unavailable")
	llm := &scriptedLLM{errs: []error{wantErr}}
	l := New(llm, &fakeExecutor{}, history.NewWriter(nil), nil, nil, nil, "fake-model", Config{})
	tc := turnctx.New(newLoopSession("C1"))

	outcome := l.ProcessTurn(context.Background(), tc)

	if outcome.FinishReason != model.FinishLLMError {
		t.Fatalf("FinishReason = %s, want LLM_ERROR", outcome.FinishReason)
	}
	if !errors.Is(outcome.Error, wantErr) {
		t.Fatalf("Error = %v, want %v", outcome.Error, wantErr)
	}
	if len(tc.Session.Messages) != 0 {
		t.Fatal("no messages should be appended on an immediate LLM error")
	}
}

func TestLoop_ProcessTurn_MaxIterationsReachedReturnsToolLimit(t *testing.T) {
	call := model.ToolCall{ID: "call-1", Name: "loopy", Arguments: nil}
	llm := &scriptedLLM{responses: []ports.LlmResponse{
		{ToolCalls: []model.ToolCall{call}},
		{ToolCalls: []model.ToolCall{call}},
		{ToolCalls: []model.ToolCall{call}},
	}}
	executor := &fakeExecutor{outcome: model.ToolExecutionOutcome{Result: model.ToolSuccess("ok"), MessageContent: "ok"}}
	l := New(llm, executor, history.NewWriter(nil), nil, nil, nil, "fake-model", Config{MaxIterations: 3})
	tc := turnctx.New(newLoopSession("C1"))

	outcome := l.ProcessTurn(context.Background(), tc)

	if outcome.FinishReason != model.FinishToolLimit {
		t.Fatalf("FinishReason = %s, want TOOL_LIMIT", outcome.FinishReason)
	}
	if len(executor.calls) != 3 {
		t.Fatalf("executor.calls = %d, want 3 (one per iteration)", len(executor.calls))
	}
}

func TestLoop_ProcessTurn_ToolPanicBecomesSyntheticFailure(t *testing.T) {
	llm := &scriptedLLM{responses: []ports.LlmResponse{
		{ToolCalls: []model.ToolCall{{ID: "call-1", Name: "explodes"}}},
		{Content: "recovered"},
	}}
	l := New(llm, panicExecutor{}, history.NewWriter(nil), nil, nil, nil, "fake-model", Config{})
	tc := turnctx.New(newLoopSession("C1"))

	outcome := l.ProcessTurn(context.Background(), tc)

	if outcome.FinishReason != model.FinishSuccess {
		t.Fatalf("FinishReason = %s, want SUCCESS (loop must survive a panicking tool)", outcome.FinishReason)
	}
	result, ok := tc.ToolResults["call-1"]
	if !ok || result.IsSuccess() {
		t.Fatalf("ToolResults[call-1] = %+v, want a recorded failure", result)
	}
}

func TestLoop_ProcessTurn_PlanModeInterceptsToolCallsInsteadOfExecuting(t *testing.T) {
	svc := plan.NewService(true)
	svc.ActivatePlanMode("C1")

	llm := &scriptedLLM{responses: []ports.LlmResponse{
		{ToolCalls: []model.ToolCall{{ID: "call-1", Name: "send_email", Arguments: map[string]any{"to": "a@b.com"}}}},
		{Content: "planned it"},
	}}
	executor := &fakeExecutor{}
	l := New(llm, executor, history.NewWriter(nil), nil, nil, svc, "fake-model", Config{})
	tc := turnctx.New(newLoopSession("C1"))

	l.ProcessTurn(context.Background(), tc)

	if len(executor.calls) != 0 {
		t.Fatalf("executor.calls = %v, want zero — plan mode must intercept instead of executing", executor.calls)
	}
	active, ok := svc.ActivePlan("C1")
	if !ok || len(active.Steps) != 1 || active.Steps[0].ToolName != "send_email" {
		t.Fatalf("plan steps = %+v, want one recorded send_email step", active)
	}
}

func TestLoop_ProcessTurn_ControlToolPlanSetContentIsNeverExecuted(t *testing.T) {
	llm := &scriptedLLM{responses: []ports.LlmResponse{
		{ToolCalls: []model.ToolCall{{ID: "call-1", Name: ControlToolPlanSetContent, Arguments: map[string]any{"content": "x"}}}},
		{Content: "done"},
	}}
	executor := &fakeExecutor{}
	l := New(llm, executor, history.NewWriter(nil), nil, nil, nil, "fake-model", Config{})
	tc := turnctx.New(newLoopSession("C1"))

	l.ProcessTurn(context.Background(), tc)

	if len(executor.calls) != 0 {
		t.Fatalf("executor.calls = %v, want zero for the control tool", executor.calls)
	}
	if !tc.Bool(turnctx.KeyPlanSetContentReq) {
		t.Fatal("plan.set_content.requested not set")
	}
}

func TestLoop_ProcessTurn_CancelAttributeStopsBetweenIterations(t *testing.T) {
	llm := &scriptedLLM{responses: []ports.LlmResponse{{Content: "never reached"}}}
	l := New(llm, &fakeExecutor{}, history.NewWriter(nil), nil, nil, nil, "fake-model", Config{})
	tc := turnctx.New(newLoopSession("C1"))
	tc.Set(turnctx.KeyCancel, true)

	outcome := l.ProcessTurn(context.Background(), tc)

	if outcome.FinishReason != model.FinishCancelled {
		t.Fatalf("FinishReason = %s, want CANCELLED", outcome.FinishReason)
	}
	if llm.calls != 0 {
		t.Fatalf("llm.calls = %d, want 0 after a pre-iteration cancel", llm.calls)
	}
}

func TestLoop_ProcessTurn_ContextCancellationStopsLoop(t *testing.T) {
	llm := &scriptedLLM{responses: []ports.LlmResponse{{Content: "never reached"}}}
	l := New(llm, &fakeExecutor{}, history.NewWriter(nil), nil, nil, nil, "fake-model", Config{})
	tc := turnctx.New(newLoopSession("C1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	outcome := l.ProcessTurn(ctx, tc)

	if outcome.FinishReason != model.FinishCancelled {
		t.Fatalf("FinishReason = %s, want CANCELLED", outcome.FinishReason)
	}
}

type fakeConfirmation struct {
	approve bool
	asked   []string
}

func (f *fakeConfirmation) Ask(_ context.Context, toolName string, _ map[string]any) (bool, error) {
	f.asked = append(f.asked, toolName)
	return f.approve, nil
}

func TestLoop_ProcessTurn_ConfirmationRefusalDeniesTool(t *testing.T) {
	llm := &scriptedLLM{responses: []ports.LlmResponse{
		{ToolCalls: []model.ToolCall{{ID: "call-1", Name: "delete_everything"}}},
		{Content: "nothing deleted"},
	}}
	executor := &fakeExecutor{}
	confirm := &fakeConfirmation{approve: false}
	l := New(llm, executor, history.NewWriter(nil), nil, nil, nil, "fake-model", Config{}).WithConfirmation(confirm)
	tc := turnctx.New(newLoopSession("C1"))
	tc.AvailableTools = []model.ToolDefinition{{Name: "delete_everything", RequiresConfirmation: true}}

	l.ProcessTurn(context.Background(), tc)

	if len(executor.calls) != 0 {
		t.Fatalf("executor.calls = %v, want zero after a refusal", executor.calls)
	}
	if len(confirm.asked) != 1 || confirm.asked[0] != "delete_everything" {
		t.Fatalf("confirm.asked = %v, want one ask", confirm.asked)
	}
	result := tc.ToolResults["call-1"]
	if result.IsSuccess() || result.Kind != model.ToolFailurePolicy {
		t.Fatalf("ToolResults[call-1] = %+v, want a POLICY_DENIED failure", result)
	}
}

func TestLoop_ProcessTurn_ConfirmationApprovalExecutesTool(t *testing.T) {
	llm := &scriptedLLM{responses: []ports.LlmResponse{
		{ToolCalls: []model.ToolCall{{ID: "call-1", Name: "delete_everything"}}},
		{Content: "done"},
	}}
	executor := &fakeExecutor{outcome: model.ToolExecutionOutcome{Result: model.ToolSuccess("ok"), MessageContent: "ok"}}
	l := New(llm, executor, history.NewWriter(nil), nil, nil, nil, "fake-model", Config{}).WithConfirmation(&fakeConfirmation{approve: true})
	tc := turnctx.New(newLoopSession("C1"))
	tc.AvailableTools = []model.ToolDefinition{{Name: "delete_everything", RequiresConfirmation: true}}

	l.ProcessTurn(context.Background(), tc)

	if len(executor.calls) != 1 {
		t.Fatalf("executor.calls = %v, want one approved execution", executor.calls)
	}
}

func TestLoop_ProcessTurn_ToolLimitKeepsLastAssistantText(t *testing.T) {
	call := model.ToolCall{ID: "call-1", Name: "loopy"}
	llm := &scriptedLLM{responses: []ports.LlmResponse{
		{Content: "working on it", ToolCalls: []model.ToolCall{call}},
		{Content: "still working", ToolCalls: []model.ToolCall{call}},
	}}
	executor := &fakeExecutor{outcome: model.ToolExecutionOutcome{Result: model.ToolSuccess("ok"), MessageContent: "ok"}}
	l := New(llm, executor, history.NewWriter(nil), nil, nil, nil, "fake-model", Config{MaxIterations: 2})
	tc := turnctx.New(newLoopSession("C1"))

	outcome := l.ProcessTurn(context.Background(), tc)

	if outcome.FinishReason != model.FinishToolLimit {
		t.Fatalf("FinishReason = %s, want TOOL_LIMIT", outcome.FinishReason)
	}
	if outcome.AssistantText != "still working" {
		t.Fatalf("AssistantText = %q, want the last assistant content", outcome.AssistantText)
	}
	if tc.String(turnctx.KeyLLMResponse) != "still working" {
		t.Fatal("llm.response should carry the last assistant content on tool limit")
	}
}

func TestLoop_ProcessTurn_RecordsUsage(t *testing.T) {
	llm := &scriptedLLM{responses: []ports.LlmResponse{
		{Content: "ok", Usage: &model.LlmUsage{InputTokens: 10, OutputTokens: 5}},
	}}
	usage := &fakeUsage{}
	l := New(llm, &fakeExecutor{}, history.NewWriter(nil), nil, usage, nil, "fake-model", Config{})
	tc := turnctx.New(newLoopSession("C1"))

	l.ProcessTurn(context.Background(), tc)

	if len(usage.records) != 1 {
		t.Fatalf("usage.records = %v, want one recorded usage", usage.records)
	}
	if usage.records[0].InputTokens != 10 || usage.records[0].SessionID != "C1" {
		t.Fatalf("usage.records[0] = %+v, want InputTokens=10, SessionID=C1", usage.records[0])
	}
}
