package loop

import (
	"context"

	"github.com/arcbound/turnloop/internal/turn/classify"
	"github.com/arcbound/turnloop/internal/turn/model"
	"github.com/arcbound/turnloop/internal/turn/turnctx"
)

// StageOrder is the Tool Loop's fixed pipeline position.
const StageOrder = 30

// Stage adapts a Loop into a pipeline.Stage. It is the sole LLM/tool path in
// this build — the legacy LLM/plan-intercept/legacy-tools wiring described
// as an alternative wiring is not registered, so the two can never run in the
// same turn (see DESIGN.md).
type Stage struct {
	Loop *Loop
}

// NewStage wraps loop as the order-30 ToolLoopExecution stage.
func NewStage(l *Loop) *Stage { return &Stage{Loop: l} }

func (s *Stage) Name() string { return "ToolLoopExecution" }
func (s *Stage) Order() int   { return StageOrder }
func (s *Stage) IsEnabled() bool { return s.Loop != nil }

// ShouldProcess skips the loop entirely once an earlier stage has already
// recorded an llm.error, or once a previous run already marked the turn
// complete (defensive; a fresh context never has either set).
func (s *Stage) ShouldProcess(tc *turnctx.Context) bool {
	if _, ok := tc.Get(turnctx.KeyLLMError); ok {
		return false
	}
	return !tc.Bool(turnctx.KeyLoopComplete)
}

// Process runs the bounded LLM<->tool iteration and, on an LLM_ERROR finish,
// records the classified code under llm.error so Feedback Guarantee still
// produces a reply.
func (s *Stage) Process(ctx context.Context, tc *turnctx.Context) error {
	outcome := s.Loop.ProcessTurn(ctx, tc)
	if outcome.FinishReason == model.FinishLLMError {
		tc.Set(turnctx.KeyLLMError, classify.ClassifyFromThrowable(outcome.Error))
	}
	return nil
}
