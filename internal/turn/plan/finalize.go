package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/arcbound/turnloop/internal/turn/model"
	"github.com/arcbound/turnloop/internal/turn/ports"
	"github.com/arcbound/turnloop/internal/turn/turnctx"
)

// FinalizationOrder is this stage's fixed pipeline position.
const FinalizationOrder = 58

// FinalizationStage runs after the Tool Loop reaches a final answer while
// plan mode is active, deciding whether the accumulated plan is empty
// (cancel), missing (deactivate), or ready for approval (finalize + publish
// PlanReadyEvent).
type FinalizationStage struct {
	Service   *Service
	Publisher ports.EventPublisher
}

// NewFinalizationStage builds the order-58 Plan Finalization stage.
func NewFinalizationStage(svc *Service, pub ports.EventPublisher) *FinalizationStage {
	return &FinalizationStage{Service: svc, Publisher: pub}
}

func (s *FinalizationStage) Name() string { return "PlanFinalization" }
func (s *FinalizationStage) Order() int   { return FinalizationOrder }

// IsEnabled mirrors the Plan Service's feature flag.
func (s *FinalizationStage) IsEnabled() bool {
	return s.Service != nil && s.Service.IsFeatureEnabled()
}

// ShouldProcess runs only when plan mode is active for this chat, the Tool
// Loop produced an LLM response, and no tool calls are still pending (i.e.
// the loop reached its final answer).
func (s *FinalizationStage) ShouldProcess(tc *turnctx.Context) bool {
	if !s.Service.IsActive(tc.Session.ChatID) {
		return false
	}
	if !tc.Bool(turnctx.KeyFinalAnswerReady) {
		return false
	}
	_, ok := tc.Get(turnctx.KeyLLMResponse)
	return ok
}

// Process deactivates plan mode when no plan exists, cancels an empty one,
// and otherwise finalizes the plan and announces it for approval.
func (s *FinalizationStage) Process(_ context.Context, tc *turnctx.Context) error {
	chatID := tc.Session.ChatID

	p, ok := s.Service.ActivePlan(chatID)
	if !ok {
		s.Service.DeactivatePlanMode(chatID)
		return nil
	}

	if len(p.Steps) == 0 {
		return s.Service.CancelPlan(p.ID)
	}

	if err := s.Service.FinalizePlan(p.ID); err != nil {
		return err
	}

	if s.Publisher != nil {
		s.Publisher.PublishPlanReady(model.PlanReadyEvent{PlanID: p.ID, ChatID: chatID})
	}
	tc.Set(turnctx.KeyPlanApprovalNeeded, p.ID)

	existing, _ := tc.Get(turnctx.KeyLLMResponse)
	text, _ := existing.(string)
	tc.Set(turnctx.KeyLLMResponse, text+renderSummary(p))
	return nil
}

func renderSummary(p *model.Plan) string {
	var b strings.Builder
	b.WriteString("\n\nWaiting for approval\n")
	for i, step := range p.Steps {
		fmt.Fprintf(&b, "%d. %s — %s\n", i+1, step.ToolName, step.Description)
	}
	return b.String()
}
