package plan

import (
	"context"

	"github.com/arcbound/turnloop/internal/turn/turnctx"
)

// InterceptOrder would place a standalone intercept stage right before the
// Tool Loop, the position an alternative wiring would use.
const InterceptOrder = 29

// InterceptStage is the disabled alternative to intercepting plan-mode tool
// calls inside the Tool Loop. This build keeps interception in the loop
// (see internal/turn/loop and DESIGN.md); InterceptStage exists so the
// pipeline's stage vocabulary names both wirings, and it always reports
// itself disabled so the two interception paths can never both run in one
// turn.
type InterceptStage struct {
	Service *Service
}

// NewInterceptStage builds the disabled order-29 Plan Intercept stage.
func NewInterceptStage(svc *Service) *InterceptStage {
	return &InterceptStage{Service: svc}
}

func (s *InterceptStage) Name() string { return "PlanIntercept" }

func (s *InterceptStage) Order() int { return InterceptOrder }

// IsEnabled always returns false: interception lives inside the Tool Loop
// in this build, never in a separate stage.
func (s *InterceptStage) IsEnabled() bool { return false }

func (s *InterceptStage) ShouldProcess(tc *turnctx.Context) bool { return false }

func (s *InterceptStage) Process(ctx context.Context, tc *turnctx.Context) error { return nil }
