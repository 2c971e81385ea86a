package plan

import (
	"testing"

	"github.com/arcbound/turnloop/internal/turn/model"
)

func TestService_ActivatePlanMode_IsIdempotentPerChat(t *testing.T) {
	svc := NewService(true)

	p1 := svc.ActivatePlanMode("C1")
	p2 := svc.ActivatePlanMode("C1")

	if p1.ID != p2.ID {
		t.Fatalf("ActivatePlanMode returned two different plans for the same chat: %s != %s", p1.ID, p2.ID)
	}
	if p1.Status != model.PlanCollecting {
		t.Fatalf("Status = %s, want COLLECTING", p1.Status)
	}
	if !svc.IsActive("C1") {
		t.Fatal("IsActive false right after activation")
	}
}

func TestService_AddStep_AccumulatesInOrder(t *testing.T) {
	svc := NewService(true)
	p := svc.ActivatePlanMode("C1")

	s1, err := svc.AddStep(p.ID, "search", map[string]any{"q": "a"}, "look up a")
	if err != nil {
		t.Fatalf("AddStep #1 error: %v", err)
	}
	s2, err := svc.AddStep(p.ID, "send_email", map[string]any{"to": "x"}, "notify x")
	if err != nil {
		t.Fatalf("AddStep #2 error: %v", err)
	}

	if s1.Order != 0 || s2.Order != 1 {
		t.Fatalf("orders = %d, %d, want 0, 1", s1.Order, s2.Order)
	}

	active, ok := svc.ActivePlan("C1")
	if !ok || len(active.Steps) != 2 {
		t.Fatalf("ActivePlan steps = %v, want 2 steps", active)
	}
}

func TestService_AddStep_UnknownPlan(t *testing.T) {
	svc := NewService(true)
	if _, err := svc.AddStep("missing", "tool", nil, ""); err != ErrNotActive {
		t.Fatalf("AddStep on unknown plan = %v, want ErrNotActive", err)
	}
}

func TestService_FinalizePlan_RequiresAtLeastOneStep(t *testing.T) {
	svc := NewService(true)
	p := svc.ActivatePlanMode("C1")

	if err := svc.FinalizePlan(p.ID); err != ErrNoSteps {
		t.Fatalf("FinalizePlan with zero steps = %v, want ErrNoSteps", err)
	}

	if _, err := svc.AddStep(p.ID, "tool", nil, ""); err != nil {
		t.Fatalf("AddStep error: %v", err)
	}
	if err := svc.FinalizePlan(p.ID); err != nil {
		t.Fatalf("FinalizePlan error: %v", err)
	}

	active, _ := svc.ActivePlan("C1")
	if active.Status != model.PlanReady {
		t.Fatalf("Status = %s, want READY", active.Status)
	}
}

func TestService_FinalizePlan_RejectsDoubleFinalize(t *testing.T) {
	svc := NewService(true)
	p := svc.ActivatePlanMode("C1")
	svc.AddStep(p.ID, "tool", nil, "")
	if err := svc.FinalizePlan(p.ID); err != nil {
		t.Fatalf("first FinalizePlan error: %v", err)
	}
	if err := svc.FinalizePlan(p.ID); err != ErrNotCollecting {
		t.Fatalf("second FinalizePlan = %v, want ErrNotCollecting", err)
	}
}

func TestService_AddStep_RejectsAfterFinalize(t *testing.T) {
	svc := NewService(true)
	p := svc.ActivatePlanMode("C1")
	svc.AddStep(p.ID, "tool", nil, "")
	svc.FinalizePlan(p.ID)

	if _, err := svc.AddStep(p.ID, "tool2", nil, ""); err != ErrNotCollecting {
		t.Fatalf("AddStep after finalize = %v, want ErrNotCollecting", err)
	}
}

func TestService_ApprovePlan_ClearsActiveChat(t *testing.T) {
	svc := NewService(true)
	p := svc.ActivatePlanMode("C1")
	svc.AddStep(p.ID, "tool", nil, "")
	svc.FinalizePlan(p.ID)

	if err := svc.ApprovePlan(p.ID); err != nil {
		t.Fatalf("ApprovePlan error: %v", err)
	}
	if svc.IsActive("C1") {
		t.Fatal("IsActive true after approval — chat mapping should be cleared")
	}

	// A fresh ActivatePlanMode call must mint a new plan, not resurrect the
	// approved one.
	next := svc.ActivatePlanMode("C1")
	if next.ID == p.ID {
		t.Fatal("ActivatePlanMode reused an approved plan's ID")
	}
}

func TestService_CancelPlan_ClearsActiveChat(t *testing.T) {
	svc := NewService(true)
	p := svc.ActivatePlanMode("C1")

	if err := svc.CancelPlan(p.ID); err != nil {
		t.Fatalf("CancelPlan error: %v", err)
	}
	if svc.IsActive("C1") {
		t.Fatal("IsActive true after cancellation")
	}
	active, ok := svc.plans[p.ID]
	if !ok || active.Status != model.PlanCancelled {
		t.Fatalf("plan status = %v, want CANCELLED", active)
	}
}

func TestService_DeactivatePlanMode_NoActivePlan(t *testing.T) {
	svc := NewService(true)
	// Must be a no-op, not a panic, when nothing is active.
	svc.DeactivatePlanMode("C-never-activated")
	if svc.IsActive("C-never-activated") {
		t.Fatal("IsActive true for a chat that was never activated")
	}
}

func TestService_OperationsOnUnknownPlanID(t *testing.T) {
	svc := NewService(true)

	if err := svc.FinalizePlan("missing"); err != ErrNotActive {
		t.Fatalf("FinalizePlan(missing) = %v, want ErrNotActive", err)
	}
	if err := svc.CancelPlan("missing"); err != ErrNotActive {
		t.Fatalf("CancelPlan(missing) = %v, want ErrNotActive", err)
	}
	if err := svc.ApprovePlan("missing"); err != ErrNotActive {
		t.Fatalf("ApprovePlan(missing) = %v, want ErrNotActive", err)
	}
}
