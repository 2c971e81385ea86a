package model

// PlanStatus is the Plan Service's state machine.
type PlanStatus string

const (
	PlanCollecting PlanStatus = "COLLECTING"
	PlanReady      PlanStatus = "READY"
	PlanApproved   PlanStatus = "APPROVED"
	PlanCancelled  PlanStatus = "CANCELLED"
)

// Plan accumulates tool calls proposed while plan mode is active, for the
// user to approve before any of them run for real.
type Plan struct {
	ID     string
	ChatID string
	Status PlanStatus
	Steps  []PlanStep
}

// PlanStep is one tool call recorded into a Plan.
type PlanStep struct {
	ID          string
	ToolName    string
	Description string
	Order       int
	Arguments   map[string]any
}
