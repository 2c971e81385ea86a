// Package plan implements the Plan Service state machine: COLLECTING ->
// READY -> {APPROVED|CANCELLED}. At most one plan is active per chat; the
// active-plan registry is process-wide, created on plan-mode activation and
// destroyed on approval, cancellation, or deactivation.
package plan

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/arcbound/turnloop/internal/turn/model"
)

var (
	// ErrNotActive is returned when an operation targets a planID with no
	// tracked plan (already finalized/cancelled, or never created).
	ErrNotActive = errors.New("plan: not active")
	// ErrNotCollecting is returned when addStep or finalizePlan is called on
	// a plan that has already left COLLECTING.
	ErrNotCollecting = errors.New("plan: not in COLLECTING state")
	// ErrNoSteps is returned by FinalizePlan when the plan has zero steps.
	ErrNoSteps = errors.New("plan: cannot finalize with zero steps")
)

// Service tracks every chat's active plan and enforces the state machine.
// Mutations to one plan's steps are serialized by a lock scoped to that
// plan's ID, not by one lock shared across every chat: AddStep on plan A
// never blocks AddStep on plan B. registryMu guards only the lookup maps
// (plans, activeByChat, locks) themselves, and is held just long enough to
// find or create the per-plan lock.
type Service struct {
	registryMu   sync.Mutex
	plans        map[string]*model.Plan // planID -> plan
	activeByChat map[string]string      // chatID -> planID
	locks        map[string]*sync.Mutex // planID -> step-mutation lock
	enabled      bool
}

// NewService builds a plan Service. enabled mirrors IsFeatureEnabled(),
// which gates whether Plan Finalization runs at all.
func NewService(enabled bool) *Service {
	return &Service{
		plans:        make(map[string]*model.Plan),
		activeByChat: make(map[string]string),
		locks:        make(map[string]*sync.Mutex),
		enabled:      enabled,
	}
}

// IsFeatureEnabled reports whether plan mode is built into this deployment.
func (s *Service) IsFeatureEnabled() bool {
	return s.enabled
}

// planLock returns (creating if needed) the single-writer lock for planID.
func (s *Service) planLock(planID string) *sync.Mutex {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	l, ok := s.locks[planID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[planID] = l
	}
	return l
}

// ActivatePlanMode starts (or returns the existing) COLLECTING plan for
// chatID.
func (s *Service) ActivatePlanMode(chatID string) *model.Plan {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	if id, ok := s.activeByChat[chatID]; ok {
		if p, ok := s.plans[id]; ok {
			return p
		}
	}

	p := &model.Plan{
		ID:     uuid.NewString(),
		ChatID: chatID,
		Status: model.PlanCollecting,
	}
	s.plans[p.ID] = p
	s.activeByChat[chatID] = p.ID
	s.locks[p.ID] = &sync.Mutex{}
	return p
}

// IsActive reports whether chatID currently has a plan-mode branch live.
func (s *Service) IsActive(chatID string) bool {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	_, ok := s.activeByChat[chatID]
	return ok
}

// ActivePlan returns chatID's active plan, if any.
func (s *Service) ActivePlan(chatID string) (*model.Plan, bool) {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	id, ok := s.activeByChat[chatID]
	if !ok {
		return nil, false
	}
	p, ok := s.plans[id]
	return p, ok
}

func (s *Service) lookupPlan(planID string) (*model.Plan, bool) {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	p, ok := s.plans[planID]
	return p, ok
}

func (s *Service) clearActiveChat(chatID string) {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()
	delete(s.activeByChat, chatID)
}

// AddStep appends a tool call as a plan step, in insertion order. Only valid
// while the plan is COLLECTING. Holds only planID's own lock, so concurrent
// AddStep calls against other plans proceed unblocked.
func (s *Service) AddStep(planID, toolName string, args map[string]any, description string) (model.PlanStep, error) {
	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	p, ok := s.lookupPlan(planID)
	if !ok {
		return model.PlanStep{}, ErrNotActive
	}
	if p.Status != model.PlanCollecting {
		return model.PlanStep{}, ErrNotCollecting
	}

	step := model.PlanStep{
		ID:          uuid.NewString(),
		ToolName:    toolName,
		Description: description,
		Order:       len(p.Steps),
		Arguments:   args,
	}
	p.Steps = append(p.Steps, step)
	return step, nil
}

// FinalizePlan moves a COLLECTING plan to READY. Requires at least one step.
func (s *Service) FinalizePlan(planID string) error {
	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	p, ok := s.lookupPlan(planID)
	if !ok {
		return ErrNotActive
	}
	if p.Status != model.PlanCollecting {
		return ErrNotCollecting
	}
	if len(p.Steps) == 0 {
		return ErrNoSteps
	}
	p.Status = model.PlanReady
	return nil
}

// CancelPlan moves any active plan to CANCELLED and clears the chat's
// active-plan mapping.
func (s *Service) CancelPlan(planID string) error {
	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	p, ok := s.lookupPlan(planID)
	if !ok {
		return ErrNotActive
	}
	p.Status = model.PlanCancelled
	s.clearActiveChat(p.ChatID)
	return nil
}

// ApprovePlan moves a READY plan to APPROVED.
func (s *Service) ApprovePlan(planID string) error {
	lock := s.planLock(planID)
	lock.Lock()
	defer lock.Unlock()

	p, ok := s.lookupPlan(planID)
	if !ok {
		return ErrNotActive
	}
	p.Status = model.PlanApproved
	s.clearActiveChat(p.ChatID)
	return nil
}

// DeactivatePlanMode ends the plan-mode branch for chatID without changing
// the underlying plan's status — used when there is nothing worth
// finalizing or cancelling (e.g. no active plan at all).
func (s *Service) DeactivatePlanMode(chatID string) {
	s.clearActiveChat(chatID)
}
