// Package pipeline implements the Turn Orchestrator: a deterministically
// ordered set of stages that transforms one incoming message into one
// outgoing response. It owns session acquisition, rate limiting, stage
// gating, and error surfacing; it never panics or returns an error to its
// caller — every failure is classified and stored for Feedback Guarantee to
// answer with.
package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/arcbound/turnloop/internal/observability"
	"github.com/arcbound/turnloop/internal/turn/classify"
	"github.com/arcbound/turnloop/internal/turn/model"
	"github.com/arcbound/turnloop/internal/turn/ports"
	"github.com/arcbound/turnloop/internal/turn/turnctx"
)

// Stage is one unit of turn processing. Stages are registered once and run
// in ascending Order; a stable tie-break falls back to registration order.
type Stage interface {
	Name() string
	Order() int
	IsEnabled() bool
	ShouldProcess(ctx *turnctx.Context) bool
	Process(ctx context.Context, tc *turnctx.Context) error
}

// registered pairs a Stage with its registration index, for the stable
// tie-break sort.Stable already gives us — kept explicit for clarity.
type registered struct {
	stage Stage
	index int
}

// Pipeline holds the fixed, ordered stage set and drives one turn at a time
// per session.
type Pipeline struct {
	stages   []registered
	sessions ports.SessionPort
	limiter  ports.RateLimitPort
	prefs    ports.PreferencesPort

	// ChannelFor selects the outbound adapter used for the rate-limit
	// rejection path, which runs before the context (and thus Response
	// Routing) exists.
	ChannelFor func(channelType string) ports.ChannelPort

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	logger  *slog.Logger
	metrics *observability.Metrics
	events  ports.EventPublisher
}

// New builds a Pipeline. stages need not be pre-sorted; New sorts them by
// Order with a stable tie-break on registration order.
func New(sessions ports.SessionPort, limiter ports.RateLimitPort, prefs ports.PreferencesPort, stages ...Stage) *Pipeline {
	p := &Pipeline{
		sessions: sessions,
		limiter:  limiter,
		prefs:    prefs,
		locks:    make(map[string]*sync.Mutex),
		logger:   slog.Default().With("component", "pipeline"),
	}
	for i, s := range stages {
		p.stages = append(p.stages, registered{stage: s, index: i})
	}
	sort.SliceStable(p.stages, func(i, j int) bool {
		return p.stages[i].stage.Order() < p.stages[j].stage.Order()
	})
	return p
}

// WithMetrics attaches a Prometheus metrics recorder; per-stage latency and
// outcome are reported under it. Safe to leave unset.
func (p *Pipeline) WithMetrics(m *observability.Metrics) *Pipeline {
	p.metrics = m
	return p
}

// WithEvents attaches the publisher turn lifecycle events go to. Safe to
// leave unset.
func (p *Pipeline) WithEvents(events ports.EventPublisher) *Pipeline {
	p.events = events
	return p
}

func (p *Pipeline) sessionLock(key string) *sync.Mutex {
	p.locksMu.Lock()
	defer p.locksMu.Unlock()
	l, ok := p.locks[key]
	if !ok {
		l = &sync.Mutex{}
		p.locks[key] = l
	}
	return l
}

// ProcessMessage runs one turn for incoming: session acquisition, rate
// limiting, stage execution in order, and final response delivery. It never
// returns an error — all stage failures are classified and stashed on the
// context so Feedback Guarantee can still produce a reply.
func (p *Pipeline) ProcessMessage(ctx context.Context, incoming model.Message) {
	lockKey := incoming.ChannelType + ":" + incoming.ChatID
	lock := p.sessionLock(lockKey)
	lock.Lock()
	defer lock.Unlock()

	session, err := p.sessions.GetOrCreate(ctx, incoming.ChannelType, incoming.ChatID)
	if err != nil {
		p.logger.Error("session acquisition failed", "error", err, "chat_id", incoming.ChatID)
		return
	}

	if p.limiter != nil {
		verdict := p.limiter.TryConsume(lockKey)
		if !verdict.Allowed {
			p.rejectForRateLimit(ctx, session, verdict)
			return
		}
	}

	persistFrom := len(session.Messages)
	session.Append(incoming)

	tc := turnctx.New(session)
	p.publishLifecycle(session, model.EventTurnStarted, nil)

	for _, r := range p.stages {
		stage := r.stage
		if !stage.IsEnabled() {
			continue
		}
		if !stage.ShouldProcess(tc) {
			continue
		}
		if procErr := p.runStage(ctx, stage, tc); procErr != nil {
			code := classify.ClassifyFromThrowable(procErr)
			tc.Set(turnctx.KeyLLMError, code)
			p.logger.Warn("stage failed, continuing pipeline", "stage", stage.Name(), "code", code, "error", procErr)
		}
	}

	if err := p.sessions.Persist(ctx, tc.Session, persistFrom); err != nil {
		p.logger.Error("session persist failed", "error", err, "chat_id", incoming.ChatID)
	}

	p.finishTurn(tc)
}

// finishTurn publishes the terminal lifecycle event and records the turn's
// finish reason.
func (p *Pipeline) finishTurn(tc *turnctx.Context) {
	finishReason := string(model.FinishSuccess)
	if tc.TurnOutcome != nil {
		finishReason = string(tc.TurnOutcome.FinishReason)
	}

	eventType := model.EventTurnFinished
	var payload map[string]any
	if code, ok := tc.Get(turnctx.KeyLLMError); ok {
		eventType = model.EventTurnFailed
		payload = map[string]any{"error_code": code}
		finishReason = string(model.FinishLLMError)
	}
	p.publishLifecycle(tc.Session, eventType, payload)

	if p.metrics != nil {
		p.metrics.RecordTurn(finishReason)
	}
}

func (p *Pipeline) publishLifecycle(session *model.Session, eventType model.RuntimeEventType, payload map[string]any) {
	if p.events == nil {
		return
	}
	p.events.PublishRuntimeEvent(model.RuntimeEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		SessionID:   session.ID,
		ChannelType: session.ChannelType,
		ChatID:      session.ChatID,
		Payload:     payload,
	})
}

// runStage invokes stage.Process, recovering a panic into an error so one
// misbehaving stage can never crash the orchestrator.
func (p *Pipeline) runStage(ctx context.Context, stage Stage, tc *turnctx.Context) (err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if r := recover(); r != nil {
			p.logger.Error("stage panicked", "stage", stage.Name(), "panic", r)
			err = panicError{stage: stage.Name(), value: r}
			status = "panic"
		} else if err != nil {
			status = "error"
		}
		if p.metrics != nil {
			p.metrics.RecordStageExecution(stage.Name(), status, time.Since(start).Seconds())
		}
	}()
	return stage.Process(ctx, tc)
}

type panicError struct {
	stage string
	value any
}

func (e panicError) Error() string {
	return "stage " + e.stage + " panicked"
}

func (p *Pipeline) rejectForRateLimit(ctx context.Context, session *model.Session, verdict ports.RateLimitResult) {
	if p.ChannelFor == nil || p.prefs == nil {
		return
	}
	adapter := p.ChannelFor(session.ChannelType)
	if adapter == nil {
		return
	}
	text := p.prefs.GetMessage(session.ChatID, "system.error.rate_limited", verdict.RetryAfter)
	if err := adapter.SendMessage(ctx, session.ChatID, text, nil); err != nil {
		p.logger.Warn("rate-limit rejection send failed", "error", err, "chat_id", session.ChatID)
	}
}
