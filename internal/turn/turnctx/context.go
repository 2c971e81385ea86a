// Package turnctx defines the per-turn mutable context stages read and
// write as they run. It is a strongly-typed struct for the well-known
// fields stages share, plus a namespaced extensions map for attributes
// that do not warrant a dedicated field.
package turnctx

import (
	"github.com/arcbound/turnloop/internal/turn/model"
)

// Well-known extension-map keys, mirrored here for stages that need to look
// an attribute up by name (e.g. Response Routing's runtime.events list).
const (
	KeyOutgoingResponse     = "outgoing.response"
	KeyLLMResponse          = "llm.response"
	KeyLLMToolCalls         = "llm.toolCalls"
	KeyLLMError             = "llm.error"
	KeyLoopComplete         = "loop.complete"
	KeyFinalAnswerReady     = "final.answer.ready"
	KeyPlanModeActive       = "plan.mode.active"
	KeyPlanApprovalNeeded   = "plan.approval.needed"
	KeyPlanSetContentReq    = "plan.set_content.requested"
	KeyRoutingSkill         = "routing.skill"
	KeyRoutingConfidence    = "routing.confidence"
	KeyRoutingReason        = "routing.reason"
	KeyRoutingLatencyMs     = "routing.latencyMs"
	KeyRoutingLlmUsed       = "routing.llmUsed"
	KeyRoutingFragmented    = "routing.fragmented"
	KeyRoutingFragSignals   = "routing.fragmentationSignals"
	KeyRoutingOutcome       = "routing.outcome"
	KeyRoutingError         = "routing.error"
	KeyRuntimeEvents        = "runtime.events"
	KeySkillTransitionTgt   = "skill.transition.target"
	KeyResponseSent         = "response.sent"
	KeyCancel               = "cancel"
)

// OutgoingResponse is what Response Routing delivers: text and/or a voice
// request, plus optional attachments.
type OutgoingResponse struct {
	Text           string
	Attachments    []string
	VoiceRequested bool
}

// Context is the per-turn mutable state the pipeline threads through every
// stage. The orchestrator exclusively owns it; stages mutate it via the
// methods below. The embedded Session is shared by reference — only the
// History Writer and initial intake append to its message list.
type Context struct {
	Session *model.Session

	// Messages is the working copy of the conversation a stage may inspect;
	// it does not back the session's own append-only history.
	Messages []model.Message

	AvailableTools []model.ToolDefinition
	ToolResults    map[string]model.ToolResult

	ActiveSkill            *model.Skill
	SkillTransitionRequest string
	ModelTier              string
	CurrentIteration       int

	SystemPrompt string
	TurnOutcome  *model.TurnOutcome

	attributes map[string]any
}

// New builds a fresh per-turn Context for session, seeded with its current
// message snapshot.
func New(session *model.Session) *Context {
	return &Context{
		Session:     session,
		Messages:    session.Snapshot(),
		ToolResults: make(map[string]model.ToolResult),
		attributes:  make(map[string]any),
	}
}

// Get reads a namespaced attribute.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.attributes[key]
	return v, ok
}

// Set writes a namespaced attribute.
func (c *Context) Set(key string, value any) {
	if c.attributes == nil {
		c.attributes = make(map[string]any)
	}
	c.attributes[key] = value
}

// Delete removes a namespaced attribute, if present.
func (c *Context) Delete(key string) {
	delete(c.attributes, key)
}

// Bool returns the boolean stored at key, or false if absent/wrong type.
func (c *Context) Bool(key string) bool {
	v, _ := c.attributes[key].(bool)
	return v
}

// String returns the string stored at key, or "" if absent/wrong type.
func (c *Context) String(key string) string {
	v, _ := c.attributes[key].(string)
	return v
}

// HasOutgoingResponse reports whether an earlier stage has set
// outgoing.response for this turn. The tool loop's final answer is stored
// under llm.response and does not count here.
func (c *Context) HasOutgoingResponse() bool {
	_, ok := c.attributes[KeyOutgoingResponse]
	return ok
}

// SetOutgoingResponse records the response Response Routing should deliver,
// taking precedence over any llm.response content at Response Routing time.
func (c *Context) SetOutgoingResponse(r OutgoingResponse) {
	c.Set(KeyOutgoingResponse, r)
}

// OutgoingResponse returns the response set via SetOutgoingResponse, if any.
func (c *Context) OutgoingResponse() (OutgoingResponse, bool) {
	v, ok := c.attributes[KeyOutgoingResponse]
	if !ok {
		return OutgoingResponse{}, false
	}
	r, ok := v.(OutgoingResponse)
	return r, ok
}

// IsLastMessageAutoMode reports whether the most recent message in the
// working copy was tagged auto.mode=true.
func (c *Context) IsLastMessageAutoMode() bool {
	if len(c.Messages) == 0 {
		return false
	}
	return c.Messages[len(c.Messages)-1].IsAutoMode()
}

// RequestSkillTransition records a transition request from an earlier stage;
// the Context Builder applies and clears it before prompt assembly.
func (c *Context) RequestSkillTransition(skillName string) {
	c.SkillTransitionRequest = skillName
}
