package routing

import (
	"context"

	"github.com/arcbound/turnloop/internal/turn/ports"
	"github.com/arcbound/turnloop/internal/turn/turnctx"
)

// FeedbackStageOrder is the Feedback Guarantee's fixed pipeline position.
const FeedbackStageOrder = 59

// feedbackMessageKey is the preferences lookup for the fallback reply.
const feedbackMessageKey = "system.error.generic.feedback"

// FeedbackStage guarantees every non-auto turn gets a reply even when
// nothing upstream produced one — it never mutates session.Messages, only
// the in-flight context's outgoing.response attribute.
type FeedbackStage struct {
	Prefs ports.PreferencesPort
}

// NewFeedbackStage builds the order-59 FeedbackGuarantee stage.
func NewFeedbackStage(prefs ports.PreferencesPort) *FeedbackStage {
	return &FeedbackStage{Prefs: prefs}
}

func (s *FeedbackStage) Name() string    { return "FeedbackGuarantee" }
func (s *FeedbackStage) Order() int      { return FeedbackStageOrder }
func (s *FeedbackStage) IsEnabled() bool { return s.Prefs != nil }

// ShouldProcess skips auto-mode turns, turns that already have a response
// (outgoing.response or an llm.response from the Tool Loop), and turns with
// a pending skill transition (prompt assembly hasn't had its say yet).
func (s *FeedbackStage) ShouldProcess(tc *turnctx.Context) bool {
	if tc.IsLastMessageAutoMode() {
		return false
	}
	if tc.SkillTransitionRequest != "" {
		return false
	}
	if tc.HasOutgoingResponse() {
		return false
	}
	if v, ok := tc.Get(turnctx.KeyLLMResponse); ok {
		if text, _ := v.(string); text != "" {
			return false
		}
	}
	return true
}

// Process sets the fallback outgoing response.
func (s *FeedbackStage) Process(_ context.Context, tc *turnctx.Context) error {
	tc.SetOutgoingResponse(turnctx.OutgoingResponse{
		Text: s.Prefs.GetMessage(tc.Session.ChatID, feedbackMessageKey),
	})
	return nil
}
