package routing

import (
	"context"
	"log/slog"

	"github.com/arcbound/turnloop/internal/turn/model"
	"github.com/arcbound/turnloop/internal/turn/ports"
	"github.com/arcbound/turnloop/internal/turn/turnctx"
)

// ResponseStageOrder is Response Routing's fixed pipeline position.
const ResponseStageOrder = 70

// ResponseStage delivers the turn's composed response through the channel
// adapter matching the session's channel type, with an optional voice
// fallback and best-effort runtime-event fan-out.
type ResponseStage struct {
	Channels *Registry
	Voice    ports.VoiceResponseHandler
	logger   *slog.Logger
}

// NewResponseStage builds the order-70 ResponseRouting stage.
func NewResponseStage(channels *Registry, voice ports.VoiceResponseHandler) *ResponseStage {
	return &ResponseStage{Channels: channels, Voice: voice, logger: slog.Default().With("component", "response_routing")}
}

func (s *ResponseStage) Name() string    { return "ResponseRouting" }
func (s *ResponseStage) Order() int      { return ResponseStageOrder }
func (s *ResponseStage) IsEnabled() bool { return s.Channels != nil }

// ShouldProcess always runs: routing must still record a (possibly
// not-attempted) outcome even when nothing was ever produced to send.
func (s *ResponseStage) ShouldProcess(_ *turnctx.Context) bool { return true }

// Process resolves the outgoing content, dispatches it through the matching
// channel adapter, attempts voice when requested, and fans out any queued
// runtime events.
func (s *ResponseStage) Process(ctx context.Context, tc *turnctx.Context) error {
	text, voiceRequested, attachments := resolveContent(tc)

	outcome := model.RoutingOutcome{ChannelType: tc.Session.ChannelType}
	adapter := s.Channels.Get(tc.Session.ChannelType)
	if adapter == nil {
		tc.Set(turnctx.KeyRoutingOutcome, outcome)
		return nil
	}
	outcome.Attempted = true

	var opts *ports.SendOptions
	if len(attachments) > 0 || voiceRequested {
		opts = &ports.SendOptions{Attachments: attachments, VoiceRequested: voiceRequested}
	}

	if err := adapter.SendMessage(ctx, tc.Session.ChatID, text, opts); err != nil {
		outcome.Error = err
		s.logger.Warn("send failed", "chat_id", tc.Session.ChatID, "error", err)
	} else {
		outcome.SentText = true
	}

	if voiceRequested && s.Voice != nil && s.Voice.IsAvailable() {
		if err := s.Voice.TrySendVoice(ctx, tc.Session, tc.Session.ChatID, text); err != nil {
			if outcome.Error == nil {
				outcome.Error = err
			}
		} else {
			outcome.SentVoice = true
		}
	}

	tc.Set(turnctx.KeyRoutingOutcome, outcome)
	tc.Set(turnctx.KeyResponseSent, outcome.SentText || outcome.SentVoice)

	s.fanOutRuntimeEvents(ctx, tc, adapter)
	return nil
}

func resolveContent(tc *turnctx.Context) (text string, voiceRequested bool, attachments []string) {
	if resp, ok := tc.OutgoingResponse(); ok {
		return resp.Text, resp.VoiceRequested, resp.Attachments
	}
	if v, ok := tc.Get(turnctx.KeyLLMResponse); ok {
		text, _ = v.(string)
	}
	return text, false, nil
}

func (s *ResponseStage) fanOutRuntimeEvents(ctx context.Context, tc *turnctx.Context, adapter ports.ChannelPort) {
	raw, ok := tc.Get(turnctx.KeyRuntimeEvents)
	if !ok {
		return
	}
	events, ok := raw.([]model.RuntimeEvent)
	if !ok {
		return
	}
	for _, e := range events {
		if e.ChannelType != tc.Session.ChannelType {
			continue
		}
		if err := adapter.SendRuntimeEvent(ctx, tc.Session.ChatID, e); err != nil {
			s.logger.Warn("runtime event send failed", "chat_id", tc.Session.ChatID, "type", e.Type, "error", err)
		}
	}
}
