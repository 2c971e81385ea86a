package routing

import (
	"context"
	"errors"
	"testing"

	"github.com/arcbound/turnloop/internal/turn/model"
	"github.com/arcbound/turnloop/internal/turn/ports"
	"github.com/arcbound/turnloop/internal/turn/turnctx"
)

type fakeChannel struct {
	channelType     string
	sendErr         error
	sent            []string
	sentOpts        []*ports.SendOptions
	runtimeEvents   []model.RuntimeEvent
	runtimeEventErr error
}

func (f *fakeChannel) ChannelType() string { return f.channelType }

func (f *fakeChannel) SendMessage(ctx context.Context, chatID, text string, opts *ports.SendOptions) error {
	f.sent = append(f.sent, text)
	f.sentOpts = append(f.sentOpts, opts)
	return f.sendErr
}

func (f *fakeChannel) SendRuntimeEvent(ctx context.Context, chatID string, event model.RuntimeEvent) error {
	f.runtimeEvents = append(f.runtimeEvents, event)
	return f.runtimeEventErr
}

type fakeVoice struct {
	available bool
	err       error
	sent      bool
}

func (f *fakeVoice) IsAvailable() bool { return f.available }
func (f *fakeVoice) TrySendVoice(ctx context.Context, session *model.Session, chatID, text string) error {
	f.sent = true
	return f.err
}

func newResponseSession() *model.Session {
	return &model.Session{ID: "sess-1", ChannelType: "slack", ChatID: "C1"}
}

func TestRegistry_GetByChannelType(t *testing.T) {
	slack := &fakeChannel{channelType: "slack"}
	discord := &fakeChannel{channelType: "discord"}
	r := NewRegistry(slack, discord)

	if r.Get("slack") != slack {
		t.Fatal("Get(slack) did not return the registered slack adapter")
	}
	if r.Get("telegram") != nil {
		t.Fatal("Get(telegram) returned a non-nil adapter for an unregistered channel")
	}
}

func TestResponseStage_IsEnabled_RequiresChannels(t *testing.T) {
	if (&ResponseStage{}).IsEnabled() {
		t.Fatal("IsEnabled true with no Channels registry")
	}
	if !NewResponseStage(NewRegistry(), nil).IsEnabled() {
		t.Fatal("IsEnabled false with a configured registry")
	}
}

func TestResponseStage_ShouldProcess_AlwaysTrue(t *testing.T) {
	s := NewResponseStage(NewRegistry(), nil)
	if !s.ShouldProcess(turnctx.New(newResponseSession())) {
		t.Fatal("ShouldProcess false — Response Routing must always run")
	}
}

func TestResponseStage_Process_NoAdapterRegistered(t *testing.T) {
	s := NewResponseStage(NewRegistry(), nil)
	tc := turnctx.New(newResponseSession())
	tc.Set(turnctx.KeyLLMResponse, "hello")

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	outcome, ok := tc.Get(turnctx.KeyRoutingOutcome)
	if !ok {
		t.Fatal("routing.outcome not set")
	}
	ro := outcome.(model.RoutingOutcome)
	if ro.Attempted {
		t.Fatal("Attempted true despite no registered adapter")
	}
}

func TestResponseStage_Process_SendsLLMResponse(t *testing.T) {
	ch := &fakeChannel{channelType: "slack"}
	s := NewResponseStage(NewRegistry(ch), nil)
	tc := turnctx.New(newResponseSession())
	tc.Set(turnctx.KeyLLMResponse, "final answer")

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if len(ch.sent) != 1 || ch.sent[0] != "final answer" {
		t.Fatalf("sent = %v, want [\"final answer\"]", ch.sent)
	}
	outcome, _ := tc.Get(turnctx.KeyRoutingOutcome)
	ro := outcome.(model.RoutingOutcome)
	if !ro.Attempted || !ro.SentText {
		t.Fatalf("outcome = %+v, want Attempted and SentText true", ro)
	}
	if !tc.Bool(turnctx.KeyResponseSent) {
		t.Fatal("response.sent not set true")
	}
}

func TestResponseStage_Process_OutgoingResponseTakesPrecedence(t *testing.T) {
	ch := &fakeChannel{channelType: "slack"}
	s := NewResponseStage(NewRegistry(ch), nil)
	tc := turnctx.New(newResponseSession())
	tc.Set(turnctx.KeyLLMResponse, "ignored")
	tc.SetOutgoingResponse(turnctx.OutgoingResponse{Text: "explicit response", Attachments: []string{"http://x/y.png"}})

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if len(ch.sent) != 1 || ch.sent[0] != "explicit response" {
		t.Fatalf("sent = %v, want the explicit outgoing response", ch.sent)
	}
	if len(ch.sentOpts) != 1 || ch.sentOpts[0] == nil || len(ch.sentOpts[0].Attachments) != 1 {
		t.Fatalf("sentOpts = %v, want one attachment forwarded", ch.sentOpts)
	}
}

func TestResponseStage_Process_SendFailureRecordsError(t *testing.T) {
	wantErr := errors.New("network down")
	ch := &fakeChannel{channelType: "slack", sendErr: wantErr}
	s := NewResponseStage(NewRegistry(ch), nil)
	tc := turnctx.New(newResponseSession())
	tc.Set(turnctx.KeyLLMResponse, "hi")

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process() itself must not return an error, got %v", err)
	}
	outcome, _ := tc.Get(turnctx.KeyRoutingOutcome)
	ro := outcome.(model.RoutingOutcome)
	if ro.SentText || !errors.Is(ro.Error, wantErr) {
		t.Fatalf("outcome = %+v, want SentText=false and the send error recorded", ro)
	}
	if tc.Bool(turnctx.KeyResponseSent) {
		t.Fatal("response.sent true despite a failed send")
	}
}

func TestResponseStage_Process_VoiceFallback(t *testing.T) {
	ch := &fakeChannel{channelType: "slack"}
	voice := &fakeVoice{available: true}
	s := NewResponseStage(NewRegistry(ch), voice)
	tc := turnctx.New(newResponseSession())
	tc.SetOutgoingResponse(turnctx.OutgoingResponse{Text: "hi", VoiceRequested: true})

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if !voice.sent {
		t.Fatal("voice handler was never invoked despite VoiceRequested=true and IsAvailable=true")
	}
	outcome, _ := tc.Get(turnctx.KeyRoutingOutcome)
	ro := outcome.(model.RoutingOutcome)
	if !ro.SentVoice {
		t.Fatalf("outcome = %+v, want SentVoice=true", ro)
	}
}

func TestResponseStage_Process_FanOutRuntimeEventsMatchingChannelOnly(t *testing.T) {
	ch := &fakeChannel{channelType: "slack"}
	s := NewResponseStage(NewRegistry(ch), nil)
	tc := turnctx.New(newResponseSession())
	tc.Set(turnctx.KeyLLMResponse, "hi")
	tc.Set(turnctx.KeyRuntimeEvents, []model.RuntimeEvent{
		{Type: model.EventTurnStarted, ChannelType: "slack"},
		{Type: model.EventTurnFinished, ChannelType: "discord"},
	})

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if len(ch.runtimeEvents) != 1 || ch.runtimeEvents[0].Type != model.EventTurnStarted {
		t.Fatalf("runtimeEvents = %v, want only the slack-channel event fanned out", ch.runtimeEvents)
	}
}
