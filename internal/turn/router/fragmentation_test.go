package router

import (
	"testing"
	"time"

	"github.com/arcbound/turnloop/internal/turn/model"
)

func TestDetectFragmentation_BelowMinCountIsNotFragmented(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()
	messages := []model.Message{
		{Role: model.RoleUser, Content: "hi", Timestamp: now},
	}
	fragmented, signals := detectFragmentation(messages, cfg)
	if fragmented {
		t.Fatal("fragmented=true with only one user message")
	}
	if signals != nil {
		t.Fatalf("signals = %v, want nil", signals)
	}
}

func TestDetectFragmentation_ShortBurstWithinWindowIsFragmented(t *testing.T) {
	cfg := Config{FragmentationWindowMs: 15000, FragmentationMinChars: 12, FragmentationMinCount: 2, RoutingTimeoutMs: 3000}
	now := time.Now()
	messages := []model.Message{
		{Role: model.RoleUser, Content: "hey", Timestamp: now.Add(-2 * time.Second)},
		{Role: model.RoleUser, Content: "wait", Timestamp: now.Add(-1 * time.Second)},
		{Role: model.RoleUser, Content: "nvm", Timestamp: now},
	}
	fragmented, signals := detectFragmentation(messages, cfg)
	if !fragmented {
		t.Fatal("fragmented=false for three short messages within the window")
	}
	if len(signals) != 3 {
		t.Fatalf("signals = %v, want 3 entries", signals)
	}
}

func TestDetectFragmentation_LongMessagesDoNotCount(t *testing.T) {
	cfg := Config{FragmentationWindowMs: 15000, FragmentationMinChars: 5, FragmentationMinCount: 2, RoutingTimeoutMs: 3000}
	now := time.Now()
	messages := []model.Message{
		{Role: model.RoleUser, Content: "this is a long and complete sentence", Timestamp: now.Add(-1 * time.Second)},
		{Role: model.RoleUser, Content: "another complete thought here", Timestamp: now},
	}
	fragmented, _ := detectFragmentation(messages, cfg)
	if fragmented {
		t.Fatal("fragmented=true for long messages that should not count as fragments")
	}
}

func TestDetectFragmentation_OutsideWindowIsIgnored(t *testing.T) {
	cfg := Config{FragmentationWindowMs: 1000, FragmentationMinChars: 12, FragmentationMinCount: 2, RoutingTimeoutMs: 3000}
	now := time.Now()
	messages := []model.Message{
		{Role: model.RoleUser, Content: "hi", Timestamp: now.Add(-10 * time.Second)},
		{Role: model.RoleUser, Content: "yo", Timestamp: now},
	}
	fragmented, signals := detectFragmentation(messages, cfg)
	if fragmented {
		t.Fatal("fragmented=true for a message far outside the fragmentation window")
	}
	if len(signals) != 1 {
		t.Fatalf("signals = %v, want exactly one in-window short message", signals)
	}
}

func TestDetectFragmentation_IgnoresNonUserMessages(t *testing.T) {
	cfg := DefaultConfig()
	now := time.Now()
	messages := []model.Message{
		{Role: model.RoleAssistant, Content: "ok", Timestamp: now.Add(-1 * time.Second)},
		{Role: model.RoleTool, Content: "result", Timestamp: now},
	}
	fragmented, _ := detectFragmentation(messages, cfg)
	if fragmented {
		t.Fatal("fragmented=true with no user messages at all")
	}
}
