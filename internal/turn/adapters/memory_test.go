package adapters

import (
	"context"
	"strings"
	"testing"

	"github.com/arcbound/turnloop/internal/memory"
	"github.com/arcbound/turnloop/internal/memory/backend/sqlitevec"
)

func TestMemoryAdapter_NilManagerIsDisabled(t *testing.T) {
	a := NewMemoryAdapter(nil)

	text, err := a.GetMemoryContext(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("GetMemoryContext error: %v", err)
	}
	if text != "" {
		t.Fatalf("text = %q, want empty when memory is disabled", text)
	}
	if err := a.Remember(context.Background(), "sess-1", "q", "a"); err != nil {
		t.Fatalf("Remember with nil manager should be a no-op, got %v", err)
	}
}

func TestMemoryAdapter_RememberThenRecall(t *testing.T) {
	b, err := sqlitevec.New(":memory:")
	if err != nil {
		t.Fatalf("open backend: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	a := NewMemoryAdapter(memory.NewManager(b, nil, memory.Config{}))
	ctx := context.Background()

	if err := a.Remember(ctx, "sess-1", "what is the release date", "next Tuesday"); err != nil {
		t.Fatalf("remember: %v", err)
	}

	text, err := a.GetMemoryContext(ctx, "sess-1")
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if !strings.Contains(text, "next Tuesday") {
		t.Errorf("recalled context missing the stored exchange: %q", text)
	}

	other, err := a.GetMemoryContext(ctx, "sess-2")
	if err != nil {
		t.Fatalf("recall other session: %v", err)
	}
	if other != "" {
		t.Errorf("other session should recall nothing: %q", other)
	}
}
