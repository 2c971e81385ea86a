package adapters

import (
	"context"
	"fmt"
	"strings"

	"github.com/arcbound/turnloop/internal/memory"
	pkgmodels "github.com/arcbound/turnloop/pkg/models"
)

// memoryResultLimit bounds how many recalled entries are rendered into the
// "# Memory" prompt section.
const memoryResultLimit = 5

// MemoryAdapter implements ports.MemoryPort and ports.MemoryWriterPort
// over the vector memory.Manager, scoping both recall and writes to the
// current session.
type MemoryAdapter struct {
	Manager *memory.Manager
}

// NewMemoryAdapter wraps mgr. mgr may be nil, in which case GetMemoryContext
// always returns an empty context (memory disabled).
func NewMemoryAdapter(mgr *memory.Manager) *MemoryAdapter {
	return &MemoryAdapter{Manager: mgr}
}

// GetMemoryContext searches session-scoped memory for entries related to
// the session itself and renders the top matches as bullet points.
func (a *MemoryAdapter) GetMemoryContext(ctx context.Context, sessionID string) (string, error) {
	if a.Manager == nil {
		return "", nil
	}

	resp, err := a.Manager.Search(ctx, &pkgmodels.SearchRequest{
		Scope:   pkgmodels.ScopeSession,
		ScopeID: sessionID,
		Limit:   memoryResultLimit,
	})
	if err != nil {
		return "", fmt.Errorf("memory: search failed: %w", err)
	}
	if resp == nil || len(resp.Results) == 0 {
		return "", nil
	}

	var b strings.Builder
	for _, r := range resp.Results {
		if r.Entry == nil || r.Entry.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", r.Entry.Content)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

// rememberMaxChars bounds how much of a long exchange is stored verbatim.
const rememberMaxChars = 1000

// Remember stores the turn's user/assistant exchange as one session-scoped
// memory entry.
func (a *MemoryAdapter) Remember(ctx context.Context, sessionID, userText, assistantText string) error {
	if a.Manager == nil {
		return nil
	}
	content := fmt.Sprintf("User: %s\nAssistant: %s", clip(userText), clip(assistantText))
	_, err := a.Manager.Store(ctx, &memory.StoreRequest{
		Scope:   pkgmodels.ScopeSession,
		ScopeID: sessionID,
		Content: content,
		Metadata: pkgmodels.MemoryMetadata{
			Source:    "conversation",
			SessionID: sessionID,
		},
	})
	return err
}

func clip(s string) string {
	if len(s) <= rememberMaxChars {
		return s
	}
	return s[:rememberMaxChars] + "..."
}
