// Package memorize implements the MemoryPersist stage: after the tool loop
// reaches its final answer, the turn's user/assistant exchange is distilled
// into long-term memory so later turns can recall it.
package memorize

import (
	"context"
	"log/slog"
	"strings"

	"github.com/arcbound/turnloop/internal/turn/model"
	"github.com/arcbound/turnloop/internal/turn/ports"
	"github.com/arcbound/turnloop/internal/turn/turnctx"
)

// StageOrder places memory persistence after the tool loop and before plan
// finalization.
const StageOrder = 50

// Stage writes one memory entry per successfully answered turn.
type Stage struct {
	Writer ports.MemoryWriterPort
	logger *slog.Logger
}

// NewStage builds the order-50 MemoryPersist stage.
func NewStage(writer ports.MemoryWriterPort) *Stage {
	return &Stage{Writer: writer, logger: slog.Default().With("component", "memory_persist")}
}

func (s *Stage) Name() string    { return "MemoryPersist" }
func (s *Stage) Order() int      { return StageOrder }
func (s *Stage) IsEnabled() bool { return s.Writer != nil }

// ShouldProcess runs only once the tool loop produced a final answer with
// actual content; errored or tool-limited turns leave nothing worth
// remembering.
func (s *Stage) ShouldProcess(tc *turnctx.Context) bool {
	if !tc.Bool(turnctx.KeyLoopComplete) || !tc.Bool(turnctx.KeyFinalAnswerReady) {
		return false
	}
	return strings.TrimSpace(tc.String(turnctx.KeyLLMResponse)) != ""
}

// Process records the exchange. Write failures are logged, never surfaced —
// forgetting is preferable to failing the turn.
func (s *Stage) Process(ctx context.Context, tc *turnctx.Context) error {
	userText := lastUserText(tc.Messages)
	assistantText := tc.String(turnctx.KeyLLMResponse)
	if strings.TrimSpace(userText) == "" {
		return nil
	}
	if err := s.Writer.Remember(ctx, tc.Session.ID, userText, assistantText); err != nil {
		s.logger.Warn("memory persist failed", "session_id", tc.Session.ID, "error", err)
	}
	return nil
}

func lastUserText(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
