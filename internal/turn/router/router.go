// Package router implements the Skill Router stage: classifies the turn's
// routing query to a skill via SkillMatcherPort, resolves a model tier, and
// records fragmentation signals for short, rapid-fire user input.
package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/arcbound/turnloop/internal/turn/model"
	"github.com/arcbound/turnloop/internal/turn/ports"
	"github.com/arcbound/turnloop/internal/turn/turnctx"
)

// StageOrder is the Skill Router's fixed pipeline position.
const StageOrder = 15

// recentMessageWindow bounds how much history is handed to the matcher as
// "recent messages" context.
const recentMessageWindow = 10

// Config tunes fragmentation detection and the matcher's timeout.
type Config struct {
	// FragmentationWindowMs is how far back (by timestamp) to look for short
	// consecutive user messages.
	FragmentationWindowMs int
	// FragmentationMinChars is the length at or below which a message counts
	// as "short" for fragmentation purposes.
	FragmentationMinChars int
	// FragmentationMinCount is how many short messages within the window
	// trip routing.fragmented.
	FragmentationMinCount int
	// RoutingTimeoutMs bounds the matcher's Match call.
	RoutingTimeoutMs int
}

// DefaultConfig returns the routing defaults.
func DefaultConfig() Config {
	return Config{
		FragmentationWindowMs: 15000,
		FragmentationMinChars: 12,
		FragmentationMinCount: 2,
		RoutingTimeoutMs:      3000,
	}
}

func sanitizeConfig(cfg Config) Config {
	d := DefaultConfig()
	if cfg.FragmentationWindowMs <= 0 {
		cfg.FragmentationWindowMs = d.FragmentationWindowMs
	}
	if cfg.FragmentationMinChars <= 0 {
		cfg.FragmentationMinChars = d.FragmentationMinChars
	}
	if cfg.FragmentationMinCount <= 0 {
		cfg.FragmentationMinCount = d.FragmentationMinCount
	}
	if cfg.RoutingTimeoutMs <= 0 {
		cfg.RoutingTimeoutMs = d.RoutingTimeoutMs
	}
	return cfg
}

// Store resolves the skill set the router matches against and classifies
// attribute keys to.
type Store interface {
	Available() []model.Skill
	Lookup(name string) (model.Skill, bool)
}

// Stage implements the order-15 Skill Router.
type Stage struct {
	Matcher ports.SkillMatcherPort
	Store   Store
	Config  Config
}

// NewStage builds the Skill Router stage. Zero-valued cfg falls back to
// DefaultConfig().
func NewStage(matcher ports.SkillMatcherPort, store Store, cfg Config) *Stage {
	return &Stage{Matcher: matcher, Store: store, Config: sanitizeConfig(cfg)}
}

func (s *Stage) Name() string { return "SkillRouting" }
func (s *Stage) Order() int   { return StageOrder }

// IsEnabled reports whether a matcher is wired at all.
func (s *Stage) IsEnabled() bool { return s.Matcher != nil }

// ShouldProcess gates on first-iteration, non-auto messages, a non-empty
// skill set, an enabled matcher, and a non-blank routing query.
func (s *Stage) ShouldProcess(tc *turnctx.Context) bool {
	if tc.CurrentIteration != 0 {
		return false
	}
	if tc.IsLastMessageAutoMode() {
		return false
	}
	if s.Store == nil || len(s.Store.Available()) == 0 {
		return false
	}
	if !s.Matcher.IsEnabled() {
		return false
	}
	return strings.TrimSpace(buildQuery(tc.Messages)) != ""
}

// Process runs fragmentation detection and the matcher, recording results
// for downstream stages to read.
func (s *Stage) Process(ctx context.Context, tc *turnctx.Context) error {
	if !s.Matcher.IsReady() {
		if err := s.Matcher.IndexSkills(ctx, s.Store.Available()); err != nil {
			tc.Set(turnctx.KeyRoutingError, err.Error())
			return nil
		}
	}

	fragmented, signals := detectFragmentation(tc.Messages, s.Config)
	tc.Set(turnctx.KeyRoutingFragmented, fragmented)
	tc.Set(turnctx.KeyRoutingFragSignals, signals)

	query := buildQuery(tc.Messages)
	recent := recentMessages(tc.Messages, recentMessageWindow)

	timeout := time.Duration(s.Config.RoutingTimeoutMs) * time.Millisecond
	matchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := s.Matcher.Match(matchCtx, query, s.Store.Available(), recent)
	if err != nil {
		tc.Set(turnctx.KeyRoutingError, err.Error())
		return nil
	}
	if matchCtx.Err() != nil {
		tc.Set(turnctx.KeyRoutingError, matchCtx.Err().Error())
		return nil
	}
	if result == nil {
		tc.Set(turnctx.KeyRoutingError, "matcher returned no result")
		return nil
	}

	tc.ModelTier = result.ModelTier
	if result.SelectedSkill == "" {
		return nil
	}

	skill, ok := s.Store.Lookup(result.SelectedSkill)
	if !ok {
		tc.Set(turnctx.KeyRoutingError, fmt.Sprintf("matched skill %q not found in store", result.SelectedSkill))
		return nil
	}
	tc.ActiveSkill = &skill
	tc.Set(turnctx.KeyRoutingSkill, result.SelectedSkill)
	tc.Set(turnctx.KeyRoutingConfidence, result.Confidence)
	tc.Set(turnctx.KeyRoutingReason, result.Reason)
	tc.Set(turnctx.KeyRoutingLatencyMs, result.Latency.Milliseconds())
	tc.Set(turnctx.KeyRoutingLlmUsed, result.LlmClassifierUsed)
	return nil
}

// buildQuery aggregates recent user messages into the text the matcher
// classifies against.
func buildQuery(messages []model.Message) string {
	var parts []string
	for i := len(messages) - 1; i >= 0 && len(parts) < 3; i-- {
		if messages[i].Role == model.RoleUser {
			parts = append([]string{strings.TrimSpace(messages[i].Content)}, parts...)
		}
	}
	return strings.Join(parts, " ")
}

func recentMessages(messages []model.Message, n int) []model.Message {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
