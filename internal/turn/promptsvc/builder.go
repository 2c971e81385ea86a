// Package promptsvc implements the Prompt Section Service + Context
// Builder: assembles ctx.SystemPrompt from ordered sections, memory, RAG,
// skill, and auto-mode augmentations, and builds ctx.AvailableTools.
package promptsvc

import (
	"context"
	"fmt"
	"strings"

	"github.com/arcbound/turnloop/internal/turn/model"
	"github.com/arcbound/turnloop/internal/turn/ports"
	"github.com/arcbound/turnloop/internal/turn/router"
	"github.com/arcbound/turnloop/internal/turn/turnctx"
)

// StageOrder is the Context Builder's fixed pipeline position.
const StageOrder = 20

// defaultIdentity is emitted when the templated section service is disabled
// or produces nothing to render.
const defaultIdentity = "You are a helpful AI assistant."

// StaticTool is a statically-registered tool, gated by its own enablement
// check (tool feature flags, missing credentials, etc).
type StaticTool struct {
	Definition model.ToolDefinition
	IsEnabled  func() bool
}

// ToolAdapterRegistry binds an MCP-originated tool adapter into whatever
// executes tool calls by name, so the Tool Loop can route to it later.
type ToolAdapterRegistry interface {
	Register(toolName string, adapter ports.ToolExecutorPort)
}

// PlanActivityChecker reports whether plan mode is active for a chat,
// without the context builder needing to import the plan package directly.
type PlanActivityChecker interface {
	IsActive(chatID string) bool
}

// planControlTools are advertised in addition to the active skill's tools
// whenever plan mode is active for the chat.
var planControlTools = []model.ToolDefinition{
	{Name: "plan_set_content", Description: "Record the plan's natural-language description."},
	{Name: "plan_get", Description: "Read back the plan accumulated so far."},
}

// Stage implements the order-20 ContextBuilding stage.
type Stage struct {
	Sections     ports.PromptSectionService
	Memory       ports.MemoryPort
	Rag          ports.RagPort
	Mcp          ports.McpPort
	AutoMode     ports.AutoModePort
	SkillStore   router.Store
	StaticTools  []StaticTool
	ToolRegistry ToolAdapterRegistry
	Plans        PlanActivityChecker
}

func (s *Stage) Name() string    { return "ContextBuilding" }
func (s *Stage) Order() int      { return StageOrder }
func (s *Stage) IsEnabled() bool { return true }

// ShouldProcess skips only once an upstream stage has already recorded an
// llm.error; there is no prompt worth building for a turn that cannot call
// the model.
func (s *Stage) ShouldProcess(tc *turnctx.Context) bool {
	_, errSet := tc.Get(turnctx.KeyLLMError)
	return !errSet
}

// Process assembles the system prompt and available tool set.
func (s *Stage) Process(ctx context.Context, tc *turnctx.Context) error {
	s.applySkillTransition(tc)

	var b strings.Builder
	if err := s.renderTemplatedSections(ctx, tc, &b); err != nil {
		return err
	}
	s.appendMemory(ctx, tc, &b)
	s.appendRag(ctx, tc, &b)
	s.appendSkill(&b, tc)
	s.appendSkillPipeline(&b, tc)

	tools := s.buildTools(ctx, tc)
	s.appendToolsSection(&b, tools)
	tc.AvailableTools = tools

	s.appendGoals(ctx, tc, &b)

	tc.SystemPrompt = b.String()
	return nil
}

func (s *Stage) applySkillTransition(tc *turnctx.Context) {
	if tc.SkillTransitionRequest == "" || s.SkillStore == nil {
		return
	}
	if skill, ok := s.SkillStore.Lookup(tc.SkillTransitionRequest); ok {
		tc.ActiveSkill = &skill
	}
	tc.SkillTransitionRequest = ""
}

func (s *Stage) renderTemplatedSections(ctx context.Context, tc *turnctx.Context, b *strings.Builder) error {
	if s.Sections == nil || !s.Sections.IsEnabled() {
		b.WriteString(defaultIdentity)
		return nil
	}

	sections, err := s.Sections.Sections(ctx)
	if err != nil {
		return err
	}
	if len(sections) == 0 {
		b.WriteString(defaultIdentity)
		return nil
	}

	vars := buildTemplateVariables(tc)
	enabled := make([]model.PromptSection, 0, len(sections))
	for _, sec := range sections {
		if sec.Enabled {
			enabled = append(enabled, sec)
		}
	}
	sortSectionsByOrder(enabled)

	for i, sec := range enabled {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(substituteVariables(sec.Content, vars))
	}
	return nil
}

func sortSectionsByOrder(sections []model.PromptSection) {
	for i := 1; i < len(sections); i++ {
		for j := i; j > 0 && sections[j].Order < sections[j-1].Order; j-- {
			sections[j], sections[j-1] = sections[j-1], sections[j]
		}
	}
}

func buildTemplateVariables(tc *turnctx.Context) map[string]string {
	vars := map[string]string{
		"CHANNEL_TYPE": tc.Session.ChannelType,
		"CHAT_ID":      tc.Session.ChatID,
		"SESSION_ID":   tc.Session.ID,
	}
	if tc.ActiveSkill != nil {
		vars["ACTIVE_SKILL"] = tc.ActiveSkill.Name
	}
	if len(tc.Messages) > 0 {
		vars["LAST_USER_MESSAGE"] = lastUserText(tc.Messages)
	}
	return vars
}

func substituteVariables(content string, vars map[string]string) string {
	for k, v := range vars {
		content = strings.ReplaceAll(content, "{{"+k+"}}", v)
	}
	return content
}

func (s *Stage) appendMemory(ctx context.Context, tc *turnctx.Context, b *strings.Builder) {
	if s.Memory == nil {
		return
	}
	text, err := s.Memory.GetMemoryContext(ctx, tc.Session.ID)
	if err != nil || strings.TrimSpace(text) == "" {
		return
	}
	fmt.Fprintf(b, "\n\n# Memory\n%s", text)
}

func (s *Stage) appendRag(ctx context.Context, tc *turnctx.Context, b *strings.Builder) {
	if s.Rag == nil || !s.Rag.IsAvailable() {
		return
	}
	text, err := s.Rag.Query(ctx, tc.Session.ID, lastUserText(tc.Messages))
	if err != nil || strings.TrimSpace(text) == "" {
		return
	}
	fmt.Fprintf(b, "\n\n# Relevant Memory\n%s", text)
}

func (s *Stage) appendSkill(b *strings.Builder, tc *turnctx.Context) {
	if tc.ActiveSkill != nil {
		fmt.Fprintf(b, "\n\n# Active Skill: %s\n%s", tc.ActiveSkill.Name, tc.ActiveSkill.Content)
		return
	}
	if s.SkillStore == nil {
		return
	}
	available := s.SkillStore.Available()
	if len(available) == 0 {
		return
	}
	b.WriteString("\n\n# Available Skills\n")
	for _, sk := range available {
		fmt.Fprintf(b, "- %s: %s\n", sk.Name, sk.Description)
	}
}

func (s *Stage) appendSkillPipeline(b *strings.Builder, tc *turnctx.Context) {
	if tc.ActiveSkill == nil || !tc.ActiveSkill.HasPipeline() {
		return
	}
	b.WriteString("\n\n# Skill Pipeline\n")
	if tc.ActiveSkill.NextSkill != "" {
		fmt.Fprintf(b, "- default next: %s\n", tc.ActiveSkill.NextSkill)
	}
	for cond, next := range tc.ActiveSkill.ConditionalNextSkills {
		fmt.Fprintf(b, "- %s -> %s\n", cond, next)
	}
}

func (s *Stage) appendToolsSection(b *strings.Builder, tools []model.ToolDefinition) {
	if len(tools) == 0 {
		return
	}
	b.WriteString("\n\n# Available Tools\n")
	for _, t := range tools {
		fmt.Fprintf(b, "- %s\n", t.Name)
	}
}

func (s *Stage) appendGoals(ctx context.Context, tc *turnctx.Context, b *strings.Builder) {
	if s.AutoMode == nil || !tc.IsLastMessageAutoMode() {
		return
	}
	text, err := s.AutoMode.GoalsContext(ctx, tc.Session)
	if err != nil || strings.TrimSpace(text) == "" {
		return
	}
	fmt.Fprintf(b, "\n\n# Goals\n%s", text)
	tc.ModelTier = s.AutoMode.ModelTier()
}

func (s *Stage) buildTools(ctx context.Context, tc *turnctx.Context) []model.ToolDefinition {
	var tools []model.ToolDefinition
	for _, st := range s.StaticTools {
		if st.IsEnabled == nil || st.IsEnabled() {
			tools = append(tools, st.Definition)
		}
	}

	if tc.ActiveSkill != nil && tc.ActiveSkill.McpConfig != nil && s.Mcp != nil {
		defs, err := s.Mcp.GetOrStartClient(ctx, *tc.ActiveSkill)
		if err == nil {
			for _, def := range defs {
				adapter, err := s.Mcp.CreateToolAdapter(tc.ActiveSkill.Name, def)
				if err != nil {
					continue
				}
				if s.ToolRegistry != nil {
					s.ToolRegistry.Register(def.Name, adapter)
				}
				tools = append(tools, def)
			}
		}
	}

	if s.Plans != nil && s.Plans.IsActive(tc.Session.ChatID) {
		tc.Set(turnctx.KeyPlanModeActive, true)
		tools = append(tools, planControlTools...)
	}

	return tools
}

func lastUserText(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
