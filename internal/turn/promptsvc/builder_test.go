package promptsvc

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/arcbound/turnloop/internal/turn/model"
	"github.com/arcbound/turnloop/internal/turn/turnctx"
)

type fakeSections struct {
	enabled  bool
	sections []model.PromptSection
	err      error
}

func (f *fakeSections) IsEnabled() bool { return f.enabled }
func (f *fakeSections) Sections(ctx context.Context) ([]model.PromptSection, error) {
	return f.sections, f.err
}

type fakeMemory struct {
	text string
	err  error
}

func (f *fakeMemory) GetMemoryContext(ctx context.Context, sessionID string) (string, error) {
	return f.text, f.err
}

type fakeRag struct {
	available bool
	text      string
}

func (f *fakeRag) IsAvailable() bool { return f.available }
func (f *fakeRag) Query(ctx context.Context, sessionID, text string) (string, error) {
	return f.text, nil
}

type fakeSkillStore struct {
	skills []model.Skill
}

func (f *fakeSkillStore) Available() []model.Skill { return f.skills }
func (f *fakeSkillStore) Lookup(name string) (model.Skill, bool) {
	for _, s := range f.skills {
		if s.Name == name {
			return s, true
		}
	}
	return model.Skill{}, false
}

type fakeAutoMode struct {
	text string
	tier string
}

func (f *fakeAutoMode) GoalsContext(ctx context.Context, session *model.Session) (string, error) {
	return f.text, nil
}
func (f *fakeAutoMode) ModelTier() string { return f.tier }

type fakePlanActivity struct {
	active map[string]bool
}

func (f *fakePlanActivity) IsActive(chatID string) bool { return f.active[chatID] }

func newPromptSession() *model.Session {
	return &model.Session{ID: "sess-1", ChannelType: "slack", ChatID: "C1"}
}

func TestStage_Process_FallsBackToDefaultIdentityWhenSectionsDisabled(t *testing.T) {
	s := &Stage{Sections: &fakeSections{enabled: false}}
	tc := turnctx.New(newPromptSession())
	tc.Messages = []model.Message{{Role: model.RoleUser, Content: "hi"}}

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if !strings.Contains(tc.SystemPrompt, defaultIdentity) {
		t.Fatalf("SystemPrompt = %q, want it to contain the default identity line", tc.SystemPrompt)
	}
}

func TestStage_Process_RendersEnabledSectionsInOrder(t *testing.T) {
	s := &Stage{Sections: &fakeSections{
		enabled: true,
		sections: []model.PromptSection{
			{Name: "b", Content: "second", Order: 2, Enabled: true},
			{Name: "a", Content: "first", Order: 1, Enabled: true},
			{Name: "c", Content: "disabled", Order: 0, Enabled: false},
		},
	}}
	tc := turnctx.New(newPromptSession())

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	firstIdx := strings.Index(tc.SystemPrompt, "first")
	secondIdx := strings.Index(tc.SystemPrompt, "second")
	if firstIdx == -1 || secondIdx == -1 || firstIdx > secondIdx {
		t.Fatalf("SystemPrompt = %q, want 'first' before 'second'", tc.SystemPrompt)
	}
	if strings.Contains(tc.SystemPrompt, "disabled") {
		t.Fatal("disabled section was rendered")
	}
}

func TestStage_Process_SectionsErrorPropagates(t *testing.T) {
	wantErr := errors.New("section fetch failed")
	s := &Stage{Sections: &fakeSections{enabled: true, err: wantErr}}
	tc := turnctx.New(newPromptSession())

	err := s.Process(context.Background(), tc)
	if !errors.Is(err, wantErr) {
		t.Fatalf("Process error = %v, want %v", err, wantErr)
	}
}

func TestStage_Process_TemplateVariableSubstitution(t *testing.T) {
	s := &Stage{Sections: &fakeSections{
		enabled: true,
		sections: []model.PromptSection{
			{Name: "a", Content: "chat={{CHAT_ID}}", Order: 0, Enabled: true},
		},
	}}
	tc := turnctx.New(newPromptSession())

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if !strings.Contains(tc.SystemPrompt, "chat=C1") {
		t.Fatalf("SystemPrompt = %q, want chat=C1 substituted", tc.SystemPrompt)
	}
}

func TestStage_Process_AppendsMemoryAndRag(t *testing.T) {
	s := &Stage{
		Memory: &fakeMemory{text: "user likes dark mode"},
		Rag:    &fakeRag{available: true, text: "doc excerpt"},
	}
	tc := turnctx.New(newPromptSession())
	tc.Messages = []model.Message{{Role: model.RoleUser, Content: "q"}}

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if !strings.Contains(tc.SystemPrompt, "# Memory") || !strings.Contains(tc.SystemPrompt, "user likes dark mode") {
		t.Fatalf("SystemPrompt missing memory section: %q", tc.SystemPrompt)
	}
	if !strings.Contains(tc.SystemPrompt, "# Relevant Memory") || !strings.Contains(tc.SystemPrompt, "doc excerpt") {
		t.Fatalf("SystemPrompt missing RAG section: %q", tc.SystemPrompt)
	}
}

func TestStage_Process_UnavailableRagIsSkipped(t *testing.T) {
	s := &Stage{Rag: &fakeRag{available: false, text: "should not appear"}}
	tc := turnctx.New(newPromptSession())

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if strings.Contains(tc.SystemPrompt, "should not appear") {
		t.Fatal("unavailable RAG port's text was rendered anyway")
	}
}

func TestStage_Process_ActiveSkillSection(t *testing.T) {
	s := &Stage{}
	tc := turnctx.New(newPromptSession())
	tc.ActiveSkill = &model.Skill{Name: "billing", Content: "handle billing questions"}

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if !strings.Contains(tc.SystemPrompt, "# Active Skill: billing") {
		t.Fatalf("SystemPrompt = %q, want the active skill rendered", tc.SystemPrompt)
	}
}

func TestStage_Process_AvailableSkillsWhenNoneActive(t *testing.T) {
	s := &Stage{SkillStore: &fakeSkillStore{skills: []model.Skill{{Name: "billing", Description: "money stuff"}}}}
	tc := turnctx.New(newPromptSession())

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if !strings.Contains(tc.SystemPrompt, "# Available Skills") || !strings.Contains(tc.SystemPrompt, "billing") {
		t.Fatalf("SystemPrompt = %q, want the available skills list", tc.SystemPrompt)
	}
}

func TestStage_Process_SkillPipelineSection(t *testing.T) {
	s := &Stage{}
	tc := turnctx.New(newPromptSession())
	tc.ActiveSkill = &model.Skill{Name: "intake", NextSkill: "billing"}

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if !strings.Contains(tc.SystemPrompt, "# Skill Pipeline") || !strings.Contains(tc.SystemPrompt, "default next: billing") {
		t.Fatalf("SystemPrompt = %q, want the pipeline section", tc.SystemPrompt)
	}
}

func TestStage_Process_StaticToolsGatedByEnableCheck(t *testing.T) {
	s := &Stage{StaticTools: []StaticTool{
		{Definition: model.ToolDefinition{Name: "always_on"}},
		{Definition: model.ToolDefinition{Name: "gated_off"}, IsEnabled: func() bool { return false }},
		{Definition: model.ToolDefinition{Name: "gated_on"}, IsEnabled: func() bool { return true }},
	}}
	tc := turnctx.New(newPromptSession())

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	names := toolNames(tc.AvailableTools)
	if !contains(names, "always_on") || !contains(names, "gated_on") || contains(names, "gated_off") {
		t.Fatalf("AvailableTools = %v, want always_on+gated_on but not gated_off", names)
	}
}

func TestStage_Process_PlanModeAddsControlTools(t *testing.T) {
	s := &Stage{Plans: &fakePlanActivity{active: map[string]bool{"C1": true}}}
	tc := turnctx.New(newPromptSession())

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if !tc.Bool(turnctx.KeyPlanModeActive) {
		t.Fatal("plan.mode.active not set despite an active plan")
	}
	names := toolNames(tc.AvailableTools)
	if !contains(names, "plan_set_content") || !contains(names, "plan_get") {
		t.Fatalf("AvailableTools = %v, want the plan control tools", names)
	}
}

func TestStage_Process_AutoModeAppendsGoalsAndSetsTier(t *testing.T) {
	s := &Stage{AutoMode: &fakeAutoMode{text: "finish the report", tier: "deep"}}
	tc := turnctx.New(newPromptSession())
	tc.Messages = []model.Message{{Role: model.RoleUser, Content: "go", Metadata: map[string]any{"auto.mode": true}}}

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if !strings.Contains(tc.SystemPrompt, "# Goals") || !strings.Contains(tc.SystemPrompt, "finish the report") {
		t.Fatalf("SystemPrompt = %q, want the goals section", tc.SystemPrompt)
	}
	if tc.ModelTier != "deep" {
		t.Fatalf("ModelTier = %q, want deep", tc.ModelTier)
	}
}

func TestStage_ShouldProcess_SkipsOnExistingLLMError(t *testing.T) {
	s := &Stage{}
	tc := turnctx.New(newPromptSession())
	if !s.ShouldProcess(tc) {
		t.Fatal("ShouldProcess false on a fresh context")
	}
	tc.Set(turnctx.KeyLLMError, "timeout")
	if s.ShouldProcess(tc) {
		t.Fatal("ShouldProcess true once llm.error is already set")
	}
}

func TestStage_ApplySkillTransition(t *testing.T) {
	s := &Stage{SkillStore: &fakeSkillStore{skills: []model.Skill{{Name: "refunds", Content: "handle refunds"}}}}
	tc := turnctx.New(newPromptSession())
	tc.RequestSkillTransition("refunds")

	if err := s.Process(context.Background(), tc); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	if tc.ActiveSkill == nil || tc.ActiveSkill.Name != "refunds" {
		t.Fatalf("ActiveSkill = %v, want refunds after a pending transition", tc.ActiveSkill)
	}
	if tc.SkillTransitionRequest != "" {
		t.Fatal("SkillTransitionRequest was not cleared after being applied")
	}
}

func toolNames(tools []model.ToolDefinition) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}

func contains(items []string, want string) bool {
	for _, i := range items {
		if i == want {
			return true
		}
	}
	return false
}
