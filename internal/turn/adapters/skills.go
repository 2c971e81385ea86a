// Package adapters binds the turn orchestrator's ports to their concrete
// collaborators — skill discovery, session storage, rate limiting, model
// catalog, and usage tracking — so the core packages in internal/turn never
// import an implementation directly.
package adapters

import (
	"github.com/arcbound/turnloop/internal/skills"
	"github.com/arcbound/turnloop/internal/turn/model"
)

// SkillStore adapts a *skills.Manager's eligible-skill set into the
// router.Store / promptsvc.Stage.SkillStore interface the turn packages
// expect.
type SkillStore struct {
	Manager *skills.Manager
}

// NewSkillStore wraps manager.
func NewSkillStore(manager *skills.Manager) *SkillStore {
	return &SkillStore{Manager: manager}
}

// Available returns every currently eligible skill, converted to the turn
// model's routing-oriented Skill shape.
func (s *SkillStore) Available() []model.Skill {
	entries := s.Manager.ListEligible()
	out := make([]model.Skill, 0, len(entries))
	for _, e := range entries {
		out = append(out, convertSkill(e))
	}
	return out
}

// Lookup resolves one skill by name from the eligible set.
func (s *SkillStore) Lookup(name string) (model.Skill, bool) {
	e, ok := s.Manager.GetEligible(name)
	if !ok {
		return model.Skill{}, false
	}
	return convertSkill(e), true
}

func convertSkill(e *skills.SkillEntry) model.Skill {
	sk := model.Skill{
		Name:                  e.Name,
		Description:           e.Description,
		Content:               e.Content,
		Available:             true, // presence in the eligible set is the availability signal
		NextSkill:             e.NextSkill,
		ConditionalNextSkills: e.ConditionalNextSkills,
	}
	if e.Mcp != nil {
		sk.McpConfig = &model.McpConfig{
			ServerName: e.Mcp.ServerName,
			Command:    e.Mcp.Command,
			Args:       e.Mcp.Args,
		}
	}
	return sk
}
