// Package skills discovers, parses, and gates the named prompt fragments
// the turn router classifies incoming messages against. A skill is a
// markdown file with YAML frontmatter; its body becomes system-prompt
// content when the skill is active.
package skills

// SkillEntry is one discovered skill.
type SkillEntry struct {
	// Name uniquely identifies the skill (lowercase, hyphens allowed).
	Name string `yaml:"name"`

	// Description tells the router what the skill is for.
	Description string `yaml:"description"`

	// Available gates the skill out of routing without deleting its file.
	Available bool `yaml:"available"`

	// NextSkill names the default follow-up skill, if the skill is one step
	// of a longer flow.
	NextSkill string `yaml:"nextSkill"`

	// ConditionalNextSkills maps a routing condition to the follow-up skill
	// taken when it holds.
	ConditionalNextSkills map[string]string `yaml:"conditionalNextSkills"`

	// RequiredEnv lists environment variables that must be set for the
	// skill to be eligible (API keys its tools depend on).
	RequiredEnv []string `yaml:"requiredEnv"`

	// Mcp names an MCP server whose tools the skill brings along.
	Mcp *McpSpec `yaml:"mcp"`

	// Content is the markdown body below the frontmatter.
	Content string `yaml:"-"`

	// Path is the file the skill was parsed from.
	Path string `yaml:"-"`

	// Source records which configured directory the skill came from;
	// higher-priority sources shadow lower ones on name conflicts.
	Source Source `yaml:"-"`
}

// McpSpec describes how to reach the MCP server a skill depends on.
type McpSpec struct {
	ServerName string   `yaml:"serverName"`
	Command    string   `yaml:"command"`
	Args       []string `yaml:"args"`
}

// Source identifies which directory layer a skill was discovered in.
type Source string

const (
	// SourceBundled skills ship with the deployment.
	SourceBundled Source = "bundled"
	// SourceLocal skills live in the operator's config directory.
	SourceLocal Source = "local"
	// SourceWorkspace skills live next to the running workspace.
	SourceWorkspace Source = "workspace"
)

// priority orders sources for conflict resolution; higher wins.
func (s Source) priority() int {
	switch s {
	case SourceWorkspace:
		return 3
	case SourceLocal:
		return 2
	case SourceBundled:
		return 1
	default:
		return 0
	}
}
