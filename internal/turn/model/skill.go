package model

// Skill is a named prompt fragment with optional pipeline transitions and an
// MCP tool bundle, selected by the skill router.
type Skill struct {
	Name                   string
	Description            string
	Content                string
	Available              bool
	NextSkill              string
	ConditionalNextSkills  map[string]string
	McpConfig              *McpConfig
}

// McpConfig names the MCP server a skill wants tools from.
type McpConfig struct {
	ServerName string
	Command    string
	Args       []string
}

// HasPipeline reports whether this skill declares any transition out.
func (s Skill) HasPipeline() bool {
	return s.NextSkill != "" || len(s.ConditionalNextSkills) > 0
}

// PromptSection is a named, ordered fragment of the system prompt.
type PromptSection struct {
	Name    string
	Content string
	Order   int
	Enabled bool
}

// ToolDefinition describes a tool available to the LLM for the current turn.
type ToolDefinition struct {
	Name        string
	Description string
	Schema      map[string]any

	// RequiresConfirmation asks the loop to get a human go-ahead before
	// executing this tool; a refusal becomes a synthetic POLICY_DENIED
	// outcome.
	RequiresConfirmation bool
}
