package skills

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// frontmatterDelimiter separates YAML metadata from the markdown body.
const frontmatterDelimiter = "---"

var nameRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ParseFile reads and parses one skill file.
func ParseFile(path string) (*SkillEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("skills: read %s: %w", path, err)
	}
	entry, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("skills: parse %s: %w", path, err)
	}
	entry.Path = path
	return entry, nil
}

// Parse parses skill text: a YAML frontmatter block between "---" lines
// followed by the markdown body.
func Parse(text string) (*SkillEntry, error) {
	frontmatter, body, err := splitFrontmatter(text)
	if err != nil {
		return nil, err
	}

	entry := SkillEntry{Available: true}
	if err := yaml.Unmarshal([]byte(frontmatter), &entry); err != nil {
		return nil, fmt.Errorf("frontmatter: %w", err)
	}
	entry.Content = strings.TrimSpace(body)

	if entry.Name == "" {
		return nil, fmt.Errorf("frontmatter: missing name")
	}
	if !nameRe.MatchString(entry.Name) {
		return nil, fmt.Errorf("frontmatter: invalid name %q", entry.Name)
	}
	if entry.Description == "" {
		return nil, fmt.Errorf("frontmatter: missing description")
	}
	if entry.Mcp != nil && entry.Mcp.ServerName == "" {
		return nil, fmt.Errorf("frontmatter: mcp block missing serverName")
	}
	return &entry, nil
}

func splitFrontmatter(text string) (frontmatter, body string, err error) {
	trimmed := strings.TrimLeft(text, "﻿\n\r\t ")
	if !strings.HasPrefix(trimmed, frontmatterDelimiter) {
		return "", "", fmt.Errorf("missing frontmatter block")
	}
	rest := trimmed[len(frontmatterDelimiter):]
	idx := strings.Index(rest, "\n"+frontmatterDelimiter)
	if idx < 0 {
		return "", "", fmt.Errorf("unterminated frontmatter block")
	}
	frontmatter = rest[:idx]
	body = rest[idx+len(frontmatterDelimiter)+1:]
	if cut := strings.IndexByte(body, '\n'); cut >= 0 {
		body = body[cut+1:]
	} else {
		body = ""
	}
	return frontmatter, body, nil
}
