package core

import "strings"

// Policy is the tool allowlist parsed from a comma-separated env var. It is
// applied when tools are registered, so a denied tool is never listed.
type Policy struct {
	allowedTools map[string]bool
}

// NewPolicy creates a Policy from a comma-separated allowlist.
// An empty string allows every tool.
func NewPolicy(toolCSV string) *Policy {
	return &Policy{allowedTools: parseCSV(toolCSV)}
}

// Allows reports whether toolName may be registered.
func (p *Policy) Allows(toolName string) bool {
	if len(p.allowedTools) == 0 {
		return true
	}
	return p.allowedTools[toolName]
}

func parseCSV(s string) map[string]bool {
	m := make(map[string]bool)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			m[item] = true
		}
	}
	return m
}
