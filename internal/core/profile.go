package core

import (
	"fmt"
	"slices"
	"sort"
	"strings"
)

// ToolGroup names a family of tools that share a backend and configuration.
type ToolGroup string

const (
	GroupWorkflow    ToolGroup = "workflow"
	GroupJira        ToolGroup = "jira"
	GroupBrowse      ToolGroup = "browse"
	GroupFormatter   ToolGroup = "formatter"
	GroupDevelopment ToolGroup = "development"
)

// Profile selects which tool groups a process exposes.
type Profile struct {
	Name   string
	Groups []ToolGroup
}

const defaultProfile = "all"

var profiles = map[string]*Profile{
	"all": {
		Name:   "all",
		Groups: []ToolGroup{GroupWorkflow, GroupJira, GroupBrowse, GroupFormatter},
	},
	"workflow": {
		Name:   "workflow",
		Groups: []ToolGroup{GroupWorkflow, GroupFormatter},
	},
	"jira":        {Name: "jira", Groups: []ToolGroup{GroupJira}},
	"browse":      {Name: "browse", Groups: []ToolGroup{GroupBrowse}},
	"formatter":   {Name: "formatter", Groups: []ToolGroup{GroupFormatter}},
	"development": {Name: "development", Groups: []ToolGroup{GroupDevelopment}},
	"full": {
		Name:   "full",
		Groups: []ToolGroup{GroupWorkflow, GroupJira, GroupBrowse, GroupFormatter, GroupDevelopment},
	},
}

// LoadProfile returns the profile for name.
// Empty name defaults to "all". Unknown names return an error.
func LoadProfile(name string) (*Profile, error) {
	name = strings.TrimSpace(strings.ToLower(name))
	if name == "" {
		name = defaultProfile
	}
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown profile %q (valid: %s)", name, strings.Join(ProfileNames(), ", "))
	}
	return &Profile{Name: p.Name, Groups: slices.Clone(p.Groups)}, nil
}

// ProfileNames lists every known profile in lexical order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (p *Profile) Enables(g ToolGroup) bool {
	return slices.Contains(p.Groups, g)
}
