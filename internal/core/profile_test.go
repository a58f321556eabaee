package core

import (
	"strings"
	"testing"
)

func TestLoadProfile_DefaultIsAll(t *testing.T) {
	p, err := LoadProfile("")
	if err != nil {
		t.Fatalf("LoadProfile(\"\") error: %v", err)
	}
	if p.Name != "all" {
		t.Errorf("Name = %q, want %q", p.Name, "all")
	}
	for _, g := range []ToolGroup{GroupWorkflow, GroupJira, GroupBrowse, GroupFormatter} {
		if !p.Enables(g) {
			t.Errorf("all profile should enable %s", g)
		}
	}
	if p.Enables(GroupDevelopment) {
		t.Errorf("all profile should not enable development")
	}
}

func TestLoadProfile_Workflow(t *testing.T) {
	p, err := LoadProfile("Workflow")
	if err != nil {
		t.Fatalf("LoadProfile(Workflow) error: %v", err)
	}
	if !p.Enables(GroupWorkflow) || !p.Enables(GroupFormatter) {
		t.Errorf("workflow profile groups = %v", p.Groups)
	}
	if p.Enables(GroupJira) {
		t.Errorf("workflow profile should not enable jira")
	}
}

func TestLoadProfile_SingleGroups(t *testing.T) {
	for _, name := range []string{"jira", "browse", "formatter", "development"} {
		p, err := LoadProfile(name)
		if err != nil {
			t.Fatalf("LoadProfile(%s) error: %v", name, err)
		}
		if len(p.Groups) != 1 || string(p.Groups[0]) != name {
			t.Errorf("profile %s groups = %v", name, p.Groups)
		}
	}
}

func TestLoadProfile_Full(t *testing.T) {
	p, err := LoadProfile("full")
	if err != nil {
		t.Fatalf("LoadProfile(full) error: %v", err)
	}
	if len(p.Groups) != 5 {
		t.Errorf("full profile groups = %v", p.Groups)
	}
}

func TestLoadProfile_Unknown(t *testing.T) {
	_, err := LoadProfile("prod")
	if err == nil {
		t.Fatal("expected error for unknown profile")
	}
	if !strings.Contains(err.Error(), "valid: all, browse") {
		t.Errorf("error should list valid profiles, got %v", err)
	}
}

func TestLoadProfile_ReturnsCopy(t *testing.T) {
	p1, _ := LoadProfile("all")
	p1.Groups[0] = GroupDevelopment
	p2, _ := LoadProfile("all")
	if p2.Groups[0] != GroupWorkflow {
		t.Errorf("mutation leaked into profile table: %v", p2.Groups)
	}
}
