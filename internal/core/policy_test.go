package core

import "testing"

func TestPolicyAllows(t *testing.T) {
	p := NewPolicy("start_issue,complete_issue")

	for _, name := range []string{"start_issue", "complete_issue"} {
		if !p.Allows(name) {
			t.Fatalf("expected %s allowed", name)
		}
	}
	if p.Allows("browse__fetch") {
		t.Fatal("expected browse__fetch denied")
	}
}

func TestPolicyEmptyAllowlistAllowsAll(t *testing.T) {
	p := NewPolicy("")
	if !p.Allows("any_tool") {
		t.Fatal("expected every tool allowed when allowlist is empty")
	}
}

func TestPolicyCSVWhitespace(t *testing.T) {
	p := NewPolicy(" list_issues , change_summary ,, ")

	if !p.Allows("change_summary") {
		t.Fatal("expected allowed after trimming")
	}
	if p.Allows("") {
		t.Fatal("empty tool name must not match")
	}
}
