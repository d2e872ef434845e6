package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func ids(thread []Message) []string {
	var out []string
	for _, m := range thread {
		out = append(out, m.ID)
	}
	return out
}

func TestProject(t *testing.T) {
	m := MessageMap{}.
		Append("", Message{ID: "a"}).
		Append("a", Message{ID: "b"}).
		Append("b", Message{ID: "c"}).
		Append("a", Message{ID: "d"})

	tests := []struct {
		name string
		head string
		want []string
	}{
		{"leaf", "c", []string{"a", "b", "c"}},
		{"sibling branch", "d", []string{"a", "d"}},
		{"inner node", "b", []string{"a", "b"}},
		{"root", "a", []string{"a"}},
		{"empty head", "", nil},
		{"unknown head", "x", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, ids(Project(m, tt.head))); diff != "" {
				t.Errorf("projection mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProjectMalformed(t *testing.T) {
	t.Run("dangling parent", func(t *testing.T) {
		m := MessageMap{
			"b": {ID: "b", ParentID: "gone"},
			"c": {ID: "c", ParentID: "b"},
		}
		if diff := cmp.Diff([]string{"b", "c"}, ids(Project(m, "c"))); diff != "" {
			t.Errorf("projection mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		m := MessageMap{
			"a": {ID: "a", ParentID: "b"},
			"b": {ID: "b", ParentID: "a"},
		}
		if got := Project(m, "a"); len(got) != 2 {
			t.Errorf("expected walk to stop after 2 nodes, got %v", ids(got))
		}
	})
}

func toolTurn() []Message {
	return []Message{
		{ID: "u", Role: RoleUser, Content: "go"},
		{ID: "m", Role: RoleModel, ToolCalls: []ToolCall{{ID: "c1", Name: "a"}, {ID: "c2", Name: "b"}}},
		{ID: "t1", Role: RoleTool, ToolResults: []ToolResult{{CallID: "c1", Result: "1"}}},
	}
}

func TestFindAnswerFor(t *testing.T) {
	thread := toolTurn()

	if r, ok := FindAnswerFor(ToolCall{ID: "c1"}, thread); !ok || r.Result != "1" {
		t.Errorf("expected c1 answered with 1, got %+v %v", r, ok)
	}
	if _, ok := FindAnswerFor(ToolCall{ID: "c2"}, thread); ok {
		t.Error("c2 should be unanswered")
	}
	if _, ok := FindAnswerFor(ToolCall{ID: "zz"}, thread); ok {
		t.Error("unknown call should be unanswered")
	}

	// a result after an intervening model node does not count
	later := append(toolTurn()[:2:2],
		Message{ID: "m2", Role: RoleModel, Content: "hm"},
		Message{ID: "t2", Role: RoleTool, ToolResults: []ToolResult{{CallID: "c2", Result: "2"}}},
	)
	if _, ok := FindAnswerFor(ToolCall{ID: "c2"}, later); ok {
		t.Error("result separated by a model node should not answer the call")
	}
}

func TestOpenToolCalls(t *testing.T) {
	issuer, open := OpenToolCalls(toolTurn())
	if issuer.ID != "m" {
		t.Errorf("expected issuer m, got %q", issuer.ID)
	}
	if len(open) != 1 || open[0].ID != "c2" {
		t.Errorf("expected c2 open, got %+v", open)
	}

	answered := append(toolTurn(), Message{ID: "t2", Role: RoleTool, ToolResults: []ToolResult{{CallID: "c2"}}})
	if _, open := OpenToolCalls(answered); len(open) != 0 {
		t.Errorf("expected no open calls, got %+v", open)
	}

	plain := []Message{{ID: "u", Role: RoleUser}, {ID: "m", Role: RoleModel, Content: "hi"}}
	if _, open := OpenToolCalls(plain); open != nil {
		t.Errorf("expected nil for a text answer, got %+v", open)
	}
}
