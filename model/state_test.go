package model

import (
	"encoding/json"
	"strings"
	"testing"

	"branchchat/config"

	"github.com/google/go-cmp/cmp"
)

func sampleState() State {
	m := MessageMap{}.
		Append("", Message{ID: "u1", Role: RoleUser, Content: "hi", Timestamp: 1}).
		Append("u1", Message{ID: "m1", Role: RoleModel, Timestamp: 2,
			ToolCalls: []ToolCall{{ID: "c1", Name: "get_weather", Args: map[string]any{"city": "NYC"}}}}).
		Append("m1", Message{ID: "t1", Role: RoleTool, Timestamp: 3,
			ToolResults: []ToolResult{{CallID: "c1", Result: `{"error":"boom"}`, IsError: true}}})

	return State{
		Config: config.Config{
			ActiveModel:        "gemini-flash",
			Models:             []config.ModelConfig{{ID: "gemini-flash", Provider: "gemini", Model: "gemini-2.5-flash"}},
			SystemPrompt:       "be brief",
			Memories:           []config.Memory{{Name: "prefs", Content: "metric units", Active: true}},
			Tools:              []config.ToolConfig{{Name: "get_weather", Parameters: "{}", Active: true}},
			ToolTimeoutSeconds: 30,
			MaxAutoChain:       10,
		},
		MessageMap: m,
		HeadID:     "t1",
	}
}

func TestStateRoundTrip(t *testing.T) {
	want := sampleState()

	data, err := want.Encode()
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeState(data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	again, err := got.Encode()
	if err != nil {
		t.Fatal(err)
	}
	if string(again) != string(data) {
		t.Error("export after import is not identical")
	}
}

func TestStateNulls(t *testing.T) {
	data, err := json.Marshal(State{MessageMap: MessageMap{}.Append("", Message{ID: "r", Role: RoleUser})})
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	if !strings.Contains(s, `"headId":null`) {
		t.Errorf("expected null headId in %s", s)
	}
	if !strings.Contains(s, `"parentId":null`) {
		t.Errorf("expected null parentId in %s", s)
	}
	if !strings.Contains(s, `"childrenIds":[]`) {
		t.Errorf("expected empty childrenIds in %s", s)
	}
}

func TestDecodeStateTolerant(t *testing.T) {
	raw := `{
	  "config": {"activeModel": "x"},
	  "messageMap": {
	    "a": {"id": "a", "role": "user", "content": "hi", "timestamp": 1, "parentId": null, "childrenIds": ["b"]},
	    "b": {"id": "b", "role": "model", "content": "yo", "timestamp": 2, "parentId": "a", "childrenIds": []},
	    "o": {"role": "user", "content": "orphan", "timestamp": 3, "parentId": "missing", "childrenIds": []}
	  },
	  "headId": "nowhere"
	}`

	s, err := DecodeState([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if s.HeadID != "" {
		t.Errorf("expected unknown head to be cleared, got %q", s.HeadID)
	}
	if o := s.MessageMap["o"]; o.ID != "o" {
		t.Errorf("expected id taken from key, got %q", o.ID)
	}
	if got := Project(s.MessageMap, "o"); len(got) != 1 {
		t.Errorf("orphan should project to itself, got %d nodes", len(got))
	}
	if s.Config.MaxAutoChain != config.DefaultMaxAutoChain {
		t.Errorf("expected defaults applied, got %d", s.Config.MaxAutoChain)
	}
}

func TestDecodeStateInvalid(t *testing.T) {
	if _, err := DecodeState([]byte(`{"messageMap": [`)); err == nil {
		t.Error("expected error for truncated input")
	}
}
