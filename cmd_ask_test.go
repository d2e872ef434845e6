package main

import (
	"bytes"
	"testing"

	"branchchat/model"
)

func TestStreamPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &streamPrinter{out: &buf}

	msgs := model.MessageMap{
		"u1": {ID: "u1", Role: model.RoleUser, Content: "hi"},
	}
	p.update(model.Update{Messages: msgs, HeadID: "u1"})
	if buf.Len() != 0 {
		t.Fatalf("user head should print nothing, got %q", buf.String())
	}

	for _, content := range []string{"Hel", "Hello", "Hello there"} {
		msgs["m1"] = model.Message{ID: "m1", Role: model.RoleModel, Content: content, ParentID: "u1"}
		p.update(model.Update{Messages: msgs, HeadID: "m1", Streaming: true})
	}
	msgs["m2"] = model.Message{ID: "m2", Role: model.RoleModel, Content: "Next", ParentID: "m1"}
	p.update(model.Update{Messages: msgs, HeadID: "m2"})

	if got, want := buf.String(), "Hello there\nNext"; got != want {
		t.Errorf("printed %q, want %q", got, want)
	}
}

func TestDisplayURL(t *testing.T) {
	if got := displayURL(""); got != "http://localhost:11434" {
		t.Errorf("displayURL(\"\") = %q", got)
	}
	if got := displayURL("http://gpu:11434"); got != "http://gpu:11434" {
		t.Errorf("displayURL kept = %q", got)
	}
}
