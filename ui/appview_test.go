package ui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"branchchat/model"
	"branchchat/provider/testutil"
	"branchchat/storage"
)

func newTestView(t *testing.T, prov *testutil.MockProvider) AppView {
	t.Helper()
	dir := t.TempDir()
	sessions, err := storage.NewSessionStorage(dir)
	if err != nil {
		t.Fatal(err)
	}
	a := NewAppView(Deps{
		Config:      testutil.TestConfig(),
		Sessions:    sessions,
		NewProvider: prov.Factory(),
	})
	next, _ := a.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return next.(AppView)
}

// latestUpdate drains the bridge the way the bubbletea loop would.
func latestUpdate(t *testing.T, a AppView) conversationUpdateMsg {
	t.Helper()
	select {
	case u := <-a.bridge.ch:
		return conversationUpdateMsg{update: u}
	case <-time.After(time.Second):
		t.Fatal("no update published")
	}
	return conversationUpdateMsg{}
}

func TestUpdateBridgeKeepsLatest(t *testing.T) {
	b := newUpdateBridge()
	b.publish(model.Update{HeadID: "a", Streaming: true})
	b.publish(model.Update{HeadID: "b", Streaming: true})
	b.publish(model.Update{HeadID: "c"})

	msg := b.wait()().(conversationUpdateMsg)
	if msg.update.HeadID != "c" || msg.update.Streaming {
		t.Errorf("wait() = %+v, want the last update", msg.update)
	}
}

func TestConversationUpdateRendersThread(t *testing.T) {
	prov := testutil.NewMockProvider([]testutil.Step{testutil.Text("Hel"), testutil.Text("lo there")})
	a := newTestView(t, prov)

	if err := a.conv.SendUserMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("SendUserMessage() error = %v", err)
	}

	next, _ := a.Update(latestUpdate(t, a))
	a = next.(AppView)

	view := a.viewport.View()
	for _, want := range []string{"hi", "Hello there", "You"} {
		if !strings.Contains(view, want) {
			t.Errorf("viewport missing %q:\n%s", want, view)
		}
	}
	if a.streaming {
		t.Error("final update should not be streaming")
	}
}

func TestTurnDoneReportsOpenToolCalls(t *testing.T) {
	call := model.ToolCall{ID: "call_1", Name: "get_weather", Args: map[string]any{"city": "Oslo"}}
	prov := testutil.NewMockProvider([]testutil.Step{testutil.Calls(call)})
	a := newTestView(t, prov)
	a.cfg.Tools = append(a.cfg.Tools, testutil.WeatherTool(false, ""))

	if err := a.conv.SendUserMessage(context.Background(), "weather?"); err != nil {
		t.Fatal(err)
	}
	next, _ := a.Update(latestUpdate(t, a))
	next, _ = next.(AppView).Update(turnDoneMsg{})
	a = next.(AppView)

	if !strings.Contains(a.status, "/tool <callId> <result>") {
		t.Errorf("status = %q, want a manual submission hint", a.status)
	}
	if !strings.Contains(a.viewport.View(), "awaiting /tool call_1") {
		t.Errorf("viewport does not show the open call:\n%s", a.viewport.View())
	}
}

func TestTurnDoneBeforeFinalUpdate(t *testing.T) {
	call := model.ToolCall{ID: "call_1", Name: "get_weather", Args: map[string]any{"city": "Oslo"}}
	prov := testutil.NewMockProvider([]testutil.Step{testutil.Calls(call)})
	a := newTestView(t, prov)
	a.cfg.Tools = append(a.cfg.Tools, testutil.WeatherTool(false, ""))

	if err := a.conv.SendUserMessage(context.Background(), "weather?"); err != nil {
		t.Fatal(err)
	}
	// the bridge still holds the final snapshot; the view has seen nothing yet
	next, _ := a.Update(turnDoneMsg{})
	a = next.(AppView)

	if !strings.Contains(a.status, "1 tool call(s) waiting") {
		t.Errorf("status = %q, want the open call counted", a.status)
	}
	if !strings.Contains(a.viewport.View(), "awaiting /tool call_1") {
		t.Errorf("viewport does not show the open call:\n%s", a.viewport.View())
	}
}

func TestBranchPoint(t *testing.T) {
	m := model.MessageMap{}
	m = m.Append("", model.Message{ID: "u1", Role: model.RoleUser})
	m = m.Append("u1", model.Message{ID: "m1", Role: model.RoleModel})
	m = m.Append("u1", model.Message{ID: "m2", Role: model.RoleModel})
	m = m.Append("m2", model.Message{ID: "u2", Role: model.RoleUser})

	if got := branchPoint(m, "u2"); got != "m2" {
		t.Errorf("branchPoint() = %q, want m2", got)
	}
	if got := branchPoint(m, "u1"); got != "" {
		t.Errorf("branchPoint(root only) = %q, want empty", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("line one\nline two", 100); got != "line one line two" {
		t.Errorf("truncate() = %q", got)
	}
	got := truncate(strings.Repeat("界", 20), 10)
	if !strings.HasSuffix(got, "…") {
		t.Errorf("truncate() = %q, want an ellipsis", got)
	}
}

func TestPlainThread(t *testing.T) {
	m, head := testutil.TestThread()
	text := plainThread(model.Project(m, head))
	for _, want := range []string{"Weather in NYC?", "call c1 get_weather({\"city\":\"NYC\"})", "result c1: \"sunny\"", "It is sunny."} {
		if !strings.Contains(text, want) {
			t.Errorf("plainThread() missing %q:\n%s", want, text)
		}
	}
}
