package model_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"branchchat/config"
	"branchchat/model"
	"branchchat/provider/testutil"

	"github.com/google/go-cmp/cmp"
)

type recorder struct {
	mu      sync.Mutex
	updates []model.Update
}

func (r *recorder) record(u model.Update) {
	r.mu.Lock()
	r.updates = append(r.updates, u)
	r.mu.Unlock()
}

func newConversation(cfg *config.Config, prov *testutil.MockProvider, exec model.Executor, rec *recorder) *model.Conversation {
	opts := model.Options{NewProvider: prov.Factory(), Executor: exec}
	if rec != nil {
		opts.OnUpdate = rec.record
	}
	return model.NewConversation(cfg, model.State{}, opts)
}

func roles(thread []model.Message) []model.Role {
	var out []model.Role
	for _, m := range thread {
		out = append(out, m.Role)
	}
	return out
}

func TestSimpleTurn(t *testing.T) {
	prov := testutil.NewMockProvider([]testutil.Step{testutil.Text("Hel"), testutil.Text("lo")})
	rec := &recorder{}
	conv := newConversation(testutil.TestConfig(), prov, nil, rec)

	if err := conv.SendUserMessage(context.Background(), "hi"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	thread := conv.Thread()
	if diff := cmp.Diff([]model.Role{model.RoleUser, model.RoleModel}, roles(thread)); diff != "" {
		t.Fatalf("roles mismatch (-want +got):\n%s", diff)
	}
	answer := thread[1]
	if answer.Content != "Hello" {
		t.Errorf("expected content 'Hello', got %q", answer.Content)
	}
	if answer.ToolCalls != nil {
		t.Errorf("expected nil tool calls, got %#v", answer.ToolCalls)
	}

	// context excludes the pending node
	if got := prov.Requests[0].History; len(got) != 1 || got[0].Content != "hi" {
		t.Errorf("expected history [hi], got %+v", got)
	}

	// every chunk is published with the pending node as head
	var partials []string
	for _, u := range rec.updates {
		if u.HeadID == answer.ID && u.Streaming {
			partials = append(partials, u.Messages[answer.ID].Content)
		}
	}
	if diff := cmp.Diff([]string{"", "Hel", "Hello"}, partials); diff != "" {
		t.Errorf("published partials mismatch (-want +got):\n%s", diff)
	}
}

func TestToolCallSnapshotReplaces(t *testing.T) {
	c1 := model.ToolCall{ID: "c1", Name: "lookup", Args: map[string]any{}}
	c1full := model.ToolCall{ID: "c1", Name: "lookup", Args: map[string]any{"q": "x"}}
	c2 := model.ToolCall{ID: "c2", Name: "other", Args: map[string]any{}}

	prov := testutil.NewMockProvider([]testutil.Step{
		testutil.Calls(c1),
		testutil.Text("thinking"),
		testutil.Calls(c1full, c2),
		testutil.Calls(c1full),
	})
	conv := newConversation(testutil.TestConfig(), prov, nil, nil)

	if err := conv.SendUserMessage(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	thread := conv.Thread()
	last := thread[len(thread)-1]
	if diff := cmp.Diff([]model.ToolCall{c1full}, last.ToolCalls); diff != "" {
		t.Errorf("tool calls should equal the last snapshot (-want +got):\n%s", diff)
	}
	if last.Content != "thinking" {
		t.Errorf("expected text kept alongside calls, got %q", last.Content)
	}
}

func TestFullAutoExecutionChain(t *testing.T) {
	call := model.ToolCall{ID: "c1", Name: "get_weather", Args: map[string]any{"city": "NYC"}}
	prov := testutil.NewMockProvider(
		[]testutil.Step{testutil.Calls(call)},
		[]testutil.Step{testutil.Text("It is sunny.")},
	)
	exec := testutil.NewMockExecutor()
	exec.Results["weather-src"] = "sunny"

	cfg := testutil.TestConfig()
	cfg.Tools = []config.ToolConfig{testutil.WeatherTool(true, "weather-src")}
	conv := newConversation(cfg, prov, exec, nil)

	if err := conv.SendUserMessage(context.Background(), "weather?"); err != nil {
		t.Fatal(err)
	}

	thread := conv.Thread()
	want := []model.Role{model.RoleUser, model.RoleModel, model.RoleTool, model.RoleModel}
	if diff := cmp.Diff(want, roles(thread)); diff != "" {
		t.Fatalf("roles mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]model.ToolResult{{CallID: "c1", Result: `"sunny"`}}, thread[2].ToolResults); diff != "" {
		t.Errorf("tool result mismatch (-want +got):\n%s", diff)
	}
	if thread[3].Content != "It is sunny." {
		t.Errorf("expected continuation text, got %q", thread[3].Content)
	}
	if prov.Turns() != 2 {
		t.Errorf("expected 2 streams, got %d", prov.Turns())
	}
	if diff := cmp.Diff([]map[string]any{{"city": "NYC"}}, exec.Calls); diff != "" {
		t.Errorf("executor args mismatch (-want +got):\n%s", diff)
	}
	// second request sees the tool result
	if got := prov.Requests[1].History; len(got) != 3 || got[2].Role != model.RoleTool {
		t.Errorf("expected continuation context to end with the tool node, got %v", roles(got))
	}
}

func TestPartialAutoExecution(t *testing.T) {
	calls := []model.ToolCall{
		{ID: "c1", Name: "get_weather", Args: map[string]any{"city": "NYC"}},
		{ID: "c2", Name: "send_email", Args: map[string]any{"to": "x"}},
	}
	prov := testutil.NewMockProvider([]testutil.Step{testutil.Calls(calls...)})
	exec := testutil.NewMockExecutor()
	exec.Results["weather-src"] = map[string]any{"sky": "clear"}

	cfg := testutil.TestConfig()
	cfg.Tools = []config.ToolConfig{
		testutil.WeatherTool(true, "weather-src"),
		{Name: "send_email", Active: true, AutoExecute: false, Source: "mail-src"},
	}
	conv := newConversation(cfg, prov, exec, nil)

	if err := conv.SendUserMessage(context.Background(), "do both"); err != nil {
		t.Fatal(err)
	}

	thread := conv.Thread()
	if diff := cmp.Diff([]model.Role{model.RoleUser, model.RoleModel, model.RoleTool}, roles(thread)); diff != "" {
		t.Fatalf("roles mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]model.ToolResult{{CallID: "c1", Result: `{"sky":"clear"}`}}, thread[2].ToolResults); diff != "" {
		t.Errorf("tool result mismatch (-want +got):\n%s", diff)
	}
	if prov.Turns() != 1 {
		t.Errorf("expected no continuation, got %d streams", prov.Turns())
	}
	_, open := model.OpenToolCalls(thread)
	if len(open) != 1 || open[0].ID != "c2" {
		t.Errorf("expected c2 pending, got %+v", open)
	}
}

func TestAutoExecutionFailureBecomesResult(t *testing.T) {
	call := model.ToolCall{ID: "c1", Name: "get_weather", Args: map[string]any{}}
	prov := testutil.NewMockProvider(
		[]testutil.Step{testutil.Calls(call)},
		[]testutil.Step{testutil.Text("sorry")},
	)
	exec := testutil.NewMockExecutor()
	exec.Errors["weather-src"] = errors.New("city required")

	cfg := testutil.TestConfig()
	cfg.Tools = []config.ToolConfig{testutil.WeatherTool(true, "weather-src")}
	conv := newConversation(cfg, prov, exec, nil)

	if err := conv.SendUserMessage(context.Background(), "weather?"); err != nil {
		t.Fatal(err)
	}
	thread := conv.Thread()
	want := []model.ToolResult{{CallID: "c1", Result: `{"error":"city required"}`, IsError: true}}
	if diff := cmp.Diff(want, thread[2].ToolResults); diff != "" {
		t.Errorf("tool result mismatch (-want +got):\n%s", diff)
	}
	if len(thread) != 4 {
		t.Errorf("failed tool still counts as handled, expected continuation; got %d nodes", len(thread))
	}
}

func TestInactiveOrSourcelessToolsAreManual(t *testing.T) {
	tests := []struct {
		name string
		tool config.ToolConfig
	}{
		{"inactive", config.ToolConfig{Name: "get_weather", Active: false, AutoExecute: true, Source: "s"}},
		{"no source", config.ToolConfig{Name: "get_weather", Active: true, AutoExecute: true}},
		{"not auto", config.ToolConfig{Name: "get_weather", Active: true, Source: "s"}},
		{"unregistered", config.ToolConfig{Name: "something_else", Active: true, AutoExecute: true, Source: "s"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call := model.ToolCall{ID: "c1", Name: "get_weather", Args: map[string]any{}}
			prov := testutil.NewMockProvider([]testutil.Step{testutil.Calls(call)})
			exec := testutil.NewMockExecutor()
			exec.Results["s"] = "x"

			cfg := testutil.TestConfig()
			cfg.Tools = []config.ToolConfig{tt.tool}
			conv := newConversation(cfg, prov, exec, nil)

			if err := conv.SendUserMessage(context.Background(), "go"); err != nil {
				t.Fatal(err)
			}
			thread := conv.Thread()
			if thread[len(thread)-1].Role != model.RoleModel {
				t.Errorf("expected no tool node, got roles %v", roles(thread))
			}
			if len(exec.Calls) != 0 {
				t.Errorf("executor should not run, ran %d times", len(exec.Calls))
			}
		})
	}
}

func TestStreamErrorWrittenIntoNode(t *testing.T) {
	prov := testutil.NewMockProvider([]testutil.Step{
		testutil.Text("partial"),
		testutil.Fail(&model.StatusError{StatusCode: 500, Message: "upstream exploded"}),
	})
	conv := newConversation(testutil.TestConfig(), prov, nil, nil)

	err := conv.SendUserMessage(context.Background(), "hi")
	var statusErr *model.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 500 {
		t.Fatalf("expected StatusError 500, got %v", err)
	}

	thread := conv.Thread()
	content := thread[len(thread)-1].Content
	if !strings.HasPrefix(content, "partial") || !strings.Contains(content, "upstream exploded") {
		t.Errorf("expected partial text and error in node, got %q", content)
	}
	if conv.Busy() {
		t.Error("conversation should be idle after an error")
	}
}

func TestBuildErrorWrittenIntoNode(t *testing.T) {
	prov := testutil.NewMockProvider()
	prov.BuildErr = errors.New("bad history")
	conv := newConversation(testutil.TestConfig(), prov, nil, nil)

	if err := conv.SendUserMessage(context.Background(), "hi"); err == nil {
		t.Fatal("expected error")
	}
	thread := conv.Thread()
	if got := thread[len(thread)-1]; got.Role != model.RoleModel || !strings.Contains(got.Content, "bad history") {
		t.Errorf("expected error in pending node, got %+v", got)
	}
}

func TestConfigErrorsCreateNoNodes(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		wantErr error
	}{
		{"no active model", func(cfg *config.Config) { cfg.ActiveModel = "" }, model.ErrNoActiveModel},
		{"unknown model", func(cfg *config.Config) { cfg.ActiveModel = "ghost" }, model.ErrUnknownModel},
		{"missing key", func(cfg *config.Config) {
			cfg.Models[0].APIKey = ""
			cfg.Models[0].Provider = "branchchat-test-provider"
		}, model.ErrMissingCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testutil.TestConfig()
			tt.mutate(cfg)
			prov := testutil.NewMockProvider()
			conv := newConversation(cfg, prov, nil, nil)

			err := conv.SendUserMessage(context.Background(), "hi")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if messages, _ := conv.Snapshot(); len(messages) != 0 {
				t.Errorf("expected no nodes, got %d", len(messages))
			}
			if prov.Turns() != 0 {
				t.Errorf("expected no stream, got %d", prov.Turns())
			}
		})
	}
}

func TestManualSubmission(t *testing.T) {
	calls := []model.ToolCall{
		{ID: "c1", Name: "ask_user", Args: map[string]any{}},
		{ID: "c2", Name: "ask_user", Args: map[string]any{}},
	}
	prov := testutil.NewMockProvider(
		[]testutil.Step{testutil.Calls(calls...)},
		[]testutil.Step{testutil.Text("thanks")},
	)
	conv := newConversation(testutil.TestConfig(), prov, nil, nil)
	ctx := context.Background()

	if err := conv.SendUserMessage(ctx, "ask me twice"); err != nil {
		t.Fatal(err)
	}

	if err := conv.SubmitToolResult(ctx, "nope", "x", false); !errors.Is(err, model.ErrUnknownToolCall) {
		t.Errorf("expected ErrUnknownToolCall, got %v", err)
	}

	if err := conv.SubmitToolResult(ctx, "c1", `"yes"`, false); err != nil {
		t.Fatal(err)
	}
	if prov.Turns() != 1 {
		t.Fatalf("turn should wait for c2, got %d streams", prov.Turns())
	}

	if err := conv.SubmitToolResult(ctx, "c1", `"again"`, false); !errors.Is(err, model.ErrUnknownToolCall) {
		t.Errorf("answered call should not accept a second result, got %v", err)
	}

	if err := conv.SubmitToolResult(ctx, "c2", `"no"`, false); err != nil {
		t.Fatal(err)
	}
	if prov.Turns() != 2 {
		t.Fatalf("expected continuation after last result, got %d streams", prov.Turns())
	}

	want := []model.Role{model.RoleUser, model.RoleModel, model.RoleTool, model.RoleTool, model.RoleModel}
	if diff := cmp.Diff(want, roles(conv.Thread())); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}
}

func TestMixedAutoAndManualSubmission(t *testing.T) {
	calls := []model.ToolCall{
		{ID: "c1", Name: "get_weather", Args: map[string]any{"city": "NYC"}},
		{ID: "c2", Name: "send_email", Args: map[string]any{"to": "x"}},
	}
	prov := testutil.NewMockProvider(
		[]testutil.Step{testutil.Calls(calls...)},
		[]testutil.Step{testutil.Text("both done")},
	)
	exec := testutil.NewMockExecutor()
	exec.Results["weather-src"] = map[string]any{"sky": "clear"}

	cfg := testutil.TestConfig()
	cfg.Tools = []config.ToolConfig{
		testutil.WeatherTool(true, "weather-src"),
		{Name: "send_email", Active: true, AutoExecute: false},
	}
	conv := newConversation(cfg, prov, exec, nil)
	ctx := context.Background()

	if err := conv.SendUserMessage(ctx, "do both"); err != nil {
		t.Fatal(err)
	}
	if prov.Turns() != 1 {
		t.Fatalf("turn should wait for c2, got %d streams", prov.Turns())
	}

	if err := conv.SubmitToolResult(ctx, "c2", `"sent"`, false); err != nil {
		t.Fatal(err)
	}
	if prov.Turns() != 2 {
		t.Fatalf("expected continuation once c2 is answered, got %d streams", prov.Turns())
	}

	thread := conv.Thread()
	want := []model.Role{model.RoleUser, model.RoleModel, model.RoleTool, model.RoleTool, model.RoleModel}
	if diff := cmp.Diff(want, roles(thread)); diff != "" {
		t.Fatalf("roles mismatch (-want +got):\n%s", diff)
	}
	if thread[4].Content != "both done" {
		t.Errorf("final content = %q", thread[4].Content)
	}
	if _, open := model.OpenToolCalls(thread); len(open) != 0 {
		t.Errorf("expected no open calls, got %+v", open)
	}
}

func TestAutoChainLimit(t *testing.T) {
	call := model.ToolCall{ID: "c1", Name: "get_weather", Args: map[string]any{}}
	loop := []testutil.Step{testutil.Calls(call)}
	prov := testutil.NewMockProvider(loop, loop, loop, loop, loop, loop)
	exec := testutil.NewMockExecutor()
	exec.Results["src"] = "again"

	cfg := testutil.TestConfig()
	cfg.MaxAutoChain = 2
	cfg.Tools = []config.ToolConfig{testutil.WeatherTool(true, "src")}
	conv := newConversation(cfg, prov, exec, nil)

	err := conv.SendUserMessage(context.Background(), "loop")
	if !errors.Is(err, model.ErrAutoChainLimit) {
		t.Fatalf("expected ErrAutoChainLimit, got %v", err)
	}
	if prov.Turns() != 3 {
		t.Errorf("expected 1 turn plus 2 chained, got %d", prov.Turns())
	}
	if conv.Busy() {
		t.Error("conversation should be idle")
	}
}

func TestRegenerateCreatesSibling(t *testing.T) {
	prov := testutil.NewMockProvider(
		[]testutil.Step{testutil.Text("first")},
		[]testutil.Step{testutil.Text("second")},
	)
	conv := newConversation(testutil.TestConfig(), prov, nil, nil)
	ctx := context.Background()

	if err := conv.SendUserMessage(ctx, "hi"); err != nil {
		t.Fatal(err)
	}
	first := conv.Thread()[1]

	if err := conv.Regenerate(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	thread := conv.Thread()
	second := thread[1]
	if second.Content != "second" || second.ParentID != first.ParentID {
		t.Errorf("expected sibling answer 'second', got %+v", second)
	}

	if err := conv.Navigate("", model.Prev); err != nil {
		t.Fatal(err)
	}
	if _, head := conv.Snapshot(); head != first.ID {
		t.Errorf("expected head back on first answer, got %q", head)
	}
}

func TestEditMessageBranches(t *testing.T) {
	prov := testutil.NewMockProvider(
		[]testutil.Step{testutil.Text("a1")},
		[]testutil.Step{testutil.Text("a2")},
	)
	conv := newConversation(testutil.TestConfig(), prov, nil, nil)
	ctx := context.Background()

	if err := conv.SendUserMessage(ctx, "q1"); err != nil {
		t.Fatal(err)
	}
	original := conv.Thread()[0]

	if err := conv.EditMessage(ctx, original.ID, "q2"); err != nil {
		t.Fatal(err)
	}
	thread := conv.Thread()
	if thread[0].Content != "q2" || thread[1].Content != "a2" {
		t.Errorf("expected edited branch q2/a2, got %q/%q", thread[0].Content, thread[1].Content)
	}

	messages, _ := conv.Snapshot()
	if len(messages) != 4 {
		t.Errorf("expected both branches kept, got %d nodes", len(messages))
	}

	if err := conv.EditMessage(ctx, thread[1].ID, "x"); err == nil {
		t.Error("editing a model message should fail")
	}
}

func TestPreviewRequest(t *testing.T) {
	prov := testutil.NewMockProvider()
	cfg := testutil.TestConfig()
	cfg.SystemPrompt = "be brief"
	cfg.Tools = []config.ToolConfig{testutil.WeatherTool(false, ""), {Name: "off", Active: false}}

	messages, head := testutil.TestThread()
	conv := model.NewConversation(cfg, model.State{MessageMap: messages, HeadID: head}, model.Options{NewProvider: prov.Factory()})

	data, err := conv.PreviewRequest(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)
	for _, want := range []string{`"systemInstruction":"be brief"`, `"tools":["get_weather"]`, `It is sunny.`} {
		if !strings.Contains(body, want) {
			t.Errorf("preview missing %s: %s", want, body)
		}
	}
	if prov.Turns() != 0 {
		t.Error("preview must not open a stream")
	}
}

func TestSetActiveModelWhilePreviewing(t *testing.T) {
	prov := testutil.NewMockProvider()
	cfg := testutil.TestConfig()
	cfg.Models = append(cfg.Models, config.ModelConfig{ID: "mock-b", Provider: "mock", Model: "mock-2", APIKey: "test-key"})
	conv := model.NewConversation(cfg, model.State{}, model.Options{NewProvider: prov.Factory()})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 50 {
			if _, err := conv.PreviewRequest(context.Background()); err != nil {
				t.Errorf("PreviewRequest() error = %v", err)
				return
			}
		}
	}()

	ids := []string{"mock", "mock-b"}
	for i := range 50 {
		if err := conv.SetActiveModel(ids[i%2]); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()

	if got := conv.ActiveModel(); got != "mock-b" {
		t.Errorf("ActiveModel() = %q, want mock-b", got)
	}
}

func TestTurnInProgressRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	prov := testutil.NewMockProvider([]testutil.Step{testutil.Text("slow")})
	exec := model.Executor(nil)

	var conv *model.Conversation
	var once sync.Once
	conv = model.NewConversation(testutil.TestConfig(), model.State{}, model.Options{
		NewProvider: prov.Factory(),
		Executor:    exec,
		OnUpdate: func(u model.Update) {
			if u.Streaming {
				once.Do(func() {
					close(started)
					<-release
				})
			}
		},
	})

	done := make(chan error)
	go func() { done <- conv.SendUserMessage(context.Background(), "one") }()

	<-started
	if err := conv.SendUserMessage(context.Background(), "two"); !errors.Is(err, model.ErrTurnInProgress) {
		t.Errorf("expected ErrTurnInProgress, got %v", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}
