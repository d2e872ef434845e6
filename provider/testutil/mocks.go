package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sync"

	"branchchat/config"
	"branchchat/model"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Step is one scripted stream event: a chunk or, when Err is set, a terminal
// error.
type Step struct {
	Chunk model.StreamChunk
	Err   error
}

// Text is a shorthand for a text-only step.
func Text(delta string) Step {
	return Step{Chunk: model.StreamChunk{TextDelta: delta}}
}

// Calls is a shorthand for a tool-call snapshot step.
func Calls(calls ...model.ToolCall) Step {
	return Step{Chunk: model.StreamChunk{ToolCalls: calls}}
}

// Fail is a shorthand for a terminal error step.
func Fail(err error) Step {
	return Step{Err: err}
}

// MockRequest is the request built by MockProvider.
type MockRequest struct {
	History           []model.Message `json:"history"`
	SystemInstruction string          `json:"systemInstruction"`
	Tools             []string        `json:"tools,omitempty"`
}

func (r *MockRequest) Wire() ([]byte, error) {
	return json.Marshal(r)
}

// MockProvider implements model.Provider by replaying one script per turn.
// Turns beyond the script stream a single "done" chunk.
type MockProvider struct {
	mu       sync.Mutex
	Script   [][]Step
	Requests []*MockRequest

	// BuildErr, when set, fails BuildRequest.
	BuildErr error
}

// NewMockProvider creates a mock provider replaying the given turns.
func NewMockProvider(turns ...[]Step) *MockProvider {
	return &MockProvider{Script: turns}
}

func (m *MockProvider) BuildRequest(history []model.Message, systemInstruction string, tools []mcptypes.Tool) (model.Request, error) {
	if m.BuildErr != nil {
		return nil, m.BuildErr
	}
	req := &MockRequest{History: history, SystemInstruction: systemInstruction}
	for _, t := range tools {
		req.Tools = append(req.Tools, t.Name)
	}
	return req, nil
}

func (m *MockProvider) Stream(ctx context.Context, req model.Request) iter.Seq2[model.StreamChunk, error] {
	m.mu.Lock()
	mr, _ := req.(*MockRequest)
	m.Requests = append(m.Requests, mr)
	steps := []Step{Text("done")}
	if turn := len(m.Requests) - 1; turn < len(m.Script) {
		steps = m.Script[turn]
	}
	m.mu.Unlock()

	return func(yield func(model.StreamChunk, error) bool) {
		for _, s := range steps {
			if err := ctx.Err(); err != nil {
				yield(model.StreamChunk{}, err)
				return
			}
			if s.Err != nil {
				yield(model.StreamChunk{}, s.Err)
				return
			}
			if !yield(s.Chunk, nil) {
				return
			}
		}
	}
}

// Turns returns how many streams were opened.
func (m *MockProvider) Turns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// Factory returns a provider factory that always hands out m.
func (m *MockProvider) Factory() model.ProviderFactory {
	return func(ctx context.Context, mc config.ModelConfig, apiKey string) (model.Provider, error) {
		return m, nil
	}
}

// MockExecutor implements model.Executor with a lookup from source text to a
// canned value or error.
type MockExecutor struct {
	mu      sync.Mutex
	Results map[string]any
	Errors  map[string]error
	Calls   []map[string]any
}

func NewMockExecutor() *MockExecutor {
	return &MockExecutor{Results: map[string]any{}, Errors: map[string]error{}}
}

func (e *MockExecutor) Execute(ctx context.Context, source string, args map[string]any) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Calls = append(e.Calls, args)
	if err, ok := e.Errors[source]; ok {
		return nil, err
	}
	if v, ok := e.Results[source]; ok {
		return v, nil
	}
	return nil, errors.New("no scripted result for source")
}
