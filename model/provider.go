package model

import (
	"context"
	"iter"

	"branchchat/config"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Provider abstracts one LLM provider family using the provider-agnostic
// message types of this package.
//
// This interface is defined in the model package (not provider package) to avoid
// import cycles: provider implementations can import model, and model can use the
// Provider interface without importing the provider package.
type Provider interface {
	// BuildRequest translates a thread into the provider's wire request.
	// An empty tools slice omits the tools field entirely.
	BuildRequest(history []Message, systemInstruction string, tools []mcptypes.Tool) (Request, error)

	// Stream sends req and yields normalized chunks in arrival order. A
	// transport failure is yielded once as a terminal error.
	Stream(ctx context.Context, req Request) iter.Seq2[StreamChunk, error]
}

// Request is a provider-specific wire request.
type Request interface {
	// Wire returns the JSON body as it would be sent.
	Wire() ([]byte, error)
}

// StreamChunk is one normalized streaming event. A non-nil ToolCalls is the
// complete set of calls seen so far in the turn and replaces any earlier set.
type StreamChunk struct {
	TextDelta string
	ToolCalls []ToolCall
}

// ProviderFactory builds a provider for a model entry and its resolved key.
type ProviderFactory func(ctx context.Context, m config.ModelConfig, apiKey string) (Provider, error)

// Executor runs tool source against call arguments.
type Executor interface {
	Execute(ctx context.Context, source string, args map[string]any) (any, error)
}
