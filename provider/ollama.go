package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"

	"branchchat/config"
	"branchchat/mcp"
	"branchchat/model"
	"branchchat/ollama"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
)

// OllamaProvider implements model.Provider for a local Ollama server.
// Ollama does not assign call ids, so ids are generated per call.
type OllamaProvider struct {
	client *ollama.Client
}

// OllamaRequest wraps the API chat request.
type OllamaRequest struct {
	Chat *api.ChatRequest
}

func (r *OllamaRequest) Wire() ([]byte, error) {
	return json.MarshalIndent(r.Chat, "", "  ")
}

func NewOllamaProvider(baseURL, model string) (*OllamaProvider, error) {
	client, err := ollama.NewClient(baseURL, model)
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}
	return &OllamaProvider{client: client}, nil
}

// BuildRequest implements model.Provider.
func (p *OllamaProvider) BuildRequest(history []model.Message, systemInstruction string, tools []mcptypes.Tool) (model.Request, error) {
	var messages []api.Message
	if systemInstruction != "" {
		messages = append(messages, api.Message{Role: "system", Content: systemInstruction})
	}
	messages = append(messages, ConvertToOllamaMessages(history)...)

	if len(tools) > 0 && !p.client.SupportsToolCalling() {
		config.Debugf("[Provider] Model %s does not support tools, dropping %d tool(s)", p.client.GetModel(), len(tools))
	}
	return &OllamaRequest{Chat: p.client.NewChatRequest(messages, mcp.ConvertToolsToOllama(tools))}, nil
}

// ConvertToOllamaMessages translates a thread. Tool results become one "tool"
// message each, named after the originating call.
func ConvertToOllamaMessages(history []model.Message) []api.Message {
	result := make([]api.Message, 0, len(history))
	var names toolNameResolver

	for _, msg := range history {
		names.observe(msg)

		switch msg.Role {
		case model.RoleUser:
			result = append(result, api.Message{Role: "user", Content: msg.Content})

		case model.RoleModel:
			out := api.Message{Role: "assistant", Content: msg.Content}
			for _, call := range msg.ToolCalls {
				out.ToolCalls = append(out.ToolCalls, api.ToolCall{
					Function: api.ToolCallFunction{
						Name:      call.Name,
						Arguments: api.ToolCallFunctionArguments(call.Args),
					},
				})
			}
			result = append(result, out)

		case model.RoleTool:
			for _, r := range msg.ToolResults {
				result = append(result, api.Message{
					Role:     "tool",
					Content:  r.Result,
					ToolName: names.name(r),
				})
			}
		}
	}
	return result
}

// errStopStream aborts the Ollama callback loop when the consumer stops.
var errStopStream = errors.New("stream consumer stopped")

// Stream implements model.Provider.
func (p *OllamaProvider) Stream(ctx context.Context, req model.Request) iter.Seq2[model.StreamChunk, error] {
	return func(yield func(model.StreamChunk, error) bool) {
		or, ok := req.(*OllamaRequest)
		if !ok {
			yield(model.StreamChunk{}, fmt.Errorf("ollama: unexpected request type %T", req))
			return
		}

		var acc callAccumulator
		err := p.client.Chat(ctx, or.Chat, func(resp api.ChatResponse) error {
			chunk := model.StreamChunk{TextDelta: resp.Message.Content}
			if len(resp.Message.ToolCalls) > 0 {
				acc.add(ConvertToProviderToolCalls(resp.Message.ToolCalls)...)
				chunk.ToolCalls = acc.snapshot()
			}
			if chunk.TextDelta == "" && chunk.ToolCalls == nil {
				return nil
			}
			if !yield(chunk, nil) {
				return errStopStream
			}
			return nil
		})

		if err == nil || errors.Is(err, errStopStream) {
			return
		}
		yield(model.StreamChunk{}, ollamaError(err))
	}
}

func ollamaError(err error) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch statusErr := any(e).(type) {
		case api.StatusError:
			return &model.StatusError{StatusCode: statusErr.StatusCode, Message: statusErr.ErrorMessage}
		case *api.StatusError:
			return &model.StatusError{StatusCode: statusErr.StatusCode, Message: statusErr.ErrorMessage}
		}
	}
	return fmt.Errorf("Ollama chat failed: %w", err)
}

// ConvertToProviderToolCalls converts Ollama tool calls. Ids are left empty
// for the accumulator to fill in.
func ConvertToProviderToolCalls(ollamaCalls []api.ToolCall) []model.ToolCall {
	if len(ollamaCalls) == 0 {
		return nil
	}

	result := make([]model.ToolCall, len(ollamaCalls))
	for i, call := range ollamaCalls {
		result[i] = model.ToolCall{
			Name: call.Function.Name,
			Args: map[string]any(call.Function.Arguments),
		}
	}
	return result
}
