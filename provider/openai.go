package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"branchchat/config"
	"branchchat/mcp"
	"branchchat/model"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const maxSSELine = 1024 * 1024

// OpenAIProvider implements model.Provider for any OpenAI-compatible chat
// completions endpoint (OpenAI, OpenRouter, local gateways).
//
// The SDK client is used as transport only. The event stream is read line by
// line here so that a malformed line is skipped instead of ending the stream.
type OpenAIProvider struct {
	client    openai.Client
	model     string
	baseURL   string
	maxTokens int
}

// OpenAIRequest is the chat completions body.
type OpenAIRequest struct {
	Model     string                                `json:"model"`
	Messages  []OpenAIMessage                       `json:"messages"`
	Stream    bool                                  `json:"stream"`
	Tools     []openai.ChatCompletionToolUnionParam `json:"tools,omitempty"`
	MaxTokens int                                   `json:"max_tokens,omitempty"`
}

func (r *OpenAIRequest) Wire() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// OpenAIMessage is one chat message. Content is a pointer so that an
// assistant message carrying only tool calls omits it.
type OpenAIMessage struct {
	Role       string           `json:"role"`
	Content    *string          `json:"content,omitempty"`
	ToolCalls  []OpenAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type OpenAIToolCall struct {
	ID       string             `json:"id"`
	Type     string             `json:"type"`
	Function OpenAIFunctionCall `json:"function"`
}

type OpenAIFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// NewOpenAIProvider creates a new OpenAI-compatible provider.
//
// Parameters:
//   - baseURL: API base URL (default: "https://api.openai.com/v1")
//   - apiKey: API key (required)
//   - model: model name (default: "gpt-4o-mini")
//   - maxTokens: completion limit, 0 for the server default
func NewOpenAIProvider(baseURL, apiKey, model string, maxTokens int) (*OpenAIProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)

	return &OpenAIProvider{
		client:    client,
		model:     model,
		baseURL:   baseURL,
		maxTokens: maxTokens,
	}, nil
}

// BuildRequest implements model.Provider.
func (p *OpenAIProvider) BuildRequest(history []model.Message, systemInstruction string, tools []mcptypes.Tool) (model.Request, error) {
	var messages []OpenAIMessage
	if systemInstruction != "" {
		messages = append(messages, OpenAIMessage{Role: "system", Content: &systemInstruction})
	}
	messages = append(messages, ConvertToOpenAIMessages(history)...)

	return &OpenAIRequest{
		Model:     p.model,
		Messages:  messages,
		Stream:    true,
		Tools:     mcp.ConvertToolsToOpenAI(tools),
		MaxTokens: p.maxTokens,
	}, nil
}

// ConvertToOpenAIMessages translates a thread. Tool nodes become one "tool"
// message per result.
func ConvertToOpenAIMessages(history []model.Message) []OpenAIMessage {
	messages := make([]OpenAIMessage, 0, len(history))

	for _, msg := range history {
		switch msg.Role {
		case model.RoleUser:
			content := msg.Content
			messages = append(messages, OpenAIMessage{Role: "user", Content: &content})

		case model.RoleModel:
			out := OpenAIMessage{Role: "assistant"}
			if msg.Content != "" || len(msg.ToolCalls) == 0 {
				content := msg.Content
				out.Content = &content
			}
			for _, call := range msg.ToolCalls {
				out.ToolCalls = append(out.ToolCalls, OpenAIToolCall{
					ID:   call.ID,
					Type: "function",
					Function: OpenAIFunctionCall{
						Name:      call.Name,
						Arguments: ArgumentsJSON(call.Args),
					},
				})
			}
			messages = append(messages, out)

		case model.RoleTool:
			for _, r := range msg.ToolResults {
				result := r.Result
				messages = append(messages, OpenAIMessage{
					Role:       "tool",
					Content:    &result,
					ToolCallID: r.CallID,
				})
			}
		}
	}

	return messages
}

// Stream implements model.Provider.
func (p *OpenAIProvider) Stream(ctx context.Context, req model.Request) iter.Seq2[model.StreamChunk, error] {
	return func(yield func(model.StreamChunk, error) bool) {
		body, ok := req.(*OpenAIRequest)
		if !ok {
			yield(model.StreamChunk{}, fmt.Errorf("openai: unexpected request type %T", req))
			return
		}

		var resp *http.Response
		err := p.client.Post(ctx, "chat/completions", body, &resp,
			option.WithHeader("Accept", "text/event-stream"),
		)
		if err != nil {
			yield(model.StreamChunk{}, openAIError(err))
			return
		}
		defer resp.Body.Close()

		config.Debugf("[Provider] OpenAI stream opened: %s %s", p.baseURL, p.model)

		for chunk, err := range ReadOpenAIStream(resp.Body) {
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

// ReadOpenAIStream parses a chat completions event stream. Lines other than
// "data:" lines are ignored, "data: [DONE]" ends the stream, and lines that
// fail to decode are skipped. Only a read error is yielded as an error.
func ReadOpenAIStream(r io.Reader) iter.Seq2[model.StreamChunk, error] {
	return func(yield func(model.StreamChunk, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)

		var calls fragmentAccumulator
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return
			}

			chunk, ok := openAIChunk(payload, &calls)
			if !ok {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(model.StreamChunk{}, fmt.Errorf("OpenAI stream read error: %w", err))
		}
	}
}

// openAIChunk decodes one data payload. ok is false for undecodable payloads
// and for deltas carrying nothing of interest.
func openAIChunk(payload string, calls *fragmentAccumulator) (model.StreamChunk, bool) {
	var event openai.ChatCompletionChunk
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		config.Debugf("[Provider] Skipping undecodable stream line: %v", err)
		return model.StreamChunk{}, false
	}
	if len(event.Choices) == 0 {
		return model.StreamChunk{}, false
	}

	delta := event.Choices[0].Delta
	chunk := model.StreamChunk{TextDelta: delta.Content}
	if len(delta.ToolCalls) > 0 {
		for _, tc := range delta.ToolCalls {
			calls.add(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
		}
		chunk.ToolCalls = calls.snapshot()
	}
	return chunk, chunk.TextDelta != "" || chunk.ToolCalls != nil
}

func openAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = errorMessage(apiErr.RawJSON(), apiErr.StatusCode)
		}
		return &model.StatusError{StatusCode: apiErr.StatusCode, Message: msg}
	}
	return fmt.Errorf("OpenAI request failed: %w", err)
}
