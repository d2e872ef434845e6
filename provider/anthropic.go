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

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// AnthropicProvider implements model.Provider using Anthropic's Messages API.
type AnthropicProvider struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// AnthropicRequest wraps the SDK params so they can be previewed.
type AnthropicRequest struct {
	Params anthropic.MessageNewParams
}

func (r *AnthropicRequest) Wire() ([]byte, error) {
	data, err := json.Marshal(r.Params)
	if err != nil {
		return nil, err
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	body["stream"] = true
	return json.MarshalIndent(body, "", "  ")
}

// NewAnthropicProvider creates a new Anthropic provider instance.
//
// Parameters:
//   - baseURL: API base URL (default: "https://api.anthropic.com")
//   - apiKey: Anthropic API key (required)
//   - model: model name (default: Claude Sonnet 4.5)
//   - maxTokens: response limit, required by the API (default: 4096)
func NewAnthropicProvider(baseURL, apiKey, model string, maxTokens int) (*AnthropicProvider, error) {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	anthropicModel := anthropic.ModelClaudeSonnet4_5_20250929
	if model != "" {
		anthropicModel = anthropic.Model(model)
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	client := anthropic.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	)

	return &AnthropicProvider{
		client:    &client,
		model:     anthropicModel,
		maxTokens: int64(maxTokens),
	}, nil
}

// BuildRequest implements model.Provider.
func (p *AnthropicProvider) BuildRequest(history []model.Message, systemInstruction string, tools []mcptypes.Tool) (model.Request, error) {
	params := anthropic.MessageNewParams{
		Model:     p.model,
		Messages:  ConvertToAnthropicMessages(history),
		MaxTokens: p.maxTokens,
	}
	if systemInstruction != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemInstruction}}
	}
	if len(tools) > 0 {
		params.Tools = mcp.ConvertToolsToAnthropic(tools)
	}
	return &AnthropicRequest{Params: params}, nil
}

// ConvertToAnthropicMessages translates a thread. Consecutive tool nodes are
// folded into one user message of tool_result blocks.
func ConvertToAnthropicMessages(history []model.Message) []anthropic.MessageParam {
	msgs := make([]anthropic.MessageParam, 0, len(history))
	var pendingResults []anthropic.ContentBlockParamUnion

	flush := func() {
		if len(pendingResults) > 0 {
			msgs = append(msgs, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range history {
		if msg.Role != model.RoleTool {
			flush()
		}

		switch msg.Role {
		case model.RoleUser:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case model.RoleModel:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls {
				args := call.Args
				if args == nil {
					args = map[string]any{}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, args, call.Name))
			}
			if len(blocks) == 0 {
				continue
			}
			msgs = append(msgs, anthropic.NewAssistantMessage(blocks...))

		case model.RoleTool:
			for _, r := range msg.ToolResults {
				pendingResults = append(pendingResults, anthropic.NewToolResultBlock(r.CallID, r.Result, r.IsError))
			}
		}
	}
	flush()

	return msgs
}

// Stream implements model.Provider.
func (p *AnthropicProvider) Stream(ctx context.Context, req model.Request) iter.Seq2[model.StreamChunk, error] {
	return func(yield func(model.StreamChunk, error) bool) {
		ar, ok := req.(*AnthropicRequest)
		if !ok {
			yield(model.StreamChunk{}, fmt.Errorf("anthropic: unexpected request type %T", req))
			return
		}

		stream := p.client.Messages.NewStreaming(ctx, ar.Params)
		defer stream.Close()

		// tool_use input arrives as partial JSON keyed by block index
		var calls fragmentAccumulator
		toolBlocks := make(map[int64]bool)
		var stopReason anthropic.StopReason

		for stream.Next() {
			event := stream.Current()

			var chunk model.StreamChunk
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockStartEvent:
				if ev.ContentBlock.Type == "tool_use" {
					toolBlocks[ev.Index] = true
					calls.add(ev.Index, ev.ContentBlock.ID, ev.ContentBlock.Name, "")
				}
			case anthropic.ContentBlockDeltaEvent:
				switch delta := ev.Delta.AsAny().(type) {
				case anthropic.TextDelta:
					chunk.TextDelta = delta.Text
				case anthropic.InputJSONDelta:
					calls.add(ev.Index, "", "", delta.PartialJSON)
				}
			case anthropic.ContentBlockStopEvent:
				if toolBlocks[ev.Index] {
					chunk.ToolCalls = calls.snapshot()
				}
			case anthropic.MessageDeltaEvent:
				stopReason = ev.Delta.StopReason
			}

			if chunk.TextDelta == "" && chunk.ToolCalls == nil {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}

		if err := stream.Err(); err != nil {
			yield(model.StreamChunk{}, anthropicError(err))
			return
		}
		config.Debugf("[Provider] Anthropic stream finished (%s)", stopReason)
	}
}

func anthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &model.StatusError{
			StatusCode: apiErr.StatusCode,
			Message:    errorMessage(apiErr.RawJSON(), apiErr.StatusCode),
		}
	}
	return fmt.Errorf("Anthropic streaming error: %w", err)
}
