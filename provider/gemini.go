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

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"google.golang.org/genai"
)

// GeminiProvider implements model.Provider on top of the Google generative
// API.
//
// Call ids do not survive this wire format: model history is sent without
// them, and tool results are matched to a function name by id when the
// originating call is known, otherwise by their order after the model turn.
type GeminiProvider struct {
	client    *genai.Client
	model     string
	maxTokens int
}

// GeminiRequest is the body of a generateContent call.
type GeminiRequest struct {
	Model    string                       `json:"model"`
	Contents []*genai.Content             `json:"contents"`
	Config   *genai.GenerateContentConfig `json:"config,omitempty"`
}

func (r *GeminiRequest) Wire() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// NewGeminiProvider creates a Gemini provider. baseURL may be empty.
func NewGeminiProvider(ctx context.Context, baseURL, apiKey, model string, maxTokens int) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiProvider{client: client, model: model, maxTokens: maxTokens}, nil
}

// BuildRequest implements model.Provider.
func (p *GeminiProvider) BuildRequest(history []model.Message, systemInstruction string, tools []mcptypes.Tool) (model.Request, error) {
	req := &GeminiRequest{
		Model:    p.model,
		Contents: ConvertToGeminiContents(history),
	}

	cfg := &genai.GenerateContentConfig{}
	if systemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(systemInstruction, genai.RoleUser)
	}
	if len(tools) > 0 {
		cfg.Tools = mcp.ConvertToolsToGenAI(tools)
	}
	if p.maxTokens > 0 {
		cfg.MaxOutputTokens = int32(p.maxTokens)
	}
	req.Config = cfg

	return req, nil
}

// Stream implements model.Provider.
func (p *GeminiProvider) Stream(ctx context.Context, req model.Request) iter.Seq2[model.StreamChunk, error] {
	return func(yield func(model.StreamChunk, error) bool) {
		gr, ok := req.(*GeminiRequest)
		if !ok {
			yield(model.StreamChunk{}, fmt.Errorf("gemini: unexpected request type %T", req))
			return
		}

		var acc callAccumulator
		for resp, err := range p.client.Models.GenerateContentStream(ctx, gr.Model, gr.Contents, gr.Config) {
			if err != nil {
				yield(model.StreamChunk{}, geminiError(err))
				return
			}
			chunk, ok := geminiChunk(resp, &acc)
			if !ok {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}
		config.Debugf("[Provider] Gemini stream finished with %d tool call(s)", len(acc.calls))
	}
}

// geminiChunk normalizes one streamed response. ok is false when the response
// carries neither text nor function calls.
func geminiChunk(resp *genai.GenerateContentResponse, acc *callAccumulator) (model.StreamChunk, bool) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return model.StreamChunk{}, false
	}

	var chunk model.StreamChunk
	var calls []model.ToolCall
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" && !part.Thought {
			chunk.TextDelta += part.Text
		}
		if fc := part.FunctionCall; fc != nil {
			calls = append(calls, model.ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
	}

	if len(calls) > 0 {
		acc.add(calls...)
		chunk.ToolCalls = acc.snapshot()
	}
	return chunk, chunk.TextDelta != "" || chunk.ToolCalls != nil
}

// ConvertToGeminiContents translates a thread. Model nodes without text or
// calls (a pending answer) are skipped; the API rejects empty parts.
func ConvertToGeminiContents(history []model.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	var names toolNameResolver
	// consecutive tool nodes answer the same model turn and share one content
	var responses *genai.Content

	for _, msg := range history {
		names.observe(msg)
		if msg.Role != model.RoleTool {
			responses = nil
		}

		switch msg.Role {
		case model.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  string(genai.RoleUser),
				Parts: []*genai.Part{{Text: msg.Content}},
			})

		case model.RoleModel:
			var parts []*genai.Part
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					Name: call.Name,
					Args: call.Args,
				}})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: string(genai.RoleModel), Parts: parts})

		case model.RoleTool:
			parts := make([]*genai.Part, 0, len(msg.ToolResults))
			for _, r := range msg.ToolResults {
				parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
					Name:     names.name(r),
					Response: geminiResponse(r.Result),
				}})
			}
			if len(parts) == 0 {
				continue
			}
			if responses != nil {
				responses.Parts = append(responses.Parts, parts...)
				continue
			}
			responses = &genai.Content{Role: string(genai.RoleUser), Parts: parts}
			contents = append(contents, responses)
		}
	}

	return contents
}

// geminiResponse wraps a stored result. JSON objects are sent as-is, any
// other value (including undecodable text) goes under "result".
func geminiResponse(result string) map[string]any {
	v := DecodeToolResult(result)
	if obj, ok := v.(map[string]any); ok {
		return obj
	}
	return map[string]any{"result": v}
}

func geminiError(err error) error {
	for e := err; e != nil; e = errors.Unwrap(e) {
		switch apiErr := any(e).(type) {
		case genai.APIError:
			return &model.StatusError{StatusCode: apiErr.Code, Message: apiErr.Message}
		case *genai.APIError:
			return &model.StatusError{StatusCode: apiErr.Code, Message: apiErr.Message}
		}
	}
	return fmt.Errorf("Gemini streaming error: %w", err)
}
