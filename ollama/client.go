package ollama

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// Client is a thin wrapper over the Ollama API client bound to one model.
type Client struct {
	client  *api.Client
	model   string
	baseURL string
}

// ResponseFunc receives every streamed chat response in order.
type ResponseFunc func(resp api.ChatResponse) error

// ModelInfo describes a locally available model.
type ModelInfo struct {
	Name string
	Size int64
}

func NewClient(baseURL, model string) (*Client, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.1:latest"
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Ollama URL: %w", err)
	}

	return &Client{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   model,
		baseURL: baseURL,
	}, nil
}

// NewChatRequest builds a streaming chat request for the bound model. Tools
// are dropped for models that are known not to support them.
func (c *Client) NewChatRequest(messages []api.Message, tools []api.Tool) *api.ChatRequest {
	stream := true
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
	}
	if len(tools) > 0 && c.SupportsToolCalling() {
		req.Tools = tools
	}
	return req
}

// Chat sends req and calls fn for every streamed response.
func (c *Client) Chat(ctx context.Context, req *api.ChatRequest, fn ResponseFunc) error {
	return c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		return fn(resp)
	})
}

func (c *Client) ListModels(ctx context.Context) ([]ModelInfo, error) {
	resp, err := c.client.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]ModelInfo, len(resp.Models))
	for i, m := range resp.Models {
		models[i] = ModelInfo{Name: m.Name, Size: m.Size}
	}
	return models, nil
}

func (c *Client) GetModel() string {
	return c.model
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.client.List(ctx)
	return err
}

// toolCallingModels maps model family prefixes to tool support.
var toolCallingModels = map[string]bool{
	"qwen":      true,
	"llama3.1":  true,
	"llama3.2":  true,
	"llama3.3":  true,
	"mistral":   true,
	"command-r": true,
	"nemotron":  true,
	"granite3":  true,
	"gpt-oss":   true,

	"llama3-gradient": false,
	"llama3":          false, // original llama3, not 3.1+
	"phi":             false,
	"gemma":           false,
	"codellama":       false,
	"deepseek":        false,
}

// orderedPrefixes is checked longest-first so llama3.1 wins over llama3.
var orderedPrefixes = []string{
	"llama3.3", "llama3.2", "llama3.1",
	"llama3-gradient",
	"command-r", "qwen", "mistral", "nemotron", "granite3", "gpt-oss",
	"codellama",
	"llama3",
	"deepseek", "phi", "gemma",
}

func (c *Client) SupportsToolCalling() bool {
	return ModelSupportsToolCalling(c.model)
}

// ModelSupportsToolCalling reports whether a model family is known to handle
// tool definitions. Unknown families report false.
func ModelSupportsToolCalling(modelName string) bool {
	modelName = strings.ToLower(modelName)

	for _, prefix := range orderedPrefixes {
		if strings.HasPrefix(modelName, prefix) {
			return toolCallingModels[prefix]
		}
	}
	return false
}
