package testutil

import (
	"branchchat/config"
	"branchchat/model"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

const WeatherSchema = `{"type":"object","properties":{"city":{"type":"string","description":"City name"}},"required":["city"]}`

// TestConfig returns a config with one model, a credential and no tools.
func TestConfig() *config.Config {
	cfg := &config.Config{
		ActiveModel: "mock",
		Models: []config.ModelConfig{
			{ID: "mock", Provider: "mock", Model: "mock-1", APIKey: "test-key"},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// WeatherTool registers get_weather; autoExecute and source are set by the
// caller's arguments.
func WeatherTool(auto bool, source string) config.ToolConfig {
	return config.ToolConfig{
		Name:        "get_weather",
		Description: "Get the current weather for a city",
		Parameters:  WeatherSchema,
		Active:      true,
		AutoExecute: auto,
		Source:      source,
	}
}

// TestThread returns a user question, a model tool call and its answer, as a
// linked thread rooted at "u1".
func TestThread() (model.MessageMap, string) {
	m := model.MessageMap{}
	m = m.Append("", model.Message{ID: "u1", Role: model.RoleUser, Content: "Weather in NYC?", Timestamp: 1})
	m = m.Append("u1", model.Message{
		ID:        "m1",
		Role:      model.RoleModel,
		ToolCalls: []model.ToolCall{{ID: "c1", Name: "get_weather", Args: map[string]any{"city": "NYC"}}},
		Timestamp: 2,
	})
	m = m.Append("m1", model.Message{
		ID:          "t1",
		Role:        model.RoleTool,
		ToolResults: []model.ToolResult{{CallID: "c1", Result: `"sunny"`}},
		Timestamp:   3,
	})
	m = m.Append("t1", model.Message{ID: "m2", Role: model.RoleModel, Content: "It is sunny.", Timestamp: 4})
	return m, "m2"
}

// TestTools returns sample declarations.
func TestTools() []mcptypes.Tool {
	return []mcptypes.Tool{
		{
			Name:        "get_weather",
			Description: "Get the current weather for a city",
			InputSchema: mcptypes.ToolInputSchema{
				Type: "object",
				Properties: map[string]any{
					"city": map[string]any{"type": "string", "description": "City name"},
				},
				Required: []string{"city"},
			},
		},
	}
}

// SingleUserMessage returns a one-message thread for simple tests.
func SingleUserMessage(content string) []model.Message {
	return []model.Message{{ID: "u1", Role: model.RoleUser, Content: content, Timestamp: 1}}
}
