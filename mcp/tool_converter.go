package mcp

import (
	"encoding/json"
	"fmt"
	"strings"

	"branchchat/config"

	"github.com/anthropics/anthropic-sdk-go"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
	"google.golang.org/genai"
)

// ToolFromConfig turns a registered tool into a declaration. Parameters must
// be a JSON schema object; an empty string declares a tool without arguments.
func ToolFromConfig(tc config.ToolConfig) (mcptypes.Tool, error) {
	name := strings.TrimSpace(tc.Name)
	if name == "" {
		return mcptypes.Tool{}, fmt.Errorf("tool has no name")
	}

	tool := mcptypes.Tool{
		Name:        name,
		Description: tc.Description,
		InputSchema: mcptypes.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}

	if strings.TrimSpace(tc.Parameters) == "" {
		return tool, nil
	}
	if err := json.Unmarshal([]byte(tc.Parameters), &tool.InputSchema); err != nil {
		return mcptypes.Tool{}, fmt.Errorf("tool %s: invalid parameters schema: %w", name, err)
	}
	if tool.InputSchema.Type == "" {
		tool.InputSchema.Type = "object"
	}
	if tool.InputSchema.Properties == nil {
		tool.InputSchema.Properties = map[string]any{}
	}
	return tool, nil
}

// ToolsFromConfig converts every tool with a valid declaration and reports the
// rest as errors.
func ToolsFromConfig(tools []config.ToolConfig) ([]mcptypes.Tool, []error) {
	var out []mcptypes.Tool
	var errs []error
	for _, tc := range tools {
		tool, err := ToolFromConfig(tc)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, tool)
	}
	return out, errs
}

// SchemaMap returns the input schema as a plain JSON schema object.
func SchemaMap(tool mcptypes.Tool) map[string]any {
	schema := map[string]any{
		"type":       tool.InputSchema.Type,
		"properties": tool.InputSchema.Properties,
	}
	if len(tool.InputSchema.Required) > 0 {
		schema["required"] = tool.InputSchema.Required
	}
	if tool.InputSchema.Defs != nil {
		schema["$defs"] = tool.InputSchema.Defs
	}
	return schema
}

// ConvertToolsToGenAI converts declarations to a single Gemini tool holding
// one function declaration each. Nil when there are no tools.
func ConvertToolsToGenAI(tools []mcptypes.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}

	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:                 tool.Name,
			Description:          tool.Description,
			ParametersJsonSchema: SchemaMap(tool),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// ConvertToolsToOpenAI converts declarations to the chat completions tool
// shape:
//
//	{
//	  "type": "function",
//	  "function": {
//	    "name": "get_weather",
//	    "description": "Get weather data",
//	    "parameters": {...}
//	  }
//	}
func ConvertToolsToOpenAI(tools []mcptypes.Tool) []openai.ChatCompletionToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	result := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, tool := range tools {
		def := openai.FunctionDefinitionParam{
			Name:       tool.Name,
			Parameters: openai.FunctionParameters(SchemaMap(tool)),
		}
		if tool.Description != "" {
			def.Description = openai.String(tool.Description)
		}
		result[i] = openai.ChatCompletionFunctionTool(def)
	}
	return result
}

// ConvertToolsToAnthropic converts declarations to Anthropic tool params.
func ConvertToolsToAnthropic(tools []mcptypes.Tool) []anthropic.ToolUnionParam {
	if len(tools) == 0 {
		return nil
	}

	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		// Type defaults to "object" when omitted
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: tool.InputSchema.Properties,
		}
		if len(tool.InputSchema.Required) > 0 {
			inputSchema.Required = tool.InputSchema.Required
		}
		if tool.InputSchema.Defs != nil {
			inputSchema.ExtraFields = map[string]any{
				"$defs": tool.InputSchema.Defs,
			}
		}

		result[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		if tool.Description != "" {
			result[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}
	return result
}

// ConvertToolsToOllama converts declarations to Ollama API tools.
func ConvertToolsToOllama(tools []mcptypes.Tool) []api.Tool {
	if len(tools) == 0 {
		return nil
	}

	result := make([]api.Tool, 0, len(tools))
	for _, tool := range tools {
		result = append(result, api.Tool{
			Type: "function",
			Function: api.ToolFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  ollamaParameters(tool.InputSchema),
			},
		})
	}
	return result
}

func ollamaParameters(schema mcptypes.ToolInputSchema) api.ToolFunctionParameters {
	params := api.ToolFunctionParameters{
		Type:       schema.Type,
		Required:   schema.Required,
		Properties: make(map[string]api.ToolProperty, len(schema.Properties)),
	}
	if schema.Defs != nil {
		params.Defs = schema.Defs
	}
	for name, value := range schema.Properties {
		params.Properties[name] = ollamaProperty(value)
	}
	return params
}

// ollamaProperty reads one JSON schema property. Values that are not already
// maps go through a JSON round trip first.
func ollamaProperty(value any) api.ToolProperty {
	prop := api.ToolProperty{}

	m, ok := value.(map[string]any)
	if !ok {
		data, err := json.Marshal(value)
		if err != nil {
			return prop
		}
		if err := json.Unmarshal(data, &m); err != nil {
			return prop
		}
	}

	switch t := m["type"].(type) {
	case string:
		prop.Type = api.PropertyType{t}
	case []string:
		prop.Type = api.PropertyType(t)
	case []any:
		types := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, s)
			}
		}
		prop.Type = api.PropertyType(types)
	}

	if desc, ok := m["description"].(string); ok {
		prop.Description = desc
	}
	if enum, ok := m["enum"].([]any); ok {
		prop.Enum = enum
	}
	if items, ok := m["items"]; ok {
		prop.Items = items
	}
	if anyOf, ok := m["anyOf"].([]any); ok {
		props := make([]api.ToolProperty, 0, len(anyOf))
		for _, item := range anyOf {
			props = append(props, ollamaProperty(item))
		}
		prop.AnyOf = props
	}

	return prop
}
