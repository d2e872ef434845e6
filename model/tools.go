package model

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"branchchat/config"
)

// AutoExecutable reports whether call can run without user involvement: its
// tool is registered, active, flagged for auto-execution and has source.
func AutoExecutable(cfg *config.Config, call ToolCall) (config.ToolConfig, bool) {
	tool, ok := cfg.FindTool(call.Name)
	if !ok || !tool.Active || !tool.AutoExecute || tool.Source == "" {
		return config.ToolConfig{}, false
	}
	return tool, true
}

// EncodeToolValue serializes a tool's return value. Strings are JSON-quoted so
// a literal string stays distinguishable from an object result.
func EncodeToolValue(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprint(v))
	}
	return string(data)
}

// EncodeToolError serializes an execution failure as {"error": msg}.
func EncodeToolError(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}

// runAutoTools executes every auto-executable call in order and returns the
// results produced. Calls that do not qualify are skipped.
func runAutoTools(ctx context.Context, cfg *config.Config, exec Executor, calls []ToolCall) []ToolResult {
	if exec == nil {
		return nil
	}

	timeout := time.Duration(cfg.ToolTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = time.Duration(config.DefaultToolTimeoutSeconds) * time.Second
	}

	var results []ToolResult
	for _, call := range calls {
		tool, ok := AutoExecutable(cfg, call)
		if !ok {
			config.Debugf("[Turn] Tool call %s (%s) left for manual submission", call.ID, call.Name)
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		value, err := exec.Execute(callCtx, tool.Source, call.Args)
		cancel()

		if err != nil {
			config.Debugf("[Turn] Tool %s failed: %v", call.Name, err)
			results = append(results, ToolResult{CallID: call.ID, Result: EncodeToolError(err), IsError: true})
			continue
		}
		config.Debugf("[Turn] Tool %s succeeded", call.Name)
		results = append(results, ToolResult{CallID: call.ID, Result: EncodeToolValue(value)})
	}
	return results
}
