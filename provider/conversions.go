package provider

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"branchchat/model"

	"github.com/google/uuid"
)

// ParseToolArguments parses JSON arguments text into a map. Partial or
// malformed text yields an empty map.
func ParseToolArguments(argsJSON string) map[string]any {
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil || args == nil {
		return make(map[string]any)
	}
	return args
}

// NewCallID generates a call id for providers that do not supply one.
func NewCallID() string {
	return "call_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

// DecodeToolResult decodes a stored tool result. Plain strings that are not
// valid JSON are returned as-is.
func DecodeToolResult(result string) any {
	var v any
	if err := json.Unmarshal([]byte(result), &v); err != nil {
		return result
	}
	return v
}

// ArgumentsJSON encodes tool arguments, "{}" for nil.
func ArgumentsJSON(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// toolNameResolver finds the function name of a tool result. Results are
// matched by call id against the calls of the most recent model node, falling
// back to the position of the result among the results following that node.
type toolNameResolver struct {
	calls    []model.ToolCall
	position int
}

// observe must be called for every message of the thread in order.
func (r *toolNameResolver) observe(msg model.Message) {
	if msg.Role == model.RoleModel {
		r.calls = msg.ToolCalls
		r.position = 0
	}
}

func (r *toolNameResolver) name(result model.ToolResult) string {
	pos := r.position
	r.position++
	for _, c := range r.calls {
		if c.ID == result.CallID {
			return c.Name
		}
	}
	if pos < len(r.calls) {
		return r.calls[pos].Name
	}
	return ""
}

// callAccumulator collects tool calls across the chunks of one turn.
type callAccumulator struct {
	calls []model.ToolCall
}

// add merges calls in; a call with a known id replaces the earlier one.
func (a *callAccumulator) add(calls ...model.ToolCall) {
	for _, c := range calls {
		if c.ID == "" {
			c.ID = NewCallID()
		}
		if c.Args == nil {
			c.Args = map[string]any{}
		}
		replaced := false
		for i := range a.calls {
			if a.calls[i].ID == c.ID {
				a.calls[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			a.calls = append(a.calls, c)
		}
	}
}

// snapshot returns a copy safe to hand out.
func (a *callAccumulator) snapshot() []model.ToolCall {
	if len(a.calls) == 0 {
		return nil
	}
	out := make([]model.ToolCall, len(a.calls))
	copy(out, a.calls)
	return out
}

// fragment is one tool call being assembled from indexed deltas.
type fragment struct {
	id       string
	name     string
	argsText strings.Builder
}

// fragmentAccumulator assembles tool calls that arrive in pieces keyed by an
// integer index.
type fragmentAccumulator struct {
	byIndex map[int64]*fragment
}

func (a *fragmentAccumulator) add(index int64, id, name, args string) {
	if a.byIndex == nil {
		a.byIndex = make(map[int64]*fragment)
	}
	f, ok := a.byIndex[index]
	if !ok {
		f = &fragment{}
		a.byIndex[index] = f
	}
	if id != "" {
		f.id = id
	}
	if name != "" {
		f.name = name
	}
	f.argsText.WriteString(args)
}

// snapshot decodes every call in index order. Undecodable arguments become
// an empty object.
func (a *fragmentAccumulator) snapshot() []model.ToolCall {
	if len(a.byIndex) == 0 {
		return nil
	}
	indexes := make([]int64, 0, len(a.byIndex))
	for i := range a.byIndex {
		indexes = append(indexes, i)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	calls := make([]model.ToolCall, 0, len(indexes))
	for _, i := range indexes {
		f := a.byIndex[i]
		if f.id == "" {
			f.id = NewCallID()
		}
		calls = append(calls, model.ToolCall{
			ID:   f.id,
			Name: f.name,
			Args: ParseToolArguments(f.argsText.String()),
		})
	}
	return calls
}

// errorMessage pulls a human readable message out of an error body. It knows
// {"error": {"message": ...}}, {"error": "..."} and {"message": ...}.
func errorMessage(body string, statusCode int) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err == nil {
		var nested struct {
			Message string `json:"message"`
		}
		var plain string
		switch {
		case json.Unmarshal(payload.Error, &nested) == nil && nested.Message != "":
			return nested.Message
		case json.Unmarshal(payload.Error, &plain) == nil && plain != "":
			return plain
		case payload.Message != "":
			return payload.Message
		}
	}
	if s := strings.TrimSpace(body); s != "" {
		return s
	}
	return http.StatusText(statusCode)
}
