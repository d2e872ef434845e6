package model

// Project returns the thread ending at headID, root first. The walk stops at a
// root, at a dangling parent reference, or when a node repeats.
func Project(m MessageMap, headID string) []Message {
	var path []Message
	seen := make(map[string]bool)

	for id := headID; id != ""; {
		msg, ok := m.Get(id)
		if !ok || seen[id] {
			break
		}
		seen[id] = true
		path = append(path, msg)
		id = msg.ParentID
	}

	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// FindAnswerFor looks for the result of call in the tool nodes that directly
// follow the model node which issued it.
func FindAnswerFor(call ToolCall, thread []Message) (ToolResult, bool) {
	issuer := -1
	for i, msg := range thread {
		if msg.Role != RoleModel {
			continue
		}
		for _, tc := range msg.ToolCalls {
			if tc.ID == call.ID {
				issuer = i
			}
		}
	}
	if issuer < 0 {
		return ToolResult{}, false
	}

	for _, msg := range thread[issuer+1:] {
		if msg.Role != RoleTool {
			break
		}
		for _, r := range msg.ToolResults {
			if r.CallID == call.ID {
				return r, true
			}
		}
	}
	return ToolResult{}, false
}

// OpenToolCalls returns the most recent model node carrying tool calls, as
// long as only tool nodes follow it, together with the calls it still waits on.
func OpenToolCalls(thread []Message) (Message, []ToolCall) {
	i := len(thread) - 1
	for i >= 0 && thread[i].Role == RoleTool {
		i--
	}
	if i < 0 || thread[i].Role != RoleModel || len(thread[i].ToolCalls) == 0 {
		return Message{}, nil
	}

	issuer := thread[i]
	var open []ToolCall
	for _, call := range issuer.ToolCalls {
		if _, ok := FindAnswerFor(call, thread); !ok {
			open = append(open, call)
		}
	}
	return issuer, open
}
