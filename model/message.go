package model

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Role is the author of a message node.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

// ToolCall is one function invocation requested by a model node.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ToolResult answers the ToolCall with the same ID. Result is always a
// serialized value, usually JSON.
type ToolResult struct {
	CallID  string `json:"callId"`
	Result  string `json:"result"`
	IsError bool   `json:"isError,omitempty"`
}

// Message is a node of the conversation tree. ParentID is empty for roots.
// Timestamp is milliseconds since the Unix epoch.
type Message struct {
	ID          string
	Role        Role
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
	Timestamp   int64
	ParentID    string
	ChildrenIDs []string
}

// NewMessage creates a node with a fresh id and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Time returns the creation time.
func (m Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// IsRoot reports whether the node has no parent.
func (m Message) IsRoot() bool {
	return m.ParentID == ""
}

func (m Message) clone() Message {
	m.ToolCalls = slices.Clone(m.ToolCalls)
	m.ToolResults = slices.Clone(m.ToolResults)
	m.ChildrenIDs = slices.Clone(m.ChildrenIDs)
	return m
}

// nullableID encodes "" as JSON null.
type nullableID string

func (n nullableID) MarshalJSON() ([]byte, error) {
	if n == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(n))
}

func (n *nullableID) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*n = nullableID(s)
	return nil
}

type messageJSON struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"toolCalls,omitempty"`
	ToolResults []ToolResult `json:"toolResults,omitempty"`
	Timestamp   int64        `json:"timestamp"`
	ParentID    nullableID   `json:"parentId"`
	ChildrenIDs []string     `json:"childrenIds"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	children := m.ChildrenIDs
	if children == nil {
		children = []string{}
	}
	return json.Marshal(messageJSON{
		ID:          m.ID,
		Role:        m.Role,
		Content:     m.Content,
		ToolCalls:   m.ToolCalls,
		ToolResults: m.ToolResults,
		Timestamp:   m.Timestamp,
		ParentID:    nullableID(m.ParentID),
		ChildrenIDs: children,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*m = Message{
		ID:          w.ID,
		Role:        w.Role,
		Content:     w.Content,
		ToolCalls:   w.ToolCalls,
		ToolResults: w.ToolResults,
		Timestamp:   w.Timestamp,
		ParentID:    string(w.ParentID),
	}
	if len(w.ChildrenIDs) > 0 {
		m.ChildrenIDs = w.ChildrenIDs
	}
	if len(m.ToolCalls) == 0 {
		m.ToolCalls = nil
	}
	if len(m.ToolResults) == 0 {
		m.ToolResults = nil
	}
	return nil
}
