package model

import "maps"

// MessageMap is the flat id-addressed store of conversation nodes. It is
// treated as an immutable value: Append and Update return a new map and never
// touch the receiver, so a published map can be read without locking.
type MessageMap map[string]Message

// Get returns the node with the given id.
func (m MessageMap) Get(id string) (Message, bool) {
	if id == "" {
		return Message{}, false
	}
	msg, ok := m[id]
	return msg, ok
}

// Append inserts msg as a child of parentID. If parentID is empty or not
// present, msg becomes a root; a missing parent is tolerated so that partial
// imports stay loadable.
func (m MessageMap) Append(parentID string, msg Message) MessageMap {
	next := maps.Clone(m)
	if next == nil {
		next = make(MessageMap)
	}

	msg = msg.clone()
	msg.ChildrenIDs = nil
	msg.ParentID = ""

	if parent, ok := next.Get(parentID); ok {
		parent = parent.clone()
		parent.ChildrenIDs = append(parent.ChildrenIDs, msg.ID)
		next[parentID] = parent
		msg.ParentID = parentID
	}

	next[msg.ID] = msg
	return next
}

// Patch holds the mutable fields of a node.
type Patch struct {
	Content     string
	ToolCalls   []ToolCall
	ToolResults []ToolResult
}

// Update replaces the content fields of an existing node. Identity and
// structure (ID, Role, ParentID, ChildrenIDs, Timestamp) are kept. Unknown ids
// return the map unchanged.
func (m MessageMap) Update(id string, patch Patch) MessageMap {
	current, ok := m.Get(id)
	if !ok {
		return m
	}

	next := maps.Clone(m)
	current = current.clone()
	current.Content = patch.Content
	current.ToolCalls = nilIfEmpty(patch.ToolCalls)
	current.ToolResults = nilIfEmpty(patch.ToolResults)
	next[id] = current
	return next
}

// Roots returns the ids of every node without a (present) parent.
func (m MessageMap) Roots() []string {
	var roots []string
	for id, msg := range m {
		if _, ok := m.Get(msg.ParentID); !ok {
			roots = append(roots, id)
		}
	}
	return roots
}

func nilIfEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}
