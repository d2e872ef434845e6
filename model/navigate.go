package model

// Direction selects the sibling to move to.
type Direction int

const (
	Prev Direction = iota
	Next
)

// Navigate moves from nodeID to its previous or next sibling and returns the
// newest leaf of that sibling's subtree. The step is clamped at both ends;
// nodes without a parent or without siblings yield nodeID unchanged. Child ids
// that are absent from m are skipped.
func Navigate(m MessageMap, nodeID string, dir Direction) string {
	node, ok := m.Get(nodeID)
	if !ok {
		return nodeID
	}
	parent, ok := m.Get(node.ParentID)
	if !ok || len(parent.ChildrenIDs) < 2 {
		return nodeID
	}

	// ids missing from the map (partial imports) are not navigable
	siblings := make([]string, 0, len(parent.ChildrenIDs))
	for _, id := range parent.ChildrenIDs {
		if _, ok := m.Get(id); ok {
			siblings = append(siblings, id)
		}
	}

	idx := -1
	for i, id := range siblings {
		if id == nodeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nodeID
	}

	target := idx
	switch dir {
	case Prev:
		target = max(idx-1, 0)
	case Next:
		target = min(idx+1, len(siblings)-1)
	}
	if target == idx {
		return nodeID
	}

	return LatestLeaf(m, siblings[target])
}

// LatestLeaf follows the last child at every level starting at id.
func LatestLeaf(m MessageMap, id string) string {
	seen := make(map[string]bool)
	for {
		node, ok := m.Get(id)
		if !ok || len(node.ChildrenIDs) == 0 || seen[id] {
			return id
		}
		seen[id] = true
		next := node.ChildrenIDs[len(node.ChildrenIDs)-1]
		if _, ok := m.Get(next); !ok {
			return id
		}
		id = next
	}
}

// SiblingPosition reports the 1-based index of nodeID among its siblings and
// the sibling count. Roots report 1 of 1.
func SiblingPosition(m MessageMap, nodeID string) (int, int) {
	node, ok := m.Get(nodeID)
	if !ok {
		return 0, 0
	}
	parent, ok := m.Get(node.ParentID)
	if !ok {
		return 1, 1
	}
	for i, id := range parent.ChildrenIDs {
		if id == nodeID {
			return i + 1, len(parent.ChildrenIDs)
		}
	}
	return 1, 1
}
