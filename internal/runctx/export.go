package runctx

import "time"

// ExecutionLog is the nested, serialisable form of a tree.
type ExecutionLog struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Name     string         `json:"name"`
	TS       time.Time      `json:"ts"`
	Logs     []Entry        `json:"logs"`
	Children []ExecutionLog `json:"children"`
}

// Export snapshots the whole tree. Entries appended afterwards are not
// reflected in the returned value.
func (t *Tree) Export() ExecutionLog {
	if t == nil {
		return ExecutionLog{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.export(t.rootID)
}

func (t *Tree) export(id string) ExecutionLog {
	nd := t.nodes[id]
	out := ExecutionLog{
		ID:       nd.id,
		Type:     nd.typ,
		Name:     nd.name,
		TS:       nd.ts,
		Logs:     make([]Entry, len(nd.logs)),
		Children: make([]ExecutionLog, 0, len(nd.children)),
	}
	copy(out.Logs, nd.logs)
	for _, child := range nd.children {
		out.Children = append(out.Children, t.export(child))
	}
	return out
}

// Len returns the number of nodes in the tree.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// Parent returns the parent id of a node and whether the node exists.
// The root has an empty parent.
func (t *Tree) Parent(id string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	nd, ok := t.nodes[id]
	if !ok {
		return "", false
	}
	return nd.parent, true
}

// Count returns the number of entries at the given level across the tree.
func (t *Tree) Count(level Level) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, nd := range t.nodes {
		for _, e := range nd.logs {
			if e.Level == level {
				n++
			}
		}
	}
	return n
}
