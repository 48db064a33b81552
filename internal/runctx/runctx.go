package runctx

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a log entry.
type Level string

// Log levels.
const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is a single log line attached to a node.
type Entry struct {
	TS      time.Time      `json:"ts"`
	Level   Level          `json:"level"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Logger receives a copy of every entry. It matches the service logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type node struct {
	id       string
	parent   string
	typ      string
	name     string
	ts       time.Time
	logs     []Entry
	children []string
}

// Tree is the arena holding every node of one run.
type Tree struct {
	mu     sync.Mutex
	nodes  map[string]*node
	rootID string
	logger Logger
	now    func() time.Time
}

// Option configures a Tree.
type Option func(*Tree)

// WithLogger mirrors every entry to l with run and node attributes.
func WithLogger(l Logger) Option {
	return func(t *Tree) { t.logger = l }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(t *Tree) { t.now = now }
}

// Node is a handle to one node of a Tree.
type Node struct {
	tree *Tree
	id   string
}

// NewRoot allocates a new tree and returns its root node. An empty id is
// replaced by a fresh UUID.
func NewRoot(id, typ, name string, opts ...Option) *Node {
	t := &Tree{
		nodes: make(map[string]*node),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if id == "" {
		id = uuid.NewString()
	}
	t.rootID = id
	t.nodes[id] = &node{id: id, typ: typ, name: name, ts: t.now()}
	return &Node{tree: t, id: id}
}

// Child adds a node below n. Ids are unique within a tree: a repeated id
// gets a numeric suffix so the tree never merges two calls.
func (n *Node) Child(id, typ, name string) *Node {
	if n == nil {
		return nil
	}
	t := n.tree
	t.mu.Lock()
	defer t.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	key := id
	for i := 2; ; i++ {
		if _, taken := t.nodes[key]; !taken {
			break
		}
		key = fmt.Sprintf("%s-%d", id, i)
	}

	t.nodes[key] = &node{id: key, parent: n.id, typ: typ, name: name, ts: t.now()}
	parent := t.nodes[n.id]
	parent.children = append(parent.children, key)
	return &Node{tree: t, id: key}
}

// ID returns the node id, or "" for a nil node.
func (n *Node) ID() string {
	if n == nil {
		return ""
	}
	return n.id
}

// RunID returns the id of the root node.
func (n *Node) RunID() string {
	if n == nil {
		return ""
	}
	return n.tree.rootID
}

// Tree returns the arena the node belongs to.
func (n *Node) Tree() *Tree {
	if n == nil {
		return nil
	}
	return n.tree
}

// Debug appends a debug entry. kv is a list of key/value pairs.
func (n *Node) Debug(msg string, kv ...any) { n.Log(LevelDebug, msg, kv...) }

// Info appends an info entry.
func (n *Node) Info(msg string, kv ...any) { n.Log(LevelInfo, msg, kv...) }

// Warn appends a warn entry.
func (n *Node) Warn(msg string, kv ...any) { n.Log(LevelWarn, msg, kv...) }

// Error appends an error entry.
func (n *Node) Error(msg string, kv ...any) { n.Log(LevelError, msg, kv...) }

// Log appends an entry at level.
func (n *Node) Log(level Level, msg string, kv ...any) {
	if n == nil {
		return
	}
	t := n.tree
	data := pairs(kv)

	t.mu.Lock()
	nd := t.nodes[n.id]
	nd.logs = append(nd.logs, Entry{TS: t.now(), Level: level, Message: msg, Data: data})
	typ := nd.typ
	t.mu.Unlock()

	if t.logger == nil {
		return
	}
	args := append([]any{"run_id", t.rootID, "node_id", n.id, "node_type", typ}, kv...)
	switch level {
	case LevelDebug:
		t.logger.Debug(msg, args...)
	case LevelWarn:
		t.logger.Warn(msg, args...)
	case LevelError:
		t.logger.Error(msg, args...)
	default:
		t.logger.Info(msg, args...)
	}
}

// Entries returns a copy of the node's own log entries.
func (n *Node) Entries() []Entry {
	if n == nil {
		return nil
	}
	n.tree.mu.Lock()
	defer n.tree.mu.Unlock()
	logs := n.tree.nodes[n.id].logs
	out := make([]Entry, len(logs))
	copy(out, logs)
	return out
}

// pairs turns slog-style key/value arguments into a map. A trailing key
// without a value is stored under "!BADKEY" like slog does.
func pairs(kv []any) map[string]any {
	if len(kv) == 0 {
		return nil
	}
	data := make(map[string]any, len(kv)/2+1)
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok || i+1 >= len(kv) {
			data["!BADKEY"] = kv[i]
			i--
			continue
		}
		v := kv[i+1]
		if err, isErr := v.(error); isErr {
			v = err.Error()
		}
		data[key] = v
	}
	return data
}
