// Package configtree implements the read-only, transactional configuration
// tree the supervisor core queries at application construction time.
//
// The underlying store is a generic node graph loaded from YAML, but
// callers never see the YAML shape directly: they open a short-lived
// read transaction, walk to a path, and enumerate children in
// declaration order.
package configtree

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Tree is the root of the configuration store. It is safe for concurrent
// reads; Reload replaces the root node atomically.
type Tree struct {
	mu   sync.RWMutex
	root *Node
}

// Node is one entry in the config tree. A Node is either a scalar (string,
// bool, int, float) or a map of named children; lists become children
// named by their index ("0", "1", ...).
type Node struct {
	name     string
	value    interface{}
	children map[string]*Node
	order    []string
}

// Load reads a YAML document from path and builds a Tree from it.
func Load(path string) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("configtree: read %s: %w", path, err)
	}
	var raw yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("configtree: parse %s: %w", path, err)
	}
	root := nodeFromYAML("", &raw)
	return &Tree{root: root}, nil
}

// Reload re-reads path and swaps the root node. Existing ReadTxn values
// opened before the reload keep observing the old tree; a new ReadTxn
// observes the new one.
func (t *Tree) Reload(path string) error {
	fresh, err := Load(path)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.root = fresh.root
	t.mu.Unlock()
	return nil
}

func nodeFromYAML(name string, y *yaml.Node) *Node {
	// Document nodes wrap a single child.
	for y.Kind == yaml.DocumentNode && len(y.Content) == 1 {
		y = y.Content[0]
	}
	n := &Node{name: name}
	switch y.Kind {
	case yaml.MappingNode:
		n.children = make(map[string]*Node, len(y.Content)/2)
		for i := 0; i+1 < len(y.Content); i += 2 {
			key := y.Content[i].Value
			child := nodeFromYAML(key, y.Content[i+1])
			n.children[key] = child
			n.order = append(n.order, key)
		}
	case yaml.SequenceNode:
		n.children = make(map[string]*Node, len(y.Content))
		for i, item := range y.Content {
			key := strconv.Itoa(i)
			child := nodeFromYAML(key, item)
			n.children[key] = child
			n.order = append(n.order, key)
		}
	case yaml.ScalarNode:
		n.value = scalarValue(y)
	}
	return n
}

func scalarValue(y *yaml.Node) interface{} {
	switch y.Tag {
	case "!!bool":
		b, _ := strconv.ParseBool(y.Value)
		return b
	case "!!int":
		i, _ := strconv.ParseInt(y.Value, 10, 64)
		return i
	case "!!float":
		f, _ := strconv.ParseFloat(y.Value, 64)
		return f
	default:
		return y.Value
	}
}

// ReadTxn is a scoped, read-only view over the tree. It must be released
// after use; Release is idempotent.
type ReadTxn struct {
	tree     *Tree
	root     *Node
	released bool
}

// Read opens a new read transaction over the tree's current root.
func (t *Tree) Read() (*ReadTxn, error) {
	t.mu.RLock()
	root := t.root
	t.mu.RUnlock()
	if root == nil {
		return nil, fmt.Errorf("configtree: tree has no root")
	}
	return &ReadTxn{tree: t, root: root}, nil
}

// Release ends the transaction. Safe to call more than once.
func (txn *ReadTxn) Release() {
	txn.released = true
}

// Node resolves a slash-separated path ("global/shutdown_timeout") from
// the transaction's root, or returns ErrNotFound.
func (txn *ReadTxn) Node(path string) (*Node, error) {
	cur := txn.root
	if path == "" {
		return cur, nil
	}
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		child, ok := cur.children[part]
		if !ok {
			return nil, ErrNotFound
		}
		cur = child
	}
	return cur, nil
}

// ErrNotFound is returned when a path has no corresponding node.
var ErrNotFound = fmt.Errorf("configtree: path not found")

// Children returns this node's children in declaration order. For a
// scalar node, it returns nil. This is the "first-child/next-sibling"
// walk surfaced as a plain, finite slice — cheap enough at this scale
// that a lazy iterator would only add ceremony.
func (n *Node) Children() []*Node {
	if n == nil || n.children == nil {
		return nil
	}
	out := make([]*Node, 0, len(n.order))
	for _, key := range n.order {
		out = append(out, n.children[key])
	}
	return out
}

// Name returns the node's key within its parent (or "" for the root).
func (n *Node) Name() string { return n.name }

// String returns the node's scalar value as a string, or "" if absent.
func (n *Node) String() string {
	if n == nil || n.value == nil {
		return ""
	}
	if s, ok := n.value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", n.value)
}

// Bool returns the node's scalar value as a bool, using def if the node
// is absent or not a boolean.
func (n *Node) Bool(def bool) bool {
	if n == nil || n.value == nil {
		return def
	}
	if b, ok := n.value.(bool); ok {
		return b
	}
	return def
}

// Int returns the node's scalar value as an int, using def if the node
// is absent or not numeric.
func (n *Node) Int(def int) int {
	if n == nil || n.value == nil {
		return def
	}
	switch v := n.value.(type) {
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}
