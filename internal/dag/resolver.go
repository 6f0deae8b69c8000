// Package dag orders a set of named items by their dependency edges. The
// supervisor uses it to start bound-server applications before the
// clients that bind to them when bringing up the whole catalogue at
// once; a single Application.Start() call never goes through it.
package dag

import "fmt"

// Graph is a dependency graph over names, edges pointing from a name to
// the names it depends on.
type Graph struct {
	nodes map[string]*node
}

type node struct {
	name    string
	deps    []string
	visited bool
	inStack bool
}

// NewGraph builds a graph from deps, a name-to-its-dependency-names map.
// Every dependency named must also be a key of deps.
func NewGraph(deps map[string][]string) (*Graph, error) {
	g := &Graph{nodes: make(map[string]*node, len(deps))}

	for name, ds := range deps {
		g.nodes[name] = &node{name: name, deps: ds}
	}

	for name, n := range g.nodes {
		for _, dep := range n.deps {
			if _, ok := g.nodes[dep]; !ok {
				return nil, fmt.Errorf("%s depends on unknown name %s", name, dep)
			}
		}
	}

	return g, nil
}

// TopologicalSort returns names ordered so that every dependency
// precedes anything that depends on it.
func (g *Graph) TopologicalSort() ([]string, error) {
	for name := range g.nodes {
		if !g.nodes[name].visited {
			if g.hasCycle(name) {
				return nil, fmt.Errorf("circular dependency detected involving %s", name)
			}
		}
	}

	for _, n := range g.nodes {
		n.visited = false
	}

	var result []string
	for name := range g.nodes {
		if !g.nodes[name].visited {
			g.visit(name, &result)
		}
	}

	return result, nil
}

func (g *Graph) hasCycle(name string) bool {
	n := g.nodes[name]
	n.visited = true
	n.inStack = true

	for _, dep := range n.deps {
		depNode := g.nodes[dep]
		if !depNode.visited {
			if g.hasCycle(dep) {
				return true
			}
		} else if depNode.inStack {
			return true
		}
	}

	n.inStack = false
	return false
}

func (g *Graph) visit(name string, result *[]string) {
	n := g.nodes[name]
	n.visited = true

	for _, dep := range n.deps {
		if !g.nodes[dep].visited {
			g.visit(dep, result)
		}
	}

	*result = append(*result, name)
}
