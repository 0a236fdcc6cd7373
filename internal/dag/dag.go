// SPDX-License-Identifier: MPL-2.0

// Package dag orders pack dependencies. It provides a deterministic
// topological sort with cycle detection and transitive dependency queries
// over a directed graph of named nodes.
package dag

import (
	"fmt"
	"strings"
)

type (
	// CycleError indicates that the graph contains a cycle, preventing topological ordering.
	CycleError struct {
		// Cycle lists the nodes still blocked when sorting stopped.
		Cycle []string
	}

	// Graph is a directed graph keyed by node name. An edge from A to B means
	// A must be available before B: B depends on A.
	Graph struct {
		// dependents maps a node to the nodes that depend on it.
		dependents map[string][]string
		// dependencies maps a node to the nodes it depends on.
		dependencies map[string][]string
		// nodes keeps insertion order for deterministic output.
		nodes   []string
		nodeSet map[string]bool
	}
)

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		dependents:   make(map[string][]string),
		dependencies: make(map[string][]string),
		nodeSet:      make(map[string]bool),
	}
}

// AddNode adds a node to the graph. Adding an existing node is a no-op.
func (g *Graph) AddNode(name string) {
	if g.nodeSet[name] {
		return
	}
	g.nodeSet[name] = true
	g.nodes = append(g.nodes, name)
}

// AddEdge records that "to" depends on "from". Both nodes are added if missing.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	g.dependents[from] = append(g.dependents[from], to)
	g.dependencies[to] = append(g.dependencies[to], from)
}

// TopologicalSort returns every node with dependencies before dependents,
// using Kahn's algorithm. Nodes at the same level keep insertion order.
// It returns a *CycleError if the graph contains a cycle.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for _, node := range g.nodes {
		inDegree[node] = len(g.dependencies[node])
	}

	queue := make([]string, 0, len(g.nodes))
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			queue = append(queue, node)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, next := range g.dependents[node] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(result) != len(g.nodes) {
		var blocked []string
		for _, node := range g.nodes {
			if inDegree[node] > 0 {
				blocked = append(blocked, node)
			}
		}
		return nil, &CycleError{Cycle: blocked}
	}
	return result, nil
}

// Ancestors returns every node that name transitively depends on, ordered so
// that each node comes after its own dependencies. The node itself is not
// included. The result is only meaningful for acyclic graphs.
func (g *Graph) Ancestors(name string) []string {
	var (
		out     []string
		visited = map[string]bool{name: true}
		visit   func(string)
	)
	visit = func(n string) {
		for _, dep := range g.dependencies[n] {
			if visited[dep] {
				continue
			}
			visited[dep] = true
			visit(dep)
			out = append(out, dep)
		}
	}
	visit(name)
	return out
}

// Descendants returns every node that transitively depends on name, in
// breadth-first order.
func (g *Graph) Descendants(name string) []string {
	var out []string
	visited := map[string]bool{name: true}
	queue := []string{name}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, next := range g.dependents[n] {
			if visited[next] {
				continue
			}
			visited[next] = true
			out = append(out, next)
			queue = append(queue, next)
		}
	}
	return out
}

// IsAncestor reports whether descendant transitively depends on ancestor.
func (g *Graph) IsAncestor(ancestor, descendant string) bool {
	if ancestor == descendant {
		return false
	}
	visited := map[string]bool{descendant: true}
	stack := []string{descendant}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, dep := range g.dependencies[n] {
			if dep == ancestor {
				return true
			}
			if !visited[dep] {
				visited[dep] = true
				stack = append(stack, dep)
			}
		}
	}
	return false
}
