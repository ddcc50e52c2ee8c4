// Copyright (c) 2025 Open Swarm Contributors
//
// This software is released under the MIT License.
// See LICENSE file in the repository for details.

// Package graph maintains the dependency/dependent relation between
// supervised tasks and detects deadlock cycles. It does not look for
// subgraphs that are acyclic but can never be reached.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gammazero/toposort"
)

// ErrMissingEdge is returned by RemoveDependency when the named edge does
// not exist.
var ErrMissingEdge = errors.New("dependency edge not found")

// Node is anything that can sit in the dependency graph. Supervisor
// satisfies this with its own identity and name.
type Node interface {
	comparable
}

// Graph tracks dependency edges (A depends on B) and their mirror,
// dependent edges (B is depended on by A), keyed by an opaque node value;
// the supervisor package instantiates this with *Supervisor. A single Graph
// is shared by every Supervisor in a tree (cross-branch dependencies are
// allowed), so every exported method takes the graph's own mutex: callers
// span many goroutines (the owning tasks themselves, plus each task's
// monitor loop), unlike a single Supervisor's Info which only its own
// goroutine and monitor touch.
type Graph[N Node] struct {
	mu sync.Mutex
	// dependencies[n] is the set of nodes n depends on.
	dependencies map[N]map[N]struct{}
	// dependents[n] is the set of nodes that depend on n.
	dependents map[N]map[N]struct{}
	names      map[N]string
}

func New[N Node]() *Graph[N] {
	return &Graph[N]{
		dependencies: make(map[N]map[N]struct{}),
		dependents:   make(map[N]map[N]struct{}),
		names:        make(map[N]string),
	}
}

// CycleError reports the exact cycle found, in dependency order, rather
// than just "a cycle exists somewhere".
type CycleError[N Node] struct {
	Path []N
}

func (e *CycleError[N]) Error() string {
	return fmt.Sprintf("dependency cycle detected involving %d task(s)", len(e.Path))
}

// AddDependency records that from depends on to, naming both for
// diagnostics, then checks whether the new edge closes a cycle. On cycle
// detection the edge is rolled back and a *CycleError is returned, so the
// graph never holds an edge set that contains a cycle.
func (g *Graph[N]) AddDependency(from, to N, fromName, toName string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if from == to {
		return &CycleError[N]{Path: []N{from}}
	}
	g.names[from] = fromName
	g.names[to] = toName

	if g.dependencies[from] == nil {
		g.dependencies[from] = make(map[N]struct{})
	}
	if _, exists := g.dependencies[from][to]; exists {
		return fmt.Errorf("duplicate dependency: %s already depends on %s", fromName, toName)
	}
	g.dependencies[from][to] = struct{}{}
	if g.dependents[to] == nil {
		g.dependents[to] = make(map[N]struct{})
	}
	g.dependents[to][from] = struct{}{}

	if path, cyclic := g.detectCycleFrom(from); cyclic {
		g.removeEdge(from, to)
		return &CycleError[N]{Path: path}
	}
	return nil
}

// RemoveDependency deletes the from-depends-on-to edge, reporting an
// error if no such edge exists.
func (g *Graph[N]) RemoveDependency(from, to N) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.dependencies[from][to]; !ok {
		return fmt.Errorf("no dependency from %s to %s: %w", g.names[from], g.names[to], ErrMissingEdge)
	}
	g.removeEdge(from, to)
	return nil
}

func (g *Graph[N]) removeEdge(from, to N) {
	if deps, ok := g.dependencies[from]; ok {
		delete(deps, to)
	}
	if dependents, ok := g.dependents[to]; ok {
		delete(dependents, from)
	}
}

// Dependencies returns the direct dependencies of n.
func (g *Graph[N]) Dependencies(n N) []N {
	g.mu.Lock()
	defer g.mu.Unlock()
	return setToSlice(g.dependencies[n])
}

// Dependents returns the direct dependents of n.
func (g *Graph[N]) Dependents(n N) []N {
	g.mu.Lock()
	defer g.mu.Unlock()
	return setToSlice(g.dependents[n])
}

// Forget removes n and every edge touching it, used when a task completes
// cleanup and leaves the graph.
func (g *Graph[N]) Forget(n N) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for dep := range g.dependencies[n] {
		delete(g.dependents[dep], n)
	}
	for dependent := range g.dependents[n] {
		delete(g.dependencies[dependent], n)
	}
	delete(g.dependencies, n)
	delete(g.dependents, n)
	delete(g.names, n)
}

// DetectCycle runs a full scan from every node with dependencies, returning
// the first cycle found. Used by the monitor's periodic deadlock scan
// across a whole subtree, independent of a specific new edge.
func (g *Graph[N]) DetectCycle() (path []N, found bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for n := range g.dependencies {
		if path, found := g.detectCycleFrom(n); found {
			return path, true
		}
	}
	return nil, false
}

// detectCycleFrom is a DFS carrying the current path, returning the cyclic
// suffix (path[index(n):]) the moment a node is revisited on that path.
func (g *Graph[N]) detectCycleFrom(start N) ([]N, bool) {
	visited := make(map[N]bool)
	var path []N

	var visit func(n N) ([]N, bool)
	visit = func(n N) ([]N, bool) {
		for i, p := range path {
			if p == n {
				return path[i:], true
			}
		}
		if visited[n] {
			return nil, false
		}
		visited[n] = true
		path = append(path, n)
		for dep := range g.dependencies[n] {
			if cyc, found := visit(dep); found {
				return cyc, true
			}
		}
		path = path[:len(path)-1]
		return nil, false
	}
	return visit(start)
}

// TopoOrder returns nodes reachable from roots in dependency-satisfying
// order (a dependency always precedes its dependent), using
// gammazero/toposort for the bulk sort.
func (g *Graph[N]) TopoOrder(roots []N) ([]N, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := make(map[N]struct{})
	var edges []toposort.Edge
	var collect func(n N)
	collect = func(n N) {
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		for dep := range g.dependencies[n] {
			edges = append(edges, toposort.Edge{g.names[dep], g.names[n]})
			collect(dep)
		}
	}
	for _, r := range roots {
		collect(r)
	}

	byName := make(map[string]N, len(seen))
	for n := range seen {
		byName[g.names[n]] = n
	}

	if len(edges) == 0 {
		result := make([]N, 0, len(roots))
		for _, r := range roots {
			result = append(result, r)
		}
		return result, nil
	}

	sortedNodes, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("cycle detected while ordering dependency graph: %w", err)
	}

	result := make([]N, 0, len(sortedNodes))
	inSorted := make(map[string]bool, len(sortedNodes))
	for _, node := range sortedNodes {
		name := node.(string)
		inSorted[name] = true
		if n, ok := byName[name]; ok {
			result = append(result, n)
		}
	}
	for _, r := range roots {
		if !inSorted[g.names[r]] {
			result = append([]N{r}, result...)
		}
	}
	return result, nil
}

func setToSlice[N Node](s map[N]struct{}) []N {
	out := make([]N, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	return out
}
