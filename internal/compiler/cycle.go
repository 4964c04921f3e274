package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// CycleError describes reports that depend on each other through their
// sources or branches. Such a definition can never be built.
type CycleError struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
}

// AnalyzeCycles finds report dependency cycles.
//
// The algorithm:
//  1. Build a report → report dependency graph from sources and branches
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or a self-reference as a cycle
//
// Nodes are visited in sorted order so results are deterministic.
func AnalyzeCycles(def *Definition) []CycleError {
	graph := buildDependencyGraph(def)

	var cycles []CycleError
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			cycles = append(cycles, sccToCycle(scc, graph))
		}
	}
	return cycles
}

// dependencyGraph maps a report name to the reports it reads from.
type dependencyGraph map[string][]string

func buildDependencyGraph(def *Definition) dependencyGraph {
	graph := make(dependencyGraph)
	isReport := make(map[string]bool, len(def.Reports))
	for _, r := range def.Reports {
		isReport[r.Name] = true
	}

	for _, r := range def.Reports {
		if graph[r.Name] == nil {
			graph[r.Name] = []string{}
		}
		var sources []string
		if r.Source != "" {
			sources = append(sources, r.Source)
		}
		for _, b := range r.Branches {
			sources = append(sources, b.Source)
		}
		for _, s := range sources {
			if isReport[s] {
				graph[r.Name] = append(graph[r.Name], s)
			}
		}
	}
	return graph
}

func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sort.Strings(scc)
			sccs = append(sccs, scc)
		}
	}

	nodes := make([]string, 0, len(graph))
	for node := range graph {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func sccToCycle(scc []string, graph dependencyGraph) CycleError {
	if len(scc) == 1 {
		return CycleError{
			Path:    []string{scc[0], scc[0]},
			Message: fmt.Sprintf("report %s reads from itself", scc[0]),
		}
	}
	path := reconstructCyclePath(scc, graph)
	return CycleError{
		Path:    path,
		Message: fmt.Sprintf("reports depend on each other: %s", strings.Join(path, " → ")),
	}
}

// reconstructCyclePath follows edges inside the SCC from its first member
// until it returns to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)
	for {
		visited[current] = true
		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		current = next
	}
	return path
}
