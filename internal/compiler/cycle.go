package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/touchdelay/internal/ir"
)

// CycleWarning represents a cycle of cascading touches between record types.
//
// Cycles are warnings, not errors: the flush engine suppresses records it has
// already applied, so a cascade loop terminates, but each lap costs a flush
// pass and may exhaust the pass quota on deep hierarchies.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["Category", "Category"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static cycle analysis on cascading touches.
//
// It builds a graph with an edge child -> parent for every belongs_to link
// with touch set, then detects strongly connected components.
//
// The algorithm:
//  1. Build record type -> touched parent types graph
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a potential cycle warning
//
// A DAG (no cycles) returns an empty warning list. Warnings are ordered by
// the first record type of each cycle.
func AnalyzeCycles(reg *ir.Registry) []CycleWarning {
	graph := buildDependencyGraph(reg)
	if len(graph) == 0 {
		return []CycleWarning{}
	}

	// Detect strongly connected components (cycles)
	sccs := tarjanSCC(graph)

	// Convert SCCs to warnings
	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			sort.Strings(scc)
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	sort.Slice(warnings, func(i, j int) bool {
		return warnings[i].Path[0] < warnings[j].Path[0]
	})

	return warnings
}

// dependencyGraph maps record type -> parent types its touches cascade to.
type dependencyGraph map[string][]string

// buildDependencyGraph constructs the cascading touch graph.
// Links to unknown record types are ignored; Validate reports them.
func buildDependencyGraph(reg *ir.Registry) dependencyGraph {
	graph := make(dependencyGraph)

	for _, rt := range reg.Types() {
		// Initialize with empty slice if no edges (ensures node exists in graph)
		if graph[rt.Name] == nil {
			graph[rt.Name] = []string{}
		}
		for _, link := range rt.BelongsTo {
			if !link.Touch {
				continue
			}
			if _, ok := reg.Lookup(link.Type); !ok {
				continue
			}
			graph[rt.Name] = append(graph[rt.Name], link.Type)
		}
	}

	return graph
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of record type names.
// Single-node SCCs without self-loops are NOT cycles.
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
		// Set the depth index for v
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		// Consider successors of v
		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				// Successor w has not yet been visited; recurse on it
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				// Successor w is on stack and hence in the current SCC
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// If v is a root node, pop the stack and create an SCC
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
			sccs = append(sccs, scc)
		}
	}

	// Visit all nodes in name order so results are stable
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

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// The path shows the cycle sequence by reconstructing a path through the SCC.
// For self-loops, the path is [type, type].
// For multi-node cycles, the path shows a cycle traversal.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		// Self-loop
		name := scc[0]
		return CycleWarning{
			Path:    []string{name, name},
			Message: fmt.Sprintf("record type %s touches itself", name),
			Level:   "warning",
		}
	}

	// Multi-node cycle - reconstruct a cycle path
	path := reconstructCyclePath(scc, graph)

	pathStr := strings.Join(path, " -> ")
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("cascading touch cycle: %s", pathStr),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	// Build set of SCC members for fast lookup
	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	// Start at first node
	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	// Follow edges within SCC until we return to start
	for {
		visited[current] = true

		// Find next SCC member reachable from current
		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			// No more unvisited neighbors in SCC
			break
		}

		path = append(path, next)

		if next == start {
			// Completed the cycle
			break
		}

		current = next
	}

	return path
}
