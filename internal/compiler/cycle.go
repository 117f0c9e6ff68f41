package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/glyph/internal/ir"
	"github.com/roach88/glyph/internal/variable"
)

// CycleWarning represents a reference cycle in a catalog.
//
// Cycles are warnings, not errors: a nested-variable cycle evaluates to 0
// at runtime and a dependence cycle only makes the effects unattainable
// from a clean item.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["a", "b", "a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static cycle analysis on a catalog.
//
// Two graphs are analyzed:
//  1. Per effect, leveled variable → {{nested}} references across all tiers.
//     Nodes are named "<effect>.<variable>".
//  2. Effect → effect edges from DEPENDENCE_ENCHANT limitations.
//
// Each graph is searched with Tarjan's algorithm; every SCC with size > 1,
// or a single node with a self-loop, is reported. Output order is
// deterministic.
func AnalyzeCycles(c ir.Catalog) []CycleWarning {
	warnings := []CycleWarning{}

	for _, scc := range cycles(buildVariableGraph(c)) {
		warnings = append(warnings, cycleSCCToWarning(scc.nodes, scc.graph, "nested variable"))
	}
	for _, scc := range cycles(buildDependenceGraph(c)) {
		warnings = append(warnings, cycleSCCToWarning(scc.nodes, scc.graph, "effect dependence"))
	}

	return warnings
}

// dependencyGraph maps node → nodes it references.
type dependencyGraph map[string][]string

type component struct {
	nodes []string
	graph dependencyGraph
}

func cycles(graph dependencyGraph) []component {
	var out []component
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			sort.Strings(scc)
			out = append(out, component{nodes: scc, graph: graph})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].nodes[0] < out[j].nodes[0] })
	return out
}

// buildVariableGraph links each leveled variable to the siblings its
// formulas reference.
func buildVariableGraph(c ir.Catalog) dependencyGraph {
	graph := make(dependencyGraph)
	for _, e := range c.Effects {
		for _, l := range e.Variables.Leveled {
			node := e.ID + "." + l.Name
			seen := make(map[string]bool)
			for _, tier := range l.Tiers {
				for _, ref := range variable.NestedReferences(tier.Formula) {
					if !seen[ref] {
						seen[ref] = true
						graph[node] = append(graph[node], e.ID+"."+ref)
					}
				}
			}
		}
	}
	return graph
}

// buildDependenceGraph links each effect to the effects it depends on.
func buildDependenceGraph(c ir.Catalog) dependencyGraph {
	graph := make(dependencyGraph)
	for _, e := range c.Effects {
		for _, line := range e.Limitations {
			rawKind, value, found := strings.Cut(line, ":")
			if !found {
				continue
			}
			kind, err := ir.ParseConstraintKind(rawKind)
			if err != nil || kind != ir.KindDependsOnEffect {
				continue
			}
			if value = strings.TrimSpace(value); value != "" {
				graph[e.ID] = append(graph[e.ID], value)
			}
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
// Nodes are visited in sorted order so results are reproducible.
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

		// v is a root node: pop the stack and emit an SCC
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
// For self-loops, the path is [node, node].
func cycleSCCToWarning(scc []string, graph dependencyGraph, what string) CycleWarning {
	if len(scc) == 1 {
		node := scc[0]
		return CycleWarning{
			Path:    []string{node, node},
			Message: fmt.Sprintf("Self-referencing %s detected: %s → %s", what, node, node),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)

	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("%s cycle detected: %s", strings.ToUpper(what[:1])+what[1:], strings.Join(path, " → ")),
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

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
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
