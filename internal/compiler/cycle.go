package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/latch/internal/ir"
)

// CycleWarning represents a loop of zero-dwell transitions.
//
// Rules with dwell_ms 0 fire on the first hot frame. If such rules form a
// loop between states, a frame stream that keeps both conditions hot makes
// the machine flap once per frame. Loops are warnings, not errors: the
// conditions may be mutually exclusive.
type CycleWarning struct {
	Path    []string `json:"path"`  // State path: ["READY", "IDLE", "READY"]
	Rules   []string `json:"rules"` // Rule ids along the path
	Message string   `json:"message"`
	Level   string   `json:"level"` // "warning" or "info"
}

// AnalyzeCycles reports every strongly connected group of states joined by
// zero-dwell rules. Self-transitions are ignored; they never emit.
//
// Output is deterministic: nodes are visited in ir.ValidStates order and
// edges in rule order.
func AnalyzeCycles(specs []ir.RuleSpec) []CycleWarning {
	graph := buildInstantGraph(specs)
	if len(graph.edges) == 0 {
		return []CycleWarning{}
	}

	var warnings []CycleWarning
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	if warnings == nil {
		return []CycleWarning{}
	}
	return warnings
}

type instantEdge struct {
	to   string
	rule string
}

// instantGraph maps a state to the states its zero-dwell rules reach.
type instantGraph struct {
	nodes []string
	edges map[string][]instantEdge
}

func buildInstantGraph(specs []ir.RuleSpec) instantGraph {
	g := instantGraph{edges: make(map[string][]instantEdge)}
	seen := make(map[string]bool)
	addNode := func(n string) {
		if !seen[n] {
			seen[n] = true
			g.nodes = append(g.nodes, n)
		}
	}
	for _, s := range ir.ValidStates {
		addNode(string(s))
	}
	for _, s := range specs {
		if s.DwellMs != 0 || s.From == s.To {
			continue
		}
		from, to := string(s.From), string(s.To)
		addNode(from)
		addNode(to)
		g.edges[from] = append(g.edges[from], instantEdge{to: to, rule: s.ID})
	}
	return g
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
func tarjanSCC(g instantGraph) [][]string {
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

		for _, e := range g.edges[v] {
			w := e.to
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
			sccs = append(sccs, scc)
		}
	}

	for _, node := range g.nodes {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// cycleSCCToWarning walks the SCC from its earliest-declared state until
// the walk returns to the start.
func cycleSCCToWarning(scc []string, g instantGraph) CycleWarning {
	member := make(map[string]bool, len(scc))
	for _, n := range scc {
		member[n] = true
	}
	start := scc[0]
	for _, n := range g.nodes {
		if member[n] {
			start = n
			break
		}
	}

	path := []string{start}
	var rules []string
	visited := map[string]bool{start: true}
	current := start
	for {
		var next *instantEdge
		for i := range g.edges[current] {
			e := &g.edges[current][i]
			if member[e.to] && (!visited[e.to] || e.to == start) {
				next = e
				break
			}
		}
		if next == nil {
			break
		}
		path = append(path, next.to)
		rules = append(rules, next.rule)
		if next.to == start {
			break
		}
		visited[next.to] = true
		current = next.to
	}

	slices.Sort(scc)
	return CycleWarning{
		Path:    path,
		Rules:   rules,
		Message: fmt.Sprintf("instant transitions loop: %s (states %s)", strings.Join(path, " -> "), strings.Join(scc, ", ")),
		Level:   "warning",
	}
}
