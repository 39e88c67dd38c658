package compiler

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/formsync/internal/ir"
)

// CascadeWarning reports coordination that would need more than one
// dispatch level. The engine never re-dispatches from inside a reaction, so
// these chains are cut after the first hop.
type CascadeWarning struct {
	Path    []string `json:"path"`    // Kind path: ["dateChanged", "slotChanged"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCascades finds reactions whose writes land on fields that emit
// events of their own.
//
// The kind graph has an edge K1 → K2 when a reaction on K1 writes a field
// declared with emits: K2. Each edge is reported as "info" (K2 is not
// dispatched by the write). Strongly connected components of the graph,
// found with Tarjan's algorithm, are reported as "warning": the rule set
// describes a loop that only ever runs its first step.
//
// Results are sorted by path for stable output.
func AnalyzeCascades(form ir.FormSpec, reactions []ir.ReactionSpec) []CascadeWarning {
	emits := make(map[ir.FieldID]ir.EventKind)
	for _, f := range form.Fields {
		if f.Emits != "" {
			emits[f.ID] = f.Emits
		}
	}

	graph := make(dependencyGraph)
	var warnings []CascadeWarning
	for _, r := range reactions {
		from := string(r.On)
		if graph[from] == nil {
			graph[from] = []string{}
		}
		for _, w := range r.Writes {
			to, ok := emits[w.Field]
			if !ok {
				continue
			}
			if !slices.Contains(graph[from], string(to)) {
				graph[from] = append(graph[from], string(to))
			}
			warnings = append(warnings, CascadeWarning{
				Path:    []string{from, string(to)},
				Message: fmt.Sprintf("reaction %s writes %s, whose %s event is not dispatched by the write", r.ID, w, to),
				Level:   "info",
			})
		}
	}

	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			warnings = append(warnings, sccToWarning(scc, graph))
		}
	}

	slices.SortFunc(warnings, func(a, b CascadeWarning) int {
		if c := strings.Compare(a.Level, b.Level); c != 0 {
			return -c // warnings first
		}
		return slices.Compare(a.Path, b.Path)
	})
	return warnings
}

// dependencyGraph maps kind → kinds its reactions would trigger.
type dependencyGraph map[string][]string

func hasSelfLoop(node string, graph dependencyGraph) bool {
	return slices.Contains(graph[node], node)
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
// Nodes are visited in sorted order so results are deterministic.
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

		// Root node: pop the component.
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
	for n := range graph {
		nodes = append(nodes, n)
	}
	slices.Sort(nodes)
	for _, n := range nodes {
		if _, visited := indices[n]; !visited {
			strongConnect(n)
		}
	}
	return sccs
}

func sccToWarning(scc []string, graph dependencyGraph) CascadeWarning {
	if len(scc) == 1 {
		k := scc[0]
		return CascadeWarning{
			Path:    []string{k, k},
			Message: fmt.Sprintf("self-triggering kind: %s → %s", k, k),
			Level:   "warning",
		}
	}
	path := reconstructCyclePath(scc, graph)
	return CascadeWarning{
		Path:    path,
		Message: fmt.Sprintf("cascade loop: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath walks edges inside the SCC from its smallest node
// until it returns to the start.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	start := slices.Min(scc)
	path := []string{start}
	visited := map[string]bool{start: true}

	current := start
	for {
		next := ""
		for _, n := range graph[current] {
			if members[n] && (!visited[n] || n == start) {
				next = n
				break
			}
		}
		if next == "" {
			return path
		}
		path = append(path, next)
		if next == start {
			return path
		}
		visited[next] = true
		current = next
	}
}
