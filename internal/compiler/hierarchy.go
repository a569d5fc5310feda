package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/tracemon/internal/ir"
)

// Warning is a problem that does not stop a monitor from running.
type Warning struct {
	Monitor string   `json:"monitor"`
	Path    []string `json:"path,omitempty"`
	Message string   `json:"message"`
	Level   string   `json:"level"` // "warning" or "info"
}

// AnalyzeHierarchy checks the monitors lists of a spec set: every child
// must be declared, have one parent, and the parent/child graph must be
// acyclic, since Verify recurses into children.
//
// The algorithm:
//  1. Build the monitor → children graph
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a cycle
func AnalyzeHierarchy(specs []ir.MonitorSpec) []ValidationError {
	var errs []ValidationError

	declared := make(map[string]bool, len(specs))
	for _, s := range specs {
		declared[s.Name] = true
	}

	parentOf := make(map[string]string)
	graph := make(dependencyGraph, len(specs))
	for _, s := range specs {
		graph[s.Name] = []string{}
		for _, child := range s.Monitors {
			if prev, ok := parentOf[child]; ok && prev != s.Name {
				errs = append(errs, ValidationError{
					Field:   "monitor." + s.Name + ".monitors",
					Message: fmt.Sprintf("monitor %q is already a child of %q", child, prev),
					Code:    ErrSharedChild,
				})
			}
			parentOf[child] = s.Name
			if !declared[child] {
				errs = append(errs, ValidationError{
					Field:   "monitor." + s.Name + ".monitors",
					Message: fmt.Sprintf("unknown child monitor %q", child),
					Code:    ErrUnknownChild,
				})
				continue
			}
			graph[s.Name] = append(graph[s.Name], child)
		}
	}

	for _, scc := range tarjanSCC(graph) {
		if len(scc) == 1 && !hasSelfLoop(scc[0], graph) {
			continue
		}
		path := []string{scc[0], scc[0]}
		if len(scc) > 1 {
			path = reconstructCyclePath(scc, graph)
		}
		errs = append(errs, ValidationError{
			Field:   "monitor." + path[0] + ".monitors",
			Message: fmt.Sprintf("monitor hierarchy cycle: %s", strings.Join(path, " → ")),
			Code:    ErrHierarchyCycle,
		})
	}

	return errs
}

// Roots returns the monitors that are nobody's child, in declaration
// order. These are the monitors an engine verifies directly.
func Roots(specs []ir.MonitorSpec) []string {
	children := make(map[string]bool)
	for _, s := range specs {
		for _, c := range s.Monitors {
			children[c] = true
		}
	}
	var roots []string
	for _, s := range specs {
		if !children[s.Name] {
			roots = append(roots, s.Name)
		}
	}
	return roots
}

// Warnings reports states no initial state can reach, for every monitor.
func Warnings(specs []ir.MonitorSpec) []Warning {
	var out []Warning
	for i := range specs {
		out = append(out, UnreachableStates(&specs[i])...)
	}
	return out
}

// UnreachableStates walks goto and find.else targets from the initial
// states and reports every declared state it never reaches.
func UnreachableStates(spec *ir.MonitorSpec) []Warning {
	graph := make(dependencyGraph, len(spec.States))
	for _, st := range spec.States {
		graph[st.Name] = []string{}
		for _, tr := range append(append([]ir.TransitionSpec{}, st.On...), st.Watch...) {
			targets := tr.Goto
			if tr.Find != nil {
				targets = append(append([]ir.TargetSpec{}, tr.Goto...), tr.Find.Else...)
			}
			for _, t := range targets {
				if t.State != ir.TargetOk && t.State != ir.TargetError {
					graph[st.Name] = append(graph[st.Name], t.State)
				}
			}
		}
	}

	reached := make(map[string]bool)
	queue := append([]string{}, spec.Initial...)
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if reached[name] {
			continue
		}
		reached[name] = true
		queue = append(queue, graph[name]...)
	}

	var warnings []Warning
	for _, st := range spec.States {
		if reached[st.Name] {
			continue
		}
		warnings = append(warnings, Warning{
			Monitor: spec.Name,
			Path:    []string{st.Name},
			Message: fmt.Sprintf("state %q is unreachable from the initial states", st.Name),
			Level:   "warning",
		})
	}
	return warnings
}

// dependencyGraph maps a node → nodes it points to.
type dependencyGraph map[string][]string

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
// Nodes are visited in sorted order so the result is deterministic.
//
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

		// v is a root node: pop the stack and create an SCC
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
