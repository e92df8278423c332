package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flowgate/flowgate/engine/core"
	"github.com/flowgate/flowgate/pkg/tplengine"
)

// -----------------------------------------------------------------------------
// Execution graph
// -----------------------------------------------------------------------------

// ParallelGroup is one set of step ids with no edges between them; every
// member may run concurrently.
type ParallelGroup []string

// ExecutionGraph is the dependency DAG derived from a workflow's templates,
// leveled for parallel execution. Built per execution; always acyclic.
type ExecutionGraph struct {
	nodes      []string
	deps       map[string][]string
	dependents map[string][]string
	levels     []ParallelGroup
	levelOf    map[string]int
}

func (g *ExecutionGraph) Nodes() []string {
	return g.nodes
}

// Dependencies returns the step ids the given step consumes output from.
func (g *ExecutionGraph) Dependencies(stepID string) []string {
	return g.deps[stepID]
}

// Dependents returns the step ids that consume the given step's output.
func (g *ExecutionGraph) Dependents(stepID string) []string {
	return g.dependents[stepID]
}

// Levels returns the parallel groups in execution order.
func (g *ExecutionGraph) Levels() []ParallelGroup {
	return g.levels
}

// LevelOf returns the topological level of a step.
func (g *ExecutionGraph) LevelOf(stepID string) (int, bool) {
	level, ok := g.levelOf[stepID]
	return level, ok
}

// -----------------------------------------------------------------------------
// Builder
// -----------------------------------------------------------------------------

// BuildGraph extracts dependencies from the workflow's step templates and
// levels the resulting DAG with Kahn's algorithm. Nodes dequeued in the same
// iteration form one ParallelGroup, which yields the topologically earliest
// scheduling. A cycle fails the build with the offending path spelled out.
func BuildGraph(w *Config) (*ExecutionGraph, error) {
	graph := &ExecutionGraph{
		deps:       make(map[string][]string),
		dependents: make(map[string][]string),
		levelOf:    make(map[string]int),
	}
	known := make(map[string]bool, len(w.Steps))
	for i := range w.Steps {
		graph.nodes = append(graph.nodes, w.Steps[i].ID)
		known[w.Steps[i].ID] = true
	}

	for i := range w.Steps {
		step := &w.Steps[i]
		seen := make(map[string]bool)
		for _, tmpl := range step.templateStrings() {
			refs, err := tplengine.ExtractTaskRefs(tmpl)
			if err != nil {
				return nil, err
			}
			for _, ref := range refs {
				// References to ids outside the workflow are a
				// validation-layer concern, not edges.
				if !known[ref] || seen[ref] {
					continue
				}
				seen[ref] = true
				graph.deps[step.ID] = append(graph.deps[step.ID], ref)
				graph.dependents[ref] = append(graph.dependents[ref], step.ID)
			}
		}
		sort.Strings(graph.deps[step.ID])
	}

	if err := graph.level(); err != nil {
		return nil, err
	}
	return graph, nil
}

// level runs Kahn's algorithm, recording each drain iteration as one level.
func (g *ExecutionGraph) level() error {
	inDegree := make(map[string]int, len(g.nodes))
	for _, node := range g.nodes {
		inDegree[node] = len(g.deps[node])
	}

	var current ParallelGroup
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			current = append(current, node)
		}
	}

	drained := 0
	for level := 0; len(current) > 0; level++ {
		g.levels = append(g.levels, current)
		var next ParallelGroup
		for _, node := range current {
			g.levelOf[node] = level
			drained++
			for _, dependent := range g.dependents[node] {
				inDegree[dependent]--
				if inDegree[dependent] == 0 {
					next = append(next, dependent)
				}
			}
		}
		current = next
	}

	if drained != len(g.nodes) {
		cycle := g.findCycle(inDegree)
		return core.NewError(
			core.CodeCircularDependency,
			fmt.Sprintf("circular dependency detected: %s", strings.Join(cycle, " -> ")),
			map[string]any{"cycle": cycle},
		)
	}
	return nil
}

// findCycle walks dependency edges among the undrained nodes until a node
// repeats, then returns the loop as a path whose first and last ids match and
// whose consecutive ids are connected by dependency edges.
func (g *ExecutionGraph) findCycle(inDegree map[string]int) []string {
	remaining := make(map[string]bool)
	for _, node := range g.nodes {
		if inDegree[node] > 0 {
			remaining[node] = true
		}
	}

	var start string
	for _, node := range g.nodes {
		if remaining[node] {
			start = node
			break
		}
	}

	visited := make(map[string]int)
	var path []string
	node := start
	for {
		if idx, ok := visited[node]; ok {
			loop := append([]string{}, path[idx:]...)
			loop = append(loop, node)
			// The walk followed dependency pointers backwards; reverse so
			// each consecutive pair reads producer -> consumer.
			reverse(loop)
			return loop
		}
		visited[node] = len(path)
		path = append(path, node)
		advanced := false
		for _, dep := range g.deps[node] {
			if remaining[dep] {
				node = dep
				advanced = true
				break
			}
		}
		if !advanced {
			// Every undrained node keeps at least one undrained dependency;
			// this branch is unreachable on a correctly built graph.
			return append(path, path[0])
		}
	}
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
