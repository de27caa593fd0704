// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"errors"
	"fmt"

	"github.com/dominikbraun/graph"
)

// Graph is the job dependency DAG of a workflow. Edges point from a
// dependency to the job that needs it, so traversing forward from a job
// visits everything downstream of it.
type Graph struct {
	dag   graph.Graph[string, string]
	order []string
}

// NewGraph builds the dependency graph for jobs. Returns the same
// errors as ComputeJobOrder for unknown dependencies and cycles.
func NewGraph(jobs *JobMap) (*Graph, error) {
	order, err := ComputeJobOrder(jobs)
	if err != nil {
		return nil, err
	}

	dag := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	for _, id := range order {
		if err := dag.AddVertex(id); err != nil {
			return nil, fmt.Errorf("adding job %q to graph: %w", id, err)
		}
	}
	for _, id := range order {
		job, _ := jobs.Get(id)
		for _, dependency := range job.Needs {
			err := dag.AddEdge(dependency, id)
			if errors.Is(err, graph.ErrEdgeAlreadyExists) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("adding dependency %s -> %s: %w", dependency, id, err)
			}
		}
	}

	return &Graph{dag: dag, order: order}, nil
}

// Order returns the execution order computed by ComputeJobOrder.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Levels groups jobs into stages. Every job in a stage depends only on
// jobs in earlier stages, so the jobs of one stage are mutually
// independent. Within a stage, jobs keep execution order.
func (g *Graph) Levels() ([][]string, error) {
	predecessors, err := g.dag.PredecessorMap()
	if err != nil {
		return nil, fmt.Errorf("reading job graph: %w", err)
	}

	depth := make(map[string]int, len(g.order))
	var levels [][]string
	for _, id := range g.order {
		level := 0
		for dependency := range predecessors[id] {
			if depth[dependency]+1 > level {
				level = depth[dependency] + 1
			}
		}
		depth[id] = level
		for len(levels) <= level {
			levels = append(levels, nil)
		}
		levels[level] = append(levels[level], id)
	}
	return levels, nil
}

// Downstream returns every job that transitively needs id, in execution
// order. The job itself is not included.
func (g *Graph) Downstream(id string) ([]string, error) {
	reached := make(map[string]bool)
	err := graph.DFS(g.dag, id, func(visited string) bool {
		if visited != id {
			reached[visited] = true
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("walking dependents of %q: %w", id, err)
	}

	var result []string
	for _, job := range g.order {
		if reached[job] {
			result = append(result, job)
		}
	}
	return result, nil
}
