// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle in the job graph.
type CycleError struct {
	// Job is a job on the cycle: the one whose revisit closed it.
	Job string

	// Path is the dependency chain that led back to Job, starting and
	// ending with Job.
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected at job %q (%s)", e.Job, strings.Join(e.Path, " -> "))
}

// UnknownDependencyError reports a needs: entry naming a job that the
// workflow does not declare.
type UnknownDependencyError struct {
	Job        string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("job %q needs %q, which is not declared in this workflow", e.Job, e.Dependency)
}

// ComputeJobOrder returns the job ids in an order where every job
// appears after all of its transitive needs. Among independent jobs
// the declaration order is preserved.
//
// The traversal is depth-first and tracks the ancestor set of the
// current recursion branch, separately from the set of already-emitted
// jobs. A job reached twice through different branches (a diamond) is
// emitted once; a job reached again while it is still its own ancestor
// is a cycle.
func ComputeJobOrder(jobs *JobMap) ([]string, error) {
	order := make([]string, 0, jobs.Len())
	emitted := make(map[string]bool, jobs.Len())

	var visit func(id string, ancestors []string, onBranch map[string]bool) error
	visit = func(id string, ancestors []string, onBranch map[string]bool) error {
		if onBranch[id] {
			start := 0
			for index, ancestor := range ancestors {
				if ancestor == id {
					start = index
					break
				}
			}
			path := append(append([]string{}, ancestors[start:]...), id)
			return &CycleError{Job: id, Path: path}
		}
		if emitted[id] {
			return nil
		}

		job, _ := jobs.Get(id)
		onBranch[id] = true
		ancestors = append(ancestors, id)
		for _, dependency := range job.Needs {
			if _, exists := jobs.Get(dependency); !exists {
				return &UnknownDependencyError{Job: id, Dependency: dependency}
			}
			if err := visit(dependency, ancestors, onBranch); err != nil {
				return err
			}
		}
		delete(onBranch, id)

		emitted[id] = true
		order = append(order, id)
		return nil
	}

	for _, id := range jobs.Keys() {
		if err := visit(id, nil, make(map[string]bool)); err != nil {
			return nil, err
		}
	}
	return order, nil
}
