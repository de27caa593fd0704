// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"errors"
	"strings"
	"testing"
)

func jobsOf(needs map[string][]string, order ...string) *JobMap {
	jobs := &JobMap{}
	for _, id := range order {
		jobs.Set(id, &Job{Needs: needs[id], RunsOn: StringList{"macos"}, Steps: []*Step{{Run: "true"}}})
	}
	return jobs
}

// assertTopological checks that every job appears after all of its
// transitive needs.
func assertTopological(t *testing.T, jobs *JobMap, order []string) {
	t.Helper()
	position := make(map[string]int, len(order))
	for index, id := range order {
		position[id] = index
	}
	if len(order) != jobs.Len() {
		t.Fatalf("order %v has %d jobs, want %d", order, len(order), jobs.Len())
	}
	for _, id := range jobs.Keys() {
		job, _ := jobs.Get(id)
		for _, dependency := range job.Needs {
			if position[dependency] >= position[id] {
				t.Errorf("order %v: %q appears before its dependency %q", order, id, dependency)
			}
		}
	}
}

func TestComputeJobOrder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		declared []string
		needs    map[string][]string
		want     string
	}{
		{
			name:     "independent jobs keep declaration order",
			declared: []string{"lint", "test", "docs"},
			want:     "lint,test,docs",
		},
		{
			name:     "build then deploy",
			declared: []string{"build", "deploy"},
			needs:    map[string][]string{"deploy": {"build"}},
			want:     "build,deploy",
		},
		{
			name:     "dependency declared after dependent",
			declared: []string{"deploy", "build"},
			needs:    map[string][]string{"deploy": {"build"}},
			want:     "build,deploy",
		},
		{
			name:     "diamond",
			declared: []string{"release", "test", "lint", "setup"},
			needs: map[string][]string{
				"release": {"test", "lint"},
				"test":    {"setup"},
				"lint":    {"setup"},
			},
			want: "setup,test,lint,release",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			jobs := jobsOf(test.needs, test.declared...)
			order, err := ComputeJobOrder(jobs)
			if err != nil {
				t.Fatalf("ComputeJobOrder: %v", err)
			}
			if got := strings.Join(order, ","); got != test.want {
				t.Errorf("order = %q, want %q", got, test.want)
			}
			assertTopological(t, jobs, order)
		})
	}
}

func TestComputeJobOrderCycle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		needs   map[string][]string
		jobs    []string
		onCycle []string
	}{
		{
			name:    "self dependency",
			jobs:    []string{"a"},
			needs:   map[string][]string{"a": {"a"}},
			onCycle: []string{"a"},
		},
		{
			name:    "two-job cycle",
			jobs:    []string{"a", "b"},
			needs:   map[string][]string{"a": {"b"}, "b": {"a"}},
			onCycle: []string{"a", "b"},
		},
		{
			name:    "cycle behind an acyclic prefix",
			jobs:    []string{"entry", "x", "y", "z"},
			needs:   map[string][]string{"entry": {"x"}, "x": {"y"}, "y": {"z"}, "z": {"x"}},
			onCycle: []string{"x", "y", "z"},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			_, err := ComputeJobOrder(jobsOf(test.needs, test.jobs...))
			var cycle *CycleError
			if !errors.As(err, &cycle) {
				t.Fatalf("error = %v, want *CycleError", err)
			}
			onCycle := false
			for _, id := range test.onCycle {
				if cycle.Job == id {
					onCycle = true
				}
			}
			if !onCycle {
				t.Errorf("cycle.Job = %q, want one of %v", cycle.Job, test.onCycle)
			}
			if first, last := cycle.Path[0], cycle.Path[len(cycle.Path)-1]; first != cycle.Job || last != cycle.Job {
				t.Errorf("cycle.Path = %v, want a path starting and ending at %q", cycle.Path, cycle.Job)
			}
			if !strings.Contains(err.Error(), "dependency cycle detected") {
				t.Errorf("error = %q, want cycle wording", err.Error())
			}
		})
	}
}

func TestComputeJobOrderUnknownDependency(t *testing.T) {
	t.Parallel()

	_, err := ComputeJobOrder(jobsOf(map[string][]string{"deploy": {"biuld"}}, "build", "deploy"))
	var unknown *UnknownDependencyError
	if !errors.As(err, &unknown) {
		t.Fatalf("error = %v, want *UnknownDependencyError", err)
	}
	if unknown.Job != "deploy" || unknown.Dependency != "biuld" {
		t.Errorf("error = %+v, want deploy -> biuld", unknown)
	}
	if strings.Contains(err.Error(), "cycle") {
		t.Errorf("unknown dependency error %q must not be worded as a cycle", err.Error())
	}
}

func TestGraph(t *testing.T) {
	t.Parallel()

	jobs := jobsOf(map[string][]string{
		"test":   {"build"},
		"lint":   {"build"},
		"deploy": {"test", "lint"},
		"notify": {"deploy"},
	}, "build", "test", "lint", "docs", "deploy", "notify")

	graph, err := NewGraph(jobs)
	if err != nil {
		t.Fatalf("NewGraph: %v", err)
	}

	levels, err := graph.Levels()
	if err != nil {
		t.Fatalf("Levels: %v", err)
	}
	var rendered []string
	for _, level := range levels {
		rendered = append(rendered, strings.Join(level, "+"))
	}
	if got, want := strings.Join(rendered, " | "), "build+docs | test+lint | deploy | notify"; got != want {
		t.Errorf("Levels = %q, want %q", got, want)
	}

	downstream, err := graph.Downstream("test")
	if err != nil {
		t.Fatalf("Downstream: %v", err)
	}
	if got := strings.Join(downstream, ","); got != "deploy,notify" {
		t.Errorf("Downstream(test) = %q, want %q", got, "deploy,notify")
	}

	downstream, err = graph.Downstream("docs")
	if err != nil {
		t.Fatalf("Downstream: %v", err)
	}
	if len(downstream) != 0 {
		t.Errorf("Downstream(docs) = %v, want none", downstream)
	}
}

func TestNewGraphRejectsCycle(t *testing.T) {
	t.Parallel()

	_, err := NewGraph(jobsOf(map[string][]string{"a": {"b"}, "b": {"a"}}, "a", "b"))
	var cycle *CycleError
	if !errors.As(err, &cycle) {
		t.Fatalf("error = %v, want *CycleError", err)
	}
}
