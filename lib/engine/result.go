// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"time"

	"github.com/localmost/localmost/lib/workflow"
)

// Status is the state of a step or job. Steps move from pending to
// running to one of the three final states; a step whose condition is
// false goes from pending straight to skipped.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusSkipped Status = "skipped"
)

// Final reports whether s is success, failure, or skipped.
func (s Status) Final() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusSkipped
}

// StepResult is the outcome of one step.
type StepResult struct {
	Index int
	ID    string
	Name  string

	Status Status

	// Error describes a failure. Secret values are masked.
	Error string

	// ExitCode is 0 for a successful step and the process exit code
	// of a failed one. It is -1 when a step failed without a nonzero
	// exit or did not run.
	ExitCode int

	// ContinueOnError records that a failure did not halt the job.
	ContinueOnError bool

	// Unsupported marks a skip caused by a feature localmost does not
	// implement. Reason explains it.
	Unsupported bool
	Reason      string

	Outputs map[string]string

	StartedAt time.Time
	Duration  time.Duration
}

// JobResult is the outcome of one job, or of one matrix combination
// of a job.
type JobResult struct {
	ID     string
	Name   string
	Matrix workflow.Combination

	Status Status

	// Reason explains a skip or a failure outside any step (timeout,
	// unresolvable reusable workflow).
	Reason      string
	Unsupported bool

	Steps   []StepResult
	Outputs map[string]string

	// Children holds the jobs of a called reusable workflow.
	Children []JobResult

	StartedAt time.Time
	Duration  time.Duration
}

// Failed reports whether the job failed. A job with
// continue-on-error still fails; RunWorkflow does not let it gate its
// dependents.
func (r *JobResult) Failed() bool {
	return r.Status == StatusFailure
}

// WorkflowResult is the outcome of RunWorkflow.
type WorkflowResult struct {
	Workflow string

	// Order is the job schedule that was followed.
	Order []string

	// Jobs holds one result per executed combination, in run order.
	Jobs []JobResult

	Status   Status
	Duration time.Duration
}
