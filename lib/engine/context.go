// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"maps"

	"github.com/localmost/localmost/lib/expression"
	"github.com/localmost/localmost/lib/policy"
	"github.com/localmost/localmost/lib/secret"
	"github.com/localmost/localmost/lib/workflow"
)

// ExecutionContext is the mutable state of one job run (or of one
// composite action inside it). It is owned by a single goroutine.
type ExecutionContext struct {
	// Workflow is the workflow the job belongs to.
	Workflow *workflow.Workflow

	// JobID is the id of the running job; MatrixLabel its formatted
	// combination.
	JobID       string
	MatrixLabel string

	// WorkDir is the workspace the steps run in.
	WorkDir string

	// TempDir is RUNNER_TEMP: scripts and file-command files live
	// here. Created and removed by the job runner.
	TempDir string

	// Env layers, lowest precedence first. RuntimeEnv collects
	// GITHUB_ENV writes from earlier steps.
	WorkflowEnv map[string]string
	JobEnv      map[string]string
	RuntimeEnv  map[string]string

	// PathAdditions collects GITHUB_PATH writes, most recent first.
	PathAdditions []string

	Matrix  workflow.Combination
	Secrets *secret.Set
	Inputs  map[string]any

	// StepOutputs maps step id to its outputs for steps of this job
	// (or composite action) that have finished.
	StepOutputs map[string]map[string]string

	// Needs maps each direct dependency to its outputs.
	Needs map[string]map[string]string

	// Jobs maps completed job ids to their outputs, for reusable
	// workflow output extraction.
	Jobs map[string]map[string]string

	Policy     *policy.SandboxPolicy
	Permissive bool

	// TraceLog receives the sandbox access trace in permissive mode.
	TraceLog string

	// Profile is the compiled sandbox profile every process of this
	// job runs under.
	Profile string

	Events *EventStream

	// GitHub, Runner and Event back the github.*, runner.* and
	// github.event.* expression contexts.
	GitHub map[string]string
	Runner map[string]string
	Event  map[string]any

	// ActionPath is the directory of the composite action being run,
	// exported as GITHUB_ACTION_PATH. Empty outside actions.
	ActionPath string

	redactor  *secret.Redactor
	postSteps []postStep
	nextIndex int
	depth     int
}

// postStep runs after the job's steps succeed, in reverse order of
// registration.
type postStep struct {
	name string
	run  func(ctx context.Context) error
}

// ExpressionContext returns the expression view of the context.
func (ec *ExecutionContext) ExpressionContext() *expression.Context {
	return &expression.Context{
		Secrets:   ec.secretMap(),
		Matrix:    ec.Matrix,
		Steps:     ec.StepOutputs,
		Inputs:    ec.Inputs,
		Needs:     ec.Needs,
		Jobs:      ec.Jobs,
		GitHub:    ec.GitHub,
		Event:     ec.Event,
		Runner:    ec.Runner,
		Workspace: ec.WorkDir,
	}
}

// DeclaredEnv merges the declared env layers (workflow, job, runtime,
// then extra) with later layers winning, expanding expressions in
// each layer against the layers below it.
func (ec *ExecutionContext) DeclaredEnv(extra map[string]string) map[string]string {
	expressionContext := ec.ExpressionContext()
	merged := make(map[string]string)
	for _, layer := range []map[string]string{ec.WorkflowEnv, ec.JobEnv, ec.RuntimeEnv, extra} {
		expanded := expression.ExpandMap(layer, merged, expressionContext)
		maps.Copy(merged, expanded)
	}
	return merged
}

// Redact masks secret values in text.
func (ec *ExecutionContext) Redact(text string) string {
	if ec.redactor == nil && ec.Secrets != nil {
		ec.redactor = ec.Secrets.Redactor()
	}
	return ec.redactor.Redact(text)
}

func (ec *ExecutionContext) secretMap() map[string]string {
	if ec.Secrets == nil {
		return nil
	}
	return ec.Secrets.Map()
}

// derive returns a context for running a composite action: the same
// environment, policy and stream, with its own step-output map and the
// action's inputs. Step ids inside the action cannot collide with the
// caller's.
func (ec *ExecutionContext) derive(actionPath string, inputs map[string]any) *ExecutionContext {
	child := *ec
	child.StepOutputs = make(map[string]map[string]string)
	child.Inputs = inputs
	child.ActionPath = actionPath
	child.postSteps = nil
	child.depth = ec.depth + 1
	// GITHUB_ENV and GITHUB_PATH writes inside the action reach the
	// caller, as on hosted runners.
	child.RuntimeEnv = ec.RuntimeEnv
	return &child
}

// absorb copies back the state a composite action may change on its
// caller.
func (ec *ExecutionContext) absorb(child *ExecutionContext) {
	ec.PathAdditions = child.PathAdditions
	ec.postSteps = append(ec.postSteps, child.postSteps...)
	ec.nextIndex = child.nextIndex
}
