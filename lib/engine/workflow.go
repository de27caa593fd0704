// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"

	"github.com/localmost/localmost/lib/expression"
	"github.com/localmost/localmost/lib/policy"
	"github.com/localmost/localmost/lib/secret"
	"github.com/localmost/localmost/lib/workflow"
)

// RunOptions configures one RunWorkflow call.
type RunOptions struct {
	// Jobs selects the jobs to run. Empty runs every job. needs on a
	// job outside the selection count as satisfied with no outputs.
	Jobs []string

	// Matrix restricts matrix jobs to the combinations it matches.
	// Keys absent from a job's matrix exclude every combination.
	Matrix workflow.Combination

	// IgnoreNeedsFailure runs the dependents of a failed job instead
	// of skipping them.
	IgnoreNeedsFailure bool

	// WorkDir is the workspace every job runs in. Required.
	WorkDir string

	// Env sits beneath the workflow's env: block, e.g. variables read
	// from a dotenv file.
	Env map[string]string

	Secrets *secret.Set
	Inputs  map[string]any
	Event   map[string]any
	GitHub  map[string]string

	Policy     *policy.SandboxPolicy
	Permissive bool
	TraceLog   string

	Events *EventStream

	// nested marks a called reusable workflow; jobPrefix qualifies its
	// job ids on the event stream.
	nested    bool
	jobPrefix string
}

// RunWorkflow runs the jobs of wf in ComputeJobOrder order, one at a
// time. Each matrix combination of a job runs in its own context.
//
// By default the transitive dependents of a failed job are skipped; a
// job whose if: is always() runs regardless. A job failing under
// continue-on-error gates nothing. With fail-fast (the default) the
// remaining combinations of a failed matrix job are skipped.
//
// The returned error covers problems that prevent the run from
// starting. Job and step failures are reported in the result.
func (e *Engine) RunWorkflow(ctx context.Context, wf *workflow.Workflow, options RunOptions) (*WorkflowResult, error) {
	result, _, err := e.runWorkflow(ctx, wf, options)
	return result, err
}

func (e *Engine) runWorkflow(ctx context.Context, wf *workflow.Workflow, options RunOptions) (*WorkflowResult, map[string]map[string]string, error) {
	if options.WorkDir == "" {
		return nil, nil, errors.New("run: a working directory is required")
	}
	order, err := workflow.ComputeJobOrder(wf.Jobs)
	if err != nil {
		return nil, nil, err
	}
	graph, err := workflow.NewGraph(wf.Jobs)
	if err != nil {
		return nil, nil, err
	}
	selected, err := selectJobs(wf, order, options.Jobs)
	if err != nil {
		return nil, nil, err
	}

	start := e.clock.Now()
	result := &WorkflowResult{Workflow: wf.Name, Status: StatusSuccess}
	jobOutputs := make(map[string]map[string]string)
	blocked := make(map[string]string)

	for _, id := range order {
		if !selected[id] {
			continue
		}
		result.Order = append(result.Order, id)
		job, _ := wf.Jobs.Get(id)

		var jobResults []JobResult
		reason, isBlocked := blocked[id]
		switch {
		case ctx.Err() != nil:
			jobResults = []JobResult{e.skipJob(ctx, job, options, "run cancelled", false)}
		case isBlocked && expression.ClassifyCondition(job.If) != expression.ConditionAlways:
			jobResults = []JobResult{e.skipJob(ctx, job, options, reason, false)}
		case !expression.EvaluateCondition(job.If, nil, e.jobExpressionContext(wf, job, options, jobOutputs)):
			jobResults = []JobResult{e.skipJob(ctx, job, options, fmt.Sprintf("condition %q is false", job.If), false)}
		case options.nested && job.IsReusableCall():
			jobResults = []JobResult{e.skipJob(ctx, job, options, "nested reusable workflow calls are not supported", true)}
		default:
			jobResults = e.runCombinations(ctx, wf, job, options, jobOutputs)
		}
		result.Jobs = append(result.Jobs, jobResults...)

		outputs := make(map[string]string)
		failed := false
		for i := range jobResults {
			maps.Copy(outputs, jobResults[i].Outputs)
			failed = failed || jobResults[i].Failed()
		}
		jobOutputs[id] = outputs

		if !failed || job.ContinueOnError {
			continue
		}
		result.Status = StatusFailure
		if options.IgnoreNeedsFailure {
			continue
		}
		downstream, err := graph.Downstream(id)
		if err != nil {
			return nil, nil, err
		}
		for _, dependent := range downstream {
			if _, already := blocked[dependent]; !already {
				blocked[dependent] = fmt.Sprintf("needed job %q failed", id)
			}
		}
	}

	result.Duration = e.clock.Now().Sub(start)
	return result, jobOutputs, nil
}

// selectJobs returns the set of job ids to run.
func selectJobs(wf *workflow.Workflow, order, requested []string) (map[string]bool, error) {
	selected := make(map[string]bool, len(order))
	if len(requested) == 0 {
		for _, id := range order {
			selected[id] = true
		}
		return selected, nil
	}
	var unknown []string
	for _, id := range requested {
		if _, ok := wf.Jobs.Get(id); !ok {
			unknown = append(unknown, id)
			continue
		}
		selected[id] = true
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown jobs %q (workflow has %q)", unknown, wf.Jobs.Keys())
	}
	return selected, nil
}

// runCombinations runs every selected matrix combination of job.
func (e *Engine) runCombinations(ctx context.Context, wf *workflow.Workflow, job *workflow.Job, options RunOptions, jobOutputs map[string]map[string]string) []JobResult {
	combinations, err := workflow.GenerateMatrixCombinations(job.Strategy)
	computed := job.Strategy != nil && job.Strategy.Matrix != nil && job.Strategy.Matrix.Expression != ""
	switch {
	case computed && len(options.Matrix) > 0:
		// The override is the only combination known locally.
		combinations = []workflow.Combination{options.Matrix}
	case err != nil:
		return []JobResult{e.failJob(ctx, job, options, err.Error())}
	case options.Matrix != nil && job.Strategy != nil && job.Strategy.Matrix != nil:
		var matching []workflow.Combination
		for _, combination := range combinations {
			if options.Matrix.Matches(combination) {
				matching = append(matching, combination)
			}
		}
		if len(matching) == 0 {
			reason := fmt.Sprintf("no matrix combination matches %s", workflow.FormatCombination(options.Matrix))
			return []JobResult{e.skipJob(ctx, job, options, reason, false)}
		}
		combinations = matching
	}

	failFast := job.Strategy == nil || job.Strategy.FailFast == nil || *job.Strategy.FailFast
	results := make([]JobResult, 0, len(combinations))
	stopped := false
	for _, combination := range combinations {
		ec := e.newContext(wf, job, combination, options, jobOutputs)
		if stopped {
			results = append(results, e.skipCombination(ctx, job, ec, "fail-fast: another combination failed", false))
			continue
		}

		var jobResult JobResult
		if job.IsReusableCall() {
			jobResult = e.RunReusableJob(ctx, job, ec)
		} else {
			jobResult = e.RunJob(ctx, job, ec)
		}
		results = append(results, jobResult)
		if jobResult.Failed() && failFast && !job.ContinueOnError {
			stopped = true
		}
	}
	return results
}

// newContext builds the execution context of one combination of job.
func (e *Engine) newContext(wf *workflow.Workflow, job *workflow.Job, combination workflow.Combination, options RunOptions, jobOutputs map[string]map[string]string) *ExecutionContext {
	needs := make(map[string]map[string]string, len(job.Needs))
	for _, need := range job.Needs {
		needs[need] = jobOutputs[need]
	}
	github := maps.Clone(options.GitHub)
	if github == nil {
		github = make(map[string]string)
	}
	github["job"] = job.ID
	github["workspace"] = options.WorkDir

	jobID := job.ID
	if options.jobPrefix != "" {
		jobID = options.jobPrefix + "/" + job.ID
	}

	ec := &ExecutionContext{
		Workflow:    wf,
		JobID:       jobID,
		MatrixLabel: workflow.FormatCombination(combination),
		WorkDir:     options.WorkDir,
		JobEnv:      job.Env,
		RuntimeEnv:  make(map[string]string),
		Matrix:      combination,
		Secrets:     options.Secrets,
		Inputs:      options.Inputs,
		StepOutputs: make(map[string]map[string]string),
		Needs:       needs,
		Jobs:        jobOutputs,
		Policy:      options.Policy,
		Permissive:  options.Permissive,
		TraceLog:    options.TraceLog,
		Events:      options.Events,
		GitHub:      github,
		Event:       options.Event,
	}
	ec.WorkflowEnv = options.Env
	if wf != nil && len(options.Env) > 0 {
		ec.WorkflowEnv = maps.Clone(options.Env)
		maps.Copy(ec.WorkflowEnv, wf.Env)
	} else if wf != nil {
		ec.WorkflowEnv = wf.Env
	}
	if options.Secrets != nil {
		ec.redactor = options.Secrets.Redactor()
	}
	return ec
}

// jobExpressionContext is the context job-level if: conditions see.
func (e *Engine) jobExpressionContext(wf *workflow.Workflow, job *workflow.Job, options RunOptions, jobOutputs map[string]map[string]string) *expression.Context {
	return e.newContext(wf, job, nil, options, jobOutputs).ExpressionContext()
}

// skipJob records job as skipped without running any combination.
func (e *Engine) skipJob(ctx context.Context, job *workflow.Job, options RunOptions, reason string, unsupported bool) JobResult {
	ec := e.newContext(nil, job, nil, options, nil)
	return e.skipCombination(ctx, job, ec, reason, unsupported)
}

func (e *Engine) skipCombination(ctx context.Context, job *workflow.Job, ec *ExecutionContext, reason string, unsupported bool) JobResult {
	result := JobResult{
		ID:          job.ID,
		Name:        job.DisplayName(),
		Matrix:      ec.Matrix,
		Reason:      reason,
		Unsupported: unsupported,
		StartedAt:   e.clock.Now(),
	}
	return e.finishJob(ctx, ec, result, StatusSkipped)
}

// failJob records job as failed before any combination started.
func (e *Engine) failJob(ctx context.Context, job *workflow.Job, options RunOptions, reason string) JobResult {
	ec := e.newContext(nil, job, nil, options, nil)
	result := JobResult{
		ID:        job.ID,
		Name:      job.DisplayName(),
		Reason:    reason,
		StartedAt: e.clock.Now(),
	}
	return e.finishJob(ctx, ec, result, StatusFailure)
}
