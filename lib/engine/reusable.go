// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/localmost/localmost/lib/expression"
	"github.com/localmost/localmost/lib/secret"
	"github.com/localmost/localmost/lib/workflow"
)

// RunReusableJob runs a job that calls a local reusable workflow. The
// called workflow's jobs run in their own order with the caller's
// workspace, policy and event stream; a job inside it that calls yet
// another workflow is skipped as unsupported. Remote references are
// skipped as unsupported without running anything.
//
// Inputs come from the caller's with: values and the declared
// defaults. Secrets are inherited with secrets: inherit, otherwise
// only the mapped ones are passed. The job's outputs are the called
// workflow's on.workflow_call.outputs, evaluated against its jobs.
func (e *Engine) RunReusableJob(ctx context.Context, job *workflow.Job, ec *ExecutionContext) JobResult {
	result := JobResult{
		ID:        job.ID,
		Name:      job.DisplayName(),
		Matrix:    ec.Matrix,
		Status:    StatusRunning,
		StartedAt: e.clock.Now(),
	}
	if ec.JobID == "" {
		ec.JobID = job.ID
	}
	e.emit(ctx, ec, Event{Kind: EventJobStarted, StepName: result.Name, Status: StatusRunning})

	repositoryRoot := ec.WorkDir
	if ec.Workflow != nil && ec.Workflow.Path != "" {
		repositoryRoot = workflow.FindRepositoryRoot(ec.Workflow.Path)
	}
	path, err := workflow.ResolveReusableWorkflowPath(job.Uses, repositoryRoot)
	if err != nil {
		result.Reason = err.Error()
		var unsupportedErr *workflow.UnsupportedError
		if errors.As(err, &unsupportedErr) {
			result.Unsupported = true
			return e.finishJob(ctx, ec, result, StatusSkipped)
		}
		return e.finishJob(ctx, ec, result, StatusFailure)
	}

	called, err := workflow.ReadFile(path)
	if err != nil {
		result.Reason = err.Error()
		return e.finishJob(ctx, ec, result, StatusFailure)
	}
	if called.On.WorkflowCall == nil {
		result.Reason = fmt.Sprintf("%s does not declare on.workflow_call", path)
		return e.finishJob(ctx, ec, result, StatusFailure)
	}

	expressionContext := ec.ExpressionContext()
	env := ec.DeclaredEnv(nil)
	with := make(map[string]any, len(job.With))
	for name, value := range job.With {
		if text, ok := value.(string); ok {
			value = expression.Expand(text, env, expressionContext)
		}
		with[name] = value
	}
	inputs, err := workflow.ResolveReusableWorkflowInputs(called.On.WorkflowCall, with)
	if err != nil {
		result.Reason = err.Error()
		return e.finishJob(ctx, ec, result, StatusFailure)
	}

	secrets, err := calledSecrets(job, ec, env, expressionContext)
	if err != nil {
		result.Reason = err.Error()
		return e.finishJob(ctx, ec, result, StatusFailure)
	}
	if secrets != ec.Secrets {
		defer secrets.Close()
	}

	childResult, childOutputs, err := e.runWorkflow(ctx, called, RunOptions{
		WorkDir:    ec.WorkDir,
		Secrets:    secrets,
		Inputs:     inputs,
		Event:      ec.Event,
		GitHub:     ec.GitHub,
		Policy:     ec.Policy,
		Permissive: ec.Permissive,
		TraceLog:   ec.TraceLog,
		Events:     ec.Events,
		nested:     true,
		jobPrefix:  ec.JobID,
	})
	if err != nil {
		result.Reason = err.Error()
		return e.finishJob(ctx, ec, result, StatusFailure)
	}
	result.Children = childResult.Jobs

	declared := make(map[string]string, len(called.On.WorkflowCall.Outputs))
	for name, output := range called.On.WorkflowCall.Outputs {
		declared[name] = output.Value
	}
	outputContext := &ExecutionContext{
		Workflow: called,
		WorkDir:  ec.WorkDir,
		Inputs:   inputs,
		Jobs:     childOutputs,
		Secrets:  secrets,
		GitHub:   ec.GitHub,
		Event:    ec.Event,
	}
	result.Outputs = extractOutputs(declared, outputContext)

	if childResult.Status == StatusFailure {
		result.Reason = fmt.Sprintf("called workflow %s failed", called.Name)
		return e.finishJob(ctx, ec, result, StatusFailure)
	}
	return e.finishJob(ctx, ec, result, StatusSuccess)
}

// calledSecrets returns the secrets a called workflow sees.
func calledSecrets(job *workflow.Job, ec *ExecutionContext, env map[string]string, expressionContext *expression.Context) (*secret.Set, error) {
	if job.Secrets.Inherit {
		return ec.Secrets, nil
	}
	set := secret.NewSet()
	for name, value := range job.Secrets.Values {
		if err := set.Add(name, expression.Expand(value, env, expressionContext)); err != nil {
			set.Close()
			return nil, fmt.Errorf("passing secret %s: %w", name, err)
		}
	}
	return set, nil
}
