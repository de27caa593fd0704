// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/localmost/localmost/lib/workflow"
)

// RunJob runs the steps of a regular job in ec, sequentially. A step
// failing without continue-on-error halts the job; steps with always()
// still run. Post steps registered by actions run after the steps, in
// reverse order, when the job has not failed. The job's declared
// outputs are extracted from ec.StepOutputs at the end.
//
// RunJob creates the job's RUNNER_TEMP and compiles its sandbox
// profile; the caller provides everything else in ec.
func (e *Engine) RunJob(ctx context.Context, job *workflow.Job, ec *ExecutionContext) JobResult {
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

	if job.IsReusableCall() {
		result.Reason = "reusable workflow calls run through RunReusableJob"
		return e.finishJob(ctx, ec, result, StatusFailure)
	}
	if ec.WorkDir == "" {
		result.Reason = "no working directory"
		return e.finishJob(ctx, ec, result, StatusFailure)
	}

	tempDir, err := os.MkdirTemp(e.tempRoot, "localmost-job-")
	if err != nil {
		result.Reason = fmt.Sprintf("creating runner temp directory: %v", err)
		return e.finishJob(ctx, ec, result, StatusFailure)
	}
	defer os.RemoveAll(tempDir)

	ec.TempDir = tempDir
	if ec.RuntimeEnv == nil {
		ec.RuntimeEnv = make(map[string]string)
	}
	if ec.StepOutputs == nil {
		ec.StepOutputs = make(map[string]map[string]string)
	}
	if ec.JobEnv == nil {
		ec.JobEnv = job.Env
	}
	ec.Runner = RunnerContext(tempDir, e.toolCache)
	ec.Profile = e.compileProfile(ec, tempDir)

	jobContext := ctx
	if job.TimeoutMinutes > 0 {
		var cancel context.CancelFunc
		jobContext, cancel = context.WithTimeout(ctx, minutes(job.TimeoutMinutes))
		defer cancel()
	}

	steps, halted := e.runSteps(jobContext, job.Steps, ec, job)
	result.Steps = steps
	status := StatusSuccess
	if halted != nil {
		status = StatusFailure
		result.Reason = halted.Error()
	}
	if errors.Is(jobContext.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		status = StatusFailure
		result.Reason = fmt.Sprintf("job exceeded timeout-minutes (%v)", job.TimeoutMinutes)
	}

	if status == StatusSuccess {
		for i := len(ec.postSteps) - 1; i >= 0; i-- {
			post := e.runPostStep(jobContext, ec, ec.postSteps[i])
			result.Steps = append(result.Steps, post)
			if post.Status == StatusFailure {
				status = StatusFailure
				result.Reason = fmt.Sprintf("post step %q failed", post.Name)
			}
		}
	}
	ec.postSteps = nil

	result.Outputs = extractOutputs(job.Outputs, ec)
	return e.finishJob(ctx, ec, result, status)
}

func (e *Engine) runPostStep(ctx context.Context, ec *ExecutionContext, post postStep) StepResult {
	index := ec.nextIndex
	ec.nextIndex++
	result := StepResult{
		Index:     index,
		Name:      post.name,
		ExitCode:  -1,
		Status:    StatusRunning,
		StartedAt: e.clock.Now(),
	}
	e.emit(ctx, ec, Event{Kind: EventStepStarted, Step: index, StepName: post.name, Status: StatusRunning})
	if err := post.run(ctx); err != nil {
		result.Error = ec.Redact(err.Error())
		return e.finishStep(ctx, ec, result, StatusFailure)
	}
	result.ExitCode = 0
	return e.finishStep(ctx, ec, result, StatusSuccess)
}

func (e *Engine) finishJob(ctx context.Context, ec *ExecutionContext, result JobResult, status Status) JobResult {
	result.Status = status
	result.Reason = ec.Redact(result.Reason)
	result.Duration = e.clock.Now().Sub(result.StartedAt)
	e.logger.Info("job finished",
		"job", ec.JobID,
		"matrix", ec.MatrixLabel,
		"status", status,
		"duration", result.Duration,
	)
	finished := result
	e.emit(ctx, ec, Event{Kind: EventJobFinished, StepName: result.Name, Status: status, Line: result.Reason, JobResult: &finished})
	return result
}
