// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/localmost/localmost/lib/expression"
	"github.com/localmost/localmost/lib/workflow"
	"github.com/localmost/localmost/sandbox"
)

// maxLineLength bounds one streamed output line. Longer lines end the
// stream for that step; the rest of the output is discarded.
const maxLineLength = 1 << 20

// unsupportedError reports a feature localmost does not implement. The
// step is skipped, or failed when fail is set.
type unsupportedError struct {
	reason string
	fail   bool
}

func (e *unsupportedError) Error() string { return e.reason }

func unsupported(format string, args ...any) error {
	return &unsupportedError{reason: fmt.Sprintf(format, args...)}
}

// ExecuteStep runs one step of job in ec. A step whose condition is
// false is skipped without running. A run: step executes its expanded
// script through the step's shell under ec.Profile; a uses: step
// dispatches on the action reference. Outputs of a step with an id
// are recorded in ec.StepOutputs.
//
// job supplies defaults and may be nil for steps of a composite action.
func (e *Engine) ExecuteStep(ctx context.Context, step *workflow.Step, ec *ExecutionContext, job *workflow.Job) StepResult {
	index := ec.nextIndex
	ec.nextIndex++

	expressionContext := ec.ExpressionContext()
	declared := ec.DeclaredEnv(step.Env)
	result := StepResult{
		Index:           index,
		ID:              step.ID,
		Name:            ec.Redact(expression.Expand(step.DisplayName(), declared, expressionContext)),
		Status:          StatusPending,
		ExitCode:        -1,
		ContinueOnError: step.ContinueOnError,
		StartedAt:       e.clock.Now(),
	}

	if !expression.EvaluateCondition(step.If, declared, expressionContext) {
		result.Reason = fmt.Sprintf("condition %q is false", step.If)
		return e.finishStep(ctx, ec, result, StatusSkipped)
	}

	result.Status = StatusRunning
	e.emit(ctx, ec, Event{Kind: EventStepStarted, Step: index, StepName: result.Name, Status: StatusRunning})

	stepContext := ctx
	if step.TimeoutMinutes > 0 {
		var cancel context.CancelFunc
		stepContext, cancel = context.WithTimeout(ctx, minutes(step.TimeoutMinutes))
		defer cancel()
	}

	var (
		outputs map[string]string
		err     error
	)
	switch {
	case step.Run != "":
		outputs, err = e.runScript(stepContext, step, ec, job, index, result.Name)
	case step.Uses != "":
		outputs, err = e.runAction(stepContext, step, ec, index, result.Name)
	default:
		err = errors.New("step has neither run nor uses")
	}
	if errors.Is(stepContext.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("step exceeded timeout-minutes (%v)", step.TimeoutMinutes)
	}

	result.Outputs = outputs
	if step.ID != "" && outputs != nil {
		ec.StepOutputs[step.ID] = outputs
	}

	var unsupportedErr *unsupportedError
	switch {
	case errors.As(err, &unsupportedErr):
		result.Unsupported = true
		result.Reason = ec.Redact(unsupportedErr.reason)
		if unsupportedErr.fail {
			result.Error = result.Reason
			return e.finishStep(ctx, ec, result, StatusFailure)
		}
		e.message(ctx, ec, index, result.Name, "skipped: "+result.Reason)
		return e.finishStep(ctx, ec, result, StatusSkipped)
	case err != nil:
		result.Error = ec.Redact(err.Error())
		if code, ok := sandbox.IsExitError(err); ok {
			result.ExitCode = code
		}
		return e.finishStep(ctx, ec, result, StatusFailure)
	default:
		result.ExitCode = 0
		return e.finishStep(ctx, ec, result, StatusSuccess)
	}
}

// skipStep records step as skipped without evaluating it.
func (e *Engine) skipStep(ctx context.Context, step *workflow.Step, ec *ExecutionContext, reason string) StepResult {
	index := ec.nextIndex
	ec.nextIndex++
	result := StepResult{
		Index:           index,
		ID:              step.ID,
		Name:            ec.Redact(step.DisplayName()),
		ExitCode:        -1,
		ContinueOnError: step.ContinueOnError,
		Reason:          reason,
		StartedAt:       e.clock.Now(),
	}
	return e.finishStep(ctx, ec, result, StatusSkipped)
}

func (e *Engine) finishStep(ctx context.Context, ec *ExecutionContext, result StepResult, status Status) StepResult {
	result.Status = status
	result.Duration = e.clock.Now().Sub(result.StartedAt)
	e.logger.Debug("step finished",
		"job", ec.JobID,
		"matrix", ec.MatrixLabel,
		"step", result.Name,
		"status", status,
		"duration", result.Duration,
	)
	finished := result
	e.emit(ctx, ec, Event{
		Kind:       EventStepFinished,
		Step:       result.Index,
		StepName:   result.Name,
		Status:     status,
		StepResult: &finished,
	})
	return result
}

// runSteps executes steps in order. After a step fails without
// continue-on-error the remaining steps are skipped, except those
// whose condition is always(). A cancelled context skips everything
// left. The returned error describes the first halting failure.
func (e *Engine) runSteps(ctx context.Context, steps []*workflow.Step, ec *ExecutionContext, job *workflow.Job) ([]StepResult, error) {
	results := make([]StepResult, 0, len(steps))
	var halted error
	for _, step := range steps {
		always := expression.ClassifyCondition(step.If) == expression.ConditionAlways
		switch {
		case ctx.Err() != nil:
			results = append(results, e.skipStep(ctx, step, ec, "run cancelled"))
			if halted == nil {
				halted = ctx.Err()
			}
		case halted != nil && !always:
			results = append(results, e.skipStep(ctx, step, ec, "an earlier step failed"))
		default:
			result := e.ExecuteStep(ctx, step, ec, job)
			results = append(results, result)
			if result.Status == StatusFailure && !result.ContinueOnError && halted == nil {
				halted = fmt.Errorf("step %q failed", result.Name)
			}
		}
	}
	return results, halted
}

// runScript runs a run: step.
func (e *Engine) runScript(ctx context.Context, step *workflow.Step, ec *ExecutionContext, job *workflow.Job, index int, name string) (map[string]string, error) {
	shell := e.defaultShell
	workingDirectory := ""
	for _, defaults := range []workflow.RunDefaults{workflowDefaults(ec), jobDefaults(job), {Shell: step.Shell, WorkingDirectory: step.WorkingDirectory}} {
		if defaults.Shell != "" {
			shell = defaults.Shell
		}
		if defaults.WorkingDirectory != "" {
			workingDirectory = defaults.WorkingDirectory
		}
	}

	declared := ec.DeclaredEnv(step.Env)
	expressionContext := ec.ExpressionContext()
	script := expression.Expand(step.Run, declared, expressionContext)
	dir := ec.WorkDir
	if workingDirectory != "" {
		dir = resolvePath(ec.WorkDir, expression.Expand(workingDirectory, declared, expressionContext))
	}

	scriptPath, err := writeScript(ec.TempDir, script, ScriptExtension(shell))
	if err != nil {
		return nil, err
	}
	defer os.Remove(scriptPath)

	command, err := ShellCommand(shell, scriptPath)
	if err != nil {
		return nil, err
	}
	return e.runWithFileCommands(ctx, ec, index, name, command, dir, step.Env, nil)
}

func writeScript(dir, script, extension string) (string, error) {
	file, err := os.CreateTemp(dir, "step-*"+extension)
	if err != nil {
		return "", fmt.Errorf("creating script file: %w", err)
	}
	path := file.Name()
	if _, err := file.WriteString(script); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("writing script file: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing script file: %w", err)
	}
	return path, nil
}

// runWithFileCommands runs command with fresh GITHUB_OUTPUT, GITHUB_ENV
// and GITHUB_PATH files and applies what the process wrote to them.
// overrides win over every other variable.
func (e *Engine) runWithFileCommands(ctx context.Context, ec *ExecutionContext, index int, name string, command []string, dir string, stepEnv, overrides map[string]string) (map[string]string, error) {
	files, err := newFileCommands(ec.TempDir)
	if err != nil {
		return nil, err
	}
	defer files.remove()

	top := files.vars()
	maps.Copy(top, overrides)
	invocation := sandbox.Invocation{
		Profile: ec.Profile,
		Command: command,
		Dir:     dir,
		Env:     stepEnvironment(ec, e.hostEnv, stepEnv, top),
	}
	runErr := e.runProcess(ctx, ec, index, name, invocation)
	outputs, applyErr := files.apply(ec)
	if runErr != nil {
		return outputs, runErr
	}
	return outputs, applyErr
}

// runProcess starts invocation and streams its output onto the event
// stream line by line until it exits.
func (e *Engine) runProcess(ctx context.Context, ec *ExecutionContext, index int, name string, invocation sandbox.Invocation) error {
	cmd, err := e.launcher.Command(ctx, invocation)
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", invocation.Command[0], err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.streamLines(ctx, ec, index, name, Stdout, stdout)
	}()
	go func() {
		defer wg.Done()
		e.streamLines(ctx, ec, index, name, Stderr, stderr)
	}()
	wg.Wait()

	return sandbox.WrapExit(cmd.Wait())
}

// streamLines emits each line read from reader. It always drains
// reader so the child never blocks on a full pipe.
func (e *Engine) streamLines(ctx context.Context, ec *ExecutionContext, index int, name string, stream Stream, reader io.Reader) {
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	for scanner.Scan() {
		e.emit(ctx, ec, Event{
			Kind:     EventStepOutput,
			Step:     index,
			StepName: name,
			Stream:   stream,
			Line:     ec.Redact(scanner.Text()),
		})
	}
	if err := scanner.Err(); err != nil {
		e.logger.Warn("discarding step output", "job", ec.JobID, "step", name, "stream", stream, "error", err)
		_, _ = io.Copy(io.Discard, reader)
	}
}

// emit stamps event with the time and job identity and sends it.
func (e *Engine) emit(ctx context.Context, ec *ExecutionContext, event Event) {
	event.Time = e.clock.Now()
	event.Job = ec.JobID
	event.Matrix = ec.MatrixLabel
	_ = ec.Events.emit(ctx, event)
}

// message emits an engine diagnostic for a step.
func (e *Engine) message(ctx context.Context, ec *ExecutionContext, index int, name, text string) {
	e.emit(ctx, ec, Event{Kind: EventMessage, Step: index, StepName: name, Line: ec.Redact(text)})
}

// fileCommands are the files a step writes GITHUB_OUTPUT, GITHUB_ENV
// and GITHUB_PATH commands to.
type fileCommands struct {
	dir    string
	output string
	env    string
	path   string
}

func newFileCommands(tempDir string) (*fileCommands, error) {
	dir, err := os.MkdirTemp(tempDir, "_file_commands-")
	if err != nil {
		return nil, fmt.Errorf("creating file command directory: %w", err)
	}
	files := &fileCommands{
		dir:    dir,
		output: filepath.Join(dir, "output"),
		env:    filepath.Join(dir, "env"),
		path:   filepath.Join(dir, "path"),
	}
	for _, name := range []string{files.output, files.env, files.path} {
		if err := os.WriteFile(name, nil, 0o644); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("creating file command file: %w", err)
		}
	}
	return files, nil
}

func (f *fileCommands) vars() map[string]string {
	return map[string]string{
		"GITHUB_OUTPUT": f.output,
		"GITHUB_ENV":    f.env,
		"GITHUB_PATH":   f.path,
	}
}

func (f *fileCommands) remove() {
	os.RemoveAll(f.dir)
}

// apply reads back the files: GITHUB_ENV entries join ec.RuntimeEnv,
// GITHUB_PATH entries are prepended to ec.PathAdditions, and the
// GITHUB_OUTPUT entries are returned.
func (f *fileCommands) apply(ec *ExecutionContext) (map[string]string, error) {
	data, err := readFileCommand(f.output)
	if err != nil {
		return nil, err
	}
	outputs, err := ParseOutputFile(data)
	if err != nil {
		return nil, fmt.Errorf("GITHUB_OUTPUT: %w", err)
	}

	data, err = readFileCommand(f.env)
	if err != nil {
		return outputs, err
	}
	env, err := ParseOutputFile(data)
	if err != nil {
		return outputs, fmt.Errorf("GITHUB_ENV: %w", err)
	}
	if ec.RuntimeEnv == nil {
		ec.RuntimeEnv = make(map[string]string)
	}
	maps.Copy(ec.RuntimeEnv, env)

	data, err = readFileCommand(f.path)
	if err != nil {
		return outputs, err
	}
	for _, entry := range ParsePathFile(data) {
		ec.PathAdditions = append([]string{entry}, ec.PathAdditions...)
	}
	return outputs, nil
}

func workflowDefaults(ec *ExecutionContext) workflow.RunDefaults {
	if ec.Workflow == nil {
		return workflow.RunDefaults{}
	}
	return ec.Workflow.Defaults.Run
}

func jobDefaults(job *workflow.Job) workflow.RunDefaults {
	if job == nil {
		return workflow.RunDefaults{}
	}
	return job.Defaults.Run
}

// resolvePath joins a relative path onto base.
func resolvePath(base, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(base, path)
}

func minutes(value float64) time.Duration {
	return time.Duration(value * float64(time.Minute))
}
