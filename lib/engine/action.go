// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/localmost/localmost/lib/actions"
	"github.com/localmost/localmost/lib/expression"
	"github.com/localmost/localmost/lib/workflow"
)

// runAction runs a uses: step.
func (e *Engine) runAction(ctx context.Context, step *workflow.Step, ec *ExecutionContext, index int, name string) (map[string]string, error) {
	reference := actions.Classify(step.Uses)
	with := expression.ExpandMap(step.With, ec.DeclaredEnv(step.Env), ec.ExpressionContext())
	call := actionCall{step: step, index: index, name: name, with: with}

	switch reference.Kind {
	case actions.KindCheckout:
		return nil, e.checkout(ctx, ec, call)
	case actions.KindCache:
		return e.restoreCache(ctx, ec, call, true)
	case actions.KindCacheRestore:
		return e.restoreCache(ctx, ec, call, false)
	case actions.KindCacheSave:
		return nil, e.saveCache(ctx, ec, call)
	case actions.KindUploadArtifact:
		return e.uploadArtifact(ctx, ec, call)
	case actions.KindDownloadArtifact:
		return e.downloadArtifact(ctx, ec, call)
	case actions.KindLocal:
		return e.runActionDir(ctx, ec, call, resolvePath(ec.WorkDir, reference.Local))
	case actions.KindDocker:
		return nil, &unsupportedError{reason: fmt.Sprintf("container actions are not supported: %s", reference.Raw), fail: true}
	case actions.KindRemote:
		if e.actions == nil {
			return nil, fmt.Errorf("cannot fetch %s: no action cache is configured", reference.Raw)
		}
		dir, err := e.actions.Resolve(ctx, reference)
		if err != nil {
			return nil, err
		}
		return e.runActionDir(ctx, ec, call, dir)
	default:
		return nil, unsupported("unrecognized action reference %q", step.Uses)
	}
}

// actionCall is one invocation of an action.
type actionCall struct {
	step  *workflow.Step
	index int
	name  string
	with  map[string]string
}

// runActionDir runs the action whose metadata lives in dir.
func (e *Engine) runActionDir(ctx context.Context, ec *ExecutionContext, call actionCall, dir string) (map[string]string, error) {
	metadata, err := actions.ReadMetadata(dir)
	if err != nil {
		return nil, err
	}
	inputs := e.actionInputs(ctx, ec, call, metadata)

	switch metadata.Runtime() {
	case actions.RuntimeNode:
		return e.runNodeAction(ctx, ec, call, dir, metadata, inputs)
	case actions.RuntimeComposite:
		return e.runCompositeAction(ctx, ec, call, dir, metadata, inputs)
	case actions.RuntimeDocker:
		return nil, &unsupportedError{reason: fmt.Sprintf("container actions are not supported: %s", call.step.Uses), fail: true}
	default:
		return nil, unsupported("action %s uses unsupported runtime %q", call.step.Uses, metadata.Runs.Using)
	}
}

// actionInputs merges the step's with: values over the action's
// declared defaults. Defaults are expanded, since they commonly
// reference github.* values.
func (e *Engine) actionInputs(ctx context.Context, ec *ExecutionContext, call actionCall, metadata *actions.Metadata) map[string]string {
	inputs := expression.ExpandMap(metadata.InputDefaults(), ec.DeclaredEnv(call.step.Env), ec.ExpressionContext())
	if inputs == nil {
		inputs = make(map[string]string)
	}
	maps.Copy(inputs, call.with)

	var missing []string
	for name, input := range metadata.Inputs {
		if _, ok := inputs[name]; !ok && input.Required {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		e.message(ctx, ec, call.index, call.name, "required inputs not provided: "+strings.Join(missing, ", "))
	}
	return inputs
}

// inputEnv exposes action inputs as INPUT_<NAME> variables, the name
// upper-cased with spaces replaced by underscores.
func inputEnv(inputs map[string]string) map[string]string {
	env := make(map[string]string, len(inputs))
	for name, value := range inputs {
		env["INPUT_"+strings.ToUpper(strings.ReplaceAll(name, " ", "_"))] = value
	}
	return env
}

// runNodeAction runs runs.main with node, after runs.pre when set.
// runs.post is scheduled as a post step.
func (e *Engine) runNodeAction(ctx context.Context, ec *ExecutionContext, call actionCall, dir string, metadata *actions.Metadata, inputs map[string]string) (map[string]string, error) {
	overrides := inputEnv(inputs)
	overrides["GITHUB_ACTION_PATH"] = dir

	run := func(ctx context.Context, script string) (map[string]string, error) {
		command := []string{"node", filepath.Join(dir, script)}
		return e.runWithFileCommands(ctx, ec, call.index, call.name, command, ec.WorkDir, call.step.Env, overrides)
	}

	if metadata.Runs.Pre != "" {
		if _, err := run(ctx, metadata.Runs.Pre); err != nil {
			return nil, fmt.Errorf("pre: %w", err)
		}
	}
	outputs, err := run(ctx, metadata.Runs.Main)
	if err == nil && metadata.Runs.Post != "" {
		ec.postSteps = append(ec.postSteps, postStep{
			name: "Post " + call.name,
			run: func(ctx context.Context) error {
				_, err := run(ctx, metadata.Runs.Post)
				return err
			},
		})
	}
	return outputs, err
}

// runCompositeAction runs the nested steps of a composite action in a
// derived context. Step ids inside the action resolve only against
// the action's own steps.
func (e *Engine) runCompositeAction(ctx context.Context, ec *ExecutionContext, call actionCall, dir string, metadata *actions.Metadata, inputs map[string]string) (map[string]string, error) {
	if ec.depth >= MaxActionDepth {
		return nil, fmt.Errorf("composite actions nested deeper than %d", MaxActionDepth)
	}

	actionInputs := make(map[string]any, len(inputs))
	for name, value := range inputs {
		actionInputs[name] = value
	}
	child := ec.derive(dir, actionInputs)
	if len(call.step.Env) > 0 {
		child.JobEnv = maps.Clone(ec.JobEnv)
		if child.JobEnv == nil {
			child.JobEnv = make(map[string]string)
		}
		maps.Copy(child.JobEnv, ec.DeclaredEnv(call.step.Env))
	}

	_, halted := e.runSteps(ctx, metadata.Runs.Steps, child, nil)
	ec.absorb(child)

	declared := make(map[string]string, len(metadata.Outputs))
	for name, output := range metadata.Outputs {
		declared[name] = output.Value
	}
	outputs := extractOutputs(declared, child)
	if halted != nil {
		return outputs, fmt.Errorf("composite action %s: %w", call.step.Uses, halted)
	}
	return outputs, nil
}

// extractOutputs evaluates declared output expressions against ec.
// An output that is a single reference to a value never produced is
// omitted.
func extractOutputs(declared map[string]string, ec *ExecutionContext) map[string]string {
	outputs := make(map[string]string, len(declared))
	if len(declared) == 0 {
		return outputs
	}
	env := ec.DeclaredEnv(nil)
	expressionContext := ec.ExpressionContext()
	names := slices.Sorted(maps.Keys(declared))
	for _, name := range names {
		source := declared[name]
		if value, found := expression.Lookup(source, env, expressionContext); found {
			outputs[name] = value
			continue
		}
		if !singlePlaceholder(source) {
			outputs[name] = expression.Expand(source, env, expressionContext)
		}
	}
	return outputs
}

// singlePlaceholder reports whether text is exactly one ${{ }}.
func singlePlaceholder(text string) bool {
	trimmed := strings.TrimSpace(text)
	return strings.HasPrefix(trimmed, "${{") && strings.HasSuffix(trimmed, "}}") &&
		strings.Count(trimmed, "${{") == 1
}
