// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package run

import (
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"

	"github.com/localmost/localmost/lib/expression"
	"github.com/localmost/localmost/lib/workflow"
)

// parseAssignments splits repeated name=value flags. A later value for
// the same name wins.
func parseAssignments(flag string, values []string) (map[string]string, error) {
	result := make(map[string]string, len(values))
	for _, value := range values {
		name, assigned, found := strings.Cut(value, "=")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			return nil, fmt.Errorf("--%s %q: expected name=value", flag, value)
		}
		result[name] = assigned
	}
	return result, nil
}

// resolveInputs combines the declared input defaults of wf with the
// given values. Inputs are declared by on.workflow_dispatch or, for a
// workflow that is only callable, on.workflow_call. When wf declares
// inputs, unknown names and missing required inputs are errors.
// Declared boolean and number inputs are converted.
func resolveInputs(wf *workflow.Workflow, given map[string]string) (map[string]any, error) {
	var declared map[string]workflow.InputSpec
	switch {
	case wf.On.WorkflowDispatch != nil && len(wf.On.WorkflowDispatch.Inputs) > 0:
		declared = wf.On.WorkflowDispatch.Inputs
	case wf.On.WorkflowCall != nil:
		declared = wf.On.WorkflowCall.Inputs
	}

	inputs := make(map[string]any, len(declared)+len(given))
	if len(declared) == 0 {
		for name, value := range given {
			inputs[name] = value
		}
		return inputs, nil
	}

	var unknown, missing []string
	for name := range given {
		if _, ok := declared[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		slices.Sort(unknown)
		return nil, fmt.Errorf("unknown inputs %q (declared: %q)", unknown, slices.Sorted(maps.Keys(declared)))
	}

	for _, name := range slices.Sorted(maps.Keys(declared)) {
		spec := declared[name]
		text, ok := given[name]
		if !ok {
			switch {
			case spec.Default != nil:
				inputs[name] = spec.Default
			case spec.Required:
				missing = append(missing, name)
			}
			continue
		}
		value, err := convertInput(spec.Type, text)
		if err != nil {
			return nil, fmt.Errorf("input %s: %w", name, err)
		}
		inputs[name] = value
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required inputs %q (pass --input name=value)", missing)
	}
	return inputs, nil
}

func convertInput(kind, text string) (any, error) {
	switch kind {
	case "boolean":
		value, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("%q is not a boolean", text)
		}
		return value, nil
	case "number":
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", text)
		}
		return value, nil
	default:
		return text, nil
	}
}

// referencedSecrets returns the secret names wf and the local
// workflows it calls refer to.
func referencedSecrets(wf *workflow.Workflow) ([]string, error) {
	texts, err := workflowTexts(wf)
	if err != nil {
		return nil, err
	}
	return expression.SecretNames(texts...), nil
}

func workflowTexts(wf *workflow.Workflow) ([]string, error) {
	if wf.Path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(wf.Path)
	if err != nil {
		return nil, err
	}
	texts := []string{string(data)}

	root := workflow.FindRepositoryRoot(wf.Path)
	for _, id := range wf.Jobs.Keys() {
		job, _ := wf.Jobs.Get(id)
		if !job.IsReusableCall() {
			continue
		}
		path, err := workflow.ResolveReusableWorkflowPath(job.Uses, root)
		if err != nil {
			// Remote and malformed references are reported by the run.
			continue
		}
		called, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		texts = append(texts, string(called))
	}
	return texts, nil
}

// readEvent reads an event payload file. Comments and trailing commas
// are accepted.
func readEvent(path string) (map[string]any, string, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(absolute)
	if err != nil {
		return nil, "", fmt.Errorf("reading event payload: %w", err)
	}
	var event map[string]any
	if err := json.Unmarshal(jsonc.ToJSON(data), &event); err != nil {
		return nil, "", fmt.Errorf("parsing event payload %s: %w", path, err)
	}
	if event == nil {
		event = map[string]any{}
	}
	return event, absolute, nil
}

// readEnvFiles reads dotenv files in order; later files win.
func readEnvFiles(paths []string) (map[string]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	env := make(map[string]string)
	for _, path := range paths {
		values, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("reading env file %s: %w", path, err)
		}
		maps.Copy(env, values)
	}
	return env, nil
}

// eventName picks the event the run pretends to be triggered by.
func eventName(wf *workflow.Workflow, dispatched bool) string {
	if dispatched && wf.On.WorkflowDispatch != nil {
		return "workflow_dispatch"
	}
	for _, name := range wf.On.Events {
		if name != "workflow_call" {
			return name
		}
	}
	return "push"
}

// repositorySlug renders a repository identifier as owner/repo, or
// the directory name for repositories without a remote.
func repositorySlug(identifier string) string {
	if filepath.IsAbs(identifier) {
		return filepath.Base(identifier)
	}
	if _, rest, found := strings.Cut(identifier, "/"); found {
		return rest
	}
	return identifier
}
