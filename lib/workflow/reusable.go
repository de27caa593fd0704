// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// UnsupportedError reports a feature that is deliberately not run
// locally. Callers surface it as a skip with Reason, distinct from a
// failure.
type UnsupportedError struct {
	Feature string
	Reason  string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s is not supported: %s", e.Feature, e.Reason)
}

// ResolveReusableWorkflowPath resolves the uses: reference of a
// reusable-workflow call. Local references ("./.github/workflows/x.yml",
// optionally with an "@ref" suffix, which is ignored) resolve relative
// to repoRoot. Every other reference returns an *UnsupportedError.
func ResolveReusableWorkflowPath(uses, repoRoot string) (string, error) {
	reference := strings.TrimSpace(uses)
	if !strings.HasPrefix(reference, "./") {
		return "", &UnsupportedError{
			Feature: fmt.Sprintf("reusable workflow %q", uses),
			Reason:  "only local references (./path/to/workflow.yml) can be run; remote workflows are not fetched",
		}
	}
	if at := strings.LastIndexByte(reference, '@'); at >= 0 {
		reference = reference[:at]
	}

	resolved := filepath.Join(repoRoot, filepath.FromSlash(reference))
	relative, err := filepath.Rel(repoRoot, resolved)
	if err != nil || relative == ".." || strings.HasPrefix(relative, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("reusable workflow %q escapes the repository root", uses)
	}
	return resolved, nil
}

// ResolveReusableWorkflowInputs computes the inputs context of a
// reusable-workflow call. For each declared input the caller's with:
// value wins, then the declared default. A required input with neither
// is an error. Values passed for undeclared inputs are an error too,
// since a typo would otherwise vanish silently.
func ResolveReusableWorkflowInputs(call *WorkflowCall, with map[string]any) (map[string]any, error) {
	inputs := make(map[string]any)
	var declared map[string]InputSpec
	if call != nil {
		declared = call.Inputs
	}

	var missing []string
	for name, spec := range declared {
		if value, ok := with[name]; ok {
			inputs[name] = value
			continue
		}
		if spec.Default != nil {
			inputs[name] = spec.Default
			continue
		}
		if spec.Required {
			missing = append(missing, name)
		}
	}

	var undeclared []string
	for name := range with {
		if _, ok := declared[name]; !ok {
			undeclared = append(undeclared, name)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("required inputs not provided: %s", strings.Join(missing, ", "))
	}
	if len(undeclared) > 0 {
		sort.Strings(undeclared)
		return nil, fmt.Errorf("inputs not declared by the called workflow: %s", strings.Join(undeclared, ", "))
	}
	return inputs, nil
}

// FindRepositoryRoot returns the repository root for a workflow file:
// the nearest ancestor containing .git, else the directory above
// .github/workflows, else the file's own directory.
func FindRepositoryRoot(workflowPath string) string {
	absolute, err := filepath.Abs(workflowPath)
	if err != nil {
		absolute = workflowPath
	}
	start := filepath.Dir(absolute)

	for directory := start; ; {
		if _, err := os.Stat(filepath.Join(directory, ".git")); err == nil {
			return directory
		}
		parent := filepath.Dir(directory)
		if parent == directory {
			break
		}
		directory = parent
	}

	if filepath.Base(start) == "workflows" && filepath.Base(filepath.Dir(start)) == ".github" {
		return filepath.Dir(filepath.Dir(start))
	}
	return start
}
