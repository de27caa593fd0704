// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// WorkflowDirectory is where workflow files live, relative to the
// repository root.
const WorkflowDirectory = ".github/workflows"

// ResolveWorkflowPath finds the workflow file named by name. A name
// that is an existing file is used as is. Otherwise name is looked up
// in root's workflow directory, with and without a .yml or .yaml
// extension.
func ResolveWorkflowPath(root, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("a workflow name or path is required")
	}
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		return filepath.Abs(name)
	}

	directory := filepath.Join(root, WorkflowDirectory)
	candidates := []string{filepath.Join(directory, name)}
	if ext := filepath.Ext(name); ext != ".yml" && ext != ".yaml" {
		candidates = append(candidates,
			filepath.Join(directory, name+".yml"),
			filepath.Join(directory, name+".yaml"))
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	available, _ := listWorkflows(directory)
	if len(available) == 0 {
		return "", fmt.Errorf("workflow %q not found (no workflows in %s)", name, directory)
	}
	return "", fmt.Errorf("workflow %q not found in %s (available: %s)", name, directory, strings.Join(available, ", "))
}

func listWorkflows(directory string) ([]string, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yml" && ext != ".yaml") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ext))
	}
	return names, nil
}
