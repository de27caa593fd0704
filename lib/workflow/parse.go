// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyDocument is returned by Parse for documents that contain
// nothing but whitespace and comments.
var ErrEmptyDocument = errors.New("workflow document is empty")

// ParseError is a terminal structural error in a workflow document.
// Each issue names the offending field path.
type ParseError struct {
	// Source is the file the document came from, if known.
	Source string

	// Issues lists human-readable problems, each prefixed with the
	// field path it concerns (e.g. "jobs.build.steps[0]").
	Issues []string

	// Cause is the underlying typed error when a single check produced
	// the failure (for example a *CycleError).
	Cause error
}

func (e *ParseError) Unwrap() error { return e.Cause }

func (e *ParseError) Error() string {
	source := e.Source
	if source == "" {
		source = "workflow"
	}
	if len(e.Issues) == 1 {
		return fmt.Sprintf("%s: %s", source, e.Issues[0])
	}
	return fmt.Sprintf("%s is invalid:\n  %s", source, strings.Join(e.Issues, "\n  "))
}

// Parse decodes and validates a workflow document. sourcePath is used
// for error messages and as the default workflow name; it may be empty.
//
// The returned workflow has passed structural validation and its job
// graph is known to be acyclic with every needs: entry resolvable.
func Parse(content []byte, sourcePath string) (*Workflow, error) {
	if isBlankDocument(content) {
		if sourcePath != "" {
			return nil, fmt.Errorf("%s: %w", sourcePath, ErrEmptyDocument)
		}
		return nil, ErrEmptyDocument
	}

	var workflow Workflow
	if err := yaml.Unmarshal(content, &workflow); err != nil {
		return nil, &ParseError{Source: sourcePath, Issues: []string{err.Error()}}
	}
	workflow.Path = sourcePath
	if workflow.Name == "" && sourcePath != "" {
		workflow.Name = filepath.Base(sourcePath)
	}

	if issues := Validate(&workflow); len(issues) > 0 {
		return nil, &ParseError{Source: sourcePath, Issues: issues}
	}

	// Dependency errors are structural: refuse the document rather than
	// discovering the problem mid-run.
	if _, err := ComputeJobOrder(workflow.Jobs); err != nil {
		return nil, &ParseError{Source: sourcePath, Issues: []string{err.Error()}, Cause: err}
	}

	return &workflow, nil
}

// ReadFile reads and parses a workflow file.
func ReadFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading workflow %s: %w", path, err)
	}
	return Parse(data, path)
}

// isBlankDocument reports whether content has no YAML beyond
// whitespace and comment lines.
func isBlankDocument(content []byte) bool {
	for _, line := range bytes.Split(content, []byte("\n")) {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 || trimmed[0] == '#' || string(trimmed) == "---" {
			continue
		}
		return false
	}
	return true
}
