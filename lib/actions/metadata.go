// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package actions

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/localmost/localmost/lib/workflow"
)

// MetadataFileNames are the accepted action metadata file names, in
// lookup order.
var MetadataFileNames = []string{"action.yml", "action.yaml"}

// Metadata is a parsed action.yml.
type Metadata struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Inputs      map[string]Input  `yaml:"inputs,omitempty"`
	Outputs     map[string]Output `yaml:"outputs,omitempty"`
	Runs        Runs              `yaml:"runs"`
}

// Input declares one action input.
type Input struct {
	Description string `yaml:"description,omitempty"`
	Required    bool   `yaml:"required,omitempty"`
	Default     string `yaml:"default,omitempty"`
}

// Output declares one action output. Value is set for composite
// actions and usually references a nested step's output.
type Output struct {
	Description string `yaml:"description,omitempty"`
	Value       string `yaml:"value,omitempty"`
}

// Runs is the runs: block.
type Runs struct {
	Using string `yaml:"using"`

	// Node actions.
	Main string `yaml:"main,omitempty"`
	Pre  string `yaml:"pre,omitempty"`
	Post string `yaml:"post,omitempty"`

	// Docker actions.
	Image string `yaml:"image,omitempty"`

	// Composite actions.
	Steps []*workflow.Step `yaml:"steps,omitempty"`
}

// Runtime classifies runs.using.
type Runtime int

const (
	RuntimeUnknown Runtime = iota
	RuntimeNode
	RuntimeComposite
	RuntimeDocker
)

func (r Runtime) String() string {
	switch r {
	case RuntimeNode:
		return "node"
	case RuntimeComposite:
		return "composite"
	case RuntimeDocker:
		return "docker"
	default:
		return "unknown"
	}
}

// Runtime returns the runtime the action declares.
func (m *Metadata) Runtime() Runtime {
	using := strings.ToLower(strings.TrimSpace(m.Runs.Using))
	switch {
	case strings.HasPrefix(using, "node"):
		return RuntimeNode
	case using == "composite":
		return RuntimeComposite
	case using == "docker":
		return RuntimeDocker
	default:
		return RuntimeUnknown
	}
}

// InputDefaults returns the declared default of every input that has
// one.
func (m *Metadata) InputDefaults() map[string]string {
	defaults := make(map[string]string)
	for name, input := range m.Inputs {
		if input.Default != "" {
			defaults[name] = input.Default
		}
	}
	return defaults
}

// ParseMetadata decodes action metadata and checks the fields the
// declared runtime needs.
func ParseMetadata(data []byte, source string) (*Metadata, error) {
	var metadata Metadata
	if err := yaml.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", source, err)
	}

	switch metadata.Runtime() {
	case RuntimeNode:
		if metadata.Runs.Main == "" {
			return nil, fmt.Errorf("%s: runs.main is required for %s actions", source, metadata.Runs.Using)
		}
	case RuntimeComposite:
		for index, step := range metadata.Runs.Steps {
			if step == nil || (step.Run == "") == (step.Uses == "") {
				return nil, fmt.Errorf("%s: runs.steps[%d]: exactly one of run or uses is required", source, index)
			}
		}
	case RuntimeDocker:
	default:
		return nil, fmt.Errorf("%s: unsupported runs.using %q", source, metadata.Runs.Using)
	}
	return &metadata, nil
}

// ErrNoMetadata is returned by ReadMetadata when the directory holds no
// action metadata file.
var ErrNoMetadata = errors.New("no action.yml or action.yaml")

// ReadMetadata reads and parses the metadata file in dir.
func ReadMetadata(dir string) (*Metadata, error) {
	for _, name := range MetadataFileNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading action metadata: %w", err)
		}
		return ParseMetadata(data, path)
	}
	return nil, fmt.Errorf("%s: %w", dir, ErrNoMetadata)
}
