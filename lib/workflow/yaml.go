// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// JobMap is an ordered map of job id → job. Order is the order in which
// the jobs are declared in the document.
type JobMap struct {
	keys []string
	jobs map[string]*Job
}

// NewJobMap builds a JobMap from jobs in the given order. Each job's ID
// must be set. Intended for callers that construct workflows in code.
func NewJobMap(jobs ...*Job) *JobMap {
	m := &JobMap{jobs: make(map[string]*Job, len(jobs))}
	for _, job := range jobs {
		m.Set(job.ID, job)
	}
	return m
}

// Keys returns the job ids in declaration order. The returned slice is
// a copy.
func (m *JobMap) Keys() []string {
	if m == nil {
		return nil
	}
	keys := make([]string, len(m.keys))
	copy(keys, m.keys)
	return keys
}

// Get returns the job with the given id.
func (m *JobMap) Get(id string) (*Job, bool) {
	if m == nil {
		return nil, false
	}
	job, ok := m.jobs[id]
	return job, ok
}

// Len returns the number of jobs.
func (m *JobMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Set adds or replaces a job. New ids are appended to the order.
func (m *JobMap) Set(id string, job *Job) {
	if m.jobs == nil {
		m.jobs = make(map[string]*Job)
	}
	if _, exists := m.jobs[id]; !exists {
		m.keys = append(m.keys, id)
	}
	job.ID = id
	m.jobs[id] = job
}

// UnmarshalYAML decodes a jobs: mapping, preserving key order.
func (m *JobMap) UnmarshalYAML(node *yaml.Node) error {
	if isNull(node) {
		*m = JobMap{jobs: map[string]*Job{}}
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: jobs must be a mapping of job id to job", node.Line)
	}
	result := JobMap{jobs: make(map[string]*Job, len(node.Content)/2)}
	for index := 0; index+1 < len(node.Content); index += 2 {
		keyNode, valueNode := node.Content[index], node.Content[index+1]
		id := keyNode.Value
		if _, duplicate := result.jobs[id]; duplicate {
			return fmt.Errorf("line %d: duplicate job id %q", keyNode.Line, id)
		}
		job := &Job{}
		if !isNull(valueNode) {
			if err := valueNode.Decode(job); err != nil {
				return fmt.Errorf("jobs.%s: %w", id, err)
			}
		}
		result.Set(id, job)
	}
	*m = result
	return nil
}

// StringList accepts either a single scalar or a sequence of scalars,
// as used by runs-on: and needs:.
type StringList []string

// UnmarshalYAML decodes a scalar or sequence of scalars.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if isNull(node) {
			*l = nil
			return nil
		}
		*l = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		values := make(StringList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected a string, got a %s", item.Line, kindName(item))
			}
			values = append(values, item.Value)
		}
		*l = values
		return nil
	case yaml.MappingNode:
		// runs-on: {group: ..., labels: ...}
		var grouped struct {
			Group  string     `yaml:"group"`
			Labels StringList `yaml:"labels"`
		}
		if err := node.Decode(&grouped); err != nil {
			return err
		}
		values := StringList{}
		if grouped.Group != "" {
			values = append(values, grouped.Group)
		}
		*l = append(values, grouped.Labels...)
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or list of strings", node.Line)
	}
}

// StringMap is an env:/with: mapping. Scalar values of any YAML type
// are kept as their literal text (true stays "true", 3 stays "3").
type StringMap map[string]string

// UnmarshalYAML decodes a mapping of scalars.
func (m *StringMap) UnmarshalYAML(node *yaml.Node) error {
	if isNull(node) {
		*m = nil
		return nil
	}
	if node.Kind == yaml.ScalarNode && isExpression(node.Value) {
		return fmt.Errorf("line %d: expression-valued mappings (%s) are not supported", node.Line, node.Value)
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping, got a %s", node.Line, kindName(node))
	}
	result := make(StringMap, len(node.Content)/2)
	for index := 0; index+1 < len(node.Content); index += 2 {
		keyNode, valueNode := node.Content[index], node.Content[index+1]
		switch {
		case isNull(valueNode):
			result[keyNode.Value] = ""
		case valueNode.Kind == yaml.ScalarNode:
			result[keyNode.Value] = valueNode.Value
		default:
			return fmt.Errorf("line %d: value of %q must be a scalar, got a %s", valueNode.Line, keyNode.Value, kindName(valueNode))
		}
	}
	*m = result
	return nil
}

// UnmarshalYAML decodes secrets: inherit or a mapping.
func (s *JobSecrets) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		if node.Value == "inherit" {
			*s = JobSecrets{Inherit: true}
			return nil
		}
		if isNull(node) {
			*s = JobSecrets{}
			return nil
		}
		return fmt.Errorf("line %d: secrets must be \"inherit\" or a mapping", node.Line)
	}
	var values StringMap
	if err := node.Decode(&values); err != nil {
		return err
	}
	*s = JobSecrets{Values: values}
	return nil
}

// UnmarshalYAML decodes strategy.matrix, keeping dimension order.
func (m *Matrix) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*m = Matrix{Expression: node.Value}
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: matrix must be a mapping", node.Line)
	}
	var result Matrix
	for index := 0; index+1 < len(node.Content); index += 2 {
		keyNode, valueNode := node.Content[index], node.Content[index+1]
		switch keyNode.Value {
		case "include":
			if err := valueNode.Decode(&result.Include); err != nil {
				return fmt.Errorf("matrix.include: %w", err)
			}
		case "exclude":
			if err := valueNode.Decode(&result.Exclude); err != nil {
				return fmt.Errorf("matrix.exclude: %w", err)
			}
		default:
			if valueNode.Kind == yaml.ScalarNode {
				// A dimension computed by an expression.
				result.Expression = valueNode.Value
				continue
			}
			var values []any
			if err := valueNode.Decode(&values); err != nil {
				return fmt.Errorf("matrix.%s: %w", keyNode.Value, err)
			}
			result.Dimensions = append(result.Dimensions, Dimension{Name: keyNode.Value, Values: values})
		}
	}
	*m = result
	return nil
}

// UnmarshalYAML decodes on: in any of its three forms: a single event
// name, a list of event names, or a mapping of event name → config.
func (t *Trigger) UnmarshalYAML(node *yaml.Node) error {
	var result Trigger
	switch node.Kind {
	case yaml.ScalarNode:
		if !isNull(node) {
			result.Events = []string{node.Value}
		}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			result.Events = append(result.Events, item.Value)
		}
	case yaml.MappingNode:
		for index := 0; index+1 < len(node.Content); index += 2 {
			keyNode, valueNode := node.Content[index], node.Content[index+1]
			result.Events = append(result.Events, keyNode.Value)
			switch keyNode.Value {
			case "workflow_call":
				call := &WorkflowCall{}
				if !isNull(valueNode) {
					if err := valueNode.Decode(call); err != nil {
						return fmt.Errorf("on.workflow_call: %w", err)
					}
				}
				result.WorkflowCall = call
			case "workflow_dispatch":
				dispatch := &WorkflowDispatch{}
				if !isNull(valueNode) {
					if err := valueNode.Decode(dispatch); err != nil {
						return fmt.Errorf("on.workflow_dispatch: %w", err)
					}
				}
				result.WorkflowDispatch = dispatch
			}
		}
	default:
		return fmt.Errorf("line %d: on must be an event name, a list, or a mapping", node.Line)
	}
	*t = result
	return nil
}

// HasEvent reports whether the trigger declares the named event.
func (t Trigger) HasEvent(name string) bool {
	for _, event := range t.Events {
		if event == name {
			return true
		}
	}
	return false
}

func isNull(node *yaml.Node) bool {
	return node == nil || (node.Kind == yaml.ScalarNode && node.Tag == "!!null")
}

func isExpression(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "${{") && strings.HasSuffix(trimmed, "}}")
}

func kindName(node *yaml.Node) string {
	switch node.Kind {
	case yaml.MappingNode:
		return "mapping"
	case yaml.SequenceNode:
		return "list"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return "document"
	}
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if index := strings.IndexByte(text, '\n'); index >= 0 {
		return text[:index]
	}
	return text
}
