// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DocumentFileName is the name of the policy document at a repository
// root.
const DocumentFileName = ".localmostrc"

// CurrentVersion is the only document version this package reads.
const CurrentVersion = 1

// Document is a parsed .localmostrc file.
type Document struct {
	Version int `yaml:"version" json:"version"`

	// Shared applies to every workflow in the repository.
	Shared *SandboxPolicy `yaml:"shared,omitempty" json:"shared,omitempty"`

	// Workflows holds per-workflow overrides keyed by workflow name.
	// An override is merged with Shared, never replacing it.
	Workflows map[string]*WorkflowPolicy `yaml:"workflows,omitempty" json:"workflows,omitempty"`
}

// WorkflowPolicy is a per-workflow override.
type WorkflowPolicy struct {
	SandboxPolicy `yaml:",inline" json:"policy"`

	Secrets *SecretsPolicy `yaml:"secrets,omitempty" json:"secrets,omitempty"`
}

// SecretsPolicy declares the secrets a workflow needs. Runs fail before
// starting when a required secret cannot be resolved.
type SecretsPolicy struct {
	Require []string `yaml:"require,omitempty" json:"require,omitempty"`
}

// DocumentError lists every problem found in a policy document, each
// qualified by the field path it concerns.
type DocumentError struct {
	Source string
	Issues []string
}

func (e *DocumentError) Error() string {
	source := e.Source
	if source == "" {
		source = DocumentFileName
	}
	if len(e.Issues) == 1 {
		return fmt.Sprintf("%s: %s", source, e.Issues[0])
	}
	return fmt.Sprintf("%s is invalid:\n  %s", source, strings.Join(e.Issues, "\n  "))
}

// ErrNoDocument is returned by FindDocument when the repository has no
// policy document.
var ErrNoDocument = errors.New("no " + DocumentFileName + " found")

// ParseDocument decodes and validates a policy document. Returns
// non-fatal warnings (unknown keys, unsupported version numbers)
// alongside the document. Structural problems are returned together as
// a *DocumentError.
func ParseDocument(data []byte) (*Document, []string, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, nil, &DocumentError{Issues: []string{err.Error()}}
	}

	parser := &documentParser{}
	document := parser.parse(&root)
	if len(parser.issues) > 0 {
		return nil, parser.warnings, &DocumentError{Issues: parser.issues}
	}
	return document, parser.warnings, nil
}

// ReadDocument reads and parses a policy document file.
func ReadDocument(path string) (*Document, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading policy document: %w", err)
	}
	document, warnings, err := ParseDocument(data)
	var documentError *DocumentError
	if errors.As(err, &documentError) {
		documentError.Source = path
	}
	return document, warnings, err
}

// FindDocument returns the path of the policy document at repoRoot,
// or ErrNoDocument.
func FindDocument(repoRoot string) (string, error) {
	path := filepath.Join(repoRoot, DocumentFileName)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", ErrNoDocument
	}
	if err != nil {
		return "", fmt.Errorf("checking %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}
	return path, nil
}

// MarshalDocument renders a document as YAML with stable ordering.
func MarshalDocument(document *Document) ([]byte, error) {
	return yaml.Marshal(document)
}

// PolicyFor returns the effective policy for a workflow: the shared
// policy merged with the workflow's override. Returns nil when neither
// exists.
func (d *Document) PolicyFor(workflowName string) *SandboxPolicy {
	if d == nil {
		return nil
	}
	var override *SandboxPolicy
	if workflow, ok := d.Workflows[workflowName]; ok && workflow != nil {
		override = &workflow.SandboxPolicy
	}
	return Merge(d.Shared, override)
}

// RequiredSecrets returns the secrets the workflow's override requires.
func (d *Document) RequiredSecrets(workflowName string) []string {
	if d == nil {
		return nil
	}
	workflow, ok := d.Workflows[workflowName]
	if !ok || workflow == nil || workflow.Secrets == nil {
		return nil
	}
	return append([]string(nil), workflow.Secrets.Require...)
}

// WorkflowNames returns the names of workflows with overrides, sorted.
func (d *Document) WorkflowNames() []string {
	if d == nil {
		return nil
	}
	names := make([]string, 0, len(d.Workflows))
	for name := range d.Workflows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// documentParser walks the YAML node tree so that every problem can be
// reported with its field path instead of stopping at the first.
type documentParser struct {
	issues   []string
	warnings []string
}

func (p *documentParser) fail(format string, args ...any) {
	p.issues = append(p.issues, fmt.Sprintf(format, args...))
}

func (p *documentParser) warn(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

func (p *documentParser) parse(root *yaml.Node) *Document {
	document := &Document{}
	node := root
	if node.Kind == 0 {
		p.fail("version is required")
		return nil
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			p.fail("version is required")
			return nil
		}
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		p.fail("document must be a mapping")
		return nil
	}

	sawVersion := false
	eachPair(node, func(key string, value *yaml.Node) {
		switch key {
		case "version":
			sawVersion = true
			version, err := strconv.Atoi(value.Value)
			if value.Kind != yaml.ScalarNode || err != nil {
				p.fail("version must be an integer")
				return
			}
			document.Version = version
			if version != CurrentVersion {
				p.warn("version %d is not supported; reading the document as version %d", version, CurrentVersion)
			}
		case "shared":
			document.Shared = p.policy(value, "shared")
		case "workflows":
			document.Workflows = p.workflows(value)
		default:
			p.warn("unknown key %q ignored", key)
		}
	})
	if !sawVersion {
		p.fail("version is required")
	}
	return document
}

func (p *documentParser) workflows(node *yaml.Node) map[string]*WorkflowPolicy {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		p.fail("workflows must be a mapping of workflow name to policy")
		return nil
	}
	result := make(map[string]*WorkflowPolicy)
	eachPair(node, func(name string, value *yaml.Node) {
		path := "workflows." + name
		workflow := &WorkflowPolicy{}
		if policy := p.policyFields(value, path, func(key string, field *yaml.Node) bool {
			if key != "secrets" {
				return false
			}
			workflow.Secrets = p.secrets(field, path+".secrets")
			return true
		}); policy != nil {
			workflow.SandboxPolicy = *policy
		}
		result[name] = workflow
	})
	return result
}

func (p *documentParser) policy(node *yaml.Node, path string) *SandboxPolicy {
	return p.policyFields(node, path, nil)
}

// policyFields decodes the network/filesystem/env sections of node.
// extra handles additional keys; it returns false for keys it does not
// recognize.
func (p *documentParser) policyFields(node *yaml.Node, path string, extra func(string, *yaml.Node) bool) *SandboxPolicy {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		p.fail("%s must be a mapping", path)
		return nil
	}
	result := &SandboxPolicy{}
	eachPair(node, func(key string, value *yaml.Node) {
		fieldPath := path + "." + key
		switch key {
		case "network":
			if p.section(value, fieldPath) {
				result.Network = &NetworkPolicy{}
				p.lists(value, fieldPath, map[string]*[]string{
					"allow": &result.Network.Allow,
					"deny":  &result.Network.Deny,
				})
			}
		case "filesystem":
			if p.section(value, fieldPath) {
				result.Filesystem = &FilesystemPolicy{}
				p.lists(value, fieldPath, map[string]*[]string{
					"read":  &result.Filesystem.Read,
					"write": &result.Filesystem.Write,
					"deny":  &result.Filesystem.Deny,
				})
			}
		case "env":
			if p.section(value, fieldPath) {
				result.Env = &EnvPolicy{}
				p.lists(value, fieldPath, map[string]*[]string{
					"allow": &result.Env.Allow,
					"deny":  &result.Env.Deny,
				})
			}
		default:
			if extra == nil || !extra(key, value) {
				p.warn("unknown key %s ignored", fieldPath)
			}
		}
	})
	return result
}

// section reports whether node is a non-null mapping, recording an
// issue when it is something else.
func (p *documentParser) section(node *yaml.Node, path string) bool {
	if isNull(node) {
		return false
	}
	if node.Kind != yaml.MappingNode {
		p.fail("%s must be a mapping", path)
		return false
	}
	return true
}

func (p *documentParser) lists(node *yaml.Node, path string, targets map[string]*[]string) {
	eachPair(node, func(key string, value *yaml.Node) {
		target, ok := targets[key]
		if !ok {
			p.warn("unknown key %s.%s ignored", path, key)
			return
		}
		*target = p.stringList(value, path+"."+key)
	})
}

func (p *documentParser) stringList(node *yaml.Node, path string) []string {
	if isNull(node) {
		return nil
	}
	if node.Kind != yaml.SequenceNode {
		p.fail("%s must be an array", path)
		return nil
	}
	var values []string
	for index, item := range node.Content {
		if item.Kind != yaml.ScalarNode || isNull(item) {
			p.fail("%s[%d] must be a string", path, index)
			continue
		}
		if strings.TrimSpace(item.Value) == "" {
			p.fail("%s[%d] must not be empty", path, index)
			continue
		}
		values = append(values, item.Value)
	}
	return Union(values, nil)
}

func (p *documentParser) secrets(node *yaml.Node, path string) *SecretsPolicy {
	if !p.section(node, path) {
		return nil
	}
	result := &SecretsPolicy{}
	eachPair(node, func(key string, value *yaml.Node) {
		if key != "require" {
			p.warn("unknown key %s.%s ignored", path, key)
			return
		}
		result.Require = p.stringList(value, path+".require")
	})
	return result
}

func eachPair(node *yaml.Node, visit func(key string, value *yaml.Node)) {
	for index := 0; index+1 < len(node.Content); index += 2 {
		visit(node.Content[index].Value, node.Content[index+1])
	}
}

func isNull(node *yaml.Node) bool {
	return node == nil || (node.Kind == yaml.ScalarNode && node.Tag == "!!null")
}
