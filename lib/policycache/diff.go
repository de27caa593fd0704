// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package policycache

import (
	"sort"

	"github.com/localmost/localmost/lib/policy"
)

// Change is the direction of one PolicyDiff.
type Change string

const (
	Added   Change = "added"
	Removed Change = "removed"
)

// PolicyDiff is one value present on only one side of a comparison.
type PolicyDiff struct {
	// Path names the list, e.g. "shared.network.allow" or
	// "workflows.ci.yml.secrets.require".
	Path   string `json:"path"`
	Change Change `json:"change"`
	Value  string `json:"value"`
}

// Diff compares two policy documents section by section. Either side
// may be nil, which compares as an empty document. The result is
// sorted by path, then value.
func Diff(previous, current *policy.Document) []PolicyDiff {
	var diffs []PolicyDiff
	diffs = append(diffs, DiffPolicies("shared", sharedOf(previous), sharedOf(current))...)

	names := map[string]struct{}{}
	for _, document := range []*policy.Document{previous, current} {
		if document == nil {
			continue
		}
		for name := range document.Workflows {
			names[name] = struct{}{}
		}
	}
	for name := range names {
		prefix := "workflows." + name
		before, after := workflowOf(previous, name), workflowOf(current, name)
		diffs = append(diffs, DiffPolicies(prefix, &before.SandboxPolicy, &after.SandboxPolicy)...)
		diffs = append(diffs, diffList(prefix+".secrets.require", requiredOf(before), requiredOf(after))...)
	}

	sort.Slice(diffs, func(i, j int) bool {
		if diffs[i].Path != diffs[j].Path {
			return diffs[i].Path < diffs[j].Path
		}
		if diffs[i].Value != diffs[j].Value {
			return diffs[i].Value < diffs[j].Value
		}
		return diffs[i].Change < diffs[j].Change
	})
	return diffs
}

// DiffPolicies compares the seven lists of two sandbox policies, naming
// each under prefix. nil policies and nil sections compare as empty.
func DiffPolicies(prefix string, previous, current *policy.SandboxPolicy) []PolicyDiff {
	before, after := sectionsOf(previous), sectionsOf(current)
	var diffs []PolicyDiff
	for _, name := range sectionNames {
		diffs = append(diffs, diffList(prefix+"."+name, before[name], after[name])...)
	}
	return diffs
}

var sectionNames = []string{
	"network.allow",
	"network.deny",
	"filesystem.read",
	"filesystem.write",
	"filesystem.deny",
	"env.allow",
	"env.deny",
}

func sectionsOf(p *policy.SandboxPolicy) map[string][]string {
	sections := map[string][]string{}
	if p == nil {
		return sections
	}
	if p.Network != nil {
		sections["network.allow"] = p.Network.Allow
		sections["network.deny"] = p.Network.Deny
	}
	if p.Filesystem != nil {
		sections["filesystem.read"] = p.Filesystem.Read
		sections["filesystem.write"] = p.Filesystem.Write
		sections["filesystem.deny"] = p.Filesystem.Deny
	}
	if p.Env != nil {
		sections["env.allow"] = p.Env.Allow
		sections["env.deny"] = p.Env.Deny
	}
	return sections
}

// diffList is a plain set difference: values only in current are
// added, values only in previous are removed.
func diffList(path string, previous, current []string) []PolicyDiff {
	before, after := toSet(previous), toSet(current)
	var diffs []PolicyDiff
	for value := range after {
		if _, ok := before[value]; !ok {
			diffs = append(diffs, PolicyDiff{Path: path, Change: Added, Value: value})
		}
	}
	for value := range before {
		if _, ok := after[value]; !ok {
			diffs = append(diffs, PolicyDiff{Path: path, Change: Removed, Value: value})
		}
	}
	return diffs
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}

func sharedOf(document *policy.Document) *policy.SandboxPolicy {
	if document == nil {
		return nil
	}
	return document.Shared
}

func workflowOf(document *policy.Document, name string) *policy.WorkflowPolicy {
	if document != nil {
		if override := document.Workflows[name]; override != nil {
			return override
		}
	}
	return &policy.WorkflowPolicy{}
}

func requiredOf(override *policy.WorkflowPolicy) []string {
	if override.Secrets == nil {
		return nil
	}
	return override.Secrets.Require
}
