// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy defines the sandbox policy data model shared by the
// profile compiler, the policy cache, and the .localmostrc document.
//
// A policy is a set of allow and deny lists for network hosts,
// filesystem paths, and environment variable names. Every list is a
// set: order carries no meaning beyond stable output, and duplicates
// are dropped. An absent section (nil pointer) is not an empty deny
// list; it means "no opinion" and is the identity for [Merge].
package policy

// SandboxPolicy is the full policy applied to one workflow run.
type SandboxPolicy struct {
	Network    *NetworkPolicy    `yaml:"network,omitempty" json:"network,omitempty"`
	Filesystem *FilesystemPolicy `yaml:"filesystem,omitempty" json:"filesystem,omitempty"`
	Env        *EnvPolicy        `yaml:"env,omitempty" json:"env,omitempty"`
}

// NetworkPolicy lists hosts a run may or may not reach. Entries are
// exact domains ("registry.npmjs.org") or wildcards ("*.github.com",
// matching any subdomain).
type NetworkPolicy struct {
	Allow []string `yaml:"allow,omitempty" json:"allow,omitempty"`
	Deny  []string `yaml:"deny,omitempty" json:"deny,omitempty"`
}

// FilesystemPolicy lists paths. Reads are unrestricted by the
// compiler; Read is recorded for review and diffing only. Write adds
// writable paths beyond the always-writable set. Deny blocks both read
// and write and takes precedence over every allow.
type FilesystemPolicy struct {
	Read  []string `yaml:"read,omitempty" json:"read,omitempty"`
	Write []string `yaml:"write,omitempty" json:"write,omitempty"`
	Deny  []string `yaml:"deny,omitempty" json:"deny,omitempty"`
}

// EnvPolicy filters which host environment variables reach a step.
// When Allow is non-empty only the listed names (and the variables
// the runner itself defines) pass. Deny always removes a name.
type EnvPolicy struct {
	Allow []string `yaml:"allow,omitempty" json:"allow,omitempty"`
	Deny  []string `yaml:"deny,omitempty" json:"deny,omitempty"`
}

// Merge combines two policies by set union of every list. A nil policy
// or section is the identity: Merge(nil, p) and Merge(p, nil) equal p.
// Merge is associative. The result shares no slices with its inputs.
func Merge(base, override *SandboxPolicy) *SandboxPolicy {
	if base == nil && override == nil {
		return nil
	}
	if base == nil {
		base = &SandboxPolicy{}
	}
	if override == nil {
		override = &SandboxPolicy{}
	}
	return &SandboxPolicy{
		Network:    mergeNetwork(base.Network, override.Network),
		Filesystem: mergeFilesystem(base.Filesystem, override.Filesystem),
		Env:        mergeEnv(base.Env, override.Env),
	}
}

// Clone returns a deep copy of p.
func (p *SandboxPolicy) Clone() *SandboxPolicy {
	return Merge(p, nil)
}

// IsEmpty reports whether the policy declares nothing at all.
func (p *SandboxPolicy) IsEmpty() bool {
	return p == nil || (p.Network == nil && p.Filesystem == nil && p.Env == nil)
}

func mergeNetwork(a, b *NetworkPolicy) *NetworkPolicy {
	if a == nil && b == nil {
		return nil
	}
	a, b = orEmpty(a), orEmpty(b)
	return &NetworkPolicy{
		Allow: Union(a.Allow, b.Allow),
		Deny:  Union(a.Deny, b.Deny),
	}
}

func mergeFilesystem(a, b *FilesystemPolicy) *FilesystemPolicy {
	if a == nil && b == nil {
		return nil
	}
	a, b = orEmpty(a), orEmpty(b)
	return &FilesystemPolicy{
		Read:  Union(a.Read, b.Read),
		Write: Union(a.Write, b.Write),
		Deny:  Union(a.Deny, b.Deny),
	}
}

func mergeEnv(a, b *EnvPolicy) *EnvPolicy {
	if a == nil && b == nil {
		return nil
	}
	a, b = orEmpty(a), orEmpty(b)
	return &EnvPolicy{
		Allow: Union(a.Allow, b.Allow),
		Deny:  Union(a.Deny, b.Deny),
	}
}

func orEmpty[T any](value *T) *T {
	if value == nil {
		return new(T)
	}
	return value
}

// Union returns the items of a followed by the items of b that are not
// already present, dropping duplicates. Returns nil when both are
// empty.
func Union(a, b []string) []string {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(a)+len(b))
	result := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, item := range list {
			if seen[item] {
				continue
			}
			seen[item] = true
			result = append(result, item)
		}
	}
	return result
}
