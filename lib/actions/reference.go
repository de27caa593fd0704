// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package actions

import (
	"fmt"
	"strings"
)

// Kind classifies a uses: reference. The set is closed: every
// reference maps to exactly one Kind, with KindUnknown for anything
// that matches no known shape.
type Kind int

const (
	KindUnknown Kind = iota

	// Intercepted actions, reimplemented locally.
	KindCheckout
	KindCache
	KindCacheRestore
	KindCacheSave
	KindUploadArtifact
	KindDownloadArtifact

	// KindLocal is a ./path action inside the workspace.
	KindLocal

	// KindDocker is a docker://image reference. Container actions
	// are not supported.
	KindDocker

	// KindRemote is an owner/repo[/path]@ref action fetched into the
	// local action cache.
	KindRemote
)

var kindNames = [...]string{
	KindUnknown:          "unknown",
	KindCheckout:         "checkout",
	KindCache:            "cache",
	KindCacheRestore:     "cache-restore",
	KindCacheSave:        "cache-save",
	KindUploadArtifact:   "upload-artifact",
	KindDownloadArtifact: "download-artifact",
	KindLocal:            "local",
	KindDocker:           "docker",
	KindRemote:           "remote",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Intercepted reports whether actions of this kind run in-process
// instead of being fetched and executed.
func (k Kind) Intercepted() bool {
	return k >= KindCheckout && k <= KindDownloadArtifact
}

// interceptedActions maps owner/repo[/path] (lowercased, no ref) onto
// the intercepted kinds.
var interceptedActions = map[string]Kind{
	"actions/checkout":          KindCheckout,
	"actions/cache":             KindCache,
	"actions/cache/restore":     KindCacheRestore,
	"actions/cache/save":        KindCacheSave,
	"actions/upload-artifact":   KindUploadArtifact,
	"actions/download-artifact": KindDownloadArtifact,
}

// Reference is a classified uses: value.
type Reference struct {
	Kind Kind

	// Raw is the uses: value as written.
	Raw string

	// Owner, Repo, Path and Ref are set for remote and intercepted
	// references. Path is the subdirectory within the repository
	// holding action.yml, empty for the repository root.
	Owner string
	Repo  string
	Path  string
	Ref   string

	// Local is the workspace-relative directory of a local action.
	Local string

	// Image is the image of a docker reference.
	Image string
}

// Repository returns "owner/repo".
func (r Reference) Repository() string {
	return r.Owner + "/" + r.Repo
}

// Classify parses a uses: value.
func Classify(uses string) Reference {
	uses = strings.TrimSpace(uses)
	reference := Reference{Raw: uses}

	switch {
	case uses == "":
		return reference
	case strings.HasPrefix(uses, "./"):
		reference.Kind = KindLocal
		reference.Local = strings.TrimSuffix(uses, "/")
		return reference
	case strings.HasPrefix(uses, "docker://"):
		reference.Kind = KindDocker
		reference.Image = strings.TrimPrefix(uses, "docker://")
		return reference
	}

	name, ref, found := strings.Cut(uses, "@")
	if !found || ref == "" {
		return reference
	}
	segments := strings.Split(name, "/")
	if len(segments) < 2 {
		return reference
	}
	for _, segment := range segments {
		if segment == "" || segment == "." || segment == ".." {
			return reference
		}
	}

	reference.Owner = segments[0]
	reference.Repo = segments[1]
	reference.Path = strings.Join(segments[2:], "/")
	reference.Ref = ref

	if kind, ok := interceptedActions[strings.ToLower(name)]; ok {
		reference.Kind = kind
	} else {
		reference.Kind = KindRemote
	}
	return reference
}
