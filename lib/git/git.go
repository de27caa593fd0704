// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI. localmost uses git
// to identify the repository a workflow belongs to (policy cache key
// and approved commit), to fetch remote actions into the local action
// cache, and to update submodules for intercepted checkouts. All
// commands target a specific directory via the -C flag, which every
// Repository method injects.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Repository represents a git working tree at a specific directory.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr
	// Never block on a credential prompt.
	command.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// HeadCommit returns the full SHA of HEAD.
func (r *Repository) HeadCommit(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// CurrentBranch returns the checked-out branch name, or "" on a
// detached HEAD.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		if _, headErr := r.HeadCommit(ctx); headErr == nil {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// RemoteURL returns the fetch URL of the named remote.
func (r *Repository) RemoteURL(ctx context.Context, remote string) (string, error) {
	output, err := r.Run(ctx, "remote", "get-url", remote)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// TopLevel returns the absolute path of the working tree root.
func (r *Repository) TopLevel(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// UpdateSubmodules initializes and updates submodules. Recursive
// includes nested submodules.
func (r *Repository) UpdateSubmodules(ctx context.Context, recursive bool) error {
	args := []string{"submodule", "update", "--init"}
	if recursive {
		args = append(args, "--recursive")
	}
	_, err := r.Run(ctx, args...)
	return err
}

// Identifier returns a stable identifier for the repository: the
// normalized origin URL when one is configured, otherwise the absolute
// working tree path. Two clones of the same remote share an identifier.
func (r *Repository) Identifier(ctx context.Context) (string, error) {
	if url, err := r.RemoteURL(ctx, "origin"); err == nil && url != "" {
		return NormalizeRemoteURL(url), nil
	}
	top, err := r.TopLevel(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Clean(top), nil
}

// NormalizeRemoteURL reduces the common remote URL spellings of one
// repository to a single form: "git@host:owner/repo.git",
// "ssh://git@host/owner/repo", and "https://host/owner/repo.git" all
// become "host/owner/repo".
func NormalizeRemoteURL(url string) string {
	normalized := strings.TrimSpace(url)
	for _, scheme := range []string{"https://", "http://", "ssh://", "git://"} {
		normalized = strings.TrimPrefix(normalized, scheme)
	}
	// Credentials and the ssh user sit before the first slash.
	slash := strings.IndexByte(normalized+"/", '/')
	if at := strings.LastIndex(normalized[:slash], "@"); at >= 0 {
		normalized = normalized[at+1:]
	}
	if host, path, found := strings.Cut(normalized, ":"); found && !strings.Contains(host, "/") {
		normalized = host + "/" + strings.TrimPrefix(path, "/")
	}
	normalized = strings.TrimSuffix(strings.TrimSuffix(normalized, "/"), ".git")
	return strings.ToLower(normalized)
}

// CloneOptions configures Clone.
type CloneOptions struct {
	// Ref is a branch, tag, or commit to check out. Empty selects the
	// remote's default branch.
	Ref string

	// Depth limits history when positive. Local path remotes ignore
	// shallow fetches, so callers pass 0 for them.
	Depth int
}

// Clone fetches url into dir, which must not exist, and checks out
// options.Ref with a detached HEAD. Fetching the single ref instead of
// running git clone lets Ref name a commit as well as a branch or tag.
func Clone(ctx context.Context, url, dir string, options CloneOptions) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating clone directory: %w", err)
	}
	repository := NewRepository(dir)

	ref := options.Ref
	if ref == "" {
		ref = "HEAD"
	}
	fetch := []string{"fetch", "--quiet"}
	if options.Depth > 0 {
		fetch = append(fetch, fmt.Sprintf("--depth=%d", options.Depth))
	}
	fetch = append(fetch, "origin", ref)

	for _, args := range [][]string{
		{"init", "--quiet"},
		{"remote", "add", "origin", url},
		fetch,
		{"-c", "advice.detachedHead=false", "checkout", "--quiet", "FETCH_HEAD"},
	} {
		if _, err := repository.Run(ctx, args...); err != nil {
			return nil, fmt.Errorf("cloning %s at %s: %w", url, ref, err)
		}
	}
	return repository, nil
}
