// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/localmost/localmost/lib/git"
)

// DefaultBaseURL is where remote actions are fetched from.
const DefaultBaseURL = "https://github.com"

// ResolverOptions configures NewResolver.
type ResolverOptions struct {
	// Dir is the shared action cache directory.
	Dir string

	// BaseURL prefixes owner/repo to form the clone URL. Defaults to
	// DefaultBaseURL. A local directory works too, which tests use.
	BaseURL string

	Logger *slog.Logger
}

// Resolver materializes remote actions in a local cache. Each
// owner/repo@ref is fetched once and reused by later runs.
type Resolver struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

// NewResolver returns a Resolver over options.Dir.
func NewResolver(options ResolverOptions) *Resolver {
	baseURL := options.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		dir:     options.Dir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// CachePath returns where reference's repository lives in the cache,
// whether or not it has been fetched.
func (r *Resolver) CachePath(reference Reference) string {
	return filepath.Join(r.dir, reference.Owner, reference.Repo+"@"+sanitizeRef(reference.Ref))
}

// Resolve returns the directory holding reference's action.yml,
// fetching the repository first if the cache does not have it.
func (r *Resolver) Resolve(ctx context.Context, reference Reference) (string, error) {
	if reference.Kind != KindRemote {
		return "", fmt.Errorf("resolving %q: only remote actions are fetched, got %s", reference.Raw, reference.Kind)
	}

	checkout := r.CachePath(reference)
	if _, err := os.Stat(checkout); errors.Is(err, os.ErrNotExist) {
		if err := r.fetch(ctx, reference, checkout); err != nil {
			return "", err
		}
	} else if err != nil {
		return "", fmt.Errorf("checking action cache: %w", err)
	} else {
		r.logger.Debug("action cache hit", "action", reference.Raw, "path", checkout)
	}

	actionDir := checkout
	if reference.Path != "" {
		actionDir = filepath.Join(checkout, filepath.FromSlash(reference.Path))
	}
	return actionDir, nil
}

// fetch clones into a temporary sibling and renames it into place, so
// a concurrent reader sees either no entry or a complete one. When two
// runs race, the first rename wins and the loser discards its copy.
func (r *Resolver) fetch(ctx context.Context, reference Reference, checkout string) error {
	parent := filepath.Dir(checkout)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("creating action cache directory: %w", err)
	}
	temporary, err := os.MkdirTemp(parent, ".fetch-*")
	if err != nil {
		return fmt.Errorf("creating temporary action directory: %w", err)
	}
	defer os.RemoveAll(temporary)

	url := r.baseURL + "/" + reference.Repository()
	depth := 1
	if !strings.Contains(r.baseURL, "://") {
		depth = 0
	}

	r.logger.Info("fetching action", "action", reference.Raw, "url", url)
	if _, err := git.Clone(ctx, url, temporary, git.CloneOptions{Ref: reference.Ref, Depth: depth}); err != nil {
		return fmt.Errorf("fetching action %s: %w", reference.Raw, err)
	}

	if err := os.Rename(temporary, checkout); err != nil {
		if _, statErr := os.Stat(checkout); statErr == nil {
			return nil
		}
		return fmt.Errorf("installing action %s: %w", reference.Raw, err)
	}
	return nil
}

// sanitizeRef makes a ref usable as one path segment.
func sanitizeRef(ref string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(ref)
}
