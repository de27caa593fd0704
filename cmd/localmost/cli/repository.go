// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/localmost/localmost/lib/git"
)

// Repository is what commands need to know about the working tree they
// operate on.
type Repository struct {
	// Root is the top of the working tree, or the directory itself
	// outside git.
	Root string

	// Identifier keys the policy cache. See git.Repository.Identifier.
	Identifier string

	// Commit and Branch describe HEAD. Empty outside git or on an
	// unborn branch.
	Commit string
	Branch string
}

// OpenRepository inspects dir, or the current directory when dir is
// empty. A directory outside git is usable; it is identified by its
// absolute path.
func OpenRepository(ctx context.Context, dir string) (*Repository, error) {
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	absolute, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	if info, err := os.Stat(absolute); err != nil {
		return nil, err
	} else if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", absolute)
	}

	repository := &Repository{Root: absolute, Identifier: absolute}
	handle := git.NewRepository(absolute)
	top, err := handle.TopLevel(ctx)
	if err != nil {
		return repository, nil
	}
	repository.Root = top
	handle = git.NewRepository(top)
	if identifier, err := handle.Identifier(ctx); err == nil {
		repository.Identifier = identifier
	} else {
		repository.Identifier = top
	}
	repository.Commit, _ = handle.HeadCommit(ctx)
	repository.Branch, _ = handle.CurrentBranch(ctx)
	return repository, nil
}
