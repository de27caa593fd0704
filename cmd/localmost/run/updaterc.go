// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package run

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/localmost/localmost/cmd/localmost/cli"
	"github.com/localmost/localmost/lib/policy"
	"github.com/localmost/localmost/lib/policycache"
	libsandbox "github.com/localmost/localmost/sandbox"
)

// errNoTrace is returned by updatePolicy when the run left no trace,
// e.g. because it ran unconfined.
var errNoTrace = errors.New("no sandbox trace was recorded")

// updatePolicy folds the accesses recorded in the trace at tracePath
// into the shared policy of document and writes the result to root's
// .localmostrc. document may be nil. The differences are printed to
// w. The updated document still needs approval before the next
// confined run.
func updatePolicy(w io.Writer, painter cli.Painter, root string, document *policy.Document, tracePath string, options libsandbox.TraceOptions) (*policy.Document, error) {
	trace, err := os.Open(tracePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errNoTrace
	}
	if err != nil {
		return nil, err
	}
	defer trace.Close()

	discovered, err := libsandbox.ParseTrace(trace, options)
	if err != nil {
		return nil, err
	}

	updated := &policy.Document{Version: policy.CurrentVersion}
	if document != nil {
		copied := *document
		updated = &copied
	}
	updated.Shared = policy.Merge(updated.Shared, discovered)

	diffs := policycache.Diff(document, updated)
	path := filepath.Join(root, policy.DocumentFileName)
	if len(diffs) == 0 {
		fmt.Fprintf(w, "%s already allows everything this run did\n", policy.DocumentFileName)
		return updated, nil
	}

	data, err := policy.MarshalDocument(updated)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(w, "updated %s:\n", path)
	cli.WriteDiffs(w, painter, diffs)
	return updated, nil
}
