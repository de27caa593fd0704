// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"

	"github.com/localmost/localmost/lib/policycache"
)

// WriteDiffs prints policy differences one per line, "+" for added
// and "-" for removed values.
func WriteDiffs(w io.Writer, painter Painter, diffs []policycache.PolicyDiff) {
	if len(diffs) == 0 {
		fmt.Fprintln(w, painter.Paint(painter.Theme.FaintText, "  (no differences)"))
		return
	}
	for _, diff := range diffs {
		marker, color := "+", painter.Theme.Added
		if diff.Change == policycache.Removed {
			marker, color = "-", painter.Theme.Removed
		}
		fmt.Fprintf(w, "  %s %s %s\n", painter.Paint(color, marker), diff.Path, painter.Paint(color, diff.Value))
	}
}
