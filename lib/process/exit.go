// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"os"
)

// ExitCoder is implemented by errors that carry a specific process exit
// code (a failed workflow run, a rejected policy).
type ExitCoder interface {
	ExitCode() int
}

// Fatal writes "error: err" to stderr and exits. The exit code comes
// from the first ExitCoder in err's chain, defaulting to 1. An
// ExitCoder with an empty message exits silently: the command has
// already reported the failure.
func Fatal(err error) {
	os.Exit(Report(os.Stderr, err))
}

// Report writes err the way Fatal does and returns the exit code.
func Report(w interface{ Write([]byte) (int, error) }, err error) int {
	code := 1
	var coder ExitCoder
	if errors.As(err, &coder) {
		code = coder.ExitCode()
	}
	if message := err.Error(); message != "" {
		fmt.Fprintf(w, "error: %s\n", message)
	}
	return code
}
