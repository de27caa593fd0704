// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

type codedError struct {
	code    int
	message string
}

func (e *codedError) Error() string { return e.message }
func (e *codedError) ExitCode() int { return e.code }

func TestReport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantOutput string
	}{
		{"plain", errors.New("boom"), 1, "error: boom\n"},
		{"wrapped coder", fmt.Errorf("running: %w", &codedError{code: 3, message: "job failed"}), 3, "error: running: job failed\n"},
		{"silent", &codedError{code: 2}, 2, ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			var buffer bytes.Buffer
			if code := Report(&buffer, test.err); code != test.wantCode {
				t.Errorf("Report code = %d, want %d", code, test.wantCode)
			}
			if buffer.String() != test.wantOutput {
				t.Errorf("output = %q, want %q", buffer.String(), test.wantOutput)
			}
		})
	}
}
