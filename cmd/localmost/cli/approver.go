// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/localmost/localmost/lib/clock"
	"github.com/localmost/localmost/lib/policy"
	"github.com/localmost/localmost/lib/policycache"
)

// ErrNotInteractive is returned by TerminalApprover when there is no
// person to ask.
var ErrNotInteractive = errors.New("policy approval needs an interactive terminal (run 'localmost policy approve' first)")

// TerminalApprover asks the person at the terminal whether a sandbox
// policy may be trusted. It declines when Input is not interactive,
// when Timeout passes without an answer, and on anything but "y" or
// "yes".
type TerminalApprover struct {
	Input       io.Reader
	Output      io.Writer
	Interactive bool

	// Timeout bounds the wait for an answer. Zero waits forever.
	Timeout time.Duration

	Clock   clock.Clock
	Painter Painter
}

// NewTerminalApprover returns an approver over stdin and stderr.
func NewTerminalApprover(timeout time.Duration) *TerminalApprover {
	return &TerminalApprover{
		Input:       os.Stdin,
		Output:      os.Stderr,
		Interactive: term.IsTerminal(int(os.Stdin.Fd())),
		Timeout:     timeout,
		Painter:     NewPainter(os.Stderr),
	}
}

// Approve implements policycache.Approver.
func (a *TerminalApprover) Approve(ctx context.Context, request policycache.ApprovalRequest) (bool, error) {
	if !a.Interactive {
		return false, ErrNotInteractive
	}
	a.describe(request)
	fmt.Fprint(a.Output, "Approve this policy? [y/N] ")

	answers := make(chan string, 1)
	failures := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(a.Input).ReadString('\n')
		if err != nil && line == "" {
			failures <- err
			return
		}
		answers <- line
	}()

	var timeout <-chan time.Time
	if a.Timeout > 0 {
		timeout = clock.OrReal(a.Clock).After(a.Timeout)
	}

	select {
	case line := <-answers:
		answer := strings.ToLower(strings.TrimSpace(line))
		return answer == "y" || answer == "yes", nil
	case err := <-failures:
		fmt.Fprintln(a.Output)
		return false, fmt.Errorf("reading answer: %w", err)
	case <-timeout:
		fmt.Fprintln(a.Output)
		return false, fmt.Errorf("no answer within %v", a.Timeout)
	case <-ctx.Done():
		fmt.Fprintln(a.Output)
		return false, ctx.Err()
	}
}

func (a *TerminalApprover) describe(request policycache.ApprovalRequest) {
	painter := a.Painter
	fmt.Fprintf(a.Output, "%s %s\n", painter.Bold(painter.Theme.Header, "Repository:"), request.Repository)
	if request.Commit != "" {
		fmt.Fprintf(a.Output, "%s %s\n", painter.Bold(painter.Theme.Header, "Commit:"), request.Commit)
	}
	fmt.Fprintln(a.Output)

	switch request.State {
	case policycache.StateChanged:
		fmt.Fprintln(a.Output, painter.Paint(painter.Theme.Warning, "The sandbox policy changed since it was last approved:"))
		WriteDiffs(a.Output, painter, request.Diffs)
	case policycache.StateNew:
		fmt.Fprintln(a.Output, painter.Paint(painter.Theme.Warning, "This repository's sandbox policy has never been approved:"))
		writeDocument(a.Output, request.Policy)
	default:
		fmt.Fprintln(a.Output, painter.Paint(painter.Theme.Warning, "This sandbox policy has not been approved yet:"))
		writeDocument(a.Output, request.Policy)
	}
	fmt.Fprintln(a.Output)
}

func writeDocument(w io.Writer, document *policy.Document) {
	if document == nil {
		fmt.Fprintln(w, "  (empty)")
		return
	}
	data, err := policy.MarshalDocument(document)
	if err != nil {
		fmt.Fprintf(w, "  (cannot render policy: %v)\n", err)
		return
	}
	for _, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}
}
