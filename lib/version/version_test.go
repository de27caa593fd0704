// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfo(t *testing.T) {
	info := Info()
	if !strings.HasPrefix(info, Version+" (") || !strings.HasSuffix(info, ")") {
		t.Errorf("Info() = %q, want %q (commit, time)", info, Version)
	}
	if full := Full(); !strings.HasPrefix(full, info) || !strings.Contains(full, "Go: ") {
		t.Errorf("Full() = %q", full)
	}
	if got := UserAgent(); got != "localmost/"+Version {
		t.Errorf("UserAgent() = %q, want %q", got, "localmost/"+Version)
	}
}

func TestStampPrefersLinkerValues(t *testing.T) {
	commit, dirty, built := GitCommit, GitDirty, BuildTime
	t.Cleanup(func() { GitCommit, GitDirty, BuildTime = commit, dirty, built })

	GitCommit, GitDirty, BuildTime = "0123abcd", "true", "2026-01-02T03:04:05Z"
	if got, want := Info(), Version+" (0123abcd-dirty, 2026-01-02T03:04:05Z)"; got != want {
		t.Errorf("Info() = %q, want %q", got, want)
	}
}
