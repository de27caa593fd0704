// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version is the release version. GitCommit, GitDirty and BuildTime are
// stamped with -ldflags; when left unset they are read from the VCS
// information the Go toolchain embeds.
var (
	Version   = "0.1.0-dev"
	GitCommit = ""
	GitDirty  = ""
	BuildTime = ""
)

type buildStamp struct {
	commit string
	dirty  bool
	time   string
}

func stamp() buildStamp {
	s := buildStamp{commit: GitCommit, dirty: GitDirty == "true", time: BuildTime}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				if s.commit == "" && len(setting.Value) >= 12 {
					s.commit = setting.Value[:12]
				}
			case "vcs.modified":
				if GitDirty == "" {
					s.dirty = setting.Value == "true"
				}
			case "vcs.time":
				if s.time == "" {
					s.time = setting.Value
				}
			}
		}
	}
	if s.commit == "" {
		s.commit = "unknown"
	}
	if s.time == "" {
		s.time = "unknown"
	}
	return s
}

// Info is the one-line version: "0.1.0 (abc123def456, 2026-01-02T03:04:05Z)".
func Info() string {
	s := stamp()
	commit := s.commit
	if s.dirty {
		commit += "-dirty"
	}
	return fmt.Sprintf("%s (%s, %s)", Version, commit, s.time)
}

// Full adds the Go toolchain and platform to Info.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s", Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent identifies localmost in the run log and in action cache
// manifests.
func UserAgent() string { return "localmost/" + Version }
