// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUnconfinedCommand(t *testing.T) {
	t.Parallel()

	directory := t.TempDir()
	cmd, err := Unconfined{}.Command(context.Background(), Invocation{
		Command: []string{"/bin/sh", "-c", `echo "$FOO"; echo "${HOME:-unset}"; pwd`},
		Dir:     directory,
		Env:     []string{"FOO=bar"},
	})
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	output, err := cmd.Output()
	if err != nil {
		t.Fatalf("running command: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) != 3 {
		t.Fatalf("output = %q, want three lines", output)
	}
	if lines[0] != "bar" {
		t.Errorf("FOO = %q, want %q", lines[0], "bar")
	}
	if lines[1] != "unset" {
		t.Errorf("HOME = %q, want the caller's environment not to leak", lines[1])
	}
	if filepath.Base(lines[2]) != filepath.Base(directory) {
		t.Errorf("pwd = %q, want %q", lines[2], directory)
	}
}

func TestUnconfinedNilEnvIsEmpty(t *testing.T) {
	t.Parallel()

	cmd, err := Unconfined{}.Command(context.Background(), Invocation{Command: []string{"/usr/bin/env"}})
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Env == nil || len(cmd.Env) != 0 {
		t.Errorf("Env = %#v, want empty non-nil slice", cmd.Env)
	}
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Error("command should run in its own process group")
	}
}

func TestSeatbeltCommand(t *testing.T) {
	t.Parallel()

	launcher := &Seatbelt{Path: "/usr/bin/sandbox-exec"}
	profile := Compile(CompileOptions{WorkDir: "/w"})
	cmd, err := launcher.Command(context.Background(), Invocation{
		Profile: profile,
		Command: []string{"make", "test"},
		Dir:     "/w",
	})
	if err != nil {
		t.Fatalf("Command: %v", err)
	}

	want := []string{"/usr/bin/sandbox-exec", "-p", profile, "--", "make", "test"}
	if strings.Join(cmd.Args, "\x00") != strings.Join(want, "\x00") {
		t.Errorf("Args = %q, want %q", cmd.Args, want)
	}
	if cmd.Dir != "/w" {
		t.Errorf("Dir = %q, want /w", cmd.Dir)
	}
	if !launcher.Confined() || launcher.Name() != "seatbelt" {
		t.Errorf("Confined() = %v, Name() = %q", launcher.Confined(), launcher.Name())
	}

	if _, err := launcher.Command(context.Background(), Invocation{Command: []string{"true"}}); err == nil {
		t.Error("expected error without a profile")
	}
	if _, err := launcher.Command(context.Background(), Invocation{Profile: profile}); err == nil {
		t.Error("expected error without a command")
	}
}

func TestCancelKillsProcessGroup(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cmd, err := Unconfined{}.Command(ctx, Invocation{
		Command: []string{"/bin/sh", "-c", "sleep 30 & sleep 30; wait"},
		Env:     []string{"PATH=/usr/bin:/bin"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	start := time.Now()
	time.AfterFunc(100*time.Millisecond, cancel)
	if err := cmd.Wait(); err == nil {
		t.Error("Wait succeeded for a cancelled command")
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Errorf("cancellation took %v", elapsed)
	}
}

func TestWrapExit(t *testing.T) {
	t.Parallel()

	cmd, err := Unconfined{}.Command(context.Background(), Invocation{Command: []string{"/bin/sh", "-c", "exit 3"}})
	if err != nil {
		t.Fatal(err)
	}
	err = WrapExit(cmd.Run())
	code, ok := IsExitError(err)
	if !ok || code != 3 {
		t.Errorf("IsExitError(%v) = %d, %v; want 3, true", err, code, ok)
	}

	other := errors.New("not an exit")
	if WrapExit(other) != other {
		t.Error("WrapExit changed a non-exit error")
	}
	if WrapExit(nil) != nil {
		t.Error("WrapExit(nil) should be nil")
	}
}

func TestNewLauncher(t *testing.T) {
	t.Parallel()

	working := &Capabilities{
		OS:                   "darwin",
		SandboxExecAvailable: true,
		SandboxExecPath:      "/usr/bin/sandbox-exec",
		SeatbeltWorks:        true,
	}
	missing := &Capabilities{OS: "linux"}

	tests := []struct {
		name       string
		options    LauncherOptions
		wantName   string
		wantErr    error
		wantAnyErr bool
	}{
		{name: "seatbelt available", options: LauncherOptions{Capabilities: working}, wantName: "seatbelt"},
		{name: "disabled", options: LauncherOptions{Disabled: true, Capabilities: working}, wantName: "unconfined"},
		{name: "default fallback refuses", options: LauncherOptions{Capabilities: missing}, wantErr: ErrUnavailable},
		{name: "explicit error fallback", options: LauncherOptions{Capabilities: missing, Fallback: FallbackError}, wantErr: ErrUnavailable},
		{name: "warn fallback runs unconfined", options: LauncherOptions{Capabilities: missing, Fallback: FallbackWarn}, wantName: "unconfined"},
		{name: "unknown fallback", options: LauncherOptions{Capabilities: missing, Fallback: "ignore"}, wantAnyErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			test.options.Logger = discardLogger()
			launcher, err := NewLauncher(test.options)
			switch {
			case test.wantErr != nil:
				if !errors.Is(err, test.wantErr) {
					t.Fatalf("error = %v, want %v", err, test.wantErr)
				}
				return
			case test.wantAnyErr:
				if err == nil {
					t.Fatal("expected error")
				}
				return
			case err != nil:
				t.Fatalf("NewLauncher: %v", err)
			}
			if launcher.Name() != test.wantName {
				t.Errorf("Name() = %q, want %q", launcher.Name(), test.wantName)
			}
		})
	}
}

func TestCapabilitiesSkipReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		caps Capabilities
		want string
	}{
		{Capabilities{OS: "linux"}, "requires macOS"},
		{Capabilities{OS: "darwin"}, "not found"},
		{Capabilities{OS: "darwin", SandboxExecAvailable: true}, "could not apply a profile"},
		{Capabilities{OS: "darwin", SandboxExecAvailable: true, SeatbeltWorks: true}, ""},
	}

	for _, test := range tests {
		got := test.caps.SkipReason()
		if test.want == "" {
			if got != "" || !test.caps.CanRunSandbox() {
				t.Errorf("SkipReason() = %q, CanRunSandbox() = %v; want usable", got, test.caps.CanRunSandbox())
			}
			continue
		}
		if !strings.Contains(got, test.want) {
			t.Errorf("SkipReason() = %q, want substring %q", got, test.want)
		}
	}
}
