// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"syscall"
	"time"
)

// SandboxExecPath is the macOS seatbelt front end.
const SandboxExecPath = "/usr/bin/sandbox-exec"

// Invocation describes one process to start under a profile.
type Invocation struct {
	// Profile is compiled SBPL text. Ignored by Unconfined.
	Profile string

	// Command is the program and its arguments.
	Command []string

	// Dir is the working directory of the process.
	Dir string

	// Env is the complete environment of the process, as KEY=VALUE
	// pairs. Nothing is inherited from the caller.
	Env []string
}

// Launcher turns an Invocation into a command ready to start. The
// returned command has no stdio attached; callers wire pipes.
// Cancelling ctx kills the whole process group.
type Launcher interface {
	Command(ctx context.Context, invocation Invocation) (*exec.Cmd, error)

	// Confined reports whether commands run under kernel confinement.
	Confined() bool

	// Name identifies the launcher in logs and run ledgers.
	Name() string
}

// Seatbelt launches commands through sandbox-exec with the profile
// passed inline.
type Seatbelt struct {
	// Path overrides the sandbox-exec binary location.
	Path string
}

// Command implements Launcher.
func (s *Seatbelt) Command(ctx context.Context, invocation Invocation) (*exec.Cmd, error) {
	if invocation.Profile == "" {
		return nil, errors.New("seatbelt: profile is required")
	}
	if len(invocation.Command) == 0 {
		return nil, errors.New("seatbelt: command is required")
	}
	path := s.Path
	if path == "" {
		path = SandboxExecPath
	}

	arguments := append([]string{"-p", invocation.Profile, "--"}, invocation.Command...)
	cmd := exec.CommandContext(ctx, path, arguments...)
	configure(cmd, invocation)
	return cmd, nil
}

// Confined implements Launcher.
func (s *Seatbelt) Confined() bool { return true }

// Name implements Launcher.
func (s *Seatbelt) Name() string { return "seatbelt" }

// Unconfined runs commands directly. Used for --no-sandbox, on hosts
// without seatbelt when the configured fallback allows it, and by
// tests.
type Unconfined struct{}

// Command implements Launcher.
func (Unconfined) Command(ctx context.Context, invocation Invocation) (*exec.Cmd, error) {
	if len(invocation.Command) == 0 {
		return nil, errors.New("unconfined: command is required")
	}
	cmd := exec.CommandContext(ctx, invocation.Command[0], invocation.Command[1:]...)
	configure(cmd, invocation)
	return cmd, nil
}

// Confined implements Launcher.
func (Unconfined) Confined() bool { return false }

// Name implements Launcher.
func (Unconfined) Name() string { return "unconfined" }

// configure applies the settings shared by every launcher. The
// environment is always set explicitly: a nil Env would make the child
// inherit the caller's full environment, including any secrets held in
// it.
func configure(cmd *exec.Cmd, invocation Invocation) {
	cmd.Dir = invocation.Dir
	cmd.Env = invocation.Env
	if cmd.Env == nil {
		cmd.Env = []string{}
	}

	// Own process group so cancellation reaches every descendant, not
	// only the shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second
}

// Fallback selects what NewLauncher does when seatbelt is unavailable.
type Fallback string

const (
	// FallbackError refuses to run.
	FallbackError Fallback = "error"

	// FallbackWarn runs unconfined and logs a warning.
	FallbackWarn Fallback = "warn"
)

// LauncherOptions configures NewLauncher.
type LauncherOptions struct {
	// Disabled selects the unconfined launcher unconditionally.
	Disabled bool

	// Fallback applies when seatbelt is unavailable. Defaults to
	// FallbackError.
	Fallback Fallback

	// Capabilities overrides host detection.
	Capabilities *Capabilities

	Logger *slog.Logger
}

// ErrUnavailable is returned by NewLauncher when confinement is
// required but the host cannot provide it.
var ErrUnavailable = errors.New("sandbox unavailable")

// NewLauncher picks a launcher for this host.
func NewLauncher(options LauncherOptions) (Launcher, error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if options.Disabled {
		logger.Warn("sandbox disabled, steps run without confinement")
		return Unconfined{}, nil
	}

	capabilities := options.Capabilities
	if capabilities == nil {
		capabilities = DetectCapabilities()
	}
	if capabilities.CanRunSandbox() {
		return &Seatbelt{Path: capabilities.SandboxExecPath}, nil
	}

	reason := capabilities.SkipReason()
	switch options.Fallback {
	case FallbackWarn:
		logger.Warn("sandbox unavailable, steps run without confinement", "reason", reason)
		return Unconfined{}, nil
	case FallbackError, "":
		return nil, fmt.Errorf("%w: %s (pass --no-sandbox or set sandbox.fallback: warn to run unconfined)", ErrUnavailable, reason)
	default:
		return nil, fmt.Errorf("unknown sandbox fallback %q (valid: error, warn)", options.Fallback)
	}
}

// ExitError represents a non-zero exit from a sandboxed command.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with code %d", e.Code)
}

// IsExitError checks if an error is an ExitError and returns the code.
func IsExitError(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

// WrapExit converts an *exec.ExitError into an *ExitError, leaving
// other errors unchanged.
func WrapExit(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return err
}
