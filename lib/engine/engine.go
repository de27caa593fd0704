// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"errors"
	"log/slog"
	"os"

	"github.com/localmost/localmost/lib/actioncache"
	"github.com/localmost/localmost/lib/actions"
	"github.com/localmost/localmost/lib/clock"
	"github.com/localmost/localmost/sandbox"
)

// DefaultShell runs run: steps that name no shell.
const DefaultShell = "bash"

// MaxActionDepth bounds composite actions calling composite actions.
const MaxActionDepth = 8

// Options configures an Engine.
type Options struct {
	// Launcher starts every step process. Required.
	Launcher sandbox.Launcher

	// Actions fetches remote actions. Nil makes remote uses: steps
	// fail with an explanation.
	Actions *actions.Resolver

	// Cache backs the intercepted cache actions. Nil makes them report
	// a miss and save nothing.
	Cache *actioncache.Store

	// ArtifactDir is where intercepted upload-artifact copies files.
	// Empty disables artifact transfer.
	ArtifactDir string

	Clock  clock.Clock
	Logger *slog.Logger

	// DefaultShell overrides DefaultShell.
	DefaultShell string

	// HomeDir and TempDirs feed sandbox profile compilation. Empty
	// TempDirs selects sandbox.DefaultTempDirs.
	HomeDir  string
	TempDirs []string

	// HostEnv is the environment filtered into every step. Nil selects
	// os.Environ().
	HostEnv []string

	// TempRoot is the parent of each job's RUNNER_TEMP. Empty selects
	// os.TempDir().
	TempRoot string

	// ToolCache is exported as RUNNER_TOOL_CACHE when set.
	ToolCache string
}

// Engine runs workflows, jobs, and steps.
type Engine struct {
	launcher     sandbox.Launcher
	actions      *actions.Resolver
	cache        *actioncache.Store
	artifactDir  string
	clock        clock.Clock
	logger       *slog.Logger
	defaultShell string
	homeDir      string
	tempDirs     []string
	hostEnv      []string
	tempRoot     string
	toolCache    string
}

// New returns an Engine.
func New(options Options) (*Engine, error) {
	if options.Launcher == nil {
		return nil, errors.New("engine: a launcher is required")
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	shell := options.DefaultShell
	if shell == "" {
		shell = DefaultShell
	}
	if _, err := ShellCommand(shell, "script"); err != nil {
		return nil, err
	}
	hostEnv := options.HostEnv
	if hostEnv == nil {
		hostEnv = os.Environ()
	}
	tempDirs := options.TempDirs
	if len(tempDirs) == 0 {
		tempDirs = sandbox.DefaultTempDirs
	}
	tempRoot := options.TempRoot
	if tempRoot == "" {
		tempRoot = os.TempDir()
	}

	if !options.Launcher.Confined() {
		logger.Warn("steps will run without a sandbox", "launcher", options.Launcher.Name())
	}

	return &Engine{
		launcher:     options.Launcher,
		actions:      options.Actions,
		cache:        options.Cache,
		artifactDir:  options.ArtifactDir,
		clock:        clock.OrReal(options.Clock),
		logger:       logger,
		defaultShell: shell,
		homeDir:      options.HomeDir,
		tempDirs:     tempDirs,
		hostEnv:      hostEnv,
		tempRoot:     tempRoot,
		toolCache:    options.ToolCache,
	}, nil
}

// Launcher returns the launcher steps run under.
func (e *Engine) Launcher() sandbox.Launcher {
	return e.launcher
}

// compileProfile compiles the sandbox profile for a job running in
// workDir.
func (e *Engine) compileProfile(ec *ExecutionContext, jobTemp string) string {
	options := sandbox.CompileOptions{
		WorkDir:    ec.WorkDir,
		Policy:     ec.Policy,
		Permissive: ec.Permissive,
		HomeDir:    e.homeDir,
		TempDirs:   append(append([]string(nil), e.tempDirs...), jobTemp),
	}
	if ec.Permissive {
		options.LogDestination = ec.TraceLog
	}
	return sandbox.Compile(options)
}
