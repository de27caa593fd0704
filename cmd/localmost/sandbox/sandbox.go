// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox implements "localmost sandbox": compiling, checking,
// and probing the step sandbox without running a workflow.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/pflag"

	"github.com/localmost/localmost/cmd/localmost/cli"
	libsandbox "github.com/localmost/localmost/sandbox"
)

// Command returns the "sandbox" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "sandbox",
		Summary: "Compile, check, and probe the step sandbox",
		Subcommands: []*cli.Command{
			compileCommand(),
			checkCommand(),
			testCommand(),
		},
	}
}

// profileParams select the policy a profile is compiled from.
type profileParams struct {
	WorkDir    string
	Workflow   string
	Permissive bool
	Trace      string
	Config     string
}

func (p *profileParams) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&p.WorkDir, "workdir", "", "repository directory (default: current directory)")
	flagSet.StringVar(&p.Workflow, "workflow", "", "apply this workflow's override from .localmostrc")
	flagSet.BoolVar(&p.Permissive, "permissive", false, "allow by default and trace every access")
	flagSet.StringVar(&p.Trace, "trace", "", "trace destination for --permissive")
	flagSet.StringVar(&p.Config, "config", "", "configuration file (default: $LOCALMOST_CONFIG)")
}

// compileOptions builds the options a run in WorkDir would compile
// its profile with.
func (p *profileParams) compileOptions(ctx context.Context, logger *slog.Logger) (libsandbox.CompileOptions, error) {
	cfg, err := cli.LoadConfig(p.Config)
	if err != nil {
		return libsandbox.CompileOptions{}, err
	}
	repository, err := cli.OpenRepository(ctx, p.WorkDir)
	if err != nil {
		return libsandbox.CompileOptions{}, err
	}
	document, _, err := cli.LoadPolicy(repository.Root, logger)
	if err != nil {
		return libsandbox.CompileOptions{}, err
	}
	home, _ := os.UserHomeDir()
	options := libsandbox.CompileOptions{
		WorkDir:    repository.Root,
		Policy:     document.PolicyFor(p.Workflow),
		Permissive: p.Permissive,
		HomeDir:    home,
		TempDirs:   cfg.Sandbox.TempDirs,
	}
	if p.Permissive && p.Trace != "" {
		trace, err := filepath.Abs(p.Trace)
		if err != nil {
			return libsandbox.CompileOptions{}, err
		}
		options.LogDestination = trace
	}
	return options, nil
}

func compileCommand() *cli.Command {
	var params profileParams
	return &cli.Command{
		Name:    "compile",
		Summary: "Print the sandbox profile a run would use",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("compile", pflag.ContinueOnError)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, _ []string, logger *slog.Logger) error {
			options, err := params.compileOptions(ctx, logger)
			if err != nil {
				return err
			}
			fmt.Print(libsandbox.Compile(options))
			return nil
		},
		Examples: []cli.Example{
			{
				Description: "Show the profile for the deploy workflow's override",
				Command:     "localmost sandbox compile --workflow deploy",
			},
		},
	}
}

func checkCommand() *cli.Command {
	var params profileParams
	return &cli.Command{
		Name:    "check",
		Summary: "Check that this host can run sandboxed jobs",
		Description: `Check that sandbox-exec is present and working, and that the policy
entries of .localmostrc compile to a usable profile.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("check", pflag.ContinueOnError)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, _ []string, logger *slog.Logger) error {
			options, err := params.compileOptions(ctx, logger)
			if err != nil {
				return err
			}
			validator := libsandbox.NewValidator()
			validator.ValidateAll(libsandbox.DetectCapabilities(), options)
			validator.PrintResults(os.Stdout)
			if validator.HasErrors() {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

func testCommand() *cli.Command {
	var params struct {
		Timeout time.Duration
		Config  string
	}
	return &cli.Command{
		Name:    "test",
		Summary: "Run containment probes inside the sandbox",
		Description: `Run a set of probe scripts inside the sandbox: each tries something a
confined step must not do (write outside the workspace, read credential
directories, reach the network) or must still be able to do. A probe
passes when the sandbox behaves as expected.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("test", pflag.ContinueOnError)
			flagSet.DurationVar(&params.Timeout, "timeout", 10*time.Second, "limit for each probe")
			flagSet.StringVar(&params.Config, "config", "", "configuration file (default: $LOCALMOST_CONFIG)")
			return flagSet
		},
		Run: func(ctx context.Context, _ []string, logger *slog.Logger) error {
			cfg, err := cli.LoadConfig(params.Config)
			if err != nil {
				return err
			}
			launcher, err := libsandbox.NewLauncher(libsandbox.LauncherOptions{
				Fallback: libsandbox.Fallback(cfg.Sandbox.Fallback),
				Logger:   logger,
			})
			if err != nil {
				return err
			}
			workDir, err := os.MkdirTemp("", "localmost-probe-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(workDir)
			home, _ := os.UserHomeDir()

			runner := libsandbox.RunContainmentProbes(ctx, launcher, libsandbox.ProbeOptions{
				WorkDir: workDir,
				HomeDir: home,
				Timeout: params.Timeout,
			})
			runner.PrintResults(os.Stdout)
			if runner.HasFailures() {
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}
