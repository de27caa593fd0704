// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the complete localmost command tree.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/localmost/localmost/cmd/localmost/cli"
	plancmd "github.com/localmost/localmost/cmd/localmost/plan"
	policycmd "github.com/localmost/localmost/cmd/localmost/policy"
	runcmd "github.com/localmost/localmost/cmd/localmost/run"
	sandboxcmd "github.com/localmost/localmost/cmd/localmost/sandbox"
	"github.com/localmost/localmost/lib/version"
)

// Root builds and returns the localmost command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "localmost",
		Description: `localmost: run CI workflows on this machine.

Jobs run in dependency order with GitHub-compatible expressions, outputs
and matrices. Every step runs inside a sandbox compiled from the
repository's .localmostrc, which must be approved before first use and
again whenever it changes.`,
		Subcommands: []*cli.Command{
			runcmd.Command(),
			plancmd.Command(),
			policycmd.Command(),
			sandboxcmd.Command(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(_ context.Context, _ []string, _ *slog.Logger) error {
					fmt.Printf("localmost %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Run every job of the CI workflow",
				Command:     "localmost run ci",
			},
			{
				Description: "Run one job for one matrix combination",
				Command:     "localmost run ci --job test --matrix go=1.25,os=linux",
			},
			{
				Description: "Show the job order without running anything",
				Command:     "localmost plan ci",
			},
		},
	}
}
