// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package policy implements "localmost policy": inspecting and
// managing the approved sandbox policies of repositories.
package policy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/localmost/localmost/cmd/localmost/cli"
	"github.com/localmost/localmost/lib/config"
	libpolicy "github.com/localmost/localmost/lib/policy"
	"github.com/localmost/localmost/lib/policycache"
)

// repoParams are shared by every policy subcommand.
type repoParams struct {
	Repo   string
	Config string
}

func (p *repoParams) addFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&p.Repo, "repo", "", "repository directory (default: current directory)")
	flagSet.StringVar(&p.Config, "config", "", "configuration file (default: $LOCALMOST_CONFIG)")
}

// open loads the configuration and the repository.
func (p *repoParams) open(ctx context.Context) (*config.Config, *cli.Repository, error) {
	cfg, err := cli.LoadConfig(p.Config)
	if err != nil {
		return nil, nil, err
	}
	repository, err := cli.OpenRepository(ctx, p.Repo)
	if err != nil {
		return nil, nil, err
	}
	return cfg, repository, nil
}

// Command returns the "policy" command group.
func Command() *cli.Command {
	return &cli.Command{
		Name:    "policy",
		Summary: "Inspect and manage approved sandbox policies",
		Description: `A repository's .localmostrc is trusted only after it has been approved.
The approved document is cached per repository; a run whose document
differs from the cached one asks for approval again.`,
		Subcommands: []*cli.Command{
			showCommand(),
			diffCommand(),
			approveCommand(),
			resetCommand(),
			listCommand(),
		},
	}
}

// record is the JSON view of a cached policy.
type record struct {
	Repository     string              `json:"repository"`
	Approved       bool                `json:"approved"`
	ApprovedCommit string              `json:"approved_commit,omitempty"`
	ApprovedAt     *time.Time          `json:"approved_at,omitempty"`
	CachedAt       time.Time           `json:"cached_at"`
	Document       *libpolicy.Document `json:"document,omitempty"`
}

func recordOf(cached *policycache.CachedPolicy) record {
	view := record{
		Repository:     cached.Repository,
		Approved:       cached.Approved,
		ApprovedCommit: cached.ApprovedCommit,
		CachedAt:       cached.CachedAt,
		Document:       cached.Config,
	}
	if !cached.ApprovedAt.IsZero() {
		approvedAt := cached.ApprovedAt
		view.ApprovedAt = &approvedAt
	}
	return view
}

func showCommand() *cli.Command {
	var params struct {
		repoParams
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "show",
		Summary: "Show the cached policy of a repository",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("show", pflag.ContinueOnError)
			params.addFlags(flagSet)
			params.AddFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, _ []string, logger *slog.Logger) error {
			cfg, repository, err := params.open(ctx)
			if err != nil {
				return err
			}
			_, store, err := cli.OpenGate(cfg, nil, logger)
			if err != nil {
				return err
			}
			cached, err := store.Load(repository.Identifier)
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("no cached policy for %s", repository.Identifier)
			}
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(recordOf(cached)); done {
				return err
			}
			return writeRecord(os.Stdout, cli.NewPainter(os.Stdout), cached)
		},
	}
}

// writeRecord prints a cached policy as text.
func writeRecord(w io.Writer, painter cli.Painter, cached *policycache.CachedPolicy) error {
	theme := painter.Theme
	fmt.Fprintf(w, "%s %s\n", painter.Paint(theme.FaintText, "repository:"), cached.Repository)
	if cached.Approved {
		fmt.Fprintf(w, "%s %s", painter.Paint(theme.FaintText, "approved:  "), painter.Paint(theme.StatusSuccess, "yes"))
		if cached.ApprovedCommit != "" {
			fmt.Fprintf(w, " at commit %s", shortCommit(cached.ApprovedCommit))
		}
		if !cached.ApprovedAt.IsZero() {
			fmt.Fprintf(w, " on %s", cached.ApprovedAt.Format(time.RFC3339))
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintf(w, "%s %s\n", painter.Paint(theme.FaintText, "approved:  "), painter.Paint(theme.StatusFailure, "no"))
	}
	fmt.Fprintln(w)
	if cached.Config == nil {
		fmt.Fprintln(w, painter.Paint(theme.FaintText, "(empty document)"))
		return nil
	}
	data, err := libpolicy.MarshalDocument(cached.Config)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func shortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}

func diffCommand() *cli.Command {
	var params repoParams
	return &cli.Command{
		Name:    "diff",
		Summary: "Compare .localmostrc with the approved policy",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("diff", pflag.ContinueOnError)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, _ []string, logger *slog.Logger) error {
			cfg, repository, err := params.open(ctx)
			if err != nil {
				return err
			}
			document, _, err := cli.LoadPolicy(repository.Root, logger)
			if err != nil {
				return err
			}
			gate, _, err := cli.OpenGate(cfg, nil, logger)
			if err != nil {
				return err
			}
			evaluation, err := gate.Evaluate(repository.Identifier, document)
			if err != nil {
				return err
			}
			writeEvaluation(os.Stdout, cli.NewPainter(os.Stdout), evaluation)
			return nil
		},
	}
}

// writeEvaluation prints where a repository stands and what changed.
func writeEvaluation(w io.Writer, painter cli.Painter, evaluation policycache.Evaluation) {
	color := painter.Theme.Warning
	if evaluation.State == policycache.StateApproved {
		color = painter.Theme.StatusSuccess
	}
	fmt.Fprintf(w, "%s: %s\n", evaluation.Repository, painter.Paint(color, evaluation.State.String()))
	if evaluation.State == policycache.StateUnapproved {
		fmt.Fprintln(w, painter.Paint(painter.Theme.FaintText, "  unchanged since it was cached, but never approved"))
		return
	}
	cli.WriteDiffs(w, painter, evaluation.Diffs)
}

func approveCommand() *cli.Command {
	var params repoParams
	return &cli.Command{
		Name:    "approve",
		Summary: "Approve the current .localmostrc without running",
		Description: `Record the repository's current .localmostrc as approved. The
differences from the previously approved document are printed first.`,
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("approve", pflag.ContinueOnError)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, _ []string, logger *slog.Logger) error {
			cfg, repository, err := params.open(ctx)
			if err != nil {
				return err
			}
			document, path, err := cli.LoadPolicy(repository.Root, logger)
			if err != nil {
				return err
			}
			if document == nil {
				return fmt.Errorf("no %s in %s", libpolicy.DocumentFileName, repository.Root)
			}
			gate, _, err := cli.OpenGate(cfg, nil, logger)
			if err != nil {
				return err
			}
			evaluation, err := gate.Evaluate(repository.Identifier, document)
			if err != nil {
				return err
			}
			painter := cli.NewPainter(os.Stdout)
			writeEvaluation(os.Stdout, painter, evaluation)
			if !evaluation.NeedsApproval() {
				return nil
			}
			if err := gate.Approve(repository.Identifier, repository.Commit, document); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", painter.Paint(painter.Theme.StatusSuccess, "approved"), path)
			return nil
		},
	}
}

func resetCommand() *cli.Command {
	var params repoParams
	return &cli.Command{
		Name:    "reset",
		Summary: "Forget the approved policy of a repository",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("reset", pflag.ContinueOnError)
			params.addFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, _ []string, logger *slog.Logger) error {
			cfg, repository, err := params.open(ctx)
			if err != nil {
				return err
			}
			gate, _, err := cli.OpenGate(cfg, nil, logger)
			if err != nil {
				return err
			}
			if err := gate.Reset(repository.Identifier); err != nil {
				return err
			}
			fmt.Printf("forgot the policy of %s\n", repository.Identifier)
			return nil
		},
	}
}

func listCommand() *cli.Command {
	var params struct {
		Config string
		cli.JSONOutput
	}
	return &cli.Command{
		Name:    "list",
		Summary: "List repositories with a cached policy",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("list", pflag.ContinueOnError)
			flagSet.StringVar(&params.Config, "config", "", "configuration file (default: $LOCALMOST_CONFIG)")
			params.AddFlags(flagSet)
			return flagSet
		},
		Run: func(_ context.Context, _ []string, logger *slog.Logger) error {
			cfg, err := cli.LoadConfig(params.Config)
			if err != nil {
				return err
			}
			_, store, err := cli.OpenGate(cfg, nil, logger)
			if err != nil {
				return err
			}
			records, err := listRecords(store)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(records); done {
				return err
			}
			painter := cli.NewPainter(os.Stdout)
			for _, view := range records {
				state := painter.Paint(painter.Theme.StatusFailure, "unapproved")
				if view.Approved {
					state = painter.Paint(painter.Theme.StatusSuccess, "approved")
				}
				fmt.Printf("%s  %s\n", state, view.Repository)
			}
			return nil
		},
	}
}

// listRecords loads every cached record. Unreadable records are
// reported rather than skipped.
func listRecords(store *policycache.Store) ([]record, error) {
	repositories, err := store.List()
	if err != nil {
		return nil, err
	}
	records := make([]record, 0, len(repositories))
	for _, repository := range repositories {
		cached, err := store.Load(repository)
		if err != nil {
			return nil, err
		}
		view := recordOf(cached)
		view.Document = nil
		records = append(records, view)
	}
	return records, nil
}
