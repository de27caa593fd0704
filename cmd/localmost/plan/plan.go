// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package plan implements "localmost plan": the job order of a
// workflow, grouped into stages, without running anything.
package plan

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/localmost/localmost/cmd/localmost/cli"
	"github.com/localmost/localmost/lib/workflow"
)

// Plan is the dry-run view of a workflow.
type Plan struct {
	Workflow string    `json:"workflow"`
	Path     string    `json:"path"`
	Stages   [][]Entry `json:"stages"`
}

// Entry is one job of a stage.
type Entry struct {
	ID    string   `json:"id"`
	Name  string   `json:"name,omitempty"`
	Needs []string `json:"needs,omitempty"`

	// Combinations is the number of matrix combinations, 1 for jobs
	// without a matrix and 0 when the matrix is computed at run time.
	Combinations int `json:"combinations"`

	// Calls is the reusable workflow the job calls.
	Calls string `json:"calls,omitempty"`

	// Steps is the number of steps of a regular job.
	Steps int `json:"steps,omitempty"`
}

type planParams struct {
	cli.JSONOutput
	WorkDir string
}

// Command returns the "plan" command.
func Command() *cli.Command {
	var params planParams
	return &cli.Command{
		Name:    "plan",
		Summary: "Show a workflow's job order without running it",
		Description: `Parse a workflow and print its jobs in execution order, grouped into
stages. Every job in a stage depends only on jobs in earlier stages.`,
		Usage: "localmost plan <workflow> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("plan", pflag.ContinueOnError)
			flagSet.StringVar(&params.WorkDir, "workdir", "", "repository to read workflows from (default: current directory)")
			params.AddFlags(flagSet)
			return flagSet
		},
		Run: func(ctx context.Context, args []string, _ *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one workflow, got %d arguments", len(args))
			}
			repository, err := cli.OpenRepository(ctx, params.WorkDir)
			if err != nil {
				return err
			}
			path, err := cli.ResolveWorkflowPath(repository.Root, args[0])
			if err != nil {
				return err
			}
			wf, err := workflow.ReadFile(path)
			if err != nil {
				return err
			}
			plan, err := Build(wf)
			if err != nil {
				return err
			}
			if done, err := params.EmitJSON(plan); done {
				return err
			}
			Write(os.Stdout, cli.NewPainter(os.Stdout), plan)
			return nil
		},
		Examples: []cli.Example{
			{
				Description: "Show the stages of the CI workflow",
				Command:     "localmost plan ci",
			},
		},
	}
}

// Build computes the plan of wf.
func Build(wf *workflow.Workflow) (*Plan, error) {
	graph, err := workflow.NewGraph(wf.Jobs)
	if err != nil {
		return nil, err
	}
	levels, err := graph.Levels()
	if err != nil {
		return nil, err
	}

	plan := &Plan{Workflow: wf.Name, Path: wf.Path}
	for _, level := range levels {
		stage := make([]Entry, 0, len(level))
		for _, id := range level {
			job, _ := wf.Jobs.Get(id)
			entry := Entry{
				ID:    id,
				Name:  job.Name,
				Needs: job.Needs,
				Calls: job.Uses,
				Steps: len(job.Steps),
			}
			if combinations, err := workflow.GenerateMatrixCombinations(job.Strategy); err == nil {
				entry.Combinations = len(combinations)
			}
			stage = append(stage, entry)
		}
		plan.Stages = append(plan.Stages, stage)
	}
	return plan, nil
}

// Write prints plan as text.
func Write(w io.Writer, painter cli.Painter, plan *Plan) {
	theme := painter.Theme
	fmt.Fprintf(w, "%s %s\n", painter.Bold(theme.Header, plan.Workflow), painter.Paint(theme.FaintText, "("+plan.Path+")"))
	for index, stage := range plan.Stages {
		fmt.Fprintf(w, "\n%s\n", painter.Bold(theme.Header, fmt.Sprintf("Stage %d", index+1)))
		for _, entry := range stage {
			fmt.Fprintf(w, "  %s%s\n", entry.ID, painter.Paint(theme.FaintText, describe(entry)))
		}
	}
}

func describe(entry Entry) string {
	var details []string
	if entry.Name != "" && entry.Name != entry.ID {
		details = append(details, fmt.Sprintf("%q", entry.Name))
	}
	switch {
	case entry.Calls != "":
		details = append(details, "calls "+entry.Calls)
	case entry.Steps == 1:
		details = append(details, "1 step")
	default:
		details = append(details, fmt.Sprintf("%d steps", entry.Steps))
	}
	switch {
	case entry.Combinations == 0:
		details = append(details, "matrix computed at run time")
	case entry.Combinations > 1:
		details = append(details, fmt.Sprintf("%d combinations", entry.Combinations))
	}
	if len(entry.Needs) > 0 {
		details = append(details, "needs "+strings.Join(entry.Needs, ", "))
	}
	return "  " + strings.Join(details, ", ")
}
