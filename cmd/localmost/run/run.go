// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package run implements "localmost run": executing a workflow on this
// machine with every step confined by the repository's sandbox policy.
package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"

	"github.com/localmost/localmost/cmd/localmost/cli"
	"github.com/localmost/localmost/cmd/localmost/ledger"
	"github.com/localmost/localmost/lib/actioncache"
	"github.com/localmost/localmost/lib/actions"
	"github.com/localmost/localmost/lib/config"
	"github.com/localmost/localmost/lib/engine"
	"github.com/localmost/localmost/lib/policy"
	"github.com/localmost/localmost/lib/runlog"
	"github.com/localmost/localmost/lib/secret"
	"github.com/localmost/localmost/lib/workflow"
	libsandbox "github.com/localmost/localmost/sandbox"
)

type runParams struct {
	Jobs               []string
	Matrix             string
	Inputs             []string
	SecretMode         string
	SecretFile         string
	AgeIdentity        string
	EnvFiles           []string
	Event              string
	WorkDir            string
	Permissive         bool
	UpdateRC           bool
	NoSandbox          bool
	IgnoreNeedsFailure bool
	Config             string
}

// Command returns the "run" command.
func Command() *cli.Command {
	var params runParams
	return &cli.Command{
		Name:    "run",
		Summary: "Run a workflow",
		Description: `Run the jobs of a workflow in dependency order. <workflow> is a file
path or the name of a file in .github/workflows.

Each step runs inside a sandbox compiled from .localmostrc. The first
run of a repository, and every run after .localmostrc changes, asks for
approval of the policy. With --permissive the sandbox allows
everything and records what the steps did; --updaterc adds those
accesses to .localmostrc.

Secrets default to stub values. --secret-mode env reads them from the
environment and --secret-mode file from --secret-file (a dotenv file,
optionally age-encrypted).`,
		Usage: "localmost run <workflow> [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.StringArrayVarP(&params.Jobs, "job", "j", nil, "run only this job (repeatable)")
			flagSet.StringVar(&params.Matrix, "matrix", "", "run only matrix combinations matching k=v[,k=v]")
			flagSet.StringArrayVar(&params.Inputs, "input", nil, "workflow input name=value (repeatable)")
			flagSet.StringVar(&params.SecretMode, "secret-mode", "", "where secrets come from: stub, env, or file (default from config)")
			flagSet.StringVar(&params.SecretFile, "secret-file", "", "dotenv file of secrets for --secret-mode file")
			flagSet.StringVar(&params.AgeIdentity, "age-identity", "", "age identity file decrypting --secret-file")
			flagSet.StringArrayVar(&params.EnvFiles, "env-file", nil, "dotenv file of workflow environment variables (repeatable)")
			flagSet.StringVar(&params.Event, "event", "", "event payload JSON file exposed as github.event")
			flagSet.StringVar(&params.WorkDir, "workdir", "", "repository to run in (default: current directory)")
			flagSet.BoolVar(&params.Permissive, "permissive", false, "allow everything and trace accesses")
			flagSet.BoolVar(&params.UpdateRC, "updaterc", false, "add the accesses of a permissive run to .localmostrc")
			flagSet.BoolVar(&params.NoSandbox, "no-sandbox", false, "run steps without confinement")
			flagSet.BoolVar(&params.IgnoreNeedsFailure, "ignore-needs-failure", false, "run jobs even when a job they need failed")
			flagSet.StringVar(&params.Config, "config", "", "configuration file (default: $LOCALMOST_CONFIG)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string, logger *slog.Logger) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one workflow, got %d arguments", len(args))
			}
			return execute(ctx, &params, args[0], logger)
		},
		Examples: []cli.Example{
			{
				Description: "Run the CI workflow",
				Command:     "localmost run ci",
			},
			{
				Description: "Run the test job for one matrix combination with real secrets",
				Command:     "localmost run ci --job test --matrix os=linux --secret-mode env",
			},
			{
				Description: "Discover what a workflow touches and record it in .localmostrc",
				Command:     "localmost run ci --updaterc",
			},
		},
	}
}

func execute(ctx context.Context, params *runParams, name string, logger *slog.Logger) error {
	cfg, err := cli.LoadConfig(params.Config)
	if err != nil {
		return err
	}
	repository, err := cli.OpenRepository(ctx, params.WorkDir)
	if err != nil {
		return err
	}
	path, err := cli.ResolveWorkflowPath(repository.Root, name)
	if err != nil {
		return err
	}
	wf, err := workflow.ReadFile(path)
	if err != nil {
		return err
	}
	var matrix workflow.Combination
	if params.Matrix != "" {
		if matrix, err = workflow.ParseMatrixSpec(params.Matrix); err != nil {
			return fmt.Errorf("--matrix: %w", err)
		}
	}

	document, err := checkPolicy(ctx, cfg, repository, logger)
	if err != nil {
		return err
	}

	given, err := parseAssignments("input", params.Inputs)
	if err != nil {
		return err
	}
	inputs, err := resolveInputs(wf, given)
	if err != nil {
		return err
	}
	env, err := readEnvFiles(params.EnvFiles)
	if err != nil {
		return err
	}
	event := map[string]any{}
	eventPath := ""
	if params.Event != "" {
		if event, eventPath, err = readEvent(params.Event); err != nil {
			return err
		}
	}
	dispatched := len(given) > 0
	if _, ok := event["inputs"]; !ok && len(inputs) > 0 {
		event["inputs"] = inputs
	}

	secrets, err := resolveSecrets(params, cfg, wf, document)
	if err != nil {
		return err
	}
	defer secrets.Close()
	if secrets.Stubbed() && secrets.Len() > 0 {
		logger.Info("secrets are stub values", "count", secrets.Len(), "hint", "pass --secret-mode env or file for real values")
	}

	launcher, err := libsandbox.NewLauncher(libsandbox.LauncherOptions{
		Disabled: params.NoSandbox || cfg.Sandbox.Disabled,
		Fallback: libsandbox.Fallback(cfg.Sandbox.Fallback),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	runLog, err := runlog.Create(cfg.Paths.Runs, runlog.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer runLog.Close()

	home, _ := os.UserHomeDir()
	runner, err := newEngine(cfg, launcher, runLog.ID(), home, logger)
	if err != nil {
		return err
	}

	permissive := params.Permissive || params.UpdateRC
	tracePath := ""
	if permissive && launcher.Confined() {
		tracePath = filepath.Join(os.TempDir(), "localmost-trace-"+runLog.ID()+".log")
		defer os.Remove(tracePath)
	}

	jobs := params.Jobs
	if len(jobs) == 0 {
		jobs = wf.Jobs.Keys()
	}
	runLog.Start(wf.Name, repository.Identifier, launcher.Name(), jobs)

	stream := engine.NewEventStream(cfg.Run.EventBuffer)
	painter := cli.NewPainter(os.Stdout)
	progress := ledger.New(os.Stdout, painter, runLog)
	done := make(chan struct{})
	go func() {
		defer close(done)
		progress.Consume(stream.Events())
	}()

	result, err := runner.RunWorkflow(ctx, wf, engine.RunOptions{
		Jobs:               params.Jobs,
		Matrix:             matrix,
		IgnoreNeedsFailure: params.IgnoreNeedsFailure || cfg.Run.IgnoreNeedsFailure,
		WorkDir:            repository.Root,
		Env:                env,
		Secrets:            secrets,
		Inputs:             inputs,
		Event:              event,
		GitHub:             githubContext(repository, runLog.ID(), eventName(wf, dispatched), eventPath),
		Policy:             document.PolicyFor(wf.Name),
		Permissive:         permissive,
		TraceLog:           tracePath,
		Events:             stream,
	})
	stream.Close()
	<-done
	if err != nil {
		runLog.Complete(string(engine.StatusFailure))
		return err
	}
	progress.Summary(result)
	runLog.Complete(string(result.Status))
	fmt.Println(painter.Paint(painter.Theme.FaintText, "run log: "+runLog.Path()))

	if params.UpdateRC {
		_, err := updatePolicy(os.Stdout, painter, repository.Root, document, tracePath, libsandbox.TraceOptions{
			WorkDir:  repository.Root,
			HomeDir:  home,
			TempDirs: cfg.Sandbox.TempDirs,
		})
		switch {
		case errors.Is(err, errNoTrace):
			logger.Warn("nothing to add to the policy", "reason", err, "launcher", launcher.Name())
		case err != nil:
			return err
		}
	}

	if ctx.Err() != nil {
		return &cli.ExitError{Code: 130}
	}
	if result.Status == engine.StatusFailure {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

// checkPolicy loads .localmostrc and passes it through the approval
// gate. A repository without one has no policy and needs no approval.
func checkPolicy(ctx context.Context, cfg *config.Config, repository *cli.Repository, logger *slog.Logger) (*policy.Document, error) {
	document, _, err := cli.LoadPolicy(repository.Root, logger)
	if err != nil || document == nil {
		return document, err
	}
	gate, _, err := cli.OpenGate(cfg, cli.NewTerminalApprover(cfg.ApprovalTimeout()), logger)
	if err != nil {
		return nil, err
	}
	if _, err := gate.Check(ctx, repository.Identifier, repository.Commit, document); err != nil {
		return nil, err
	}
	return document, nil
}

func resolveSecrets(params *runParams, cfg *config.Config, wf *workflow.Workflow, document *policy.Document) (*secret.Set, error) {
	modeName := params.SecretMode
	if modeName == "" {
		modeName = cfg.Run.SecretMode
	}
	mode, err := secret.ParseMode(modeName)
	if err != nil {
		return nil, err
	}
	names, err := referencedSecrets(wf)
	if err != nil {
		return nil, err
	}
	return secret.Resolve(secret.Options{
		Mode:        mode,
		Names:       names,
		Required:    document.RequiredSecrets(wf.Name),
		File:        params.SecretFile,
		AgeIdentity: params.AgeIdentity,
	})
}

func newEngine(cfg *config.Config, launcher libsandbox.Launcher, runID, home string, logger *slog.Logger) (*engine.Engine, error) {
	compression, err := actioncache.ParseCompression(cfg.Run.CacheCompression)
	if err != nil {
		return nil, err
	}
	cache, err := actioncache.Open(cfg.Paths.Cache, actioncache.Options{
		Compression: compression,
		HomeDir:     home,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Options{
		Launcher:     launcher,
		Actions:      actions.NewResolver(actions.ResolverOptions{Dir: cfg.Paths.Actions, Logger: logger}),
		Cache:        cache,
		ArtifactDir:  filepath.Join(cfg.Paths.Artifacts, runID),
		Logger:       logger,
		DefaultShell: cfg.Run.Shell,
		HomeDir:      home,
		TempDirs:     cfg.Sandbox.TempDirs,
	})
}

// githubContext is the github.* context of a local run.
func githubContext(repository *cli.Repository, runID, event, eventPath string) map[string]string {
	values := map[string]string{
		"repository": repositorySlug(repository.Identifier),
		"sha":        repository.Commit,
		"actor":      os.Getenv("USER"),
		"event_name": event,
		"event_path": eventPath,
		"run_id":     runID,
		"run_number": "1",
		"server_url": "https://github.com",
	}
	if repository.Branch != "" {
		values["ref"] = "refs/heads/" + repository.Branch
		values["ref_name"] = repository.Branch
	}
	if owner, _, found := strings.Cut(values["repository"], "/"); found {
		values["repository_owner"] = owner
	}
	return values
}
