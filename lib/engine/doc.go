// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine executes parsed workflows on the local machine.
//
// RunWorkflow schedules jobs sequentially in dependency order and fans
// matrix jobs out into one ExecutionContext per combination. RunJob
// runs a job's steps one after another; ExecuteStep runs one step:
//
//   - run: steps are expanded, written to a script in RUNNER_TEMP, and
//     executed through the step's shell by a sandbox.Launcher under the
//     job's compiled profile. GITHUB_OUTPUT, GITHUB_ENV and GITHUB_PATH
//     are read back afterwards.
//   - uses: steps dispatch on actions.Classify. Checkout, cache, and
//     artifact actions are served locally; local and remote actions
//     run from their action.yml (node and composite runtimes).
//
// Progress is delivered on an EventStream, a bounded channel that
// blocks the engine while the consumer lags. Secret values are masked
// in every streamed line and error message.
//
// Dependents of a failed job are skipped unless RunOptions says
// otherwise. success() and failure() in if: conditions are constants
// (see lib/expression), so a failed step halts its job and only
// always() steps still run.
package engine
