// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for localmost.
//
// The central type is [Command], a named subcommand with optional
// nested [Command.Subcommands], a [pflag.FlagSet] factory, and a Run
// function. Commands are assembled into a tree by the commands package
// and dispatched via [Command.Execute], which handles flag parsing,
// subcommand routing, signal-driven cancellation, and help output.
// Unknown subcommands and flags get a Levenshtein-based suggestion.
//
// The package also holds what several commands share: configuration
// loading ([LoadConfig]), working tree inspection ([OpenRepository]),
// the terminal palette ([Theme], [Painter]), and the interactive
// policy approver ([TerminalApprover]).
package cli
