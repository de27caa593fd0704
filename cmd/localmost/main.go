// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"os"

	"github.com/localmost/localmost/cmd/localmost/cli"
	"github.com/localmost/localmost/cmd/localmost/commands"
	"github.com/localmost/localmost/lib/process"
)

func main() {
	if err := commands.Root().Execute(os.Args[1:]); err != nil {
		// Commands that print their own outcome (a failed run, a failed
		// sandbox check) return an ExitError. Don't print a redundant
		// "error:" line for those.
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		process.Fatal(err)
	}
}
