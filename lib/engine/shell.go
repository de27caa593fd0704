// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"strings"
)

// shellTemplate is how a named shell runs a script file. {0} is the
// script path.
type shellTemplate struct {
	command   []string
	extension string
}

var shellTemplates = map[string]shellTemplate{
	"bash":       {command: []string{"bash", "--noprofile", "--norc", "-eo", "pipefail", "{0}"}, extension: ".sh"},
	"sh":         {command: []string{"sh", "-e", "{0}"}, extension: ".sh"},
	"python":     {command: []string{"python3", "{0}"}, extension: ".py"},
	"pwsh":       {command: []string{"pwsh", "-command", ". '{0}'"}, extension: ".ps1"},
	"powershell": {command: []string{"pwsh", "-command", ". '{0}'"}, extension: ".ps1"},
}

// ShellCommand returns the argv that runs scriptPath under shell, and
// the file extension the script should carry. shell is a known name
// or a custom command line containing {0}.
func ShellCommand(shell, scriptPath string) ([]string, error) {
	template, err := lookupShell(shell)
	if err != nil {
		return nil, err
	}
	argv := make([]string, len(template.command))
	for index, argument := range template.command {
		argv[index] = strings.ReplaceAll(argument, "{0}", scriptPath)
	}
	return argv, nil
}

// ScriptExtension returns the script file extension for shell.
func ScriptExtension(shell string) string {
	template, err := lookupShell(shell)
	if err != nil {
		return ""
	}
	return template.extension
}

func lookupShell(shell string) (shellTemplate, error) {
	shell = strings.TrimSpace(shell)
	if template, ok := shellTemplates[shell]; ok {
		return template, nil
	}
	switch {
	case shell == "":
		return shellTemplate{}, fmt.Errorf("no shell configured")
	case shell == "cmd":
		return shellTemplate{}, fmt.Errorf("shell %q is not available on this platform", shell)
	case strings.Contains(shell, "{0}"):
		return shellTemplate{command: strings.Fields(shell)}, nil
	default:
		return shellTemplate{}, fmt.Errorf("unknown shell %q (use bash, sh, python, pwsh, or a command containing {0})", shell)
	}
}
