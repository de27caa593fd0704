// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/localmost/localmost/lib/policy"
)

// ContainmentProbe is one operation attempted under a compiled profile.
// The script exits zero when the operation succeeded. A probe passes
// when the observed outcome matches ExpectAllowed. Controls (operations
// every job needs) expect to be allowed; escapes expect to be blocked.
type ContainmentProbe struct {
	Name        string
	Description string
	Category    string // "filesystem", "network", "process"
	Severity    string // "critical", "high", "medium", "control"

	// Script runs under /bin/sh with WORKDIR and HOME set.
	Script string

	ExpectAllowed bool
}

// ProbeResult holds the outcome of one probe.
type ProbeResult struct {
	Probe   *ContainmentProbe
	Allowed bool
	Passed  bool
	Output  string

	// Error is set when the probe could not be started at all.
	Error string
}

// ContainmentProbes is the default probe set.
var ContainmentProbes = []ContainmentProbe{
	{
		Name:          "workdir-write",
		Description:   "Write a file in the working directory",
		Category:      "filesystem",
		Severity:      "control",
		Script:        `echo probe > "$WORKDIR/.localmost-probe" && rm -f "$WORKDIR/.localmost-probe"`,
		ExpectAllowed: true,
	},
	{
		Name:          "temp-write",
		Description:   "Create a temporary file",
		Category:      "filesystem",
		Severity:      "control",
		Script:        `f=$(mktemp /tmp/localmost-probe.XXXXXX) && rm -f "$f"`,
		ExpectAllowed: true,
	},
	{
		Name:          "process-exec",
		Description:   "Execute a system binary",
		Category:      "process",
		Severity:      "control",
		Script:        `/usr/bin/true`,
		ExpectAllowed: true,
	},
	{
		Name:        "home-write",
		Description: "Write a file directly in the home directory",
		Category:    "filesystem",
		Severity:    "critical",
		Script:      `echo probe > "$HOME/.localmost-probe" || exit 1; rm -f "$HOME/.localmost-probe"`,
	},
	{
		Name:        "launch-agent",
		Description: "Create a LaunchAgents entry for persistence",
		Category:    "filesystem",
		Severity:    "critical",
		Script:      `mkdir -p "$HOME/Library/LaunchAgents" && echo probe > "$HOME/Library/LaunchAgents/.localmost-probe" || exit 1; rm -f "$HOME/Library/LaunchAgents/.localmost-probe"`,
	},
	{
		Name:        "shell-profile",
		Description: "Append to a shell startup file",
		Category:    "filesystem",
		Severity:    "critical",
		Script:      `: >> "$HOME/.zshrc"`,
	},
	{
		Name:        "ssh-read",
		Description: "Read the SSH key directory",
		Category:    "filesystem",
		Severity:    "high",
		Script:      `ls "$HOME/.ssh" > /dev/null`,
	},
	{
		Name:        "network-external",
		Description: "Connect to a host outside the allow list",
		Category:    "network",
		Severity:    "high",
		Script:      `/usr/bin/curl --silent --max-time 5 --output /dev/null http://example.com/`,
	},
}

// ProbePolicy is the policy probes run under unless ProbeOptions
// supplies one: no network hosts allowed, credentials directories
// denied.
func ProbePolicy() *policy.SandboxPolicy {
	return &policy.SandboxPolicy{
		Network: &policy.NetworkPolicy{Allow: []string{}},
		Filesystem: &policy.FilesystemPolicy{
			Deny: []string{"~/.ssh", "~/.aws", "~/.gnupg"},
		},
	}
}

// ProbeOptions configures a ProbeRunner.
type ProbeOptions struct {
	WorkDir string
	HomeDir string

	// Policy defaults to ProbePolicy().
	Policy *policy.SandboxPolicy

	// Timeout bounds each probe. Defaults to 10 seconds.
	Timeout time.Duration

	// Probes overrides the default probe set.
	Probes []ContainmentProbe
}

// ProbeRunner runs containment probes through a launcher.
type ProbeRunner struct {
	launcher Launcher
	options  ProbeOptions
	profile  string
	results  []ProbeResult
}

// NewProbeRunner compiles the probe profile and returns a runner.
func NewProbeRunner(launcher Launcher, options ProbeOptions) *ProbeRunner {
	if options.Policy == nil {
		options.Policy = ProbePolicy()
	}
	if options.Timeout <= 0 {
		options.Timeout = 10 * time.Second
	}
	if options.Probes == nil {
		options.Probes = ContainmentProbes
	}
	return &ProbeRunner{
		launcher: launcher,
		options:  options,
		profile: Compile(CompileOptions{
			WorkDir: options.WorkDir,
			HomeDir: options.HomeDir,
			Policy:  options.Policy,
		}),
	}
}

// RunContainmentProbes runs the probes in options and returns the
// runner holding the results.
func RunContainmentProbes(ctx context.Context, launcher Launcher, options ProbeOptions) *ProbeRunner {
	runner := NewProbeRunner(launcher, options)
	runner.RunAll(ctx)
	return runner
}

// RunAll runs every probe and returns the results.
func (r *ProbeRunner) RunAll(ctx context.Context) []ProbeResult {
	return r.run(ctx, "")
}

// RunCategory runs the probes in one category.
func (r *ProbeRunner) RunCategory(ctx context.Context, category string) []ProbeResult {
	return r.run(ctx, category)
}

func (r *ProbeRunner) run(ctx context.Context, category string) []ProbeResult {
	r.results = make([]ProbeResult, 0, len(r.options.Probes))
	for index := range r.options.Probes {
		probe := &r.options.Probes[index]
		if category != "" && probe.Category != category {
			continue
		}
		r.results = append(r.results, r.runProbe(ctx, probe))
	}
	return r.results
}

func (r *ProbeRunner) runProbe(ctx context.Context, probe *ContainmentProbe) ProbeResult {
	result := ProbeResult{Probe: probe}

	probeCtx, cancel := context.WithTimeout(ctx, r.options.Timeout)
	defer cancel()

	cmd, err := r.launcher.Command(probeCtx, Invocation{
		Profile: r.profile,
		Command: []string{"/bin/sh", "-c", probe.Script},
		Dir:     r.options.WorkDir,
		Env: []string{
			"PATH=/usr/bin:/bin:/usr/sbin:/sbin",
			"HOME=" + r.options.HomeDir,
			"WORKDIR=" + r.options.WorkDir,
		},
	})
	if err != nil {
		result.Error = err.Error()
		return result
	}

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err = cmd.Run()
	result.Output = strings.TrimSpace(output.String())

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.Allowed = true
	case errors.As(err, &exitErr):
		result.Allowed = false
	default:
		result.Error = err.Error()
		return result
	}
	result.Passed = result.Allowed == probe.ExpectAllowed
	return result
}

// Results returns the results of the last run.
func (r *ProbeRunner) Results() []ProbeResult {
	return r.results
}

// Summary returns a summary of probe results.
func (r *ProbeRunner) Summary() (passed, failed int) {
	for _, result := range r.results {
		if result.Passed {
			passed++
		} else {
			failed++
		}
	}
	return
}

// HasFailures returns true if any escape succeeded or any control
// was blocked.
func (r *ProbeRunner) HasFailures() bool {
	_, failed := r.Summary()
	return failed > 0
}

// PrintResults writes probe results to a writer.
func (r *ProbeRunner) PrintResults(w io.Writer) {
	fmt.Fprintf(w, "Running containment probes (%s launcher)...\n\n", r.launcher.Name())

	for _, result := range r.results {
		status := "[PASS]"
		if !result.Passed {
			status = "[FAIL]"
		}
		fmt.Fprintf(w, "%s %s: %s\n", status, result.Probe.Name, result.Probe.Description)
		switch {
		case result.Error != "":
			fmt.Fprintf(w, "       could not run: %s\n", result.Error)
		case !result.Passed && result.Probe.ExpectAllowed:
			fmt.Fprintf(w, "       control was blocked: %s\n", result.Output)
		case !result.Passed:
			fmt.Fprintf(w, "       escape succeeded (%s severity)\n", result.Probe.Severity)
		}
	}

	passed, failed := r.Summary()
	fmt.Fprintf(w, "\n%d/%d probes passed", passed, passed+failed)
	if failed == 0 {
		fmt.Fprintf(w, " - containment verified\n")
	} else {
		fmt.Fprintf(w, " - %d problem(s) detected\n", failed)
	}
}
