// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ValidationResult is the outcome of one pre-flight check. A warning
// counts as passed.
type ValidationResult struct {
	Name    string
	Passed  bool
	Message string
	Warning bool
}

// Validator collects pre-flight checks for running jobs confined.
type Validator struct {
	results []ValidationResult
}

func NewValidator() *Validator { return &Validator{} }

func (v *Validator) Results() []ValidationResult { return v.results }

// HasErrors reports whether a check failed.
func (v *Validator) HasErrors() bool { return v.failures() > 0 }

func (v *Validator) failures() int {
	count := 0
	for _, result := range v.results {
		if !result.Passed {
			count++
		}
	}
	return count
}

func (v *Validator) record(name, message string, passed, warning bool) {
	v.results = append(v.results, ValidationResult{Name: name, Passed: passed, Message: message, Warning: warning})
}

func (v *Validator) pass(name, message string) { v.record(name, message, true, false) }
func (v *Validator) warn(name, message string) { v.record(name, message, true, true) }
func (v *Validator) fail(name, message string) { v.record(name, message, false, false) }

// ValidateAll runs every check for running a job with options on a
// host with caps.
func (v *Validator) ValidateAll(caps *Capabilities, options CompileOptions) {
	v.ValidateSandboxExec(caps)
	v.ValidateWorkingDirectory(options.WorkDir)
	v.ValidateNetworkEntries(options)
	v.ValidateWritePaths(options)
	v.ValidateDenyPaths(options)
}

// ValidateSandboxExec checks that seatbelt can apply profiles.
func (v *Validator) ValidateSandboxExec(caps *Capabilities) {
	if caps == nil {
		caps = DetectCapabilities()
	}
	if !caps.CanRunSandbox() {
		v.fail("sandbox-exec", caps.SkipReason())
		return
	}
	message := fmt.Sprintf("available: %s", caps.SandboxExecPath)
	if caps.ProductVersion != "" {
		message += fmt.Sprintf(" (macOS %s)", caps.ProductVersion)
	}
	v.pass("sandbox-exec", message)
}

// ValidateWorkingDirectory checks that the job workspace is an existing
// directory.
func (v *Validator) ValidateWorkingDirectory(workDir string) {
	const name = "working_directory"
	if workDir == "" {
		v.fail(name, "working directory path is required")
		return
	}
	path, err := filepath.Abs(workDir)
	if err != nil {
		v.fail(name, fmt.Sprintf("cannot resolve path: %v", err))
		return
	}
	switch info, err := os.Stat(path); {
	case errors.Is(err, fs.ErrNotExist):
		v.fail(name, "does not exist: "+path)
	case err != nil:
		v.fail(name, fmt.Sprintf("cannot access: %v", err))
	case !info.IsDir():
		v.fail(name, "not a directory: "+path)
	default:
		v.pass(name, "exists: "+path)
	}
}

// hostEntryPattern matches a network policy entry: a hostname,
// optionally prefixed by "*." for subdomains.
var hostEntryPattern = regexp.MustCompile(`^(\*\.)?[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?(\.[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?)*$`)

// ValidateNetworkEntries checks that every network entry is a host or
// a leading wildcard. URLs, ports, and inner wildcards never match
// anything and usually indicate a typo.
func (v *Validator) ValidateNetworkEntries(options CompileOptions) {
	if options.Policy == nil || options.Policy.Network == nil {
		v.pass("network", "no network policy (all hosts reachable)")
		return
	}
	network := options.Policy.Network
	bad := 0
	for _, list := range []struct {
		name    string
		entries []string
	}{{"network.allow", network.Allow}, {"network.deny", network.Deny}} {
		for _, entry := range list.entries {
			if !hostEntryPattern.MatchString(strings.TrimSpace(entry)) {
				v.fail("network", fmt.Sprintf("%s entry %q is not a host name or *.domain wildcard", list.name, entry))
				bad++
			}
		}
	}
	if bad == 0 {
		v.pass("network", fmt.Sprintf("%d allowed, %d denied host pattern(s)", len(network.Allow), len(network.Deny)))
	}
}

// ValidateWritePaths checks the policy's extra writable paths. Missing
// paths are only warnings: tools often create their caches on first
// use.
func (v *Validator) ValidateWritePaths(options CompileOptions) {
	if options.Policy == nil || options.Policy.Filesystem == nil {
		return
	}
	for _, entry := range options.Policy.Filesystem.Write {
		resolved, ok := ResolvePolicyPath(entry, options.HomeDir, options.WorkDir)
		if !ok {
			v.fail("write_path", fmt.Sprintf("cannot resolve %q (home directory unknown?)", entry))
			continue
		}
		if strings.ContainsAny(resolved, "*?") {
			v.pass("write_path", fmt.Sprintf("pattern: %s", resolved))
			continue
		}
		if _, err := os.Stat(resolved); err != nil {
			v.warn("write_path", fmt.Sprintf("%s does not exist yet", resolved))
			continue
		}
		v.pass("write_path", fmt.Sprintf("writable: %s", resolved))
	}
}

// ValidateDenyPaths warns when a deny entry covers the working
// directory, which would make every step fail.
func (v *Validator) ValidateDenyPaths(options CompileOptions) {
	if options.Policy == nil || options.Policy.Filesystem == nil || options.WorkDir == "" {
		return
	}
	workDir := filepath.Clean(options.WorkDir)
	for _, entry := range options.Policy.Filesystem.Deny {
		resolved, ok := ResolvePolicyPath(entry, options.HomeDir, options.WorkDir)
		if !ok {
			continue
		}
		resolved = strings.TrimSuffix(resolved, "/**")
		if workDir == resolved || strings.HasPrefix(workDir, resolved+"/") {
			v.fail("deny_path", fmt.Sprintf("%q denies the working directory %s", entry, workDir))
		}
	}
}

// PrintResults writes one line per check followed by the verdict.
func (v *Validator) PrintResults(w io.Writer) {
	for _, result := range v.results {
		symbol := "✗"
		if result.Warning {
			symbol = "⚠"
		} else if result.Passed {
			symbol = "✓"
		}
		fmt.Fprintf(w, "%s %s: %s\n", symbol, result.Name, result.Message)
	}
	if failures := v.failures(); failures > 0 {
		fmt.Fprintf(w, "\nValidation failed with %d error(s)\n", failures)
		return
	}
	fmt.Fprintln(w, "\nReady to run sandboxed jobs")
}
