// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"maps"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"

	"github.com/localmost/localmost/lib/policy"
	"github.com/localmost/localmost/lib/workflow"
)

// DefaultHostEnv lists the host variables passed to steps when the
// policy does not say otherwise. Entries ending in * match a prefix.
var DefaultHostEnv = []string{
	"PATH",
	"HOME",
	"USER",
	"LOGNAME",
	"SHELL",
	"TERM",
	"TMPDIR",
	"LANG",
	"LC_*",
	"TZ",
}

// FilterHostEnv selects the host variables a step may see: the
// defaults plus env.allow, minus env.deny. Deny wins.
func FilterHostEnv(host []string, envPolicy *policy.EnvPolicy) map[string]string {
	allow := DefaultHostEnv
	var deny []string
	if envPolicy != nil {
		allow = policy.Union(allow, envPolicy.Allow)
		deny = envPolicy.Deny
	}

	filtered := make(map[string]string)
	for _, entry := range host {
		name, value, found := strings.Cut(entry, "=")
		if !found || name == "" {
			continue
		}
		if matchesEnvPattern(name, allow) && !matchesEnvPattern(name, deny) {
			filtered[name] = value
		}
	}
	return filtered
}

func matchesEnvPattern(name string, patterns []string) bool {
	for _, pattern := range patterns {
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
			if strings.HasPrefix(name, prefix) {
				return true
			}
		} else if name == pattern {
			return true
		}
	}
	return false
}

// ProviderEnv returns the CI provider variables every step sees.
func ProviderEnv(ec *ExecutionContext) map[string]string {
	env := map[string]string{
		"CI":                 "true",
		"GITHUB_ACTIONS":     "true",
		"LOCALMOST":          "true",
		"GITHUB_WORKSPACE":   ec.WorkDir,
		"GITHUB_JOB":         ec.JobID,
		"RUNNER_OS":          runnerOS(),
		"RUNNER_ARCH":        runnerArch(),
		"RUNNER_TEMP":        ec.TempDir,
		"RUNNER_NAME":        "localmost",
		"RUNNER_ENVIRONMENT": "self-hosted",
	}
	if ec.Workflow != nil {
		env["GITHUB_WORKFLOW"] = ec.Workflow.Name
	}
	for property, variable := range githubVariables {
		if value := ec.GitHub[property]; value != "" {
			env[variable] = value
		}
	}
	if toolCache := ec.Runner["tool_cache"]; toolCache != "" {
		env["RUNNER_TOOL_CACHE"] = toolCache
	}
	if ec.ActionPath != "" {
		env["GITHUB_ACTION_PATH"] = ec.ActionPath
	}
	return env
}

// githubVariables maps github.* properties onto their environment
// variable names.
var githubVariables = map[string]string{
	"sha":        "GITHUB_SHA",
	"ref":        "GITHUB_REF",
	"ref_name":   "GITHUB_REF_NAME",
	"repository": "GITHUB_REPOSITORY",
	"actor":      "GITHUB_ACTOR",
	"event_name": "GITHUB_EVENT_NAME",
	"event_path": "GITHUB_EVENT_PATH",
	"run_id":     "GITHUB_RUN_ID",
	"run_number": "GITHUB_RUN_NUMBER",
	"server_url": "GITHUB_SERVER_URL",
	"base_ref":   "GITHUB_BASE_REF",
	"head_ref":   "GITHUB_HEAD_REF",
}

// RunnerContext returns the runner.* values for this host.
func RunnerContext(tempDir, toolCache string) map[string]string {
	return map[string]string{
		"os":         runnerOS(),
		"arch":       runnerArch(),
		"name":       "localmost",
		"temp":       tempDir,
		"tool_cache": toolCache,
	}
}

func runnerOS() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS"
	case "windows":
		return "Windows"
	default:
		return "Linux"
	}
}

func runnerArch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "X64"
	case "arm64":
		return "ARM64"
	case "386":
		return "X86"
	default:
		return strings.ToUpper(runtime.GOARCH)
	}
}

// MatrixEnv exposes a combination as MATRIX_<NAME> variables. Names are
// upper-cased and characters outside [A-Z0-9_] become underscores.
func MatrixEnv(combination workflow.Combination) map[string]string {
	env := make(map[string]string, len(combination))
	for name, value := range combination {
		env["MATRIX_"+envName(name)] = workflow.FormatScalar(value)
	}
	return env
}

// envName upper-cases name and replaces characters that are not valid
// in a variable name.
func envName(name string) string {
	var builder strings.Builder
	for _, r := range strings.ToUpper(name) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			builder.WriteRune(r)
		} else {
			builder.WriteByte('_')
		}
	}
	return builder.String()
}

// stepEnvironment assembles the full environment of a step process, in
// increasing precedence: filtered host variables, provider variables,
// matrix values, secrets, then the declared env layers (workflow, job,
// GITHUB_ENV, step). files are the file-command paths of this step and
// always win. PATH gets GITHUB_PATH additions prepended.
func stepEnvironment(ec *ExecutionContext, hostEnv []string, stepEnv map[string]string, files map[string]string) []string {
	env := FilterHostEnv(hostEnv, envPolicyOf(ec.Policy))
	maps.Copy(env, ProviderEnv(ec))
	maps.Copy(env, MatrixEnv(ec.Matrix))
	if ec.Secrets != nil {
		maps.Copy(env, ec.Secrets.Map())
	}
	maps.Copy(env, ec.DeclaredEnv(stepEnv))
	maps.Copy(env, files)

	if len(ec.PathAdditions) > 0 {
		path := strings.Join(ec.PathAdditions, string(filepath.ListSeparator))
		if existing := env["PATH"]; existing != "" {
			path += string(filepath.ListSeparator) + existing
		}
		env["PATH"] = path
	}

	return environ(env)
}

// environ renders env as sorted KEY=VALUE pairs.
func environ(env map[string]string) []string {
	names := slices.Collect(maps.Keys(env))
	sort.Strings(names)
	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+env[name])
	}
	return pairs
}

func envPolicyOf(p *policy.SandboxPolicy) *policy.EnvPolicy {
	if p == nil {
		return nil
	}
	return p.Env
}
