// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"strings"
	"testing"

	"github.com/localmost/localmost/lib/policy"
	"github.com/localmost/localmost/lib/secret"
	"github.com/localmost/localmost/lib/workflow"
)

func envMap(pairs []string) map[string]string {
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		name, value, _ := strings.Cut(pair, "=")
		env[name] = value
	}
	return env
}

func TestFilterHostEnv(t *testing.T) {
	t.Parallel()

	host := []string{
		"PATH=/usr/bin",
		"HOME=/home/dev",
		"LC_ALL=C",
		"GITHUB_TOKEN=ghp_host",
		"AWS_REGION=eu-west-1",
		"AWS_SECRET_ACCESS_KEY=hunter2",
		"malformed",
	}

	got := FilterHostEnv(host, nil)
	for _, name := range []string{"PATH", "HOME", "LC_ALL"} {
		if _, ok := got[name]; !ok {
			t.Errorf("default filter dropped %s", name)
		}
	}
	for _, name := range []string{"GITHUB_TOKEN", "AWS_REGION", "malformed"} {
		if _, ok := got[name]; ok {
			t.Errorf("default filter passed %s", name)
		}
	}

	got = FilterHostEnv(host, &policy.EnvPolicy{
		Allow: []string{"AWS_*"},
		Deny:  []string{"AWS_SECRET_ACCESS_KEY", "HOME"},
	})
	if got["AWS_REGION"] != "eu-west-1" {
		t.Errorf("AWS_REGION = %q, want it allowed", got["AWS_REGION"])
	}
	for _, name := range []string{"AWS_SECRET_ACCESS_KEY", "HOME"} {
		if _, ok := got[name]; ok {
			t.Errorf("%s passed although denied", name)
		}
	}
}

func TestMatrixEnv(t *testing.T) {
	t.Parallel()

	got := MatrixEnv(workflow.Combination{"os": "linux", "node-version": 18, "experimental": true})
	want := map[string]string{
		"MATRIX_OS":           "linux",
		"MATRIX_NODE_VERSION": "18",
		"MATRIX_EXPERIMENTAL": "true",
	}
	if len(got) != len(want) {
		t.Fatalf("MatrixEnv = %q, want %q", got, want)
	}
	for name, value := range want {
		if got[name] != value {
			t.Errorf("%s = %q, want %q", name, got[name], value)
		}
	}
}

func TestStepEnvironmentPrecedence(t *testing.T) {
	t.Parallel()

	secrets := secret.NewSet()
	if err := secrets.Add("DEPLOY_TOKEN", "s3cr3t-value"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { secrets.Close() })

	ec := &ExecutionContext{
		JobID:         "build",
		WorkDir:       "/work",
		TempDir:       "/tmp/job",
		WorkflowEnv:   map[string]string{"A": "workflow", "B": "workflow"},
		JobEnv:        map[string]string{"B": "job", "C": "job"},
		RuntimeEnv:    map[string]string{"C": "runtime", "D": "runtime"},
		PathAdditions: []string{"/second/bin", "/first/bin"},
		Matrix:        workflow.Combination{"os": "linux"},
		Secrets:       secrets,
		GitHub:        map[string]string{"sha": "abc123", "repository": "acme/app"},
		Policy:        &policy.SandboxPolicy{Env: &policy.EnvPolicy{Deny: []string{"HOME"}}},
	}
	host := []string{"PATH=/usr/bin", "HOME=/home/dev", "CI=false", "A=host"}
	stepEnv := map[string]string{"D": "step", "DERIVED": "${{ env.A }}-${{ env.C }}"}
	files := map[string]string{"GITHUB_OUTPUT": "/tmp/job/out"}

	env := envMap(stepEnvironment(ec, host, stepEnv, files))

	want := map[string]string{
		"A":                 "workflow",
		"B":                 "job",
		"C":                 "runtime",
		"D":                 "step",
		"DERIVED":           "workflow-runtime",
		"DEPLOY_TOKEN":      "s3cr3t-value",
		"MATRIX_OS":         "linux",
		"CI":                "true",
		"GITHUB_WORKSPACE":  "/work",
		"GITHUB_JOB":        "build",
		"GITHUB_SHA":        "abc123",
		"GITHUB_REPOSITORY": "acme/app",
		"RUNNER_TEMP":       "/tmp/job",
		"GITHUB_OUTPUT":     "/tmp/job/out",
		"PATH":              "/second/bin:/first/bin:/usr/bin",
	}
	for name, value := range want {
		if env[name] != value {
			t.Errorf("%s = %q, want %q", name, env[name], value)
		}
	}
	if _, ok := env["HOME"]; ok {
		t.Error("HOME passed although the policy denies it")
	}
}

func TestEnvironSorted(t *testing.T) {
	t.Parallel()

	got := environ(map[string]string{"B": "2", "A": "1"})
	if strings.Join(got, " ") != "A=1 B=2" {
		t.Errorf("environ = %q", got)
	}
}
