// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package run

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/localmost/localmost/lib/testutil"
	"github.com/localmost/localmost/lib/workflow"
)

func parseWorkflow(t *testing.T, content string) *workflow.Workflow {
	t.Helper()
	wf, err := workflow.Parse([]byte(content), "")
	if err != nil {
		t.Fatal(err)
	}
	return wf
}

func TestParseAssignments(t *testing.T) {
	t.Parallel()

	got, err := parseAssignments("input", []string{"name=world", "empty=", "expr=a=b", "name=again"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"name": "again", "empty": "", "expr": "a=b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("parseAssignments = %v, want %v", got, want)
	}

	for _, bad := range []string{"novalue", "=value", " =x"} {
		if _, err := parseAssignments("input", []string{bad}); err == nil {
			t.Errorf("parseAssignments(%q) succeeded, want an error", bad)
		}
	}
}

func TestResolveInputs(t *testing.T) {
	t.Parallel()

	dispatch := parseWorkflow(t, `
on:
  workflow_dispatch:
    inputs:
      target:
        required: true
      dry-run:
        type: boolean
        default: false
      retries:
        type: number
        default: 3
jobs:
  deploy:
    runs-on: ubuntu-latest
    steps:
      - run: echo deploy
`)

	tests := []struct {
		name    string
		wf      *workflow.Workflow
		given   map[string]string
		want    map[string]any
		wantErr string
	}{
		{
			name:  "defaults and conversion",
			wf:    dispatch,
			given: map[string]string{"target": "prod", "dry-run": "true"},
			want:  map[string]any{"target": "prod", "dry-run": true, "retries": 3},
		},
		{
			name:  "number",
			wf:    dispatch,
			given: map[string]string{"target": "prod", "retries": "5"},
			want:  map[string]any{"target": "prod", "dry-run": false, "retries": 5.0},
		},
		{
			name:    "missing required",
			wf:      dispatch,
			given:   map[string]string{},
			wantErr: `missing required inputs ["target"]`,
		},
		{
			name:    "unknown",
			wf:      dispatch,
			given:   map[string]string{"target": "prod", "colour": "red"},
			wantErr: `unknown inputs ["colour"]`,
		},
		{
			name:    "bad boolean",
			wf:      dispatch,
			given:   map[string]string{"target": "prod", "dry-run": "maybe"},
			wantErr: "input dry-run",
		},
		{
			name: "undeclared inputs pass through",
			wf: parseWorkflow(t, `
on: push
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - run: echo build
`),
			given: map[string]string{"anything": "goes"},
			want:  map[string]any{"anything": "goes"},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got, err := resolveInputs(test.wf, test.given)
			if test.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), test.wantErr) {
					t.Fatalf("error = %v, want it to contain %q", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, test.want) {
				t.Errorf("inputs = %#v, want %#v", got, test.want)
			}
		})
	}
}

func TestReferencedSecrets(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		".git/HEAD": "ref: refs/heads/main\n",
		".github/workflows/ci.yml": `
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - run: echo "${{ secrets.NPM_TOKEN }}"
  publish:
    uses: ./.github/workflows/publish.yml
    secrets: inherit
  remote:
    uses: octo/workflows/.github/workflows/scan.yml@v1
`,
		".github/workflows/publish.yml": `
on:
  workflow_call:
jobs:
  publish:
    runs-on: ubuntu-latest
    steps:
      - run: echo "${{ secrets.REGISTRY_PASSWORD }}"
`,
	})

	wf, err := workflow.ReadFile(filepath.Join(root, ".github", "workflows", "ci.yml"))
	if err != nil {
		t.Fatal(err)
	}
	names, err := referencedSecrets(wf)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(names, ","); got != "NPM_TOKEN,REGISTRY_PASSWORD" {
		t.Errorf("referencedSecrets = %q, want NPM_TOKEN,REGISTRY_PASSWORD", got)
	}
}

func TestReadEvent(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"event.jsonc": `{
  // the pull request under test
  "action": "opened",
  "pull_request": {"number": 42,},
}`,
		"broken.json": `{"action": `,
	})

	event, path, err := readEvent(filepath.Join(root, "event.jsonc"))
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(root, "event.jsonc") {
		t.Errorf("path = %q", path)
	}
	if event["action"] != "opened" {
		t.Errorf("action = %v, want opened", event["action"])
	}
	pullRequest, _ := event["pull_request"].(map[string]any)
	if pullRequest["number"] != 42.0 {
		t.Errorf("pull_request.number = %v, want 42", pullRequest["number"])
	}

	if _, _, err := readEvent(filepath.Join(root, "broken.json")); err == nil {
		t.Error("readEvent of a truncated document succeeded")
	}
}

func TestReadEnvFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		"base.env":  "# shared\nREGION=eu-west-1\nLOG_LEVEL=info\n",
		"local.env": "LOG_LEVEL=\"debug\"\nexport FEATURE=on\n",
	})

	env, err := readEnvFiles([]string{filepath.Join(root, "base.env"), filepath.Join(root, "local.env")})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"REGION": "eu-west-1", "LOG_LEVEL": "debug", "FEATURE": "on"}
	if !reflect.DeepEqual(env, want) {
		t.Errorf("env = %v, want %v", env, want)
	}

	if _, err := readEnvFiles([]string{filepath.Join(root, "missing.env")}); err == nil {
		t.Error("readEnvFiles of a missing file succeeded")
	}
}

func TestEventName(t *testing.T) {
	t.Parallel()

	dispatchAndPush := parseWorkflow(t, `
on:
  push:
  workflow_dispatch:
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - run: echo
`)
	callOnly := parseWorkflow(t, `
on: workflow_call
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - run: echo
`)

	tests := []struct {
		name       string
		wf         *workflow.Workflow
		dispatched bool
		want       string
	}{
		{"first trigger", dispatchAndPush, false, "push"},
		{"dispatched with inputs", dispatchAndPush, true, "workflow_dispatch"},
		{"callable only", callOnly, false, "push"},
	}
	for _, test := range tests {
		if got := eventName(test.wf, test.dispatched); got != test.want {
			t.Errorf("%s: eventName = %q, want %q", test.name, got, test.want)
		}
	}
}

func TestRepositorySlug(t *testing.T) {
	t.Parallel()

	tests := []struct {
		identifier string
		want       string
	}{
		{"github.com/octo/app", "octo/app"},
		{"gitlab.example.com/group/sub/app", "group/sub/app"},
		{"/home/dev/src/app", "app"},
		{"plain", "plain"},
	}
	for _, test := range tests {
		if got := repositorySlug(test.identifier); got != test.want {
			t.Errorf("repositorySlug(%q) = %q, want %q", test.identifier, got, test.want)
		}
	}
}
