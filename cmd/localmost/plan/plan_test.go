// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"bytes"
	"strings"
	"testing"

	"github.com/localmost/localmost/cmd/localmost/cli"
	"github.com/localmost/localmost/lib/workflow"
)

const document = `
name: ci
jobs:
  lint:
    runs-on: ubuntu-latest
    steps:
      - run: make lint
  build:
    name: Build
    runs-on: ubuntu-latest
    strategy:
      matrix:
        os: [linux, darwin]
        go: ["1.24", "1.25"]
    steps:
      - run: make build
      - run: make package
  release:
    needs: [build, lint]
    uses: ./.github/workflows/release.yml
  dynamic:
    needs: build
    runs-on: ubuntu-latest
    strategy:
      matrix: ${{ fromJSON(needs.build.outputs.targets) }}
    steps:
      - run: make
`

func TestBuild(t *testing.T) {
	t.Parallel()

	wf, err := workflow.Parse([]byte(document), "ci.yml")
	if err != nil {
		t.Fatal(err)
	}
	plan, err := Build(wf)
	if err != nil {
		t.Fatal(err)
	}

	var stages []string
	for _, stage := range plan.Stages {
		var ids []string
		for _, entry := range stage {
			ids = append(ids, entry.ID)
		}
		stages = append(stages, strings.Join(ids, ","))
	}
	if got, want := strings.Join(stages, " | "), "lint,build | release,dynamic"; got != want {
		t.Errorf("stages = %q, want %q", got, want)
	}

	combinations := map[string]int{}
	for _, stage := range plan.Stages {
		for _, entry := range stage {
			combinations[entry.ID] = entry.Combinations
		}
	}
	for id, want := range map[string]int{"lint": 1, "build": 4, "release": 1, "dynamic": 0} {
		if combinations[id] != want {
			t.Errorf("%s combinations = %d, want %d", id, combinations[id], want)
		}
	}
}

func TestWrite(t *testing.T) {
	t.Parallel()

	wf, err := workflow.Parse([]byte(document), "ci.yml")
	if err != nil {
		t.Fatal(err)
	}
	plan, err := Build(wf)
	if err != nil {
		t.Fatal(err)
	}

	var output bytes.Buffer
	Write(&output, cli.Painter{Theme: cli.DefaultTheme}, plan)
	text := output.String()
	for _, want := range []string{
		"ci (ci.yml)",
		"Stage 1",
		"  lint  1 step\n",
		`  build  "Build", 2 steps, 4 combinations`,
		"Stage 2",
		"  release  calls ./.github/workflows/release.yml, needs build, lint",
		"  dynamic  1 step, matrix computed at run time, needs build",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}
