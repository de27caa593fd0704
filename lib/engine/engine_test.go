// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/localmost/localmost/lib/actioncache"
	"github.com/localmost/localmost/lib/secret"
	"github.com/localmost/localmost/lib/testutil"
	"github.com/localmost/localmost/lib/workflow"
	"github.com/localmost/localmost/sandbox"
)

const testPath = "PATH=/usr/local/bin:/usr/bin:/bin"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, options Options) *Engine {
	t.Helper()
	if options.Launcher == nil {
		options.Launcher = sandbox.Unconfined{}
	}
	if options.DefaultShell == "" {
		options.DefaultShell = "sh"
	}
	options.HostEnv = []string{testPath}
	options.TempRoot = t.TempDir()
	options.Logger = discardLogger()
	engine, err := New(options)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine
}

// writeWorkflow writes content under root/.github/workflows/name and
// parses it.
func writeWorkflow(t *testing.T, root, name, content string) *workflow.Workflow {
	t.Helper()
	path := filepath.Join(root, ".github", "workflows", name)
	testutil.WriteTree(t, root, map[string]string{filepath.Join(".github", "workflows", name): content})
	wf, err := workflow.ReadFile(path)
	if err != nil {
		t.Fatalf("parsing %s: %v", name, err)
	}
	return wf
}

// recorder drains an EventStream on its own goroutine.
type recorder struct {
	stream *EventStream
	done   chan []Event
}

func record() *recorder {
	r := &recorder{stream: NewEventStream(16), done: make(chan []Event, 1)}
	go func() {
		var events []Event
		for event := range r.stream.Events() {
			events = append(events, event)
		}
		r.done <- events
	}()
	return r
}

func (r *recorder) finish(t *testing.T) []Event {
	t.Helper()
	r.stream.Close()
	return testutil.RequireReceive(t, (<-chan []Event)(r.done), 5*time.Second, "draining events")
}

func jobResult(t *testing.T, result *WorkflowResult, id string) JobResult {
	t.Helper()
	for _, job := range result.Jobs {
		if job.ID == id {
			return job
		}
	}
	t.Fatalf("no result for job %q in %+v", id, result.Jobs)
	return JobResult{}
}

func TestRunWorkflowOutputsAndEnvironment(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	wf := writeWorkflow(t, root, "ci.yml", `
name: ci
env:
  GREETING: hello
jobs:
  build:
    runs-on: ubuntu-latest
    outputs:
      version: ${{ steps.meta.outputs.version }}
      notes: ${{ steps.meta.outputs.notes }}
      missing: ${{ steps.absent.outputs.value }}
    steps:
      - id: meta
        run: |
          echo "version=1.2.3" >> "$GITHUB_OUTPUT"
          printf 'notes<<EOF\nfirst\nsecond\nEOF\n' >> "$GITHUB_OUTPUT"
          echo "FROM_STEP=carried" >> "$GITHUB_ENV"
          mkdir -p "$RUNNER_TEMP/tools"
          echo "$RUNNER_TEMP/tools" >> "$GITHUB_PATH"
      - run: |
          test "$FROM_STEP" = carried
          case "$PATH" in "$RUNNER_TEMP/tools:"*) ;; *) exit 1 ;; esac
      - run: echo "$GREETING ${{ steps.meta.outputs.version }} $DEPLOY_TOKEN"
  deploy:
    needs: build
    runs-on: ubuntu-latest
    steps:
      - run: test "${{ needs.build.outputs.version }}" = 1.2.3
`)

	secrets := secret.NewSet()
	if err := secrets.Add("DEPLOY_TOKEN", "tok-abcdef"); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { secrets.Close() })

	events := record()
	engine := newTestEngine(t, Options{})
	result, err := engine.RunWorkflow(context.Background(), wf, RunOptions{
		WorkDir: root,
		Secrets: secrets,
		Events:  events.stream,
	})
	if err != nil {
		t.Fatalf("RunWorkflow: %v", err)
	}
	recorded := events.finish(t)

	if strings.Join(result.Order, ",") != "build,deploy" {
		t.Errorf("Order = %q, want [build deploy]", result.Order)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("Status = %s, want success; jobs: %+v", result.Status, result.Jobs)
	}

	build := jobResult(t, result, "build")
	if build.Outputs["version"] != "1.2.3" {
		t.Errorf("version = %q, want 1.2.3", build.Outputs["version"])
	}
	if build.Outputs["notes"] != "first\nsecond" {
		t.Errorf("notes = %q, want heredoc value", build.Outputs["notes"])
	}
	if _, ok := build.Outputs["missing"]; ok {
		t.Error("output of a step that never ran should be omitted")
	}
	if jobResult(t, result, "deploy").Status != StatusSuccess {
		t.Error("deploy did not receive build's outputs")
	}

	var lines []string
	for _, event := range recorded {
		if event.Kind == EventStepOutput {
			lines = append(lines, event.Line)
		}
	}
	output := strings.Join(lines, "\n")
	if !strings.Contains(output, "hello 1.2.3 "+secret.Mask) {
		t.Errorf("streamed output = %q, want the greeting with the token masked", output)
	}
	if strings.Contains(output, "tok-abcdef") {
		t.Error("secret value leaked into streamed output")
	}

	if len(recorded) == 0 || recorded[0].Kind != EventJobStarted || recorded[0].Job != "build" {
		t.Errorf("first event = %+v, want build's job-started", recorded[0])
	}
	last := recorded[len(recorded)-1]
	if last.Kind != EventJobFinished || last.Job != "deploy" || last.JobResult == nil {
		t.Errorf("last event = %+v, want deploy's job-finished", last)
	}
}

func TestNeedsFailureGating(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	wf := writeWorkflow(t, root, "ci.yml", `
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - run: exit 3
  deploy:
    needs: build
    runs-on: ubuntu-latest
    steps:
      - run: "true"
  notify:
    needs: deploy
    if: always()
    runs-on: ubuntu-latest
    steps:
      - run: "true"
  lint:
    runs-on: ubuntu-latest
    steps:
      - run: "true"
`)
	engine := newTestEngine(t, Options{})

	t.Run("dependents skipped", func(t *testing.T) {
		t.Parallel()
		result, err := engine.RunWorkflow(context.Background(), wf, RunOptions{WorkDir: root})
		if err != nil {
			t.Fatal(err)
		}
		if result.Status != StatusFailure {
			t.Errorf("Status = %s, want failure", result.Status)
		}
		build := jobResult(t, result, "build")
		if build.Status != StatusFailure || build.Steps[0].ExitCode != 3 {
			t.Errorf("build = %s exit %d, want failure exit 3", build.Status, build.Steps[0].ExitCode)
		}
		deploy := jobResult(t, result, "deploy")
		if deploy.Status != StatusSkipped || !strings.Contains(deploy.Reason, `"build"`) {
			t.Errorf("deploy = %s (%q), want skipped naming build", deploy.Status, deploy.Reason)
		}
		if got := jobResult(t, result, "notify").Status; got != StatusSuccess {
			t.Errorf("always() dependent = %s, want success", got)
		}
		if got := jobResult(t, result, "lint").Status; got != StatusSuccess {
			t.Errorf("independent job = %s, want success", got)
		}
	})

	t.Run("ignore needs failure", func(t *testing.T) {
		t.Parallel()
		result, err := engine.RunWorkflow(context.Background(), wf, RunOptions{WorkDir: root, IgnoreNeedsFailure: true})
		if err != nil {
			t.Fatal(err)
		}
		if got := jobResult(t, result, "deploy").Status; got != StatusSuccess {
			t.Errorf("deploy = %s, want success when needs failures are ignored", got)
		}
	})

	t.Run("job selection", func(t *testing.T) {
		t.Parallel()
		result, err := engine.RunWorkflow(context.Background(), wf, RunOptions{WorkDir: root, Jobs: []string{"deploy"}})
		if err != nil {
			t.Fatal(err)
		}
		if strings.Join(result.Order, ",") != "deploy" || result.Jobs[0].Status != StatusSuccess {
			t.Errorf("selected run = %q %+v, want deploy alone succeeding", result.Order, result.Jobs)
		}
		if _, err := engine.RunWorkflow(context.Background(), wf, RunOptions{WorkDir: root, Jobs: []string{"nope"}}); err == nil {
			t.Error("unknown job selection should fail")
		}
	})
}

func TestStepHalting(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	wf := writeWorkflow(t, root, "ci.yml", `
jobs:
  test:
    runs-on: ubuntu-latest
    steps:
      - name: tolerated
        continue-on-error: true
        run: exit 1
      - name: fatal
        run: exit 2
      - name: skipped
        run: "true"
      - name: cleanup
        if: ${{ always() }}
        run: "true"
      - name: on failure
        if: failure()
        run: "true"
`)
	engine := newTestEngine(t, Options{})
	result, err := engine.RunWorkflow(context.Background(), wf, RunOptions{WorkDir: root})
	if err != nil {
		t.Fatal(err)
	}

	job := jobResult(t, result, "test")
	if job.Status != StatusFailure {
		t.Errorf("job = %s, want failure", job.Status)
	}
	want := []Status{StatusFailure, StatusFailure, StatusSkipped, StatusSuccess, StatusSkipped}
	if len(job.Steps) != len(want) {
		t.Fatalf("got %d steps, want %d", len(job.Steps), len(want))
	}
	for i, status := range want {
		if job.Steps[i].Status != status {
			t.Errorf("step %d (%s) = %s, want %s", i, job.Steps[i].Name, job.Steps[i].Status, status)
		}
		if job.Steps[i].Index != i {
			t.Errorf("step %d has Index %d", i, job.Steps[i].Index)
		}
	}
	if !job.Steps[0].ContinueOnError {
		t.Error("first step should record continue-on-error")
	}
}

func TestStepTimeout(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	wf := writeWorkflow(t, root, "ci.yml", `
jobs:
  slow:
    runs-on: ubuntu-latest
    steps:
      - timeout-minutes: 0.002
        run: sleep 30
`)
	engine := newTestEngine(t, Options{})

	start := time.Now()
	result, err := engine.RunWorkflow(context.Background(), wf, RunOptions{WorkDir: root})
	if err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed > 20*time.Second {
		t.Errorf("timed out step ran for %v", elapsed)
	}
	step := jobResult(t, result, "slow").Steps[0]
	if step.Status != StatusFailure || !strings.Contains(step.Error, "timeout-minutes") {
		t.Errorf("step = %s (%q), want a timeout failure", step.Status, step.Error)
	}
}

func TestCancelledRunSkipsJobs(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	wf := writeWorkflow(t, root, "ci.yml", `
jobs:
  a:
    runs-on: ubuntu-latest
    steps:
      - run: "true"
`)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := newTestEngine(t, Options{}).RunWorkflow(ctx, wf, RunOptions{WorkDir: root})
	if err != nil {
		t.Fatal(err)
	}
	if job := jobResult(t, result, "a"); job.Status != StatusSkipped || job.Reason != "run cancelled" {
		t.Errorf("job = %s (%q), want skipped as cancelled", job.Status, job.Reason)
	}
}

func TestMatrixFailFastAndOverride(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	wf := writeWorkflow(t, root, "ci.yml", `
jobs:
  test:
    runs-on: ubuntu-latest
    strategy:
      matrix:
        n: [1, 2, 3]
    steps:
      - run: test "$MATRIX_N" != 2 && test "${{ matrix.n }}" != 2
`)
	engine := newTestEngine(t, Options{})

	result, err := engine.RunWorkflow(context.Background(), wf, RunOptions{WorkDir: root})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Jobs) != 3 {
		t.Fatalf("got %d job results, want 3", len(result.Jobs))
	}
	want := []Status{StatusSuccess, StatusFailure, StatusSkipped}
	for i, status := range want {
		if result.Jobs[i].Status != status {
			t.Errorf("combination %v = %s, want %s", result.Jobs[i].Matrix, result.Jobs[i].Status, status)
		}
	}

	result, err = engine.RunWorkflow(context.Background(), wf, RunOptions{
		WorkDir: root,
		Matrix:  workflow.Combination{"n": 3},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Jobs) != 1 || result.Jobs[0].Status != StatusSuccess {
		t.Errorf("override run = %+v, want the n=3 combination alone", result.Jobs)
	}
}

func TestComputedMatrixNeedsOverride(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	wf := writeWorkflow(t, root, "ci.yml", `
jobs:
  test:
    runs-on: ubuntu-latest
    strategy:
      matrix: ${{ fromJSON(needs.setup.outputs.matrix) }}
    steps:
      - run: test "${{ matrix.os }}" = linux
`)
	engine := newTestEngine(t, Options{})

	result, err := engine.RunWorkflow(context.Background(), wf, RunOptions{WorkDir: root})
	if err != nil {
		t.Fatal(err)
	}
	if got := jobResult(t, result, "test"); got.Status != StatusFailure || !strings.Contains(got.Reason, "--matrix") {
		t.Errorf("without override: status %s reason %q, want a failure suggesting --matrix", got.Status, got.Reason)
	}

	result, err = engine.RunWorkflow(context.Background(), wf, RunOptions{
		WorkDir: root,
		Matrix:  workflow.Combination{"os": "linux"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := jobResult(t, result, "test"); got.Status != StatusSuccess {
		t.Errorf("with override: status %s reason %q, want success", got.Status, got.Reason)
	}
}

func TestCompositeActionOutputIsolation(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{
		".github/actions/greet/action.yml": `
name: greet
inputs:
  who:
    default: world
outputs:
  message:
    value: ${{ steps.out.outputs.text }}
runs:
  using: composite
  steps:
    - id: out
      shell: sh
      run: echo "text=hi ${{ inputs.who }}" >> "$GITHUB_OUTPUT"
    - shell: sh
      run: test "$GITHUB_ACTION_PATH" = "${{ github.workspace }}/.github/actions/greet"
`,
	})
	wf := writeWorkflow(t, root, "ci.yml", `
jobs:
  greet:
    runs-on: ubuntu-latest
    outputs:
      message: ${{ steps.call.outputs.message }}
      leaked: ${{ steps.out.outputs.text }}
    steps:
      - id: call
        uses: ./.github/actions/greet
        with:
          who: localmost
      - id: default
        uses: ./.github/actions/greet
      - run: test "${{ steps.call.outputs.message }}" = "hi localmost"
      - run: test "${{ steps.default.outputs.message }}" = "hi world"
`)
	result, err := newTestEngine(t, Options{}).RunWorkflow(context.Background(), wf, RunOptions{WorkDir: root})
	if err != nil {
		t.Fatal(err)
	}

	job := jobResult(t, result, "greet")
	if job.Status != StatusSuccess {
		t.Fatalf("job = %s (%s); steps %+v", job.Status, job.Reason, job.Steps)
	}
	if job.Outputs["message"] != "hi localmost" {
		t.Errorf("message = %q, want %q", job.Outputs["message"], "hi localmost")
	}
	if _, ok := job.Outputs["leaked"]; ok {
		t.Error("a step id inside the composite action leaked into the job")
	}
}

func TestUnsupportedActions(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	wf := writeWorkflow(t, root, "ci.yml", `
jobs:
  odd:
    runs-on: ubuntu-latest
    steps:
      - uses: not-a-reference
      - uses: docker://alpine:3
`)
	result, err := newTestEngine(t, Options{}).RunWorkflow(context.Background(), wf, RunOptions{WorkDir: root})
	if err != nil {
		t.Fatal(err)
	}
	steps := jobResult(t, result, "odd").Steps
	if steps[0].Status != StatusSkipped || !steps[0].Unsupported {
		t.Errorf("unknown reference = %s unsupported=%v, want an unsupported skip", steps[0].Status, steps[0].Unsupported)
	}
	if steps[1].Status != StatusFailure || !steps[1].Unsupported {
		t.Errorf("docker action = %s unsupported=%v, want an unsupported failure", steps[1].Status, steps[1].Unsupported)
	}
}

func TestCacheIntercept(t *testing.T) {
	t.Parallel()

	store, err := actioncache.Open(t.TempDir(), actioncache.Options{Logger: discardLogger()})
	if err != nil {
		t.Fatal(err)
	}
	engine := newTestEngine(t, Options{Cache: store})
	const content = `
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - id: cache
        uses: actions/cache@v4
        with:
          path: deps
          key: deps-v1
      - run: test -f deps/file || { mkdir -p deps && echo data > deps/file; }
      - run: echo "hit=${{ steps.cache.outputs.cache-hit }}" >> "$GITHUB_OUTPUT"
        id: report
    outputs:
      hit: ${{ steps.report.outputs.hit }}
`

	first := t.TempDir()
	result, err := engine.RunWorkflow(context.Background(), writeWorkflow(t, first, "ci.yml", content), RunOptions{WorkDir: first})
	if err != nil {
		t.Fatal(err)
	}
	job := jobResult(t, result, "build")
	if job.Status != StatusSuccess || job.Outputs["hit"] != "false" {
		t.Fatalf("first run = %s hit=%q, want success with a miss", job.Status, job.Outputs["hit"])
	}
	if last := job.Steps[len(job.Steps)-1]; !strings.HasPrefix(last.Name, "Post ") || last.Status != StatusSuccess {
		t.Errorf("last step = %q %s, want the post-job cache save", last.Name, last.Status)
	}

	second := t.TempDir()
	result, err = engine.RunWorkflow(context.Background(), writeWorkflow(t, second, "ci.yml", content), RunOptions{WorkDir: second})
	if err != nil {
		t.Fatal(err)
	}
	job = jobResult(t, result, "build")
	if job.Outputs["hit"] != "true" {
		t.Errorf("second run hit = %q, want true", job.Outputs["hit"])
	}
	if got := testutil.ReadFile(t, filepath.Join(second, "deps", "file")); got != "data\n" {
		t.Errorf("restored file = %q, want %q", got, "data\n")
	}
}

func TestArtifactsStayLocal(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	artifacts := t.TempDir()
	wf := writeWorkflow(t, root, "ci.yml", `
jobs:
  build:
    runs-on: ubuntu-latest
    steps:
      - run: mkdir -p out && echo x > out/a.txt
      - uses: actions/upload-artifact@v4
        with:
          name: bundle
          path: out
  verify:
    needs: build
    runs-on: ubuntu-latest
    steps:
      - uses: actions/download-artifact@v4
        with:
          name: bundle
          path: restored
      - run: test -f restored/out/a.txt
`)
	result, err := newTestEngine(t, Options{ArtifactDir: artifacts}).RunWorkflow(context.Background(), wf, RunOptions{WorkDir: root})
	if err != nil {
		t.Fatal(err)
	}
	if result.Status != StatusSuccess {
		t.Fatalf("Status = %s; jobs %+v", result.Status, result.Jobs)
	}
	if _, err := os.Stat(filepath.Join(artifacts, "bundle", "out", "a.txt")); err != nil {
		t.Errorf("artifact not stored locally: %v", err)
	}
}

func TestReusableWorkflow(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	testutil.WriteTree(t, root, map[string]string{".git/HEAD": "ref: refs/heads/main\n"})
	writeWorkflow(t, root, "build.yml", `
on:
  workflow_call:
    inputs:
      target:
        type: string
        default: debug
    outputs:
      artifact:
        value: ${{ jobs.compile.outputs.file }}
jobs:
  compile:
    runs-on: ubuntu-latest
    outputs:
      file: ${{ steps.c.outputs.file }}
    steps:
      - id: c
        run: echo "file=app-${{ inputs.target }}" >> "$GITHUB_OUTPUT"
`)
	wf := writeWorkflow(t, root, "ci.yml", `
jobs:
  call:
    uses: ./.github/workflows/build.yml
    with:
      target: release
  after:
    needs: call
    runs-on: ubuntu-latest
    steps:
      - run: test "${{ needs.call.outputs.artifact }}" = app-release
  remote:
    uses: octo/repo/.github/workflows/x.yml@main
`)

	events := record()
	result, err := newTestEngine(t, Options{}).RunWorkflow(context.Background(), wf, RunOptions{WorkDir: root, Events: events.stream})
	if err != nil {
		t.Fatal(err)
	}
	recorded := events.finish(t)

	call := jobResult(t, result, "call")
	if call.Status != StatusSuccess || call.Outputs["artifact"] != "app-release" {
		t.Errorf("call = %s outputs %q, want success with artifact=app-release", call.Status, call.Outputs)
	}
	if len(call.Children) != 1 || call.Children[0].ID != "compile" {
		t.Errorf("children = %+v, want the compile job", call.Children)
	}
	if got := jobResult(t, result, "after").Status; got != StatusSuccess {
		t.Errorf("after = %s, want success", got)
	}
	remote := jobResult(t, result, "remote")
	if remote.Status != StatusSkipped || !remote.Unsupported {
		t.Errorf("remote = %s unsupported=%v, want an unsupported skip", remote.Status, remote.Unsupported)
	}

	found := false
	for _, event := range recorded {
		if event.Job == "call/compile" {
			found = true
			break
		}
	}
	if !found {
		t.Error("events of the called workflow should carry the qualified job id call/compile")
	}
}
