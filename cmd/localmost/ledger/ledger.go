// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package ledger renders engine events as the human-readable job and
// step ledger of localmost run, and mirrors step and job outcomes into
// the JSONL run log.
package ledger

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/localmost/localmost/cmd/localmost/cli"
	"github.com/localmost/localmost/lib/engine"
	"github.com/localmost/localmost/lib/runlog"
	"github.com/localmost/localmost/lib/workflow"
)

// Ledger writes one run's progress to out.
type Ledger struct {
	out     io.Writer
	painter cli.Painter
	log     *runlog.Log
}

// New returns a Ledger writing to out. log may be nil.
func New(out io.Writer, painter cli.Painter, log *runlog.Log) *Ledger {
	return &Ledger{out: out, painter: painter, log: log}
}

// Consume renders every event until events is closed.
func (l *Ledger) Consume(events <-chan engine.Event) {
	for event := range events {
		l.Render(event)
	}
}

// Render writes one event.
func (l *Ledger) Render(event engine.Event) {
	theme := l.painter.Theme
	switch event.Kind {
	case engine.EventJobStarted:
		fmt.Fprintf(l.out, "%s %s\n", l.painter.Bold(theme.Header, "▶"), l.painter.Bold(theme.Header, jobLabel(event.Job, event.Matrix)))

	case engine.EventStepStarted:
		fmt.Fprintf(l.out, "  %s %s\n", l.painter.Paint(theme.StatusRunning, "→"), event.StepName)

	case engine.EventStepOutput:
		prefix := l.painter.Paint(theme.FaintText, "    │")
		line := event.Line
		if event.Stream == engine.Stderr {
			line = l.painter.Paint(theme.Warning, line)
		}
		fmt.Fprintf(l.out, "%s %s\n", prefix, line)

	case engine.EventMessage:
		fmt.Fprintf(l.out, "    %s\n", l.painter.Paint(theme.FaintText, "· "+event.Line))

	case engine.EventStepFinished:
		if event.StepResult == nil {
			return
		}
		l.renderStep(event, *event.StepResult)

	case engine.EventJobFinished:
		if event.JobResult == nil {
			return
		}
		l.renderJob(event, *event.JobResult)
	}
}

func (l *Ledger) renderStep(event engine.Event, step engine.StepResult) {
	symbol, color := l.status(step.Status)
	line := fmt.Sprintf("  %s %s", l.painter.Paint(color, symbol), step.Name)
	switch step.Status {
	case engine.StatusSuccess:
		line += l.painter.Paint(l.painter.Theme.FaintText, " ("+formatDuration(step.Duration)+")")
	case engine.StatusFailure:
		detail := step.Error
		if step.ContinueOnError {
			detail += ", continuing"
		}
		line += l.painter.Paint(color, ": "+detail)
	case engine.StatusSkipped:
		if step.Reason != "" {
			line += l.painter.Paint(l.painter.Theme.FaintText, " (skipped: "+step.Reason+")")
		}
	}
	fmt.Fprintln(l.out, line)

	l.log.Step(runlog.StepEntry{
		Job:         event.Job,
		Matrix:      event.Matrix,
		Index:       step.Index,
		Name:        step.Name,
		Status:      string(step.Status),
		DurationMS:  step.Duration.Milliseconds(),
		Error:       step.Error,
		Unsupported: step.Unsupported,
		Outputs:     step.Outputs,
	})
}

func (l *Ledger) renderJob(event engine.Event, job engine.JobResult) {
	symbol, color := l.status(job.Status)
	line := fmt.Sprintf("%s %s %s", l.painter.Bold(color, symbol), jobLabel(event.Job, event.Matrix), l.painter.Paint(color, string(job.Status)))
	if job.Status != engine.StatusSkipped {
		line += l.painter.Paint(l.painter.Theme.FaintText, " in "+formatDuration(job.Duration))
	}
	if job.Reason != "" {
		line += l.painter.Paint(l.painter.Theme.FaintText, " ("+job.Reason+")")
	}
	fmt.Fprintf(l.out, "%s\n\n", line)

	l.log.Job(runlog.JobEntry{
		Job:        event.Job,
		Matrix:     event.Matrix,
		Status:     string(job.Status),
		DurationMS: job.Duration.Milliseconds(),
		Reason:     job.Reason,
		Outputs:    job.Outputs,
	})
}

// Summary writes the closing table of a run: one row per job result.
func (l *Ledger) Summary(result *engine.WorkflowResult) {
	if result == nil {
		return
	}
	fmt.Fprintln(l.out, l.painter.Bold(l.painter.Theme.Header, "Summary"))
	writer := tabwriter.NewWriter(l.out, 2, 0, 2, ' ', 0)
	counts := map[engine.Status]int{}
	for _, job := range result.Jobs {
		counts[job.Status]++
		symbol, color := l.status(job.Status)
		fmt.Fprintf(writer, "  %s\t%s\t%s\t%s\n",
			l.painter.Paint(color, symbol),
			jobLabel(job.ID, formatMatrix(job)),
			job.Status,
			formatDuration(job.Duration))
	}
	writer.Flush()

	_, color := l.status(result.Status)
	fmt.Fprintf(l.out, "\n%s %s: %d succeeded, %d failed, %d skipped in %s\n",
		l.painter.Bold(color, string(result.Status)),
		result.Workflow,
		counts[engine.StatusSuccess],
		counts[engine.StatusFailure],
		counts[engine.StatusSkipped],
		formatDuration(result.Duration))
}

func (l *Ledger) status(status engine.Status) (string, lipgloss.Color) {
	theme := l.painter.Theme
	switch status {
	case engine.StatusSuccess:
		return "✓", theme.StatusSuccess
	case engine.StatusFailure:
		return "✗", theme.StatusFailure
	case engine.StatusSkipped:
		return "○", theme.StatusSkipped
	default:
		return "·", theme.StatusRunning
	}
}

func jobLabel(job, matrix string) string {
	if matrix == "" {
		return job
	}
	return job + " (" + matrix + ")"
}

func formatMatrix(job engine.JobResult) string {
	if len(job.Matrix) == 0 {
		return ""
	}
	return workflow.FormatCombination(job.Matrix)
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}
