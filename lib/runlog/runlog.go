// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package runlog writes the JSONL ledger of one localmost run.
//
// Each line is an independent JSON object, so a run killed midway
// leaves every completed job and step readable, and a second terminal
// can tail the file for progress. Files are named <run-id>.jsonl under
// the configured runs directory, where the run id is a random UUID.
//
// A nil *Log is valid and discards everything, so callers that run
// without a ledger do not branch.
package runlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/localmost/localmost/lib/clock"
	"github.com/localmost/localmost/lib/version"
)

// Options configures Create.
type Options struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

// Log is an open run ledger.
type Log struct {
	id      string
	path    string
	clock   clock.Clock
	logger  *slog.Logger
	file    *os.File
	encoder *json.Encoder
	started time.Time
}

// Create opens a new ledger in dir under a fresh run id.
func Create(dir string, options Options) (*Log, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating run log directory: %w", err)
	}

	id := uuid.NewString()
	path := filepath.Join(dir, id+".jsonl")
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating run log %s: %w", path, err)
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := clock.OrReal(options.Clock)
	return &Log{
		id:      id,
		path:    path,
		clock:   c,
		logger:  logger,
		file:    file,
		encoder: json.NewEncoder(file),
		started: c.Now(),
	}, nil
}

// ID returns the run id, or "" for a nil Log.
func (l *Log) ID() string {
	if l == nil {
		return ""
	}
	return l.id
}

// Path returns the ledger file path, or "" for a nil Log.
func (l *Log) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Close closes the ledger file.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}

// Start records the beginning of a run.
func (l *Log) Start(workflow, repository, launcher string, jobs []string) {
	if l == nil {
		return
	}
	l.write(StartEntry{
		Type:       "start",
		RunID:      l.id,
		Workflow:   workflow,
		Repository: repository,
		Launcher:   launcher,
		Jobs:       jobs,
		UserAgent:  version.UserAgent(),
		Timestamp:  l.timestamp(),
	})
}

// Step records the outcome of one step.
func (l *Log) Step(entry StepEntry) {
	if l == nil {
		return
	}
	entry.Type = "step"
	entry.Timestamp = l.timestamp()
	l.write(entry)
}

// Job records the outcome of one job (or one matrix combination of it).
func (l *Log) Job(entry JobEntry) {
	if l == nil {
		return
	}
	entry.Type = "job"
	entry.Timestamp = l.timestamp()
	l.write(entry)
}

// Complete records the end of the run. status is "success" or
// "failure".
func (l *Log) Complete(status string) {
	if l == nil {
		return
	}
	l.write(CompleteEntry{
		Type:       "complete",
		Status:     status,
		DurationMS: clock.Since(l.clock, l.started).Milliseconds(),
		Timestamp:  l.timestamp(),
	})
}

func (l *Log) timestamp() string {
	return l.clock.Now().UTC().Format(time.RFC3339Nano)
}

func (l *Log) write(entry any) {
	if err := l.encoder.Encode(entry); err != nil {
		l.logger.Warn("failed to write run log entry", "error", err)
		return
	}
	// Readers tailing the file see each line as soon as it exists.
	if err := l.file.Sync(); err != nil {
		l.logger.Warn("failed to sync run log", "error", err)
	}
}

// StartEntry is the first line of every ledger.
type StartEntry struct {
	Type       string   `json:"type"`
	RunID      string   `json:"run_id"`
	Workflow   string   `json:"workflow"`
	Repository string   `json:"repository,omitempty"`
	Launcher   string   `json:"launcher"`
	Jobs       []string `json:"jobs"`
	UserAgent  string   `json:"user_agent"`
	Timestamp  string   `json:"timestamp"`
}

// StepEntry is written after each step finishes or is skipped.
type StepEntry struct {
	Type        string            `json:"type"`
	Job         string            `json:"job"`
	Matrix      string            `json:"matrix,omitempty"`
	Index       int               `json:"index"`
	Name        string            `json:"name"`
	Status      string            `json:"status"`
	DurationMS  int64             `json:"duration_ms"`
	Error       string            `json:"error,omitempty"`
	Unsupported bool              `json:"unsupported,omitempty"`
	Outputs     map[string]string `json:"outputs,omitempty"`
	Timestamp   string            `json:"timestamp"`
}

// JobEntry is written after each job finishes or is skipped.
type JobEntry struct {
	Type       string            `json:"type"`
	Job        string            `json:"job"`
	Matrix     string            `json:"matrix,omitempty"`
	Status     string            `json:"status"`
	DurationMS int64             `json:"duration_ms"`
	Reason     string            `json:"reason,omitempty"`
	Outputs    map[string]string `json:"outputs,omitempty"`
	Timestamp  string            `json:"timestamp"`
}

// CompleteEntry is the last line of a ledger.
type CompleteEntry struct {
	Type       string `json:"type"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Timestamp  string `json:"timestamp"`
}
