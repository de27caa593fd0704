// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"sync"
	"time"
)

// EventKind classifies an Event.
type EventKind int

const (
	EventJobStarted EventKind = iota
	EventJobFinished
	EventStepStarted
	EventStepOutput
	EventStepFinished

	// EventMessage carries an engine diagnostic about the current step,
	// such as a cache hit or an unsupported feature.
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventJobStarted:
		return "job-started"
	case EventJobFinished:
		return "job-finished"
	case EventStepStarted:
		return "step-started"
	case EventStepOutput:
		return "step-output"
	case EventStepFinished:
		return "step-finished"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Stream names the child output stream of an EventStepOutput.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Event is one item on an EventStream. Fields irrelevant to Kind are
// zero.
type Event struct {
	Kind EventKind
	Time time.Time

	// Job is the job id. Matrix is the formatted combination, empty
	// for jobs without a matrix.
	Job    string
	Matrix string

	// Step is the step's index within its job; StepName its display
	// name.
	Step     int
	StepName string

	Stream Stream

	// Line is an output line (redacted) or message text.
	Line string

	Status Status

	// StepResult is set on EventStepFinished, JobResult on
	// EventJobFinished.
	StepResult *StepResult
	JobResult  *JobResult
}

// EventStream delivers run progress to one consumer. It is a bounded
// channel: when the consumer falls behind, producers block until it
// catches up or their context ends, so output is never buffered
// without limit and never dropped while the run is live.
//
// A nil *EventStream discards everything.
type EventStream struct {
	events chan Event
	once   sync.Once
}

// NewEventStream returns a stream holding up to capacity undelivered
// events.
func NewEventStream(capacity int) *EventStream {
	if capacity < 1 {
		capacity = 1
	}
	return &EventStream{events: make(chan Event, capacity)}
}

// Events returns the channel to consume. It is closed by Close.
func (s *EventStream) Events() <-chan Event {
	return s.events
}

// Close ends the stream. The engine never closes a stream it was
// given; the caller closes it after RunWorkflow returns.
func (s *EventStream) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() { close(s.events) })
}

// emit delivers event, blocking while the stream is full. It returns
// ctx's error if ctx ends first.
func (s *EventStream) emit(ctx context.Context, event Event) error {
	if s == nil {
		return nil
	}
	select {
	case s.events <- event:
		return nil
	default:
	}
	select {
	case s.events <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
