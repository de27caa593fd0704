// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package policycache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/localmost/localmost/lib/clock"
	"github.com/localmost/localmost/lib/policy"
)

// State is where a repository stands in the approval state machine.
type State int

const (
	// StateNew: nothing cached. Approval required.
	StateNew State = iota

	// StateApproved: cached, approved, and unchanged. Runs proceed.
	StateApproved

	// StateChanged: cached, but the document differs. Approval
	// required, with the differences attached.
	StateChanged

	// StateUnapproved: cached and unchanged, but never approved. Check
	// leaves a new repository here when approval is declined or cannot
	// be asked for. Approval required.
	StateUnapproved
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateApproved:
		return "approved"
	case StateChanged:
		return "changed"
	case StateUnapproved:
		return "unapproved"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Evaluation is the result of comparing a document against the cache.
type Evaluation struct {
	State      State
	Repository string

	// Cached is the stored record, nil for StateNew.
	Cached *CachedPolicy

	// Diffs lists the changes from the cached document. Set for
	// StateChanged and, against an empty document, for StateNew.
	Diffs []PolicyDiff
}

// NeedsApproval reports whether a run must be approved first.
func (e Evaluation) NeedsApproval() bool {
	return e.State != StateApproved
}

// ApprovalRequest is what an Approver is asked to decide.
type ApprovalRequest struct {
	Repository string
	Commit     string
	State      State
	IsNewRepo  bool
	Policy     *policy.Document
	Diffs      []PolicyDiff
}

// Approver decides whether a policy may be trusted. Implementations
// may block on a person; ctx bounds the wait.
type Approver interface {
	Approve(ctx context.Context, request ApprovalRequest) (bool, error)
}

// ApproverFunc adapts a function to Approver.
type ApproverFunc func(ctx context.Context, request ApprovalRequest) (bool, error)

// Approve implements Approver.
func (f ApproverFunc) Approve(ctx context.Context, request ApprovalRequest) (bool, error) {
	return f(ctx, request)
}

var (
	// ErrNotApproved is returned by Check when the approver declines.
	ErrNotApproved = errors.New("policy not approved")

	// ErrNoApprover is returned by Check when approval is needed and
	// the gate has no approver.
	ErrNoApprover = errors.New("policy approval required but no approver is configured")
)

// GateOptions configures NewGate.
type GateOptions struct {
	Clock  clock.Clock
	Logger *slog.Logger
}

// Gate decides whether a repository's policy may be used, asking its
// approver when the state machine requires it. Each Gate carries its
// own approver; there is no process-wide registration.
type Gate struct {
	store    *Store
	approver Approver
	clock    clock.Clock
	logger   *slog.Logger
}

// NewGate returns a Gate over store. approver may be nil, in which
// case every evaluation that needs approval fails.
func NewGate(store *Store, approver Approver, options GateOptions) *Gate {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:    store,
		approver: approver,
		clock:    clock.OrReal(options.Clock),
		logger:   logger,
	}
}

// Evaluate places document in the state machine without side effects.
// An unreadable cache record is an error, not a fresh start.
func (g *Gate) Evaluate(repository string, document *policy.Document) (Evaluation, error) {
	cached, err := g.store.Load(repository)
	if errors.Is(err, fs.ErrNotExist) {
		return Evaluation{
			State:      StateNew,
			Repository: repository,
			Diffs:      Diff(nil, document),
		}, nil
	}
	if err != nil {
		return Evaluation{}, err
	}

	evaluation := Evaluation{Repository: repository, Cached: cached}
	evaluation.Diffs = Diff(cached.Config, document)
	switch {
	case len(evaluation.Diffs) > 0:
		evaluation.State = StateChanged
	case !cached.Approved:
		evaluation.State = StateUnapproved
	default:
		evaluation.State = StateApproved
	}
	return evaluation, nil
}

// Check evaluates document and, when approval is needed, asks the
// approver. A repository seen for the first time is recorded as
// unapproved before the approver is asked. The document is recorded as
// approved only when the approver says yes; a decline, an error, or a
// missing approver return an error and leave any earlier approval in
// place.
func (g *Gate) Check(ctx context.Context, repository, commit string, document *policy.Document) (Evaluation, error) {
	evaluation, err := g.Evaluate(repository, document)
	if err != nil {
		return evaluation, fmt.Errorf("evaluating policy for %s: %w", repository, err)
	}
	if !evaluation.NeedsApproval() {
		g.logger.Debug("policy approved", "repository", repository)
		return evaluation, nil
	}
	if evaluation.State == StateNew {
		if err := g.recordUnapproved(repository, document); err != nil {
			return evaluation, err
		}
	}

	if g.approver == nil {
		g.logger.Warn("policy approval required", "repository", repository, "state", evaluation.State)
		return evaluation, ErrNoApprover
	}

	approved, err := g.approver.Approve(ctx, ApprovalRequest{
		Repository: repository,
		Commit:     commit,
		State:      evaluation.State,
		IsNewRepo:  evaluation.State == StateNew,
		Policy:     document,
		Diffs:      evaluation.Diffs,
	})
	if err != nil {
		return evaluation, fmt.Errorf("requesting policy approval for %s: %w", repository, err)
	}
	if !approved {
		g.logger.Warn("policy rejected", "repository", repository, "state", evaluation.State)
		return evaluation, ErrNotApproved
	}

	if err := g.Approve(repository, commit, document); err != nil {
		return evaluation, err
	}
	evaluation.State = StateApproved
	return evaluation, nil
}

// Approve records document as approved for repository without asking.
// Used after an approver says yes and by explicit approval commands.
func (g *Gate) Approve(repository, commit string, document *policy.Document) error {
	now := g.clock.Now().UTC()
	record := &CachedPolicy{
		Repository:     repository,
		Config:         document,
		Approved:       true,
		ApprovedCommit: commit,
		ApprovedAt:     now,
		CachedAt:       now,
	}
	if err := g.store.Save(record); err != nil {
		return fmt.Errorf("recording approval for %s: %w", repository, err)
	}
	g.logger.Info("policy approved", "repository", repository, "commit", commit)
	return nil
}

func (g *Gate) recordUnapproved(repository string, document *policy.Document) error {
	record := &CachedPolicy{
		Repository: repository,
		Config:     document,
		CachedAt:   g.clock.Now().UTC(),
	}
	if err := g.store.Save(record); err != nil {
		return fmt.Errorf("recording policy for %s: %w", repository, err)
	}
	return nil
}

// Reset forgets repository, so its next run is treated as new.
func (g *Gate) Reset(repository string) error {
	return g.store.Delete(repository)
}
