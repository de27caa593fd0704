// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package policycache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/localmost/localmost/lib/clock"
)

const repository = "github.com/acme/app"

var epoch = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

// recordingApprover answers with a fixed decision and remembers every
// request it saw.
type recordingApprover struct {
	decision bool
	err      error
	requests []ApprovalRequest
}

func (a *recordingApprover) Approve(_ context.Context, request ApprovalRequest) (bool, error) {
	a.requests = append(a.requests, request)
	return a.decision, a.err
}

func newTestGate(t *testing.T, approver Approver) (*Gate, *Store) {
	t.Helper()
	store := newTestStore(t)
	gate := NewGate(store, approver, GateOptions{
		Clock:  clock.Fake(epoch),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return gate, store
}

func TestGateNewRepositoryApproved(t *testing.T) {
	t.Parallel()

	approver := &recordingApprover{decision: true}
	gate, store := newTestGate(t, approver)

	evaluation, err := gate.Check(context.Background(), repository, "abc123", sampleDocument())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if evaluation.State != StateApproved {
		t.Errorf("State = %s, want approved", evaluation.State)
	}
	if len(approver.requests) != 1 {
		t.Fatalf("approver called %d times, want 1", len(approver.requests))
	}
	request := approver.requests[0]
	if !request.IsNewRepo || request.State != StateNew || request.Commit != "abc123" {
		t.Errorf("request = %+v, want new repository at abc123", request)
	}
	if len(request.Diffs) == 0 {
		t.Error("new repository request should list the whole policy as added")
	}

	record, err := store.Load(repository)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !record.Approved || record.ApprovedCommit != "abc123" || !record.ApprovedAt.Equal(epoch) {
		t.Errorf("record = %+v", record)
	}
}

func TestGateApprovedFastPath(t *testing.T) {
	t.Parallel()

	approver := &recordingApprover{decision: true}
	gate, _ := newTestGate(t, approver)
	if err := gate.Approve(repository, "c1", sampleDocument()); err != nil {
		t.Fatal(err)
	}

	evaluation, err := gate.Check(context.Background(), repository, "c2", sampleDocument())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if evaluation.State != StateApproved || evaluation.NeedsApproval() {
		t.Errorf("State = %s, want approved without prompting", evaluation.State)
	}
	if len(approver.requests) != 0 {
		t.Errorf("approver called %d times on the fast path", len(approver.requests))
	}
}

func TestGateChangedRequiresApproval(t *testing.T) {
	t.Parallel()

	approver := &recordingApprover{decision: true}
	gate, store := newTestGate(t, approver)
	if err := gate.Approve(repository, "c1", sampleDocument()); err != nil {
		t.Fatal(err)
	}

	changed := sampleDocument()
	changed.Shared.Network.Allow = append(changed.Shared.Network.Allow, "evil.example.com")

	if _, err := gate.Check(context.Background(), repository, "c2", changed); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if len(approver.requests) != 1 {
		t.Fatalf("approver called %d times, want 1", len(approver.requests))
	}
	request := approver.requests[0]
	if request.State != StateChanged || request.IsNewRepo {
		t.Errorf("request state = %s, IsNewRepo = %v", request.State, request.IsNewRepo)
	}
	want := PolicyDiff{Path: "shared.network.allow", Change: Added, Value: "evil.example.com"}
	if len(request.Diffs) != 1 || request.Diffs[0] != want {
		t.Errorf("Diffs = %+v, want [%+v]", request.Diffs, want)
	}

	record, err := store.Load(repository)
	if err != nil {
		t.Fatal(err)
	}
	if record.ApprovedCommit != "c2" || len(Diff(record.Config, changed)) != 0 {
		t.Error("approved change was not recorded")
	}
}

func TestGateUnapprovedRecordRequiresApproval(t *testing.T) {
	t.Parallel()

	gate, store := newTestGate(t, nil)
	if err := store.Save(&CachedPolicy{Repository: repository, Config: sampleDocument(), CachedAt: epoch}); err != nil {
		t.Fatal(err)
	}

	evaluation, err := gate.Evaluate(repository, sampleDocument())
	if err != nil {
		t.Fatal(err)
	}
	if evaluation.State != StateUnapproved || !evaluation.NeedsApproval() {
		t.Errorf("State = %s, want unapproved", evaluation.State)
	}
	if len(evaluation.Diffs) != 0 {
		t.Errorf("Diffs = %v, want none", evaluation.Diffs)
	}
}

func TestGateFailsClosed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		approver Approver
		wantErr  error
	}{
		{name: "no approver", approver: nil, wantErr: ErrNoApprover},
		{name: "rejected", approver: &recordingApprover{decision: false}, wantErr: ErrNotApproved},
		{name: "approver error", approver: &recordingApprover{err: errors.New("stdin closed")}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			gate, store := newTestGate(t, test.approver)

			_, err := gate.Check(context.Background(), repository, "c1", sampleDocument())
			if err == nil {
				t.Fatal("Check succeeded, want failure")
			}
			if test.wantErr != nil && !errors.Is(err, test.wantErr) {
				t.Errorf("error = %v, want %v", err, test.wantErr)
			}
			record, err := store.Load(repository)
			if err != nil {
				t.Fatalf("Load after failed approval: %v", err)
			}
			if record.Approved || record.ApprovedCommit != "" {
				t.Errorf("record = %+v, want an unapproved record", record)
			}
		})
	}
}

func TestGateDeclinedNewRepositoryBecomesUnapproved(t *testing.T) {
	t.Parallel()

	approver := &recordingApprover{decision: false}
	gate, _ := newTestGate(t, approver)

	if _, err := gate.Check(context.Background(), repository, "c1", sampleDocument()); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("first Check = %v, want ErrNotApproved", err)
	}
	evaluation, err := gate.Check(context.Background(), repository, "c1", sampleDocument())
	if !errors.Is(err, ErrNotApproved) {
		t.Fatalf("second Check = %v, want ErrNotApproved", err)
	}
	if evaluation.State != StateUnapproved {
		t.Errorf("State = %s, want unapproved", evaluation.State)
	}
	if len(approver.requests) != 2 {
		t.Fatalf("approver called %d times, want 2", len(approver.requests))
	}
	if second := approver.requests[1]; second.State != StateUnapproved || second.IsNewRepo {
		t.Errorf("second request = %+v, want an unapproved, known repository", second)
	}

	approver.decision = true
	if evaluation, err := gate.Check(context.Background(), repository, "c2", sampleDocument()); err != nil || evaluation.State != StateApproved {
		t.Fatalf("Check after approval = %s, %v", evaluation.State, err)
	}
}

func TestGateRejectionKeepsPreviousApproval(t *testing.T) {
	t.Parallel()

	approver := &recordingApprover{decision: false}
	gate, store := newTestGate(t, approver)
	if err := gate.Approve(repository, "c1", sampleDocument()); err != nil {
		t.Fatal(err)
	}

	changed := sampleDocument()
	changed.Shared.Filesystem.Write = []string{"/"}
	if _, err := gate.Check(context.Background(), repository, "c2", changed); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("Check = %v, want ErrNotApproved", err)
	}

	record, err := store.Load(repository)
	if err != nil {
		t.Fatal(err)
	}
	if record.ApprovedCommit != "c1" || len(Diff(record.Config, sampleDocument())) != 0 {
		t.Error("rejected change replaced the approved record")
	}
}

func TestGateCorruptRecordFailsClosed(t *testing.T) {
	t.Parallel()

	approver := &recordingApprover{decision: true}
	gate, store := newTestGate(t, approver)
	if err := writeRaw(store, repository, []byte{0xff, 0xff}); err != nil {
		t.Fatal(err)
	}

	if _, err := gate.Check(context.Background(), repository, "c1", sampleDocument()); err == nil {
		t.Fatal("Check succeeded over a corrupt record")
	}
	if len(approver.requests) != 0 {
		t.Error("approver consulted although the cache could not be read")
	}
}

func TestGateReset(t *testing.T) {
	t.Parallel()

	gate, _ := newTestGate(t, nil)
	if err := gate.Approve(repository, "c1", sampleDocument()); err != nil {
		t.Fatal(err)
	}
	if err := gate.Reset(repository); err != nil {
		t.Fatal(err)
	}
	evaluation, err := gate.Evaluate(repository, sampleDocument())
	if err != nil {
		t.Fatal(err)
	}
	if evaluation.State != StateNew {
		t.Errorf("State after Reset = %s, want new", evaluation.State)
	}
}

func TestApproverFunc(t *testing.T) {
	t.Parallel()

	var seen string
	approver := ApproverFunc(func(_ context.Context, request ApprovalRequest) (bool, error) {
		seen = request.Repository
		return true, nil
	})
	gate, _ := newTestGate(t, approver)
	if _, err := gate.Check(context.Background(), repository, "", sampleDocument()); err != nil {
		t.Fatal(err)
	}
	if seen != repository {
		t.Errorf("approver saw %q", seen)
	}
}
