// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// The engine stamps step and job results, the policy cache records
// approval times, and the run log timestamps every entry through a
// Clock, so tests can assert exact values. The terminal approver uses
// After for its prompt timeout.
//
//	engine := engine.New(engine.Options{Clock: clock.Fake(epoch)})
package clock
