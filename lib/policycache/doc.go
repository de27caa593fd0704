// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package policycache remembers which sandbox policy a person approved
// for each repository and asks again when it changes.
//
// [Store] keeps one CBOR record per repository. [Gate] compares the
// policy document found in a checkout against that record:
//
//	new         nothing cached                approval required
//	approved    cached, approved, unchanged   run
//	changed     cached, document differs      approval required, with diff
//	unapproved  cached, unchanged, never approved  approval required
//
// Approval is delegated to the [Approver] passed to [NewGate]. The gate
// never approves on its own: without an approver, or when the approver
// declines or fails, [Gate.Check] returns an error and nothing is
// written. Differences are plain per-list set differences ([Diff]).
package policycache
