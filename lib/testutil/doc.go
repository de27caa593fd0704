// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers: [WriteTree] lays out
// a repository fixture in a temporary directory, and [RequireReceive]
// bounds how long a test waits on a channel such as the engine's event
// stream.
//
// Helpers call t.Fatalf instead of returning errors.
package testutil
