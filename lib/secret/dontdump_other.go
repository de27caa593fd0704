// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package secret

// macOS has no per-mapping core dump exclusion. Core dumps are off by
// default there and mlock still keeps the pages out of swap.
func excludeFromCoreDump([]byte) error { return nil }
