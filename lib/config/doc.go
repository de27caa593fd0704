// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads localmost's YAML configuration.
//
// Configuration comes from a single file named by the LOCALMOST_CONFIG
// environment variable (via [Load]) or the --config flag (via
// [LoadFile]). Without either, [Default] applies. There is no search
// path: what runs is what the file says, or the defaults.
//
// Path fields support ${HOME}, ${LOCALMOST_ROOT} and ${VAR:-default}
// expansion after loading. No environment variable overrides a config
// value directly.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Sandbox, Run, Approval
//   - [Default] -- returns a Config with every field set
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other localmost packages.
package config
