// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox confines workflow steps with the macOS seatbelt
// facility (sandbox-exec).
//
// [Compile] turns a [policy.SandboxPolicy] into a profile in the
// sandbox profile language (SBPL). The profile denies by default,
// allows reads everywhere, and allows writes only to the job's working
// directory, the OS temp locations, the common package-manager caches,
// and the policy's filesystem.write entries. Deny entries are emitted
// after every allow so they win under last-match semantics. Network
// access is unrestricted when no network policy exists and otherwise
// limited to loopback plus the allowed host patterns. Compile is a pure
// function of its options; host-specific values arrive through
// [CompileOptions].
//
// A [Launcher] turns an [Invocation] into an *exec.Cmd. [Seatbelt]
// wraps the command in sandbox-exec with the profile passed inline;
// [Unconfined] runs it directly and is selected explicitly (--no-sandbox)
// or by [NewLauncher] when seatbelt is unavailable and the configured
// [Fallback] permits it. Both launchers place the child in its own
// process group and kill the group on cancellation, and neither
// inherits the caller's environment.
//
// Discovery runs use [CompileDiscoveryProfile], an allow-by-default
// profile that traces every operation to a log file. [ParseTrace] reads
// that log back into a suggested policy.
//
// [Validator] performs pre-flight checks and [ProbeRunner] verifies
// containment by attempting operations that a correct profile must
// block, alongside controls that it must allow.
package sandbox
