// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Command localmost runs CI workflow definitions on the local machine,
// each step inside a sandbox compiled from the repository's
// .localmostrc policy.
//
// Usage:
//
//	localmost run <workflow> [flags]
//	localmost plan <workflow>
//	localmost policy show|diff|approve|reset
//	localmost sandbox compile|check|test
//	localmost version
package main
