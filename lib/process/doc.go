// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the binary entrypoint error handler used
// before the structured logger exists.
package process
