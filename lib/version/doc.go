// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the localmost build. Release builds stamp it
// with -ldflags:
//
//	go build -ldflags "-X github.com/localmost/localmost/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version
