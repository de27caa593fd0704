// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package actions classifies uses: references and loads the actions
// they name.
//
// [Classify] maps a reference onto a closed [Kind]: one of the
// intercepted actions localmost reimplements (checkout, cache, artifact
// upload and download), a ./ action inside the workspace, a docker://
// action (unsupported), or a remote owner/repo@ref action. [Resolver]
// fetches remote actions with git into a shared cache directory, and
// [ReadMetadata] parses the action.yml found there.
package actions
