// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

// Package expression resolves ${{ ... }} placeholders in workflow text.
//
// Only property references are evaluated: env.X, secrets.X, matrix.X,
// steps.<id>.outputs.<name>, inputs.X, needs.<job>.outputs.<name>,
// jobs.<job>.outputs.<name>, github.<prop> (including github.event.*),
// runner.<prop>, single-quoted string literals, and hashFiles(...).
// Each placeholder is classified into a closed set of [Kind] values
// before evaluation. A placeholder of [KindUnknown] (operators, function
// calls other than hashFiles, index syntax) is left in the text
// verbatim, so callers must tolerate partially expanded text. A
// recognized reference whose value is missing expands to the empty
// string.
//
// Conditions (if:) are not evaluated as boolean expressions. See
// [EvaluateCondition] for the fixed interpretation.
package expression
