// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package expression

import "strings"

// Condition classifies an if: expression.
type Condition int

const (
	// ConditionOther is any condition outside the fixed set. It is not
	// evaluated and is treated as true.
	ConditionOther Condition = iota
	ConditionEmpty
	ConditionAlways
	ConditionSuccess
	ConditionFailure
	ConditionCancelled
)

// ClassifyCondition maps an if: expression, with or without its
// ${{ }} wrapper, onto the fixed set of recognized conditions.
func ClassifyCondition(condition string) Condition {
	switch strings.TrimSpace(unwrap(condition)) {
	case "":
		return ConditionEmpty
	case "always()":
		return ConditionAlways
	case "success()":
		return ConditionSuccess
	case "failure()":
		return ConditionFailure
	case "cancelled()":
		return ConditionCancelled
	default:
		return ConditionOther
	}
}

// EvaluateCondition decides whether a step or job with the given if:
// expression runs. The interpretation is fixed rather than computed:
//
//   - empty, always(), success(): run
//   - failure(), cancelled(): skip
//   - anything else: run
//
// success() does not consult the outcome of earlier steps and any other
// expression is not evaluated at all. A step guarded by a condition this
// function cannot read runs rather than being silently dropped.
//
// env and ctx are accepted so callers keep a single call shape if the
// evaluator grows; they are not consulted today.
func EvaluateCondition(condition string, env map[string]string, ctx *Context) bool {
	switch ClassifyCondition(condition) {
	case ConditionFailure, ConditionCancelled:
		return false
	default:
		return true
	}
}
