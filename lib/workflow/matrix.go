// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// GenerateMatrixCombinations expands a job's strategy into the list of
// combinations to run. Without a matrix the result is a single empty
// combination.
//
// The Cartesian product follows dimension declaration order: the first
// dimension varies slowest. Exclude entries then remove every
// combination they match. Include entries extend each combination they
// are compatible with (no conflicting value for an original dimension),
// or are appended as new combinations when compatible with none.
func GenerateMatrixCombinations(strategy *Strategy) ([]Combination, error) {
	if strategy == nil || strategy.Matrix == nil {
		return []Combination{{}}, nil
	}
	matrix := strategy.Matrix
	if matrix.Expression != "" {
		return nil, fmt.Errorf("matrix %s is computed by an expression and cannot be expanded locally; pass --matrix to select a combination", matrix.Expression)
	}

	var combinations []Combination
	if len(matrix.Dimensions) > 0 {
		combinations = []Combination{{}}
		for _, dimension := range matrix.Dimensions {
			next := make([]Combination, 0, len(combinations)*len(dimension.Values))
			for _, base := range combinations {
				for _, value := range dimension.Values {
					if !isScalar(value) {
						return nil, fmt.Errorf("matrix.%s: values must be scalars, got %T", dimension.Name, value)
					}
					combination := base.clone()
					combination[dimension.Name] = value
					next = append(next, combination)
				}
			}
			combinations = next
		}
	}

	if len(matrix.Exclude) > 0 {
		kept := combinations[:0]
		for _, combination := range combinations {
			excluded := false
			for _, exclude := range matrix.Exclude {
				if Combination(exclude).Matches(combination) {
					excluded = true
					break
				}
			}
			if !excluded {
				kept = append(kept, combination)
			}
		}
		combinations = kept
	}

	dimensionNames := make(map[string]bool, len(matrix.Dimensions))
	for _, dimension := range matrix.Dimensions {
		dimensionNames[dimension.Name] = true
	}
	originalCount := len(combinations)
	for _, include := range matrix.Include {
		extended := false
		for index := 0; index < originalCount; index++ {
			combination := combinations[index]
			if !compatible(include, combination, dimensionNames) {
				continue
			}
			for key, value := range include {
				combination[key] = value
			}
			extended = true
		}
		if !extended {
			combinations = append(combinations, Combination(include).clone())
		}
	}

	if len(combinations) == 0 && len(matrix.Dimensions) == 0 {
		return []Combination{{}}, nil
	}
	return combinations, nil
}

// compatible reports whether include can extend combination without
// overwriting any value of an original dimension.
func compatible(include map[string]any, combination Combination, dimensionNames map[string]bool) bool {
	for key, value := range include {
		if !dimensionNames[key] {
			continue
		}
		existing, present := combination[key]
		if present && !scalarEqual(existing, value) {
			return false
		}
	}
	return true
}

// Matches reports whether every key of c is present in other with an
// equal value. An empty combination matches everything.
func (c Combination) Matches(other Combination) bool {
	for key, value := range c {
		existing, present := other[key]
		if !present || !scalarEqual(existing, value) {
			return false
		}
	}
	return true
}

func (c Combination) clone() Combination {
	result := make(Combination, len(c))
	for key, value := range c {
		result[key] = value
	}
	return result
}

// ParseMatrixSpec parses a "key=value,key2=value2" selector as given on
// the command line. Values are coerced: exactly "true" or "false"
// become booleans, integers become int, other numbers become float64,
// and anything else stays a string. A pair without '=' is an error.
func ParseMatrixSpec(spec string) (Combination, error) {
	combination := Combination{}
	if strings.TrimSpace(spec) == "" {
		return combination, nil
	}
	for _, pair := range strings.Split(spec, ",") {
		pair = strings.TrimSpace(pair)
		key, value, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("invalid matrix pair %q: expected key=value", pair)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("invalid matrix pair %q: key is empty", pair)
		}
		combination[key] = coerceScalar(strings.TrimSpace(value))
	}
	return combination, nil
}

// FormatCombination renders a combination as "key=value" pairs joined
// by commas, sorted by key. ParseMatrixSpec reads this format back.
func FormatCombination(combination Combination) string {
	keys := make([]string, 0, len(combination))
	for key := range combination {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+FormatScalar(combination[key]))
	}
	return strings.Join(pairs, ",")
}

// FormatScalar renders a matrix value the way it appears in
// environment variables and expression output.
func FormatScalar(value any) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return typed
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	default:
		return fmt.Sprint(typed)
	}
}

func coerceScalar(value string) any {
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	if integer, err := strconv.Atoi(value); err == nil {
		return integer
	}
	// NaN and the infinities stay strings so FormatCombination gives
	// back what was typed.
	if number, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(number) && !math.IsInf(number, 0) {
		return number
	}
	return value
}

func isScalar(value any) bool {
	switch value.(type) {
	case nil, string, bool, int, int64, uint64, float64:
		return true
	default:
		return false
	}
}

func scalarEqual(a, b any) bool {
	return FormatScalar(a) == FormatScalar(b)
}
