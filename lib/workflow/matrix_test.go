// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package workflow

import (
	"strings"
	"testing"
)

func TestGenerateMatrixCombinations(t *testing.T) {
	t.Parallel()

	t.Run("no strategy", func(t *testing.T) {
		t.Parallel()
		combinations, err := GenerateMatrixCombinations(nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(combinations) != 1 || len(combinations[0]) != 0 {
			t.Errorf("combinations = %v, want one empty combination", combinations)
		}
	})

	t.Run("empty matrix", func(t *testing.T) {
		t.Parallel()
		combinations, err := GenerateMatrixCombinations(&Strategy{Matrix: &Matrix{}})
		if err != nil {
			t.Fatal(err)
		}
		if len(combinations) != 1 || len(combinations[0]) != 0 {
			t.Errorf("combinations = %v, want one empty combination", combinations)
		}
	})

	t.Run("product size and order", func(t *testing.T) {
		t.Parallel()
		strategy := &Strategy{Matrix: &Matrix{Dimensions: []Dimension{
			{Name: "os", Values: []any{"macos-13", "macos-14"}},
			{Name: "node", Values: []any{18, 20, 22}},
			{Name: "debug", Values: []any{true, false}},
		}}}
		combinations, err := GenerateMatrixCombinations(strategy)
		if err != nil {
			t.Fatal(err)
		}
		if len(combinations) != 2*3*2 {
			t.Fatalf("got %d combinations, want 12", len(combinations))
		}

		seen := make(map[string]bool)
		for _, combination := range combinations {
			key := FormatCombination(combination)
			if seen[key] {
				t.Errorf("duplicate combination %s", key)
			}
			seen[key] = true
		}

		if got := FormatCombination(combinations[0]); got != "debug=true,node=18,os=macos-13" {
			t.Errorf("first combination = %q", got)
		}
		if got := FormatCombination(combinations[1]); got != "debug=false,node=18,os=macos-13" {
			t.Errorf("second combination = %q (last dimension should vary fastest)", got)
		}
		if got := FormatCombination(combinations[11]); got != "debug=false,node=22,os=macos-14" {
			t.Errorf("last combination = %q", got)
		}
	})

	t.Run("exclude and include", func(t *testing.T) {
		t.Parallel()
		strategy := &Strategy{Matrix: &Matrix{
			Dimensions: []Dimension{
				{Name: "os", Values: []any{"macos", "linux"}},
				{Name: "node", Values: []any{18, 20}},
			},
			Exclude: []map[string]any{{"os": "linux", "node": 18}},
			Include: []map[string]any{
				{"os": "macos", "experimental": true},
				{"os": "windows", "node": 20},
			},
		}}
		combinations, err := GenerateMatrixCombinations(strategy)
		if err != nil {
			t.Fatal(err)
		}
		var rendered []string
		for _, combination := range combinations {
			rendered = append(rendered, FormatCombination(combination))
		}
		want := []string{
			"experimental=true,node=18,os=macos",
			"experimental=true,node=20,os=macos",
			"node=20,os=linux",
			"node=20,os=windows",
		}
		if strings.Join(rendered, " ") != strings.Join(want, " ") {
			t.Errorf("combinations = %v, want %v", rendered, want)
		}
	})

	t.Run("include only", func(t *testing.T) {
		t.Parallel()
		strategy := &Strategy{Matrix: &Matrix{Include: []map[string]any{
			{"target": "arm64"},
			{"target": "amd64"},
		}}}
		combinations, err := GenerateMatrixCombinations(strategy)
		if err != nil {
			t.Fatal(err)
		}
		if len(combinations) != 2 || combinations[1]["target"] != "amd64" {
			t.Errorf("combinations = %v, want one per include entry", combinations)
		}
	})

	t.Run("expression matrix", func(t *testing.T) {
		t.Parallel()
		_, err := GenerateMatrixCombinations(&Strategy{Matrix: &Matrix{Expression: "${{ fromJSON(needs.a.outputs.m) }}"}})
		if err == nil {
			t.Fatal("expected error for expression-valued matrix")
		}
	})
}

func TestParseMatrixSpec(t *testing.T) {
	t.Parallel()

	combination, err := ParseMatrixSpec("a=true,b=3,c=x")
	if err != nil {
		t.Fatalf("ParseMatrixSpec: %v", err)
	}
	if combination["a"] != true {
		t.Errorf("a = %#v, want true", combination["a"])
	}
	if combination["b"] != 3 {
		t.Errorf("b = %#v, want 3", combination["b"])
	}
	if combination["c"] != "x" {
		t.Errorf("c = %#v, want \"x\"", combination["c"])
	}

	tests := []struct {
		spec string
		key  string
		want any
	}{
		{"flag=false", "flag", false},
		{"version=3.10", "version", 3.1},
		{"name=True", "name", "True"},
		{"os = macos-14 ", "os", "macos-14"},
		{"empty=", "empty", ""},
		{"a=NaN", "a", "NaN"},
		{"b=Inf", "b", "Inf"},
		{"c=infinity", "c", "infinity"},
		{"d=-inf", "d", "-inf"},
	}
	for _, test := range tests {
		combination, err := ParseMatrixSpec(test.spec)
		if err != nil {
			t.Errorf("ParseMatrixSpec(%q): %v", test.spec, err)
			continue
		}
		if combination[test.key] != test.want {
			t.Errorf("ParseMatrixSpec(%q)[%s] = %#v, want %#v", test.spec, test.key, combination[test.key], test.want)
		}
	}

	spec := "a=NaN,b=Inf,c=infinity,d=2.5"
	nonFinite, err := ParseMatrixSpec(spec)
	if err != nil {
		t.Fatalf("ParseMatrixSpec(%q): %v", spec, err)
	}
	if got := FormatCombination(nonFinite); got != spec {
		t.Errorf("FormatCombination(ParseMatrixSpec(%q)) = %q", spec, got)
	}

	for _, malformed := range []string{"a", "a=1,b", "=x"} {
		if _, err := ParseMatrixSpec(malformed); err == nil {
			t.Errorf("ParseMatrixSpec(%q) succeeded, want error", malformed)
		}
	}
}

func TestFormatCombinationRoundTrip(t *testing.T) {
	t.Parallel()

	original := Combination{"debug": true, "node": 20, "os": "macos-14"}
	parsed, err := ParseMatrixSpec(FormatCombination(original))
	if err != nil {
		t.Fatal(err)
	}
	for key, value := range original {
		if parsed[key] != value {
			t.Errorf("%s = %#v after round trip, want %#v", key, parsed[key], value)
		}
	}
}

func TestCombinationMatches(t *testing.T) {
	t.Parallel()

	combination := Combination{"os": "macos", "node": 20}
	if !(Combination{"node": 20}).Matches(combination) {
		t.Error("subset selector should match")
	}
	if !(Combination{"node": "20"}).Matches(combination) {
		t.Error("selector values compare by their rendered text")
	}
	if (Combination{"node": 18}).Matches(combination) {
		t.Error("conflicting selector should not match")
	}
	if (Combination{"arch": "arm64"}).Matches(combination) {
		t.Error("selector with unknown key should not match")
	}
}
