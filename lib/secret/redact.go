// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"sort"
	"strings"
)

// Mask replaces a secret value in redacted output.
const Mask = "***"

// MinRedactLength is the shortest value the redactor masks. Shorter
// values ("1", "true") would mask unrelated output.
const MinRedactLength = 4

// Redactor masks secret values in output text. A nil Redactor passes
// text through unchanged.
type Redactor struct {
	replacer *strings.Replacer
}

// NewRedactor builds a redactor for values. Multi-line values are also
// masked line by line, since output is streamed one line at a time.
// Longer values are matched first so a secret containing another
// secret is masked whole.
func NewRedactor(values ...string) *Redactor {
	seen := make(map[string]struct{})
	var candidates []string
	add := func(value string) {
		value = strings.TrimRight(value, "\r")
		if len(value) < MinRedactLength {
			return
		}
		if _, dup := seen[value]; dup {
			return
		}
		seen[value] = struct{}{}
		candidates = append(candidates, value)
	}
	for _, value := range values {
		add(value)
		if strings.Contains(value, "\n") {
			for _, line := range strings.Split(value, "\n") {
				add(strings.TrimSpace(line))
			}
		}
	}
	if len(candidates) == 0 {
		return &Redactor{}
	}

	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i]) != len(candidates[j]) {
			return len(candidates[i]) > len(candidates[j])
		}
		return candidates[i] < candidates[j]
	})
	pairs := make([]string, 0, 2*len(candidates))
	for _, candidate := range candidates {
		pairs = append(pairs, candidate, Mask)
	}
	return &Redactor{replacer: strings.NewReplacer(pairs...)}
}

// Redact returns text with every secret value replaced by Mask.
func (r *Redactor) Redact(text string) string {
	if r == nil || r.replacer == nil {
		return text
	}
	return r.replacer.Replace(text)
}
