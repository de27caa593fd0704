// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package expression

import (
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// HashFiles returns a hex digest over the contents of every regular
// file under workspace that matches at least one pattern. Patterns are
// slash-separated globs relative to workspace; "**" matches any number
// of directories and a leading "!" excludes matches. Files are hashed
// in sorted path order, so the digest is stable. Returns "" when no
// file matches.
func HashFiles(workspace string, patterns ...string) (string, error) {
	if workspace == "" {
		return "", nil
	}

	var include, exclude []string
	for _, pattern := range patterns {
		pattern = strings.TrimPrefix(filepath.ToSlash(strings.TrimSpace(pattern)), "./")
		if negated, ok := strings.CutPrefix(pattern, "!"); ok {
			exclude = append(exclude, negated)
		} else if pattern != "" {
			include = append(include, pattern)
		}
	}

	var matched []string
	err := filepath.WalkDir(workspace, func(current string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if entry.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		relative, err := filepath.Rel(workspace, current)
		if err != nil {
			return err
		}
		relative = filepath.ToSlash(relative)
		if matchAny(include, relative) && !matchAny(exclude, relative) {
			matched = append(matched, relative)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("hashing files under %s: %w", workspace, err)
	}
	if len(matched) == 0 {
		return "", nil
	}
	sort.Strings(matched)

	aggregate := blake3.New()
	for _, relative := range matched {
		digest, err := hashFile(filepath.Join(workspace, filepath.FromSlash(relative)))
		if err != nil {
			return "", err
		}
		aggregate.Write(digest)
	}
	return hex.EncodeToString(aggregate.Sum(nil)), nil
}

func hashFile(name string) ([]byte, error) {
	file, err := os.Open(name)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", name, err)
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return hasher.Sum(nil), nil
}

// MatchPath reports whether the slash-separated relative path name
// matches pattern. Segments are matched with path.Match, and a "**"
// segment matches zero or more whole segments.
func MatchPath(pattern, name string) bool {
	return matchSegments(strings.Split(pattern, "/"), strings.Split(name, "/"))
}

func matchAny(patterns []string, name string) bool {
	for _, pattern := range patterns {
		if MatchPath(pattern, name) {
			return true
		}
	}
	return false
}

func matchSegments(pattern, name []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			if len(rest) == 0 {
				return true
			}
			for skip := 0; skip <= len(name); skip++ {
				if matchSegments(rest, name[skip:]) {
					return true
				}
			}
			return false
		}
		if len(name) == 0 {
			return false
		}
		matched, err := path.Match(pattern[0], name[0])
		if err != nil || !matched {
			return false
		}
		pattern, name = pattern[1:], name[1:]
	}
	return len(name) == 0
}
