// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// ParseOutputFile parses the file-command format shared by
// GITHUB_OUTPUT and GITHUB_ENV. Each entry is either a single line
//
//	name=value
//
// or a heredoc spanning several lines:
//
//	name<<DELIMITER
//	first line
//	second line
//	DELIMITER
//
// Both forms may be mixed in one file. Later entries replace earlier
// ones with the same name. Blank lines between entries are ignored.
func ParseOutputFile(data []byte) (map[string]string, error) {
	values := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}

		heredoc := strings.Index(line, "<<")
		equals := strings.Index(line, "=")
		if heredoc > 0 && (equals < 0 || heredoc < equals) {
			name := line[:heredoc]
			delimiter := line[heredoc+2:]
			if delimiter == "" {
				return nil, fmt.Errorf("line %d: heredoc for %q has no delimiter", lineNumber, name)
			}
			start := lineNumber
			var body []string
			terminated := false
			for scanner.Scan() {
				lineNumber++
				bodyLine := strings.TrimSuffix(scanner.Text(), "\r")
				if bodyLine == delimiter {
					terminated = true
					break
				}
				body = append(body, bodyLine)
			}
			if !terminated {
				return nil, fmt.Errorf("line %d: heredoc for %q is missing its closing %q", start, name, delimiter)
			}
			values[name] = strings.Join(body, "\n")
			continue
		}

		if equals <= 0 {
			return nil, fmt.Errorf("line %d: expected name=value or name<<DELIMITER, got %q", lineNumber, line)
		}
		values[line[:equals]] = line[equals+1:]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading file command: %w", err)
	}
	return values, nil
}

// ParsePathFile parses GITHUB_PATH: one directory per line, in the
// order written.
func ParsePathFile(data []byte) []string {
	var paths []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			paths = append(paths, line)
		}
	}
	return paths
}

// readFileCommand returns the contents of a file-command file, or nil
// when the step never wrote it.
func readFileCommand(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	return data, err
}
