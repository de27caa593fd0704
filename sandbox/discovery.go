// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/localmost/localmost/lib/policy"
)

// TraceOptions describes the run a trace was recorded for. Paths
// Compile always makes writable are left out of the suggestion.
type TraceOptions struct {
	WorkDir  string
	HomeDir  string
	TempDirs []string
}

// traceRule matches one operation line in a seatbelt trace:
//
//	(allow file-write-create (literal "/Users/dev/.npm/_cacache/x"))
//	(allow network-outbound (remote ip "140.82.112.3:443"))
var traceRule = regexp.MustCompile(`^\((?:allow|deny) ([a-z*-]+) \((literal|subpath|path|remote ip) "((?:[^"\\]|\\.)*)"\)`)

// ParseTrace reads the log written by a discovery profile and returns
// the policy that would have let the run succeed under deny-by-default:
// the remote hosts it contacted and the locations it wrote outside the
// always-writable set. Write paths are collapsed to directories, at
// most two levels below the home directory, so one run's file names do
// not become the policy. Home-relative paths are rendered with "~".
//
// The result has nil sections when the trace recorded nothing beyond
// the defaults.
func ParseTrace(reader io.Reader, options TraceOptions) (*policy.SandboxPolicy, error) {
	writable := WritablePaths(CompileOptions{
		WorkDir:  options.WorkDir,
		HomeDir:  options.HomeDir,
		TempDirs: options.TempDirs,
	})

	hosts := make(map[string]struct{})
	writes := make(map[string]struct{})

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		match := traceRule.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if match == nil {
			continue
		}
		operation, filter, value := match[1], match[2], unescapeTrace(match[3])

		switch {
		case strings.HasPrefix(operation, "network-outbound") && filter == "remote ip":
			if host := traceHost(value); host != "" {
				hosts[host] = struct{}{}
			}
		case strings.HasPrefix(operation, "file-write") && filter != "remote ip":
			cleaned := path.Clean(value)
			if !path.IsAbs(cleaned) || strings.HasPrefix(cleaned, "/dev/") || within(cleaned, writable) {
				continue
			}
			writes[collapseWritePath(cleaned, options.HomeDir)] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading sandbox trace: %w", err)
	}

	suggested := &policy.SandboxPolicy{}
	if len(hosts) > 0 {
		suggested.Network = &policy.NetworkPolicy{Allow: sortedKeys(hosts)}
	}
	if len(writes) > 0 {
		suggested.Filesystem = &policy.FilesystemPolicy{Write: removeNested(sortedKeys(writes))}
	}
	return suggested, nil
}

// traceHost extracts the host from a "host:port" remote address,
// skipping loopback and wildcard entries.
func traceHost(address string) string {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	host = strings.ToLower(strings.Trim(host, "[]"))
	switch host {
	case "", "*", "localhost":
		return ""
	}
	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsUnspecified()) {
		return ""
	}
	return host
}

// collapseWritePath reduces a written file to the directory a policy
// entry should name.
func collapseWritePath(written, home string) string {
	if home != "" {
		if relative, ok := strings.CutPrefix(written, home+"/"); ok {
			directory := path.Dir(relative)
			if directory == "." {
				return "~/" + relative
			}
			components := strings.Split(directory, "/")
			if len(components) > 2 {
				components = components[:2]
			}
			return "~/" + strings.Join(components, "/")
		}
	}
	return path.Dir(written)
}

func within(candidate string, roots []string) bool {
	for _, root := range roots {
		if candidate == root || strings.HasPrefix(candidate, strings.TrimSuffix(root, "/")+"/") {
			return true
		}
	}
	return false
}

// removeNested drops entries already covered by another entry.
func removeNested(entries []string) []string {
	var result []string
	for _, entry := range entries {
		if !within(entry, withoutEntry(entries, entry)) {
			result = append(result, entry)
		}
	}
	return result
}

func withoutEntry(entries []string, excluded string) []string {
	others := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry != excluded {
			others = append(others, entry)
		}
	}
	return others
}

func unescapeTrace(value string) string {
	if !strings.Contains(value, `\`) {
		return value
	}
	value = strings.ReplaceAll(value, `\"`, `"`)
	return strings.ReplaceAll(value, `\\`, `\`)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
