// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"path"
	"regexp"
	"strings"

	"github.com/localmost/localmost/lib/policy"
)

// CompileOptions holds the inputs to Compile. Compile never consults
// the environment or filesystem, so every host-specific value (home
// directory, temp locations) arrives here.
type CompileOptions struct {
	// WorkDir is the job's working directory. Always writable.
	WorkDir string

	// Policy is the effective sandbox policy. Nil means no policy was
	// declared: network is unrestricted and only the built-in write
	// locations are writable.
	Policy *policy.SandboxPolicy

	// Permissive switches the profile to allow-by-default for
	// discovery runs.
	Permissive bool

	// LogDestination, when set, makes the kernel log every operation
	// the profile evaluates to this file.
	LogDestination string

	// HomeDir expands "~" in policy paths and roots the package-manager
	// cache locations. When empty, "~" entries and the home-relative
	// caches are omitted.
	HomeDir string

	// TempDirs are the OS temp locations. Defaults to
	// DefaultTempDirs when nil.
	TempDirs []string
}

// DefaultTempDirs are the macOS temp locations. Both the symlinked and
// resolved forms are listed because the kernel matches resolved paths.
var DefaultTempDirs = []string{
	"/tmp",
	"/private/tmp",
	"/var/folders",
	"/private/var/folders",
}

// PackageCacheDirs are home-relative package-manager caches that build
// tooling writes to on every run.
var PackageCacheDirs = []string{
	".cache",
	".npm",
	".pnpm-store",
	".yarn",
	".bun",
	".cargo",
	".rustup",
	"go",
	".gradle",
	".m2",
	".nuget",
	".gem",
	".cocoapods",
	".swiftpm",
	"Library/Caches",
	"Library/Developer/Xcode/DerivedData",
}

// writableDevices are device nodes ordinary tools open for writing.
var writableDevices = []string{
	`(literal "/dev/null")`,
	`(literal "/dev/zero")`,
	`(literal "/dev/dtracehelper")`,
	`(literal "/dev/tty")`,
	`(literal "/dev/ptmx")`,
	`(regex #"^/dev/ttys[0-9]+$")`,
	`(regex #"^/dev/fd/")`,
}

// processRules are allowed regardless of policy. Compilers, package
// managers, and test runners need these, and the policy only governs
// network and filesystem access.
var processRules = []string{
	"(allow process-exec)",
	"(allow process-fork)",
	"(allow process-info*)",
	"(allow signal)",
	"(allow sysctl-read)",
	"(allow mach-lookup)",
	"(allow mach-register)",
	"(allow ipc-posix-shm*)",
	"(allow ipc-posix-sem)",
	"(allow ipc-sysv*)",
	"(allow iokit-open)",
	"(allow iokit-get-properties)",
	"(allow pseudo-tty)",
	"(allow file-ioctl)",
	"(allow system-socket)",
	"(allow user-preference-read)",
}

// Compile generates a seatbelt profile (SBPL) for one job. The output
// is a pure function of options: identical options always produce
// byte-identical text.
//
// Outside permissive mode the profile denies by default. Reads are
// allowed everywhere; writes only to the working directory, temp
// locations, package caches, and the policy's filesystem.write
// entries. filesystem.deny entries are emitted after every allow, so
// under last-match-wins they take precedence.
func Compile(options CompileOptions) string {
	builder := &profileBuilder{options: options}
	builder.addHeader()
	builder.addProcessRules()
	builder.addFilesystemRules()
	builder.addNetworkRules()
	return builder.String()
}

// CompileDiscoveryProfile compiles an allow-by-default profile that
// traces every access to logDestination. The trace is read back by
// ParseTrace to suggest a policy.
func CompileDiscoveryProfile(workDir, logDestination string) string {
	return Compile(CompileOptions{
		WorkDir:        workDir,
		Permissive:     true,
		LogDestination: logDestination,
	})
}

// WritablePaths returns the locations Compile always makes writable for
// options, excluding policy entries.
func WritablePaths(options CompileOptions) []string {
	var paths []string
	if options.WorkDir != "" {
		paths = append(paths, path.Clean(options.WorkDir))
	}
	tempDirs := options.TempDirs
	if tempDirs == nil {
		tempDirs = DefaultTempDirs
	}
	paths = append(paths, tempDirs...)
	if options.HomeDir != "" {
		for _, cache := range PackageCacheDirs {
			paths = append(paths, path.Join(options.HomeDir, cache))
		}
	}
	return policy.Union(paths, nil)
}

// profileBuilder accumulates profile lines. Each add method appends one
// section; the order of calls is the order of sections in the output.
type profileBuilder struct {
	options CompileOptions
	lines   []string
}

func (b *profileBuilder) String() string {
	return strings.Join(b.lines, "\n") + "\n"
}

func (b *profileBuilder) emit(lines ...string) {
	b.lines = append(b.lines, lines...)
}

func (b *profileBuilder) addHeader() {
	b.emit("(version 1)")
	if b.options.Permissive {
		b.emit("(allow default)")
	} else {
		b.emit("(deny default)")
	}
	if b.options.LogDestination != "" {
		b.emit("(trace " + quote(b.options.LogDestination) + ")")
	}
}

func (b *profileBuilder) addProcessRules() {
	b.emit("", ";; process, ipc, and device access for build tooling")
	b.emit(processRules...)
}

func (b *profileBuilder) addFilesystemRules() {
	b.emit("", ";; filesystem")
	b.emit("(allow file-read*)")

	var writable []string
	for _, location := range WritablePaths(b.options) {
		writable = append(writable, subpath(location))
	}
	writable = append(writable, writableDevices...)

	var deny []string
	if filesystem := b.filesystemPolicy(); filesystem != nil {
		for _, entry := range filesystem.Write {
			if filter := b.pathFilter(entry); filter != "" {
				writable = append(writable, filter)
			}
		}
		for _, entry := range filesystem.Deny {
			if filter := b.pathFilter(entry); filter != "" {
				deny = append(deny, filter)
			}
		}
	}

	b.emitRule("allow", "file-write*", policy.Union(writable, nil))

	if len(deny) > 0 {
		b.emit("", ";; denied paths, after every allow so they take precedence")
		b.emitRule("deny", "file-read* file-write*", policy.Union(deny, nil))
	}
}

func (b *profileBuilder) addNetworkRules() {
	b.emit("", ";; network")
	network := b.networkPolicy()
	if b.options.Permissive || network == nil {
		b.emit("(allow network*)")
		return
	}

	b.emit(
		`(allow network* (remote ip "localhost:*"))`,
		`(allow network* (local ip "localhost:*"))`,
		`(allow network-bind (local ip "*:*"))`,
		"(allow network* (remote unix-socket))",
	)

	var allow []string
	for _, entry := range network.Allow {
		if pattern := HostPattern(entry); pattern != "" {
			allow = append(allow, "(remote regex "+regexLiteral(pattern)+")")
		}
	}
	b.emitRule("allow", "network-outbound", policy.Union(allow, nil))

	var deny []string
	for _, entry := range network.Deny {
		if pattern := HostPattern(entry); pattern != "" {
			deny = append(deny, "(remote regex "+regexLiteral(pattern)+")")
		}
	}
	b.emitRule("deny", "network-outbound", policy.Union(deny, nil))
}

// emitRule writes one (action operation filter...) form with one filter
// per line. Nothing is written for an empty filter list, since a rule
// without filters would apply to every path or host.
func (b *profileBuilder) emitRule(action, operation string, filters []string) {
	if len(filters) == 0 {
		return
	}
	b.emit("(" + action + " " + operation)
	for index, filter := range filters {
		line := "    " + filter
		if index == len(filters)-1 {
			line += ")"
		}
		b.emit(line)
	}
}

func (b *profileBuilder) filesystemPolicy() *policy.FilesystemPolicy {
	if b.options.Policy == nil {
		return nil
	}
	return b.options.Policy.Filesystem
}

func (b *profileBuilder) networkPolicy() *policy.NetworkPolicy {
	if b.options.Policy == nil {
		return nil
	}
	return b.options.Policy.Network
}

// pathFilter converts a policy path entry into an SBPL filter. "~" is
// expanded against HomeDir, relative paths are resolved against
// WorkDir, a trailing "/**" becomes a subpath, and remaining glob
// characters become an anchored regex.
func (b *profileBuilder) pathFilter(entry string) string {
	resolved, ok := ResolvePolicyPath(entry, b.options.HomeDir, b.options.WorkDir)
	if !ok {
		return ""
	}
	if prefix, found := strings.CutSuffix(resolved, "/**"); found && !strings.ContainsAny(prefix, "*?") {
		if prefix == "" {
			prefix = "/"
		}
		return subpath(prefix)
	}
	if strings.ContainsAny(resolved, "*?") {
		return "(regex " + regexLiteral(globToRegex(resolved)) + ")"
	}
	return subpath(resolved)
}

// ResolvePolicyPath expands "~" and makes entry absolute. Returns false
// for empty entries and for "~" entries when home is unknown.
func ResolvePolicyPath(entry, home, workDir string) (string, bool) {
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return "", false
	}
	switch {
	case entry == "~":
		if home == "" {
			return "", false
		}
		entry = home
	case strings.HasPrefix(entry, "~/"):
		if home == "" {
			return "", false
		}
		entry = home + entry[1:]
	case !strings.HasPrefix(entry, "/"):
		if workDir == "" {
			return "", false
		}
		entry = workDir + "/" + entry
	}
	return path.Clean(entry), true
}

// HostPattern compiles a network policy entry into an anchored regular
// expression. "*.example.com" matches any subdomain of example.com (but
// not example.com itself); any other entry matches exactly. Literal
// dots are escaped. Returns "" for empty entries.
func HostPattern(entry string) string {
	host := strings.ToLower(strings.TrimSpace(entry))
	if host == "" {
		return ""
	}
	if domain, wildcard := strings.CutPrefix(host, "*."); wildcard {
		return "^.+\\." + regexp.QuoteMeta(domain) + "$"
	}
	return "^" + regexp.QuoteMeta(host) + "$"
}

// globToRegex converts a path glob into an anchored regex: "**" matches
// across directories, "*" within one segment, "?" one character.
func globToRegex(glob string) string {
	var builder strings.Builder
	builder.WriteByte('^')
	for index := 0; index < len(glob); index++ {
		character := glob[index]
		switch {
		case character == '*' && index+1 < len(glob) && glob[index+1] == '*':
			builder.WriteString(".*")
			index++
		case character == '*':
			builder.WriteString("[^/]*")
		case character == '?':
			builder.WriteString("[^/]")
		default:
			builder.WriteString(regexp.QuoteMeta(string(character)))
		}
	}
	builder.WriteByte('$')
	return builder.String()
}

func subpath(location string) string {
	return "(subpath " + quote(location) + ")"
}

// quote renders an SBPL string literal.
func quote(value string) string {
	escaped := strings.ReplaceAll(value, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, `"`, `\"`)
	return `"` + escaped + `"`
}

// regexLiteral renders an SBPL regex literal (#"...").
func regexLiteral(pattern string) string {
	return `#"` + strings.ReplaceAll(pattern, `"`, `\"`) + `"`
}
