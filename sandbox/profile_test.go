// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"strings"
	"testing"

	"github.com/localmost/localmost/lib/policy"
)

func testCompileOptions() CompileOptions {
	return CompileOptions{
		WorkDir: "/Users/dev/project",
		HomeDir: "/Users/dev",
		Policy: &policy.SandboxPolicy{
			Network: &policy.NetworkPolicy{
				Allow: []string{"github.com", "*.npmjs.org"},
				Deny:  []string{"telemetry.example.com"},
			},
			Filesystem: &policy.FilesystemPolicy{
				Write: []string{"~/.config/gh", "build/**", "~/logs/*.txt"},
				Deny:  []string{"~/.ssh"},
			},
		},
	}
}

func TestCompileDeterministic(t *testing.T) {
	t.Parallel()

	first := Compile(testCompileOptions())
	second := Compile(testCompileOptions())
	if first != second {
		t.Errorf("Compile is not deterministic:\n%s\n---\n%s", first, second)
	}
}

func TestCompileHeader(t *testing.T) {
	t.Parallel()

	profile := Compile(testCompileOptions())
	if !strings.HasPrefix(profile, "(version 1)\n(deny default)\n") {
		t.Errorf("profile does not start with version and deny default:\n%s", profile)
	}
	if strings.Contains(profile, "(allow default)") {
		t.Error("strict profile contains (allow default)")
	}
	if strings.Contains(profile, "(trace") {
		t.Error("profile without log destination contains a trace directive")
	}
	for _, rule := range processRules {
		if !strings.Contains(profile, rule+"\n") {
			t.Errorf("profile missing process rule %s", rule)
		}
	}
}

func TestCompileFilesystem(t *testing.T) {
	t.Parallel()

	profile := Compile(testCompileOptions())

	for _, want := range []string{
		"(allow file-read*)",
		`    (subpath "/Users/dev/project")`,
		`    (subpath "/private/var/folders")`,
		`    (subpath "/Users/dev/.npm")`,
		`    (subpath "/Users/dev/.config/gh")`,
		`    (subpath "/Users/dev/project/build")`,
		`    (regex #"^/Users/dev/logs/[^/]*\.txt$"))`,
		`    (literal "/dev/null")`,
		`    (subpath "/Users/dev/.ssh"))`,
	} {
		if !strings.Contains(profile, want+"\n") {
			t.Errorf("profile missing line %q:\n%s", want, profile)
		}
	}

	allow := strings.Index(profile, "(allow file-write*")
	deny := strings.Index(profile, "(deny file-read* file-write*")
	if allow < 0 || deny < 0 {
		t.Fatalf("profile missing write allow or deny rule:\n%s", profile)
	}
	if deny < allow {
		t.Error("deny rule must come after the write allow rule")
	}
}

func TestCompileWithoutHome(t *testing.T) {
	t.Parallel()

	options := testCompileOptions()
	options.HomeDir = ""
	profile := Compile(options)

	if strings.Contains(profile, "~") {
		t.Errorf("unexpanded ~ in profile:\n%s", profile)
	}
	for _, cache := range PackageCacheDirs {
		if strings.Contains(profile, "/"+cache+`")`) {
			t.Errorf("package cache %q emitted without a home directory:\n%s", cache, profile)
		}
	}
	if !strings.Contains(profile, `(remote regex #"^.+\.npmjs\.org$")`) {
		t.Error("network allow rules should not depend on the home directory")
	}
	if !strings.Contains(profile, `(subpath "/Users/dev/project/build")`) {
		t.Error("relative write entry should still resolve against the work dir")
	}
	if strings.Contains(profile, "(deny file-read* file-write*") {
		t.Error("deny rule emitted although its only entry needs a home directory")
	}
}

func TestCompileNetwork(t *testing.T) {
	t.Parallel()

	t.Run("no policy allows everything", func(t *testing.T) {
		t.Parallel()
		profile := Compile(CompileOptions{WorkDir: "/w"})
		if !strings.Contains(profile, "\n(allow network*)\n") {
			t.Errorf("profile without policy should allow network:\n%s", profile)
		}
	})

	t.Run("policy restricts to patterns", func(t *testing.T) {
		t.Parallel()
		profile := Compile(testCompileOptions())
		if strings.Contains(profile, "\n(allow network*)\n") {
			t.Error("restricted profile allows all network")
		}
		for _, want := range []string{
			`(allow network* (remote ip "localhost:*"))`,
			`    (remote regex #"^github\.com$")`,
			`    (remote regex #"^.+\.npmjs\.org$"))`,
			`(deny network-outbound`,
			`    (remote regex #"^telemetry\.example\.com$"))`,
		} {
			if !strings.Contains(profile, want+"\n") {
				t.Errorf("profile missing line %q:\n%s", want, profile)
			}
		}
		if strings.Index(profile, "(deny network-outbound") < strings.Index(profile, "(allow network-outbound") {
			t.Error("network deny must come after network allow")
		}
	})

	t.Run("empty allow list keeps loopback only", func(t *testing.T) {
		t.Parallel()
		profile := Compile(CompileOptions{
			WorkDir: "/w",
			Policy:  &policy.SandboxPolicy{Network: &policy.NetworkPolicy{Allow: []string{}}},
		})
		if strings.Contains(profile, "(allow network-outbound") {
			t.Errorf("empty allow list produced an outbound rule:\n%s", profile)
		}
		if !strings.Contains(profile, `(remote ip "localhost:*")`) {
			t.Error("loopback rule missing")
		}
	})
}

func TestCompilePermissive(t *testing.T) {
	t.Parallel()

	options := testCompileOptions()
	options.Permissive = true
	options.LogDestination = "/tmp/localmost-trace.log"
	profile := Compile(options)

	if !strings.HasPrefix(profile, "(version 1)\n(allow default)\n(trace \"/tmp/localmost-trace.log\")\n") {
		t.Errorf("permissive header wrong:\n%s", profile)
	}
	if !strings.Contains(profile, "\n(allow network*)\n") {
		t.Error("permissive profile should allow all network")
	}
	if !strings.Contains(profile, `(subpath "/Users/dev/.ssh")`) {
		t.Error("filesystem deny entries should survive permissive mode")
	}

	discovery := CompileDiscoveryProfile("/w", "/tmp/trace.log")
	if !strings.Contains(discovery, "(allow default)") || !strings.Contains(discovery, `(trace "/tmp/trace.log")`) {
		t.Errorf("discovery profile wrong:\n%s", discovery)
	}
}

func TestWritablePaths(t *testing.T) {
	t.Parallel()

	paths := WritablePaths(CompileOptions{WorkDir: "/w/./x", TempDirs: []string{"/tmp"}})
	if got := strings.Join(paths, ","); got != "/w/x,/tmp" {
		t.Errorf("WritablePaths = %q, want %q", got, "/w/x,/tmp")
	}

	withHome := WritablePaths(CompileOptions{HomeDir: "/h", TempDirs: []string{}})
	if len(withHome) != len(PackageCacheDirs) || withHome[0] != "/h/.cache" {
		t.Errorf("WritablePaths with home = %v", withHome)
	}
}

func TestHostPattern(t *testing.T) {
	t.Parallel()

	tests := []struct {
		entry string
		want  string
	}{
		{"github.com", `^github\.com$`},
		{"*.npmjs.org", `^.+\.npmjs\.org$`},
		{"  API.Example.COM ", `^api\.example\.com$`},
		{"", ""},
	}

	for _, test := range tests {
		if got := HostPattern(test.entry); got != test.want {
			t.Errorf("HostPattern(%q) = %q, want %q", test.entry, got, test.want)
		}
	}
}

func TestResolvePolicyPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		entry  string
		want   string
		wantOK bool
	}{
		{"~", "/home/u", true},
		{"~/.cargo/", "/home/u/.cargo", true},
		{"/opt/tools", "/opt/tools", true},
		{"out/../dist", "/work/dist", true},
		{"", "", false},
	}

	for _, test := range tests {
		got, ok := ResolvePolicyPath(test.entry, "/home/u", "/work")
		if got != test.want || ok != test.wantOK {
			t.Errorf("ResolvePolicyPath(%q) = %q, %v; want %q, %v", test.entry, got, ok, test.want, test.wantOK)
		}
	}

	if _, ok := ResolvePolicyPath("~/.npm", "", "/work"); ok {
		t.Error("~ entry resolved without a home directory")
	}
}
