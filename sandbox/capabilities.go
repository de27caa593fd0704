// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// Capabilities describes what sandbox features are available on this system.
type Capabilities struct {
	// OS is runtime.GOOS.
	OS string

	// SandboxExecAvailable is true if sandbox-exec is installed.
	SandboxExecAvailable bool

	// SandboxExecPath is the path to sandbox-exec if available.
	SandboxExecPath string

	// SeatbeltWorks is true if a trivial profile could be applied. On
	// some hosts (nested sandboxes, restricted CI runners) sandbox-exec
	// exists but cannot apply profiles.
	SeatbeltWorks bool

	// ProductVersion is the macOS version reported by sw_vers.
	ProductVersion string
}

// probeProfile is the smallest profile that exercises the kernel
// facility without restricting anything.
const probeProfile = "(version 1)\n(allow default)\n"

// DetectCapabilities checks what sandbox features are available.
func DetectCapabilities() *Capabilities {
	caps := &Capabilities{OS: runtime.GOOS}

	if path, err := sandboxExecPath(); err == nil {
		caps.SandboxExecAvailable = true
		caps.SandboxExecPath = path

		cmd := exec.Command(path, "-p", probeProfile, "/usr/bin/true")
		caps.SeatbeltWorks = cmd.Run() == nil
	}

	if out, err := exec.Command("sw_vers", "-productVersion").Output(); err == nil {
		caps.ProductVersion = strings.TrimSpace(string(out))
	}

	return caps
}

// CanRunSandbox returns true if confined execution is possible.
func (c *Capabilities) CanRunSandbox() bool {
	return c.SandboxExecAvailable && c.SeatbeltWorks
}

// SkipReason returns a human-readable reason why sandboxing isn't available,
// or empty string if it is available.
func (c *Capabilities) SkipReason() string {
	switch {
	case c.OS != "" && c.OS != "darwin":
		return "seatbelt confinement requires macOS (running on " + c.OS + ")"
	case !c.SandboxExecAvailable:
		return "sandbox-exec not found"
	case !c.SeatbeltWorks:
		return "sandbox-exec is installed but could not apply a profile (already inside a sandbox?)"
	}
	return ""
}

func sandboxExecPath() (string, error) {
	if info, err := os.Stat(SandboxExecPath); err == nil && !info.IsDir() {
		return SandboxExecPath, nil
	}
	return exec.LookPath("sandbox-exec")
}
