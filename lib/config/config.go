// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvironmentVariable names the variable Load reads the config file
// path from.
const EnvironmentVariable = "LOCALMOST_CONFIG"

// Config is the master configuration for localmost.
type Config struct {
	Paths    PathsConfig    `yaml:"paths"`
	Sandbox  SandboxConfig  `yaml:"sandbox"`
	Run      RunConfig      `yaml:"run"`
	Approval ApprovalConfig `yaml:"approval"`
}

// PathsConfig holds the on-disk locations localmost reads and writes.
// Every path except Root defaults to a directory under Root.
type PathsConfig struct {
	// Root is the base directory for all localmost state.
	Root string `yaml:"root"`

	// Actions holds fetched remote actions, one directory per
	// owner/repo@ref.
	Actions string `yaml:"actions"`

	// Cache is the content-keyed store behind the intercepted cache
	// actions.
	Cache string `yaml:"cache"`

	// Artifacts receives files from intercepted upload-artifact steps.
	Artifacts string `yaml:"artifacts"`

	// Policies holds one approved policy record per repository.
	Policies string `yaml:"policies"`

	// Runs holds the JSONL run log of every invocation.
	Runs string `yaml:"runs"`
}

// SandboxConfig configures step confinement.
type SandboxConfig struct {
	// Fallback decides what happens on hosts without seatbelt:
	// "error" refuses to run, "warn" runs unconfined.
	Fallback string `yaml:"fallback"`

	// Disabled runs every step unconfined. Equivalent to --no-sandbox.
	Disabled bool `yaml:"disabled"`

	// TempDirs replaces the default writable temp locations.
	TempDirs []string `yaml:"temp_dirs,omitempty"`
}

// RunConfig holds defaults for localmost run.
type RunConfig struct {
	// Shell runs steps that declare no shell of their own.
	Shell string `yaml:"shell"`

	// SecretMode is the default --secret-mode: stub, env, or file.
	SecretMode string `yaml:"secret_mode"`

	// EventBuffer is the capacity of the engine's event stream. Step
	// output blocks once this many events are pending.
	EventBuffer int `yaml:"event_buffer"`

	// IgnoreNeedsFailure runs jobs whose dependencies failed.
	IgnoreNeedsFailure bool `yaml:"ignore_needs_failure"`

	// CacheCompression compresses new action cache entries: zstd,
	// lz4, or none.
	CacheCompression string `yaml:"cache_compression"`
}

// ApprovalConfig configures the policy approval prompt.
type ApprovalConfig struct {
	// Timeout bounds how long the terminal prompt waits for an answer
	// before rejecting. A Go duration string; "0" waits forever.
	Timeout string `yaml:"timeout"`
}

// Default returns a Config with every field set.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Root:      "${HOME}/.localmost",
			Actions:   "${LOCALMOST_ROOT}/actions",
			Cache:     "${LOCALMOST_ROOT}/cache",
			Artifacts: "${LOCALMOST_ROOT}/artifacts",
			Policies:  "${LOCALMOST_ROOT}/policies",
			Runs:      "${LOCALMOST_ROOT}/runs",
		},
		Sandbox: SandboxConfig{
			Fallback: "error",
		},
		Run: RunConfig{
			Shell:            "bash",
			SecretMode:       "stub",
			EventBuffer:      256,
			CacheCompression: "zstd",
		},
		Approval: ApprovalConfig{
			Timeout: "10m",
		},
	}
}

// Load reads the file named by LOCALMOST_CONFIG. When the variable is
// unset the defaults are returned.
func Load() (*Config, error) {
	path := os.Getenv(EnvironmentVariable)
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile reads the config file at path over the defaults. Unknown
// keys are an error so a misspelled setting does not silently keep its
// default.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	cfg.expandVariables()

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config %s: %w", path, err)
	}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

// expandVariables resolves ${HOME}, ${LOCALMOST_ROOT} and ${VAR:-default}
// in path fields. Root is expanded first so the other paths can refer
// to it.
func (c *Config) expandVariables() {
	home, _ := os.UserHomeDir()
	vars := map[string]string{"HOME": home}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["LOCALMOST_ROOT"] = c.Paths.Root

	c.Paths.Actions = expandVars(c.Paths.Actions, vars)
	c.Paths.Cache = expandVars(c.Paths.Cache, vars)
	c.Paths.Artifacts = expandVars(c.Paths.Artifacts, vars)
	c.Paths.Policies = expandVars(c.Paths.Policies, vars)
	c.Paths.Runs = expandVars(c.Paths.Runs, vars)

	for index, dir := range c.Sandbox.TempDirs {
		c.Sandbox.TempDirs[index] = expandVars(dir, vars)
	}
}

// varPattern matches ${VAR} and ${VAR:-default}.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		// Provided vars win over the process environment.
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// ApprovalTimeout returns the parsed approval timeout. Zero means no
// limit. Call Validate first; an unparseable value yields zero.
func (c *Config) ApprovalTimeout() time.Duration {
	if c.Approval.Timeout == "" {
		return 0
	}
	timeout, err := time.ParseDuration(c.Approval.Timeout)
	if err != nil {
		return 0
	}
	return timeout
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Paths.Root == "" {
		errs = append(errs, fmt.Errorf("paths.root is required"))
	}
	for name, path := range map[string]string{
		"paths.actions":   c.Paths.Actions,
		"paths.cache":     c.Paths.Cache,
		"paths.artifacts": c.Paths.Artifacts,
		"paths.policies":  c.Paths.Policies,
		"paths.runs":      c.Paths.Runs,
	} {
		if path != "" && !filepath.IsAbs(path) {
			errs = append(errs, fmt.Errorf("%s must be an absolute path, got %q", name, path))
		}
	}

	fallbackValues := []string{"error", "warn"}
	if !slices.Contains(fallbackValues, c.Sandbox.Fallback) {
		errs = append(errs, fmt.Errorf("sandbox.fallback must be one of: %v", fallbackValues))
	}

	if c.Run.Shell == "" {
		errs = append(errs, fmt.Errorf("run.shell is required"))
	}
	secretModes := []string{"stub", "env", "file"}
	if !slices.Contains(secretModes, c.Run.SecretMode) {
		errs = append(errs, fmt.Errorf("run.secret_mode must be one of: %v", secretModes))
	}
	if c.Run.EventBuffer < 1 {
		errs = append(errs, fmt.Errorf("run.event_buffer must be positive, got %d", c.Run.EventBuffer))
	}
	compressions := []string{"zstd", "lz4", "none"}
	if !slices.Contains(compressions, c.Run.CacheCompression) {
		errs = append(errs, fmt.Errorf("run.cache_compression must be one of: %v", compressions))
	}

	if c.Approval.Timeout != "" {
		if timeout, err := time.ParseDuration(c.Approval.Timeout); err != nil {
			errs = append(errs, fmt.Errorf("approval.timeout: %w", err))
		} else if timeout < 0 {
			errs = append(errs, fmt.Errorf("approval.timeout must not be negative"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// EnsurePaths creates every configured directory.
func (c *Config) EnsurePaths() error {
	paths := []string{
		c.Paths.Root,
		c.Paths.Actions,
		c.Paths.Cache,
		c.Paths.Artifacts,
		c.Paths.Policies,
		c.Paths.Runs,
	}

	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}

	return nil
}
