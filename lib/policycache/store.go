// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package policycache

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/localmost/localmost/lib/codec"
	"github.com/localmost/localmost/lib/policy"
)

const recordExtension = ".cbor"

// CachedPolicy is the record kept for one repository.
type CachedPolicy struct {
	// Repository is the repository identifier the record belongs to.
	Repository string `cbor:"repository"`

	// Config is the policy document as last seen.
	Config *policy.Document `cbor:"config"`

	// Approved is true once a person accepted Config.
	Approved bool `cbor:"approved"`

	// ApprovedCommit is the HEAD commit at approval time, for display.
	ApprovedCommit string `cbor:"approved_commit,omitempty"`

	ApprovedAt time.Time `cbor:"approved_at,omitempty"`
	CachedAt   time.Time `cbor:"cached_at"`
}

// Store keeps one CBOR file per repository in a directory. File names
// are the URL-safe base64 of the repository identifier, so any
// identifier (URLs, absolute paths) maps to one flat file.
type Store struct {
	dir string
}

// NewStore returns a Store over dir, creating the directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating policy cache %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(repository string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(repository))+recordExtension)
}

// Load returns the record for repository. The error wraps
// fs.ErrNotExist when the repository has never been cached. Any other
// error means the record exists but cannot be trusted.
func (s *Store) Load(repository string) (*CachedPolicy, error) {
	data, err := os.ReadFile(s.path(repository))
	if err != nil {
		return nil, fmt.Errorf("reading cached policy for %s: %w", repository, err)
	}
	var record CachedPolicy
	if err := codec.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding cached policy for %s: %w", repository, err)
	}
	if record.Repository != repository {
		return nil, fmt.Errorf("cached policy for %s names repository %q", repository, record.Repository)
	}
	return &record, nil
}

// Save writes record atomically: to a temporary file, then renamed
// over the previous record.
func (s *Store) Save(record *CachedPolicy) error {
	if record.Repository == "" {
		return errors.New("cached policy has no repository")
	}
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding cached policy: %w", err)
	}

	tmpFile, err := os.CreateTemp(s.dir, "policy-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp policy file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing cached policy: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp policy file: %w", err)
	}

	finalPath := s.path(record.Repository)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming cached policy to %s: %w", finalPath, err)
	}

	success = true
	return nil
}

// Delete removes the record for repository. Deleting a repository that
// was never cached is not an error.
func (s *Store) Delete(repository string) error {
	if err := os.Remove(s.path(repository)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting cached policy for %s: %w", repository, err)
	}
	return nil
}

// List returns the identifiers of every cached repository, sorted.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing policy cache: %w", err)
	}
	var repositories []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, recordExtension) {
			continue
		}
		decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, recordExtension))
		if err != nil {
			continue
		}
		repositories = append(repositories, string(decoded))
	}
	sort.Strings(repositories)
	return repositories, nil
}
