// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package actioncache

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/localmost/localmost/lib/clock"
	"github.com/localmost/localmost/lib/codec"
	"github.com/localmost/localmost/lib/version"
)

const (
	manifestFile = "manifest.cbor"
	archiveFile  = "archive"
)

// ErrNothingToSave is returned by Save when none of the paths exist.
var ErrNothingToSave = errors.New("none of the cache paths exist")

// Manifest describes one cache entry.
type Manifest struct {
	Key string `cbor:"key"`

	// Paths are the cache paths as declared by the step, in order.
	// Archive index i belongs to Paths[i].
	Paths []string `cbor:"paths"`

	// Present marks which paths existed when the entry was saved.
	Present []bool `cbor:"present"`

	Compression Compression `cbor:"compression"`

	// Digest is the hex blake3 hash of the uncompressed archive.
	Digest string `cbor:"digest"`

	// Size is the uncompressed archive size in bytes.
	Size int64 `cbor:"size"`

	Files int `cbor:"files"`

	CreatedAt time.Time `cbor:"created_at"`
	CreatedBy string    `cbor:"created_by"`
}

// Options configures Open.
type Options struct {
	// Compression applies to new entries.
	Compression Compression

	// HomeDir expands ~ in cache paths. Empty leaves ~ paths
	// unresolvable.
	HomeDir string

	Clock  clock.Clock
	Logger *slog.Logger
}

// Store is a directory of keyed cache entries. Each entry lives in its
// own subdirectory holding a CBOR manifest and a compressed tar
// archive.
type Store struct {
	dir         string
	compression Compression
	homeDir     string
	clock       clock.Clock
	logger      *slog.Logger
}

// Open returns a Store rooted at dir, creating it if needed.
func Open(dir string, options Options) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory %s: %w", dir, err)
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:         dir,
		compression: options.Compression,
		homeDir:     options.HomeDir,
		clock:       clock.OrReal(options.Clock),
		logger:      logger,
	}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// entryDir returns the directory for key. Keys are arbitrary strings,
// so the directory is named by their hash.
func (s *Store) entryDir(key string) string {
	sum := blake3.Sum256([]byte(key))
	return filepath.Join(s.dir, hex.EncodeToString(sum[:16]))
}

// ResolvePaths maps declared cache paths onto the filesystem: ~ against
// the home directory, relative paths against workspace.
func (s *Store) ResolvePaths(workspace string, paths []string) ([]string, error) {
	resolved := make([]string, len(paths))
	for index, declared := range paths {
		entry := strings.TrimSpace(declared)
		switch {
		case entry == "":
			return nil, fmt.Errorf("cache path %d is empty", index)
		case entry == "~" || strings.HasPrefix(entry, "~/"):
			if s.homeDir == "" {
				return nil, fmt.Errorf("cache path %q needs a home directory", declared)
			}
			entry = filepath.Join(s.homeDir, strings.TrimPrefix(entry, "~"))
		case !filepath.IsAbs(entry):
			entry = filepath.Join(workspace, entry)
		}
		resolved[index] = filepath.Clean(entry)
	}
	return resolved, nil
}

// Save archives paths under key, replacing any existing entry. The
// entry is assembled in a temporary directory and renamed into place.
func (s *Store) Save(key, workspace string, paths []string) (*Manifest, error) {
	if key == "" {
		return nil, errors.New("cache key is required")
	}
	if len(paths) == 0 {
		return nil, errors.New("at least one cache path is required")
	}
	sources, err := s.ResolvePaths(workspace, paths)
	if err != nil {
		return nil, err
	}

	temporary, err := os.MkdirTemp(s.dir, ".save-*")
	if err != nil {
		return nil, fmt.Errorf("creating temporary cache entry: %w", err)
	}
	defer os.RemoveAll(temporary)

	manifest, err := s.writeEntry(temporary, key, paths, sources)
	if err != nil {
		return nil, err
	}

	final := s.entryDir(key)
	if err := os.RemoveAll(final); err != nil {
		return nil, fmt.Errorf("replacing cache entry: %w", err)
	}
	if err := os.Rename(temporary, final); err != nil {
		return nil, fmt.Errorf("installing cache entry: %w", err)
	}

	s.logger.Info("cache saved",
		"key", key,
		"files", manifest.Files,
		"size", manifest.Size,
		"compression", manifest.Compression,
	)
	return manifest, nil
}

func (s *Store) writeEntry(dir, key string, declared, sources []string) (*Manifest, error) {
	file, err := os.Create(filepath.Join(dir, archiveFile))
	if err != nil {
		return nil, fmt.Errorf("creating cache archive: %w", err)
	}
	defer file.Close()

	compressor, err := compressWriter(file, s.compression)
	if err != nil {
		return nil, err
	}
	hasher := blake3.New()
	counter := &countingWriter{}
	present, files, err := writeArchive(io.MultiWriter(compressor, hasher, counter), sources)
	if err != nil {
		compressor.Close()
		return nil, err
	}
	if err := compressor.Close(); err != nil {
		return nil, fmt.Errorf("compressing cache archive: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("closing cache archive: %w", err)
	}

	anyPresent := false
	for _, exists := range present {
		anyPresent = anyPresent || exists
	}
	if !anyPresent {
		return nil, fmt.Errorf("%w: %s", ErrNothingToSave, strings.Join(declared, ", "))
	}

	manifest := &Manifest{
		Key:         key,
		Paths:       declared,
		Present:     present,
		Compression: s.compression,
		Digest:      hex.EncodeToString(hasher.Sum(nil)),
		Size:        counter.count,
		Files:       files,
		CreatedAt:   s.clock.Now().UTC(),
		CreatedBy:   version.UserAgent(),
	}
	data, err := codec.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("encoding cache manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("writing cache manifest: %w", err)
	}
	return manifest, nil
}

// Get returns the manifest stored under key exactly. The error wraps
// fs.ErrNotExist when there is none.
func (s *Store) Get(key string) (*Manifest, error) {
	return s.readManifest(s.entryDir(key))
}

func (s *Store) readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("reading cache manifest: %w", err)
	}
	var manifest Manifest
	if err := codec.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("decoding cache manifest %s: %w", dir, err)
	}
	return &manifest, nil
}

// Entries returns every readable manifest, newest first. Entries that
// are mid-write or corrupt are skipped.
func (s *Store) Entries() ([]*Manifest, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("listing cache: %w", err)
	}
	var manifests []*Manifest
	for _, entry := range dirEntries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		manifest, err := s.readManifest(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Debug("skipping unreadable cache entry", "entry", entry.Name(), "error", err)
			continue
		}
		manifests = append(manifests, manifest)
	}
	sort.SliceStable(manifests, func(i, j int) bool {
		if !manifests[i].CreatedAt.Equal(manifests[j].CreatedAt) {
			return manifests[i].CreatedAt.After(manifests[j].CreatedAt)
		}
		return manifests[i].Key < manifests[j].Key
	})
	return manifests, nil
}

// Match finds the entry a restore should use: the exact key if it was
// saved with paths, otherwise the newest entry saved with paths whose
// key starts with a restore key, trying restore keys in order. Entries
// saved with a different path list are passed over. It returns nil
// without error on a miss.
func (s *Store) Match(key string, restoreKeys, paths []string) (manifest *Manifest, exact bool, err error) {
	manifest, err = s.Get(key)
	switch {
	case err == nil && samePaths(manifest.Paths, paths):
		return manifest, true, nil
	case err == nil:
		s.logger.Debug("cache entry paths differ, skipping", "key", key)
	case !errors.Is(err, fs.ErrNotExist):
		return nil, false, err
	}

	if len(restoreKeys) == 0 {
		return nil, false, nil
	}
	entries, err := s.Entries()
	if err != nil {
		return nil, false, err
	}
	for _, prefix := range restoreKeys {
		if prefix == "" {
			continue
		}
		for _, candidate := range entries {
			if candidate.Key != key && strings.HasPrefix(candidate.Key, prefix) && samePaths(candidate.Paths, paths) {
				return candidate, false, nil
			}
		}
	}
	return nil, false, nil
}

// RestoreResult reports the outcome of Restore.
type RestoreResult struct {
	// Hit is true when any entry was restored.
	Hit bool

	// Exact is true when the restored entry's key equals the primary
	// key.
	Exact bool

	// MatchedKey is the key of the restored entry.
	MatchedKey string
}

// Restore extracts the entry selected by Match into the cache paths
// resolved against workspace. paths are the declared paths of the
// restoring step.
func (s *Store) Restore(key string, restoreKeys []string, workspace string, paths []string) (RestoreResult, error) {
	manifest, exact, err := s.Match(key, restoreKeys, paths)
	if err != nil || manifest == nil {
		return RestoreResult{}, err
	}

	targets, err := s.ResolvePaths(workspace, paths)
	if err != nil {
		return RestoreResult{}, err
	}
	if err := s.extract(manifest, targets); err != nil {
		return RestoreResult{}, err
	}

	s.logger.Info("cache restored", "key", manifest.Key, "exact", exact, "files", manifest.Files)
	return RestoreResult{Hit: true, Exact: exact, MatchedKey: manifest.Key}, nil
}

func (s *Store) extract(manifest *Manifest, targets []string) error {
	file, err := os.Open(filepath.Join(s.entryDir(manifest.Key), archiveFile))
	if err != nil {
		return fmt.Errorf("opening cache archive: %w", err)
	}
	defer file.Close()

	decompressed, release, err := decompressReader(file, manifest.Compression)
	if err != nil {
		return err
	}
	defer release()

	hasher := blake3.New()
	tee := io.TeeReader(decompressed, hasher)
	if err := extractArchive(tee, targets); err != nil {
		return err
	}
	// tar stops at the end-of-archive marker; hash any trailing padding.
	if _, err := io.Copy(io.Discard, tee); err != nil {
		return fmt.Errorf("reading cache archive: %w", err)
	}
	if digest := hex.EncodeToString(hasher.Sum(nil)); digest != manifest.Digest {
		return fmt.Errorf("cache entry %q is corrupt: digest %s, manifest says %s", manifest.Key, digest, manifest.Digest)
	}
	return nil
}

// Delete removes the entry stored under key. Deleting a missing key is
// not an error.
func (s *Store) Delete(key string) error {
	if err := os.RemoveAll(s.entryDir(key)); err != nil {
		return fmt.Errorf("deleting cache entry: %w", err)
	}
	return nil
}

func samePaths(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for index := range a {
		if strings.TrimSpace(a[index]) != strings.TrimSpace(b[index]) {
			return false
		}
	}
	return true
}

type countingWriter struct {
	count int64
}

func (w *countingWriter) Write(data []byte) (int, error) {
	w.count += int64(len(data))
	return len(data), nil
}
