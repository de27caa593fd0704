// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package actioncache

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
)

// Archive layout: every cached path gets a top-level directory named
// after its index in the manifest's path list. "0" is the first path
// itself, "0/sub/file" a file beneath it. Restores map index i back to
// path i resolved in the restoring workspace, so an entry saved in one
// checkout restores into another.

// writeArchive writes each existing source path into a tar stream.
// Missing sources are skipped; the returned slice reports which
// indexes were present.
func writeArchive(destination io.Writer, sources []string) ([]bool, int, error) {
	writer := tar.NewWriter(destination)
	present := make([]bool, len(sources))
	files := 0

	for index, source := range sources {
		if _, err := os.Lstat(source); errors.Is(err, fs.ErrNotExist) {
			continue
		} else if err != nil {
			return nil, 0, fmt.Errorf("checking %s: %w", source, err)
		}
		present[index] = true

		prefix := strconv.Itoa(index)
		err := filepath.WalkDir(source, func(current string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			relative, err := filepath.Rel(source, current)
			if err != nil {
				return err
			}
			name := prefix
			if relative != "." {
				name = path.Join(prefix, filepath.ToSlash(relative))
			}
			added, err := addEntry(writer, current, name, entry)
			if added {
				files++
			}
			return err
		})
		if err != nil {
			return nil, 0, fmt.Errorf("archiving %s: %w", source, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, 0, fmt.Errorf("finishing archive: %w", err)
	}
	return present, files, nil
}

// addEntry writes one tar header and, for regular files, the content.
// It reports whether a regular file was added.
func addEntry(writer *tar.Writer, current, name string, entry fs.DirEntry) (bool, error) {
	info, err := entry.Info()
	if err != nil {
		return false, err
	}

	link := ""
	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(current); err != nil {
			return false, err
		}
	} else if !info.Mode().IsRegular() && !info.IsDir() {
		// Sockets, devices and pipes have no meaningful cached form.
		return false, nil
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return false, err
	}
	header.Name = name
	if info.IsDir() {
		header.Name += "/"
	}
	header.Uname, header.Gname = "", ""
	if err := writer.WriteHeader(header); err != nil {
		return false, err
	}
	if !info.Mode().IsRegular() {
		return false, nil
	}

	file, err := os.Open(current)
	if err != nil {
		return false, err
	}
	defer file.Close()
	if _, err := io.Copy(writer, file); err != nil {
		return false, err
	}
	return true, nil
}

// extractArchive unpacks a stream written by writeArchive, placing
// index i under targets[i].
func extractArchive(source io.Reader, targets []string) error {
	reader := tar.NewReader(source)
	for {
		header, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		destination, err := destinationFor(header.Name, targets)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(destination, fs.FileMode(header.Mode).Perm()|0o700); err != nil {
				return fmt.Errorf("restoring %s: %w", destination, err)
			}
		case tar.TypeReg:
			if err := writeFile(destination, reader, fs.FileMode(header.Mode).Perm()); err != nil {
				return fmt.Errorf("restoring %s: %w", destination, err)
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
				return fmt.Errorf("restoring %s: %w", destination, err)
			}
			os.Remove(destination)
			if err := os.Symlink(header.Linkname, destination); err != nil {
				return fmt.Errorf("restoring %s: %w", destination, err)
			}
		}
	}
}

// destinationFor maps an archive name onto the filesystem, refusing
// names that would escape their target.
func destinationFor(name string, targets []string) (string, error) {
	name = strings.TrimSuffix(name, "/")
	prefix, rest, _ := strings.Cut(name, "/")
	index, err := strconv.Atoi(prefix)
	if err != nil || index < 0 || index >= len(targets) {
		return "", fmt.Errorf("archive entry %q has no matching cache path", name)
	}
	if rest == "" {
		return targets[index], nil
	}
	cleaned := path.Clean(rest)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") || path.IsAbs(cleaned) {
		return "", fmt.Errorf("archive entry %q escapes its cache path", name)
	}
	return filepath.Join(targets[index], filepath.FromSlash(cleaned)), nil
}

func writeFile(destination string, content io.Reader, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(destination, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(file, content); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
