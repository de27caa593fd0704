// Copyright 2026 The Localmost Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/localmost/localmost/lib/actioncache"
	"github.com/localmost/localmost/lib/expression"
	"github.com/localmost/localmost/lib/git"
)

// checkout reuses the workspace instead of cloning. Submodules are
// updated only when the step asks for them.
func (e *Engine) checkout(ctx context.Context, ec *ExecutionContext, call actionCall) error {
	if repository := call.with["repository"]; repository != "" && !strings.EqualFold(repository, ec.GitHub["repository"]) {
		return unsupported("checkout of another repository (%s) is not supported", repository)
	}
	e.message(ctx, ec, call.index, call.name, "using the local working tree at "+ec.WorkDir)

	var recursive bool
	switch strings.ToLower(call.with["submodules"]) {
	case "true":
	case "recursive":
		recursive = true
	default:
		return nil
	}
	if err := git.NewRepository(ec.WorkDir).UpdateSubmodules(ctx, recursive); err != nil {
		return fmt.Errorf("updating submodules: %w", err)
	}
	return nil
}

// restoreCache serves actions/cache and actions/cache/restore from the
// local cache: the exact key first, then each restore-keys prefix in
// order. For actions/cache a miss on the exact key schedules a save of
// the same paths once the job succeeds.
func (e *Engine) restoreCache(ctx context.Context, ec *ExecutionContext, call actionCall, saveAfter bool) (map[string]string, error) {
	key, paths, err := cacheArguments(call.with)
	if err != nil {
		return nil, err
	}
	restoreKeys := splitLines(call.with["restore-keys"])

	outputs := map[string]string{
		"cache-hit":         "false",
		"cache-primary-key": key,
	}
	if e.cache == nil {
		e.message(ctx, ec, call.index, call.name, "no local cache is configured, treating as a miss")
		return outputs, nil
	}

	restored, err := e.cache.Restore(key, restoreKeys, ec.WorkDir, paths)
	if err != nil {
		return nil, fmt.Errorf("restoring cache: %w", err)
	}
	if restored.Hit {
		outputs["cache-hit"] = strconv.FormatBool(restored.Exact)
		outputs["cache-matched-key"] = restored.MatchedKey
		e.message(ctx, ec, call.index, call.name, "cache restored from key "+restored.MatchedKey)
	} else {
		e.message(ctx, ec, call.index, call.name, "cache not found for key "+key)
	}

	if saveAfter && !restored.Exact {
		workspace := ec.WorkDir
		ec.postSteps = append(ec.postSteps, postStep{
			name: "Post " + call.name,
			run: func(context.Context) error {
				return e.storeCache(key, workspace, paths)
			},
		})
	}
	return outputs, nil
}

// saveCache serves actions/cache/save.
func (e *Engine) saveCache(ctx context.Context, ec *ExecutionContext, call actionCall) error {
	key, paths, err := cacheArguments(call.with)
	if err != nil {
		return err
	}
	if e.cache == nil {
		e.message(ctx, ec, call.index, call.name, "no local cache is configured, nothing saved")
		return nil
	}
	if err := e.storeCache(key, ec.WorkDir, paths); err != nil {
		return err
	}
	e.message(ctx, ec, call.index, call.name, "cache saved with key "+key)
	return nil
}

func (e *Engine) storeCache(key, workspace string, paths []string) error {
	if e.cache == nil {
		return nil
	}
	_, err := e.cache.Save(key, workspace, paths)
	if errors.Is(err, actioncache.ErrNothingToSave) {
		e.logger.Warn("cache paths do not exist, nothing saved", "key", key, "paths", paths)
		return nil
	}
	if err != nil {
		return fmt.Errorf("saving cache: %w", err)
	}
	return nil
}

func cacheArguments(with map[string]string) (string, []string, error) {
	key := strings.TrimSpace(with["key"])
	if key == "" {
		return "", nil, errors.New("cache: key is required")
	}
	paths := splitLines(with["path"])
	if len(paths) == 0 {
		return "", nil, errors.New("cache: path is required")
	}
	return key, paths, nil
}

// uploadArtifact copies the named paths into the local artifact
// directory. Nothing leaves the machine.
func (e *Engine) uploadArtifact(ctx context.Context, ec *ExecutionContext, call actionCall) (map[string]string, error) {
	if e.artifactDir == "" {
		return nil, unsupported("artifact upload is disabled: no artifact directory is configured")
	}
	name := artifactName(call.with["name"])
	if name == "" {
		return nil, fmt.Errorf("invalid artifact name %q", call.with["name"])
	}
	patterns := splitLines(call.with["path"])
	if len(patterns) == 0 {
		return nil, errors.New("upload-artifact: path is required")
	}

	sources, err := artifactSources(ec.WorkDir, patterns)
	if err != nil {
		return nil, fmt.Errorf("upload-artifact: %w", err)
	}

	destination := filepath.Join(e.artifactDir, name)
	if len(sources) == 0 {
		message := "no files found for artifact " + name
		switch strings.ToLower(call.with["if-no-files-found"]) {
		case "error":
			return nil, errors.New(message)
		case "ignore":
		default:
			e.message(ctx, ec, call.index, call.name, message)
		}
		return map[string]string{}, nil
	}

	if err := os.RemoveAll(destination); err != nil {
		return nil, fmt.Errorf("replacing artifact %s: %w", name, err)
	}
	files := 0
	for _, source := range sources {
		relative, err := filepath.Rel(ec.WorkDir, source)
		if err != nil || relative == ".." || strings.HasPrefix(relative, ".."+string(filepath.Separator)) {
			relative = filepath.Base(source)
		}
		copied, err := copyTree(source, filepath.Join(destination, relative))
		if err != nil {
			return nil, fmt.Errorf("upload-artifact: %w", err)
		}
		files += copied
	}

	e.message(ctx, ec, call.index, call.name,
		fmt.Sprintf("artifact %s stored locally at %s (%d files); nothing was uploaded", name, destination, files))
	return map[string]string{
		"artifact-id":  name,
		"artifact-url": "file://" + destination,
	}, nil
}

// artifactSources expands upload patterns against workDir. Patterns
// without "**" go through filepath.Glob; a "**" pattern walks from its
// literal prefix and keeps the files expression.MatchPath accepts.
func artifactSources(workDir string, patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var sources []string
	add := func(source string) {
		if !seen[source] {
			seen[source] = true
			sources = append(sources, source)
		}
	}
	for _, pattern := range patterns {
		resolved := filepath.ToSlash(resolvePath(workDir, pattern))
		if !strings.Contains(resolved, "**") {
			matches, err := filepath.Glob(filepath.FromSlash(resolved))
			if err != nil {
				return nil, fmt.Errorf("bad path %q: %w", pattern, err)
			}
			for _, match := range matches {
				add(match)
			}
			continue
		}

		root, rest := globBase(resolved)
		err := filepath.WalkDir(filepath.FromSlash(root), func(current string, entry fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if entry.IsDir() {
				return nil
			}
			relative, err := filepath.Rel(filepath.FromSlash(root), current)
			if err != nil {
				return err
			}
			if expression.MatchPath(rest, filepath.ToSlash(relative)) {
				add(current)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", pattern, err)
		}
	}
	return sources, nil
}

// globBase splits a slash-separated absolute pattern into the directory
// before its first wildcard segment and the remaining pattern.
func globBase(pattern string) (root, rest string) {
	segments := strings.Split(pattern, "/")
	for index, segment := range segments {
		if strings.ContainsAny(segment, "*?[") {
			root = strings.Join(segments[:index], "/")
			if root == "" {
				root = "/"
			}
			return root, strings.Join(segments[index:], "/")
		}
	}
	return pattern, ""
}

// downloadArtifact copies artifacts stored by uploadArtifact into the
// workspace. Without a name every artifact is copied into its own
// subdirectory.
func (e *Engine) downloadArtifact(ctx context.Context, ec *ExecutionContext, call actionCall) (map[string]string, error) {
	if e.artifactDir == "" {
		return nil, unsupported("artifact download is disabled: no artifact directory is configured")
	}
	target := ec.WorkDir
	if path := strings.TrimSpace(call.with["path"]); path != "" {
		target = resolvePath(ec.WorkDir, path)
	}

	if raw := call.with["name"]; raw != "" {
		name := artifactName(raw)
		if name == "" {
			return nil, fmt.Errorf("invalid artifact name %q", raw)
		}
		source := filepath.Join(e.artifactDir, name)
		if _, err := os.Stat(source); err != nil {
			return nil, fmt.Errorf("artifact %s not found in %s", name, e.artifactDir)
		}
		if _, err := copyTree(source, target); err != nil {
			return nil, fmt.Errorf("download-artifact: %w", err)
		}
	} else {
		entries, err := os.ReadDir(e.artifactDir)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("listing artifacts: %w", err)
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if _, err := copyTree(filepath.Join(e.artifactDir, entry.Name()), filepath.Join(target, entry.Name())); err != nil {
				return nil, fmt.Errorf("download-artifact: %w", err)
			}
		}
	}

	e.message(ctx, ec, call.index, call.name, "artifacts copied from "+e.artifactDir+" to "+target)
	return map[string]string{"download-path": target}, nil
}

// artifactName returns name as a single path segment, or "" when it
// cannot be one.
func artifactName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "artifact"
	}
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return ""
	}
	return name
}

// copyTree copies a file or directory tree to destination, keeping
// modes and symlinks. It returns the number of regular files copied.
func copyTree(source, destination string) (int, error) {
	files := 0
	err := filepath.WalkDir(source, func(current string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(source, current)
		if err != nil {
			return err
		}
		target := filepath.Join(destination, relative)
		info, err := entry.Info()
		if err != nil {
			return err
		}

		switch {
		case entry.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(current)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			return os.Symlink(link, target)
		case info.Mode().IsRegular():
			files++
			return copyFile(current, target, info.Mode().Perm())
		default:
			return nil
		}
	})
	return files, err
}

func copyFile(source, destination string, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(destination), 0o755); err != nil {
		return err
	}
	in, err := os.Open(source)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(destination, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// splitLines splits a multi-line with: value into trimmed, non-empty
// lines.
func splitLines(value string) []string {
	var lines []string
	for _, line := range strings.Split(value, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
