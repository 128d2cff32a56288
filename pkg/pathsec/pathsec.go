// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pathsec validates every path touched by a patch or a worker
// against the workspace jail: no escape via "..", no symlink pointing
// outside the workspace unless the caller's approval exceeds Untrusted.
package pathsec

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/n-engine/devit/internal/errors"
)

// Validator checks candidate paths against a fixed workspace root.
type Validator struct {
	Root string
}

func NewValidator(root string) (*Validator, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.NewIO("cannot resolve workspace root", err)
	}
	return &Validator{Root: filepath.Clean(abs)}, nil
}

// Validate ensures relPath resolves inside the workspace root without
// escaping via ".." components, and — if the path (or any ancestor) is a
// symlink — that the symlink's resolved target also stays inside the root,
// unless allowEscape is true (non-Untrusted approval).
func (v *Validator) Validate(relPath string, allowEscape bool) error {
	if filepath.IsAbs(relPath) {
		return errors.New(errors.CodeProtectedPath, "Protected file touched", "absolute paths are not permitted: "+relPath, "Use a workspace-relative path", nil)
	}
	for _, seg := range strings.Split(relPath, string(filepath.Separator)) {
		if seg == ".." {
			return errors.New(errors.CodeProtectedPath, "Protected file touched", "path escapes workspace via '..': "+relPath, "Keep all paths within the workspace root", nil)
		}
	}
	full := filepath.Join(v.Root, relPath)
	resolved, err := resolveExistingSymlinks(full)
	if err != nil {
		return errors.NewIO("cannot resolve path for validation", err)
	}
	if !allowEscape && !within(v.Root, resolved) {
		return errors.New(errors.CodeProtectedPath, "Protected file touched", "symlink escapes workspace root: "+relPath, "Use Ask approval or higher to touch symlinked paths outside the workspace", nil)
	}
	return nil
}

// ValidateSymlinkTarget checks a proposed symlink target (as written in a
// diff, before the link exists on disk) against the workspace root.
func (v *Validator) ValidateSymlinkTarget(linkPath, target string) error {
	if target == "" {
		return nil
	}
	var resolved string
	if filepath.IsAbs(target) {
		resolved = filepath.Clean(target)
	} else {
		resolved = filepath.Clean(filepath.Join(filepath.Dir(filepath.Join(v.Root, linkPath)), target))
	}
	if !within(v.Root, resolved) {
		return errors.New(errors.CodeProtectedPath, "Protected file touched", "symlink target escapes workspace: "+target, "Point the symlink within the workspace, or use Privileged approval", nil)
	}
	return nil
}

func within(root, candidate string) bool {
	root = filepath.Clean(root)
	candidate = filepath.Clean(candidate)
	if candidate == root {
		return true
	}
	return strings.HasPrefix(candidate, root+string(filepath.Separator))
}

// resolveExistingSymlinks walks up from the deepest existing ancestor and
// resolves symlinks without requiring the final path component to exist
// (it may be about to be created by the patcher).
func resolveExistingSymlinks(path string) (string, error) {
	dir, base := filepath.Split(path)
	if _, err := os.Lstat(path); err == nil {
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			return "", err
		}
		return resolved, nil
	}
	parentResolved, err := resolveExistingDir(filepath.Clean(dir))
	if err != nil {
		return "", err
	}
	return filepath.Join(parentResolved, base), nil
}

func resolveExistingDir(dir string) (string, error) {
	if dir == "" || dir == "." {
		return dir, nil
	}
	if _, err := os.Lstat(dir); err == nil {
		return filepath.EvalSymlinks(dir)
	}
	if os.IsNotExist(firstStatErr(dir)) {
		parent, base := filepath.Split(filepath.Clean(dir))
		parentResolved, err := resolveExistingDir(filepath.Clean(parent))
		if err != nil {
			return "", err
		}
		return filepath.Join(parentResolved, base), nil
	}
	return dir, nil
}

func firstStatErr(path string) error {
	_, err := os.Lstat(path)
	return err
}
