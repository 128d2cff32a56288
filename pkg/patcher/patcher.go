// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package patcher implements the Atomic Patcher: classify a unified diff,
// validate every touched path against the workspace jail, dry-check it
// against the VCS, then either report what would happen (dry run) or apply
// it transactionally with a pre-commit re-validation guard against
// time-of-check/time-of-use races.
package patcher

import (
	"context"
	"os"
	"path/filepath"

	"github.com/n-engine/devit/internal/errors"
	"github.com/n-engine/devit/pkg/diffclass"
	"github.com/n-engine/devit/pkg/pathsec"
	"github.com/n-engine/devit/pkg/vcs"
)

// Result summarizes one patch_apply attempt.
type Result struct {
	Changes  []diffclass.FileChange `json:"changes"`
	Applied  bool                   `json:"applied"`
	DryRun   bool                   `json:"dry_run"`
	CommitSHA string                `json:"commit_sha,omitempty"`
}

// Patcher ties together diff classification, path-jail validation, and VCS
// application for a single workspace root.
type Patcher struct {
	Workspace string
	Validator *pathsec.Validator
	VCS       vcs.Runner
	// AllowEscape lets callers with sufficient approval touch paths that
	// resolve (via symlink) outside the workspace root.
	AllowEscape bool
}

// New builds a Patcher rooted at workspace, with validator and git runner
// already constructed (both are cheap to construct per-call at the lifecycle
// layer, but kept as fields here so tests can substitute fakes).
func New(workspace string, validator *pathsec.Validator, runner vcs.Runner, allowEscape bool) *Patcher {
	return &Patcher{Workspace: workspace, Validator: validator, VCS: runner, AllowEscape: allowEscape}
}

// Classify parses diffText and returns its per-file change breakdown
// without touching the filesystem or VCS.
func (p *Patcher) Classify(diffText string) ([]diffclass.FileChange, error) {
	return diffclass.Classify(diffText)
}

// ValidatePaths checks every changed path (and symlink target) against the
// workspace jail.
func (p *Patcher) ValidatePaths(changes []diffclass.FileChange) error {
	for _, c := range changes {
		if err := p.Validator.Validate(c.Path, p.AllowEscape); err != nil {
			return err
		}
		if c.OldPath != "" {
			if err := p.Validator.Validate(c.OldPath, p.AllowEscape); err != nil {
				return err
			}
		}
		if c.IsSymlink && c.SymlinkTarget != "" {
			if err := p.Validator.ValidateSymlinkTarget(c.Path, c.SymlinkTarget); err != nil {
				return err
			}
		}
	}
	return nil
}

// DryRun classifies, validates paths, and asks the VCS to check the diff
// would apply cleanly, without writing anything.
func (p *Patcher) DryRun(ctx context.Context, diffText string) (Result, error) {
	changes, err := p.Classify(diffText)
	if err != nil {
		return Result{}, err
	}
	if err := p.ValidatePaths(changes); err != nil {
		return Result{}, err
	}
	if err := p.VCS.DryCheck(ctx, diffText); err != nil {
		return Result{}, err
	}
	return Result{Changes: changes, DryRun: true}, nil
}

// Apply re-validates paths immediately before writing (closing the window
// between an earlier dry run and the actual apply) and then applies the
// diff via the VCS layer. It does not commit; callers decide whether and
// when to commit, since not every caller wants a VCS commit per apply.
func (p *Patcher) Apply(ctx context.Context, diffText string) (Result, error) {
	changes, err := p.Classify(diffText)
	if err != nil {
		return Result{}, err
	}
	if err := p.ValidatePaths(changes); err != nil {
		return Result{}, err
	}

	if err := p.VCS.Apply(ctx, diffText); err != nil {
		return Result{}, err
	}

	// Pre-commit re-validation: confirm every touched path still resolves
	// inside the workspace after the write, guarding against a TOCTOU
	// symlink swap performed concurrently with the apply.
	if err := p.revalidateAfterWrite(changes); err != nil {
		return Result{}, err
	}

	return Result{Changes: changes, Applied: true}, nil
}

func (p *Patcher) revalidateAfterWrite(changes []diffclass.FileChange) error {
	for _, c := range changes {
		if c.Kind == diffclass.Delete {
			continue
		}
		full := filepath.Join(p.Workspace, c.Path)
		if _, err := os.Lstat(full); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return errors.NewIO("cannot stat applied path for re-validation: "+c.Path, err)
		}
		if err := p.Validator.Validate(c.Path, p.AllowEscape); err != nil {
			return err
		}
	}
	return nil
}
