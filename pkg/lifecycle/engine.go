// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package lifecycle

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/n-engine/devit/internal/errors"
	"github.com/n-engine/devit/pkg/diffclass"
	"github.com/n-engine/devit/pkg/idempotency"
	"github.com/n-engine/devit/pkg/journal"
	"github.com/n-engine/devit/pkg/metrics"
	"github.com/n-engine/devit/pkg/patcher"
	"github.com/n-engine/devit/pkg/policy"
	"github.com/n-engine/devit/pkg/snapshot"
	"github.com/n-engine/devit/pkg/testexec"
	"github.com/n-engine/devit/pkg/vcs"
)

// Engine owns the patch lifecycle's exclusive collaborators: journal,
// snapshot store, patcher, and idempotency cache. One Engine per workspace.
type Engine struct {
	Workspace  string
	Journal    *journal.Journal
	Snapshots  *snapshot.Store
	Patcher    *patcher.Patcher
	Policy     *policy.Engine
	Idem       *idempotency.Cache
	VCS        vcs.Runner
	PolicyCfg  policy.Config
	DefaultLvl policy.ApprovalLevel
	// AutoCommit, when true, commits after a successful non-dry-run apply.
	AutoCommit bool
}

// Request is patch_apply's input.
type Request struct {
	Diff           string
	Approval       policy.ApprovalLevel
	DryRun         bool
	Idempotency    string
	RunTests       bool
	TestOptions    testexec.Options
	TestTimeout    time.Duration
	SandboxProfile policy.SandboxProfile
}

// Apply implements patch_apply (and, when req.RunTests is set,
// patch_apply_with_tests) per the ten-step sequence: idempotency check,
// classification, path security, policy evaluation, atomic apply,
// pre-commit re-validation, optional auto-commit, journaling, rollback
// command computation, and idempotency caching.
func (e *Engine) Apply(ctx context.Context, req Request) (PatchResult, error) {
	if req.Idempotency != "" {
		if cached, ok := e.Idem.Peek(req.Idempotency); ok {
			var r PatchResult
			if err := json.Unmarshal(cached, &r); err == nil {
				return r, nil
			}
		}
	}

	requestID := uuid.NewString()

	changes, err := diffclass.Classify(req.Diff)
	if err != nil {
		return PatchResult{}, err
	}

	if err := e.validatePaths(changes); err != nil {
		return PatchResult{}, err
	}

	effective := policy.Min(req.Approval, e.DefaultLvl)
	decision := e.Policy.Evaluate(policy.Context{
		Changes:        changes,
		RequestedLevel: req.Approval,
		DefaultLevel:   e.DefaultLvl,
		Config:         e.PolicyCfg,
	})
	if !decision.Allow {
		metrics.PatchApplyTotal.WithLabelValues("denied").Inc()
		return PatchResult{}, errors.NewPolicyBlock("denied", decision.Reason, map[string]any{
			"requested_level": effective.Rank.String(),
		})
	}
	if decision.RequiresConfirmation && effective.Rank != policy.Ask {
		metrics.PatchApplyTotal.WithLabelValues("denied").Inc()
		return PatchResult{}, errors.NewPolicyBlock("confirmation_required", decision.Reason, map[string]any{
			"requested_level": effective.Rank.String(),
		})
	}

	warning := ""
	if decision.RequiresConfirmation && effective.Rank == policy.Ask {
		warning = decision.Reason
	}

	result := PatchResult{
		Success:              true,
		RequestID:            requestID,
		DryRun:                req.DryRun,
		ModifiedFiles:        changes,
		RequiresConfirmation: decision.RequiresConfirmation,
		Warning:              warning,
	}

	if req.DryRun {
		if err := e.Patcher.ValidatePaths(changes); err != nil {
			return PatchResult{}, err
		}
		if err := e.Patcher.VCS.DryCheck(ctx, req.Diff); err != nil {
			return PatchResult{}, err
		}
		return result, nil
	}

	beforeSHA, _ := e.VCS.CurrentSHA(ctx)

	if e.Snapshots != nil {
		if id, err := e.snapshotBefore(changes); err == nil {
			result.SnapshotID = id
		}
	}

	applyResult, err := e.Patcher.Apply(ctx, req.Diff)
	if err != nil {
		metrics.PatchApplyTotal.WithLabelValues("error").Inc()
		return PatchResult{}, err
	}
	result.ModifiedFiles = applyResult.Changes

	if e.AutoCommit {
		sha, err := e.VCS.Commit(ctx, "devit: apply patch "+requestID)
		if err != nil {
			return PatchResult{}, err
		}
		result.CommitSHA = sha
	}

	result.RollbackCmd = rollbackCommand(result.CommitSHA)

	appendResult, err := e.Journal.Append("patch_apply", requestID, map[string]any{
		"dry_run":    req.DryRun,
		"files":      len(changes),
		"commit_sha": result.CommitSHA,
	}, req.Idempotency)
	if err != nil {
		return PatchResult{}, err
	}
	result.JournalHMAC = appendResult.HMAC

	if req.RunTests {
		summary, testErr := testexec.Run(ctx, e.Workspace, req.TestOptions, req.SandboxProfile, req.TestTimeout)
		if testErr != nil {
			return PatchResult{}, testErr
		}
		result.TestSummary = &summary

		if !summary.Success && canAutoRevert(effective.Rank) {
			revertErr := e.VCS.RevertToSHA(ctx, beforeSHA)
			if revertErr == nil {
				result.AutoReverted = true
				result.RevertedSHA = beforeSHA
				metrics.AutoRevertTotal.Inc()
				e.Journal.Append("auto_revert", requestID, map[string]any{
					"reverted_sha": beforeSHA,
				}, "")
			}
		}
	}

	if req.Idempotency != "" {
		if b, err := json.Marshal(result); err == nil {
			e.Idem.Insert(req.Idempotency, b)
		}
	}

	metrics.PatchApplyTotal.WithLabelValues("success").Inc()
	return result, nil
}

// snapshotBefore captures the pre-apply state of every path the diff
// touches that already exists on disk, coupling C5's apply step to C2's
// snapshot store per the patch data flow (apply -> snapshot -> tests). A
// Create change has nothing to snapshot yet, so only existing paths are
// included.
func (e *Engine) snapshotBefore(changes []diffclass.FileChange) (string, error) {
	var paths []string
	for _, c := range changes {
		if c.Kind == diffclass.Create {
			continue
		}
		paths = append(paths, c.Path)
	}
	if len(paths) == 0 {
		return "", nil
	}
	m, err := e.Snapshots.Create(paths, snapshot.CreateOptions{IncludeBinaryFiles: true, Repo: e.VCS})
	if err != nil {
		return "", err
	}
	return m.ID, nil
}

func (e *Engine) validatePaths(changes []diffclass.FileChange) error {
	for _, c := range changes {
		if err := e.Patcher.Validator.Validate(c.Path, e.Patcher.AllowEscape); err != nil {
			return err
		}
		if c.IsSymlink && c.SymlinkTarget != "" {
			if err := e.Patcher.Validator.ValidateSymlinkTarget(c.Path, c.SymlinkTarget); err != nil {
				return err
			}
		}
	}
	return nil
}

// rollbackCommand computes (but does not execute) the command that would
// undo this apply: "revert <sha>" when a commit was made, else
// "reset --hard HEAD".
func rollbackCommand(commitSHA string) string {
	if commitSHA != "" {
		return "revert " + commitSHA
	}
	return "reset --hard HEAD"
}

func canAutoRevert(level policy.Level) bool {
	return level == policy.Moderate || level == policy.Trusted || level == policy.Privileged
}
