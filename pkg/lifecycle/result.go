// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package lifecycle implements the Patch Lifecycle Engine (C8): it
// orchestrates the idempotency cache, diff classification, path security,
// policy evaluation, atomic patcher, optional auto-commit, journal, and
// optional post-apply test execution with auto-revert into the single
// patch_apply / patch_apply_with_tests operation.
package lifecycle

import (
	"github.com/n-engine/devit/pkg/diffclass"
	"github.com/n-engine/devit/pkg/testexec"
)

// PatchResult is the response envelope for patch_apply and
// patch_apply_with_tests.
type PatchResult struct {
	Success       bool                   `json:"success"`
	RequestID     string                 `json:"request_id"`
	DryRun        bool                   `json:"dry_run"`
	ModifiedFiles []diffclass.FileChange `json:"modified_files"`
	SnapshotID    string                 `json:"snapshot_id,omitempty"`
	CommitSHA     string                 `json:"commit_sha,omitempty"`
	RollbackCmd   string                 `json:"rollback_command,omitempty"`
	RequiresConfirmation bool           `json:"requires_confirmation,omitempty"`
	Warning       string                 `json:"warning,omitempty"`
	TestSummary   *testexec.Summary      `json:"test_summary,omitempty"`
	AutoReverted  bool                   `json:"auto_reverted,omitempty"`
	RevertedSHA   string                 `json:"reverted_sha,omitempty"`
	JournalHMAC   string                 `json:"journal_hmac,omitempty"`
}
