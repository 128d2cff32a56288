// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"github.com/n-engine/devit/internal/config"
	"github.com/n-engine/devit/internal/errors"
	"github.com/n-engine/devit/pkg/idempotency"
	"github.com/n-engine/devit/pkg/journal"
	"github.com/n-engine/devit/pkg/lifecycle"
	"github.com/n-engine/devit/pkg/patcher"
	"github.com/n-engine/devit/pkg/pathsec"
	"github.com/n-engine/devit/pkg/policy"
	"github.com/n-engine/devit/pkg/snapshot"
	"github.com/n-engine/devit/pkg/vcs"
)

// buildEngine wires the Patch Lifecycle Engine's exclusive collaborators
// for a single CLI invocation: journal, snapshot store, path validator, git
// executor, and idempotency cache, all rooted at workspace. The caller must
// close the returned journal when done.
func buildEngine(workspace string, engineCfg *config.EngineConfig) (*lifecycle.Engine, *journal.Journal, error) {
	j, err := journal.Open(engineCfg.JournalConfig(workspace, "journal.log"))
	if err != nil {
		return nil, nil, err
	}

	snaps, err := snapshot.Open(workspace)
	if err != nil {
		j.Close()
		return nil, nil, err
	}

	validator, err := pathsec.NewValidator(workspace)
	if err != nil {
		j.Close()
		return nil, nil, err
	}

	runner, err := vcs.NewExecutor(workspace)
	if err != nil {
		j.Close()
		return nil, nil, errors.NewGitDirty("workspace is not inside a git repository: " + err.Error())
	}

	p := patcher.New(workspace, validator, runner, false)

	eng := &lifecycle.Engine{
		Workspace:  workspace,
		Journal:    j,
		Snapshots:  snaps,
		Patcher:    p,
		Policy:     policy.NewEngine(),
		Idem:       idempotency.New(engineCfg.IdempotencyTTL()),
		VCS:        runner,
		PolicyCfg:  engineCfg.PolicyConfig(),
		DefaultLvl: engineCfg.ApprovalLevel(),
		AutoCommit: true,
	}
	return eng, j, nil
}
