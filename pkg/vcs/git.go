// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package vcs wraps the git invocations the patch lifecycle needs: dirty
// checks, dry-run and real patch application, commit with SHA extraction,
// and rollback via hard reset.
package vcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/n-engine/devit/internal/errors"
)

// Runner is the interface every lifecycle component depends on, so tests can
// substitute a fake without shelling out to a real git binary.
type Runner interface {
	Run(ctx context.Context, args ...string) (string, error)
	RepoPath() string
	IsClean(ctx context.Context) (bool, error)
	DryCheck(ctx context.Context, diffText string) error
	Apply(ctx context.Context, diffText string) error
	Commit(ctx context.Context, message string) (string, error)
	RevertToSHA(ctx context.Context, sha string) error
	CurrentSHA(ctx context.Context) (string, error)
	HeadState(ctx context.Context) (string, error)
	MergeOrRebaseInProgress() (bool, error)
}

// noHead is what HeadState reports for a repository with no commits yet,
// since "git rev-parse HEAD" has nothing to resolve.
const noHead = "nohead"

// Executor shells out to a real git binary rooted at a repository
// discovered once, at construction time.
type Executor struct {
	repoPath string
}

// invocation is one git subprocess: the subcommand plus everything needed
// to run it and classify a failure.
type invocation struct {
	args  []string
	stdin io.Reader
}

// NewExecutor locates the repository containing startPath and binds an
// Executor to its root, so every subsequent command runs there regardless
// of the caller's own working directory.
func NewExecutor(startPath string) (*Executor, error) {
	if startPath == "" {
		return nil, errors.NewInternal("vcs: startPath cannot be empty", nil)
	}
	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return nil, errors.NewIO("cannot resolve absolute path for vcs root", err)
	}

	probe := &Executor{repoPath: absPath}
	top, err := probe.run(context.Background(), invocation{args: []string{"rev-parse", "--show-toplevel"}})
	if err != nil {
		return nil, err
	}
	root := strings.TrimSpace(top)
	if root == "" {
		return nil, errors.NewInternal("could not determine git repository root", nil)
	}
	return &Executor{repoPath: root}, nil
}

// RepoPath returns the absolute path to the repository root.
func (g *Executor) RepoPath() string { return g.repoPath }

// Run executes a git subcommand in the repo root and returns its stdout.
func (g *Executor) Run(ctx context.Context, args ...string) (string, error) {
	return g.run(ctx, invocation{args: args})
}

// run is the single subprocess path every exported method funnels through,
// so stdin wiring and error classification live in one place.
func (g *Executor) run(ctx context.Context, inv invocation) (string, error) {
	if len(inv.args) == 0 {
		return "", errors.NewInternal("vcs: no git command specified", nil)
	}

	cmd := exec.CommandContext(ctx, "git", inv.args...)
	cmd.Dir = g.repoPath
	if inv.stdin != nil {
		cmd.Stdin = inv.stdin
	}

	var out, errOut bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errOut

	runErr := cmd.Run()
	if runErr == nil {
		return out.String(), nil
	}

	sub := inv.args[0]
	if ctx.Err() != nil {
		return "", errors.NewTestTimeout(fmt.Sprintf("git %s did not finish before its deadline: %s", sub, ctx.Err()))
	}
	if msg := strings.TrimSpace(errOut.String()); msg != "" {
		return "", errors.NewVCSConflict(fmt.Sprintf("git %s: %s", sub, msg))
	}
	return "", errors.NewIO("git "+sub+" failed", runErr)
}

// IsClean reports whether the working tree has no staged or unstaged
// changes.
func (g *Executor) IsClean(ctx context.Context) (bool, error) {
	status, err := g.Run(ctx, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return status == "", nil
}

// DryCheck validates that diffText would apply cleanly without touching the
// working tree.
func (g *Executor) DryCheck(ctx context.Context, diffText string) error {
	_, err := g.run(ctx, invocation{args: []string{"apply", "--check", "-"}, stdin: strings.NewReader(diffText)})
	return err
}

// Apply writes diffText into the working tree.
func (g *Executor) Apply(ctx context.Context, diffText string) error {
	_, err := g.run(ctx, invocation{args: []string{"apply", "--whitespace=nowarn", "-"}, stdin: strings.NewReader(diffText)})
	return err
}

// Commit stages every pending change and commits it, returning the new
// commit's SHA.
func (g *Executor) Commit(ctx context.Context, message string) (string, error) {
	if _, err := g.Run(ctx, "add", "-A"); err != nil {
		return "", err
	}
	if _, err := g.Run(ctx, "commit", "--no-verify", "-m", message); err != nil {
		return "", err
	}
	return g.CurrentSHA(ctx)
}

// RevertToSHA hard-resets the working tree to sha, discarding every commit
// and working-tree change made since.
func (g *Executor) RevertToSHA(ctx context.Context, sha string) error {
	_, err := g.Run(ctx, "reset", "--hard", sha)
	return err
}

// CurrentSHA returns HEAD's commit SHA.
func (g *Executor) CurrentSHA(ctx context.Context) (string, error) {
	sha, err := g.Run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sha), nil
}

// HeadState returns HeadSHA, or noHead for a repository that exists but has
// not made its first commit yet (a bare "git init" with nothing staged).
// Any other failure to resolve HEAD is propagated as a real error.
func (g *Executor) HeadState(ctx context.Context) (string, error) {
	sha, err := g.CurrentSHA(ctx)
	if err == nil {
		return sha, nil
	}
	if isUnbornHead(err) {
		return noHead, nil
	}
	return "", err
}

func isUnbornHead(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "ambiguous argument 'head'") || strings.Contains(msg, "unknown revision")
}

// MergeOrRebaseInProgress reports whether the repository is mid-merge or
// mid-rebase by checking for git's own state markers under .git, rather
// than shelling out — git has no porcelain subcommand that answers this
// directly.
func (g *Executor) MergeOrRebaseInProgress() (bool, error) {
	gitDir, err := g.resolveGitDir()
	if err != nil {
		return false, err
	}
	markers := []string{"MERGE_HEAD", "rebase-merge", "rebase-apply"}
	for _, m := range markers {
		if _, statErr := os.Stat(filepath.Join(gitDir, m)); statErr == nil {
			return true, nil
		}
	}
	return false, nil
}

// resolveGitDir handles both a plain ".git" directory and the gitdir-file
// form used by worktrees and submodules.
func (g *Executor) resolveGitDir() (string, error) {
	p := filepath.Join(g.repoPath, ".git")
	info, err := os.Stat(p)
	if err != nil {
		return "", errors.NewIO("cannot locate .git for "+g.repoPath, err)
	}
	if info.IsDir() {
		return p, nil
	}
	raw, err := os.ReadFile(p)
	if err != nil {
		return "", errors.NewIO("cannot read gitdir pointer file", err)
	}
	line := strings.TrimSpace(string(raw))
	const prefix = "gitdir: "
	if !strings.HasPrefix(line, prefix) {
		return "", errors.NewInternal("malformed .git pointer file: "+line, nil)
	}
	target := strings.TrimPrefix(line, prefix)
	if !filepath.IsAbs(target) {
		target = filepath.Join(g.repoPath, target)
	}
	return target, nil
}
