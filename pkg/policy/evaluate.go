// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package policy

import (
	"path/filepath"
	"strings"

	"github.com/n-engine/devit/pkg/diffclass"
)

// Config holds the tunable thresholds the policy matrix consults, sourced
// from devit.core.toml (see internal/config).
type Config struct {
	MaxFilesModerate        int
	MaxLinesModerate        int
	ProtectedPaths          []string
	SmallBinaryWhitelist    []string // file extensions, e.g. ".png"
	SmallBinaryMaxSizeBytes int64
}

// Context is the evaluate() input: the change set, the level requested by
// the caller, and the effective engine config.
type Context struct {
	Changes         []diffclass.FileChange
	RequestedLevel  ApprovalLevel
	DefaultLevel    ApprovalLevel
	ProtectedPaths  []string
	Config          Config
}

// Engine evaluates change sets against the approval matrix. It is stateless
// and safe for concurrent use.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Evaluate implements the full per-level matrix from the policy design,
// universal deny rules first, then the level-specific rule.
func (e *Engine) Evaluate(ctx Context) Decision {
	effective := Min(ctx.RequestedLevel, ctx.DefaultLevel)

	if d, denied := universalDeny(ctx.Changes, effective); denied {
		return d
	}

	switch effective.Rank {
	case Untrusted:
		return Decision{Allow: true, RequiresConfirmation: true, Reason: "untrusted level always requires confirmation"}
	case Ask:
		return evaluateAsk(ctx.Changes)
	case Moderate:
		return evaluateModerate(ctx.Changes, ctx)
	case Trusted:
		return evaluateTrusted(ctx.Changes, ctx)
	case Privileged:
		return evaluatePrivileged(ctx.Changes, effective)
	default:
		return Decision{Allow: false, Reason: "unknown approval level"}
	}
}

func universalDeny(changes []diffclass.FileChange, effective ApprovalLevel) (Decision, bool) {
	for _, c := range changes {
		if strings.EqualFold(c.BaseName(), ".env") {
			return Decision{Allow: false, Reason: "change touches .env (denied at every level)"}, true
		}
	}
	if effective.Rank != Privileged {
		for _, c := range changes {
			if c.TouchesGitmodules {
				return Decision{Allow: false, Reason: "change touches .gitmodules (requires Privileged)"}, true
			}
			if c.IsSymlink && isDangerousSymlink(c.SymlinkTarget) {
				return Decision{Allow: false, Reason: "dangerous symlink target (absolute, traversal, or system path; requires Privileged)"}, true
			}
		}
	}
	return Decision{}, false
}

func isDangerousSymlink(target string) bool {
	if target == "" {
		return false
	}
	if filepath.IsAbs(target) {
		return true
	}
	for _, seg := range strings.Split(target, "/") {
		if seg == ".." {
			return true
		}
	}
	for _, prefix := range []string{"/etc", "/usr", "/bin", "/sbin", "/sys", "/proc", "/dev"} {
		if strings.HasPrefix(target, prefix) {
			return true
		}
	}
	return false
}

func isSimpleChange(changes []diffclass.FileChange) bool {
	if len(changes) > 2 {
		return false
	}
	total := 0
	for _, c := range changes {
		total += c.LinesAdded + c.LinesDeleted
		if c.IsBinary || c.AddsExecBit || c.IsSubmodule || c.TouchesGitmodules || c.IsSymlink {
			return false
		}
	}
	return total <= 20
}

func evaluateAsk(changes []diffclass.FileChange) Decision {
	if isSimpleChange(changes) {
		return Decision{Allow: true, Reason: "simple change allowed silently at Ask"}
	}
	return Decision{Allow: true, RequiresConfirmation: true, Reason: "non-simple change requires confirmation at Ask"}
}

func touchesProtected(c diffclass.FileChange, protected []string) bool {
	for _, p := range protected {
		if p == "" {
			continue
		}
		if strings.HasPrefix(c.Path, p) {
			return true
		}
	}
	return false
}

func downgradeToAsk() *Level {
	l := Ask
	return &l
}

func evaluateModerate(changes []diffclass.FileChange, ctx Context) Decision {
	totalFiles := len(changes)
	totalLines := 0
	for _, c := range changes {
		totalLines += c.LinesAdded + c.LinesDeleted
		if c.AddsExecBit {
			return Decision{Allow: true, RequiresConfirmation: true, Reason: "executable bit added: downgraded to Ask", DowngradedTo: downgradeToAsk()}
		}
		if c.IsBinary {
			return Decision{Allow: true, RequiresConfirmation: true, Reason: "binary file change: downgraded to Ask", DowngradedTo: downgradeToAsk()}
		}
		if c.IsSubmodule {
			return Decision{Allow: true, RequiresConfirmation: true, Reason: "submodule changed: downgraded to Ask", DowngradedTo: downgradeToAsk()}
		}
		if touchesProtected(c, append(ctx.ProtectedPaths, ctx.Config.ProtectedPaths...)) {
			return Decision{Allow: true, RequiresConfirmation: true, Reason: "protected path touched: downgraded to Ask", DowngradedTo: downgradeToAsk()}
		}
	}
	if ctx.Config.MaxFilesModerate > 0 && totalFiles > ctx.Config.MaxFilesModerate {
		return Decision{Allow: true, RequiresConfirmation: true, Reason: "file count exceeds max_files_moderate: downgraded to Ask", DowngradedTo: downgradeToAsk()}
	}
	if ctx.Config.MaxLinesModerate > 0 && totalLines > ctx.Config.MaxLinesModerate {
		return Decision{Allow: true, RequiresConfirmation: true, Reason: "line count exceeds max_lines_moderate: downgraded to Ask", DowngradedTo: downgradeToAsk()}
	}
	return Decision{Allow: true, Reason: "within Moderate thresholds"}
}

func evaluateTrusted(changes []diffclass.FileChange, ctx Context) Decision {
	protectedTouch := false
	for _, c := range changes {
		if c.AddsExecBit {
			return Decision{Allow: true, RequiresConfirmation: true, Reason: "executable bit added: downgraded to Ask", DowngradedTo: downgradeToAsk()}
		}
		if c.IsBinary {
			if !whitelisted(c, ctx.Config) {
				return Decision{Allow: true, RequiresConfirmation: true, Reason: "binary file not whitelisted or too large: downgraded to Ask", DowngradedTo: downgradeToAsk()}
			}
		}
		if touchesProtected(c, append(ctx.ProtectedPaths, ctx.Config.ProtectedPaths...)) {
			protectedTouch = true
		}
	}
	if protectedTouch {
		return Decision{Allow: true, RequiresConfirmation: true, Reason: "protected path touched at Trusted"}
	}
	return Decision{Allow: true, Reason: "allowed at Trusted"}
}

func whitelisted(c diffclass.FileChange, cfg Config) bool {
	ext := strings.ToLower(filepath.Ext(c.Path))
	inList := false
	for _, w := range cfg.SmallBinaryWhitelist {
		if strings.EqualFold(w, ext) {
			inList = true
			break
		}
	}
	if !inList {
		return false
	}
	if c.FileSize == nil {
		return false
	}
	return cfg.SmallBinaryMaxSizeBytes <= 0 || *c.FileSize <= cfg.SmallBinaryMaxSizeBytes
}

func evaluatePrivileged(changes []diffclass.FileChange, level ApprovalLevel) Decision {
	for _, c := range changes {
		if !pathAllowed(c.Path, level.AllowedPaths) {
			return Decision{Allow: false, Reason: "path outside Privileged allowed_paths: " + c.Path}
		}
		if c.OldPath != "" && !pathAllowed(c.OldPath, level.AllowedPaths) {
			return Decision{Allow: false, Reason: "source path outside Privileged allowed_paths: " + c.OldPath}
		}
	}
	return Decision{Allow: true, Reason: "all paths within Privileged allowed_paths"}
}

func pathAllowed(path string, allowed []string) bool {
	if len(allowed) == 0 {
		return false
	}
	clean := filepath.Clean(path)
	for _, a := range allowed {
		if strings.HasPrefix(clean, filepath.Clean(a)) {
			return true
		}
	}
	return false
}

// EvaluateSandbox resolves the configured default sandbox profile after
// verifying every path in the operation resolves inside sandboxRoot. It
// returns an error reason when a path escapes.
func (e *Engine) EvaluateSandbox(paths []string, sandboxRoot string, defaultProfile SandboxProfile) (SandboxProfile, string, bool) {
	root := filepath.Clean(sandboxRoot)
	for _, p := range paths {
		if filepath.IsAbs(p) {
			clean := filepath.Clean(p)
			if clean != root && !strings.HasPrefix(clean, root+string(filepath.Separator)) {
				return defaultProfile, "path escapes sandbox root: " + p, false
			}
			continue
		}
		for _, seg := range strings.Split(p, "/") {
			if seg == ".." {
				return defaultProfile, "relative path contains parent-dir component: " + p, false
			}
		}
	}
	return defaultProfile, "", true
}
