// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package errors defines the stable error taxonomy shared by every devit
// component. Every StdError carries a machine-readable code, a short title,
// a human detail line, an optional actionable hint, and an optional cause —
// never a stack trace.
package errors

import (
	"encoding/json"
	"fmt"
	"os"
)

// Code is one of the stable E_* identifiers from the error handling design.
type Code string

const (
	CodeInvalidDiff       Code = "E_INVALID_DIFF"
	CodeSnapshotRequired  Code = "E_SNAPSHOT_REQUIRED"
	CodeSnapshotStale     Code = "E_SNAPSHOT_STALE"
	CodePolicyBlock       Code = "E_POLICY_BLOCK"
	CodePolicyDenied      Code = "E_POLICY_DENIED"
	CodeProtectedPath     Code = "E_PROTECTED_PATH"
	CodePrivEscalation    Code = "E_PRIV_ESCALATION"
	CodeGitDirty          Code = "E_GIT_DIRTY"
	CodeVCSConflict       Code = "E_VCS_CONFLICT"
	CodeTestFail          Code = "E_TEST_FAIL"
	CodeTestTimeout       Code = "E_TEST_TIMEOUT"
	CodeSandboxDenied     Code = "E_SANDBOX_DENIED"
	CodeResourceLimit     Code = "E_RESOURCE_LIMIT"
	CodeIO                Code = "E_IO"
	CodeVersionMissing    Code = "E_VERSION_MISSING"
	CodeVersionMismatch   Code = "E_VERSION_MISMATCH"
	CodeScreenshotDenied  Code = "E_SCREENSHOT_DENIED"
	CodeScreenshotFailed  Code = "E_SCREENSHOT_FAILED"
	CodeInternal          Code = "E_INTERNAL"
	CodeInvalidFormat     Code = "E_INVALID_FORMAT"
)

// actionable reports whether a code carries a recovery hint. Non-actionable
// codes (E_PRIV_ESCALATION, E_INTERNAL) never print a hint even if one was
// supplied.
var actionable = map[Code]bool{
	CodeInvalidDiff:      true,
	CodeSnapshotRequired: true,
	CodeSnapshotStale:    true,
	CodePolicyBlock:      true,
	CodePolicyDenied:     true,
	CodeProtectedPath:    true,
	CodePrivEscalation:   false,
	CodeGitDirty:         true,
	CodeVCSConflict:      true,
	CodeTestFail:         true,
	CodeTestTimeout:      true,
	CodeSandboxDenied:    true,
	CodeResourceLimit:    true,
	CodeIO:               true,
	CodeVersionMissing:   true,
	CodeVersionMismatch:  true,
	CodeScreenshotDenied: true,
	CodeScreenshotFailed: true,
	CodeInternal:         false,
	CodeInvalidFormat:    true,
}

// StdError is the envelope every devit package returns instead of a bare
// error. Details is a bag of structured, non-sensitive fields (never a
// backtrace) that StdResponse JSON output surfaces verbatim.
type StdError struct {
	Code    Code           `json:"code"`
	Title   string         `json:"title"`
	Detail  string         `json:"detail,omitempty"`
	Hint    string         `json:"hint,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	cause   error
}

func (e *StdError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return e.Title
}

func (e *StdError) Unwrap() error { return e.cause }

// WithDetails attaches structured context fields and returns the receiver
// for chaining at the call site.
func (e *StdError) WithDetails(details map[string]any) *StdError {
	e.Details = details
	return e
}

// New builds a StdError for the given code. cause may be nil.
func New(code Code, title, detail, hint string, cause error) *StdError {
	if !actionable[code] {
		hint = ""
	}
	return &StdError{Code: code, Title: title, Detail: detail, Hint: hint, cause: cause}
}

// Format renders the user-visible failure text. In pretty mode it matches
// "❌ Error <CODE>: <message>" plus an optional hint line. In JSON mode it
// renders the whole envelope.
func (e *StdError) Format(jsonMode bool) string {
	if jsonMode {
		b, err := json.Marshal(struct {
			OK    bool      `json:"ok"`
			Error *StdError `json:"error"`
		}{OK: false, Error: e})
		if err != nil {
			return fmt.Sprintf(`{"ok":false,"error":{"code":%q,"title":%q}}`, e.Code, e.Title)
		}
		return string(b)
	}
	msg := fmt.Sprintf("❌ Error %s: %s", e.Code, e.Error())
	if e.Hint != "" {
		msg += "\nHint: " + e.Hint
	}
	return msg
}

// FatalError prints a StdError (wrapping a plain error if necessary) and
// exits the process with status 1. It never embeds a stack trace.
func FatalError(err error, jsonMode bool) {
	se, ok := err.(*StdError)
	if !ok {
		se = New(CodeInternal, "Unexpected error", err.Error(), "", err)
	}
	fmt.Fprintln(os.Stderr, se.Format(jsonMode))
	os.Exit(1)
}

func NewInvalidDiff(detail string, cause error) *StdError {
	return New(CodeInvalidDiff, "Invalid or empty diff", detail, "Regenerate the patch and retry", cause)
}

func NewSnapshotRequired(detail string) *StdError {
	return New(CodeSnapshotRequired, "Referenced snapshot missing", detail, "Run 'devit snapshot' first", nil)
}

func NewSnapshotStale(detail string) *StdError {
	return New(CodeSnapshotStale, "Snapshot no longer matches workspace", detail, "Create a fresh snapshot", nil)
}

func NewPolicyBlock(rule, detail string, details map[string]any) *StdError {
	return New(CodePolicyBlock, "Policy refused operation", detail, "Re-run with a higher --approval level or request confirmation", nil).
		WithDetails(mergeRule(rule, details))
}

func NewPolicyDenied(detail string) *StdError {
	return New(CodePolicyDenied, "Policy denied operation", detail, "Use an approval level that permits this tool", nil)
}

func NewProtectedPath(path string) *StdError {
	return New(CodeProtectedPath, "Protected file touched", path, "Use Privileged approval with an explicit allowed path", nil)
}

func NewPrivEscalation(detail string) *StdError {
	return New(CodePrivEscalation, "Attempted privilege escalation", detail, "", nil)
}

func NewGitDirty(detail string) *StdError {
	return New(CodeGitDirty, "Working tree not clean", detail, "Commit or stash local changes first", nil)
}

func NewVCSConflict(detail string) *StdError {
	return New(CodeVCSConflict, "Merge or rebase conflict", detail, "Resolve the conflict with the VCS tool directly", nil)
}

func NewTestFail(detail string) *StdError {
	return New(CodeTestFail, "Post-apply tests failed", detail, "Inspect the failing tests; the patch may auto-revert", nil)
}

func NewTestTimeout(detail string) *StdError {
	return New(CodeTestTimeout, "Test run exceeded timeout", detail, "Increase --timeout or narrow the test selection", nil)
}

func NewSandboxDenied(detail string) *StdError {
	return New(CodeSandboxDenied, "Sandbox policy refused", detail, "Request a less restrictive sandbox profile", nil)
}

func NewResourceLimit(detail string) *StdError {
	return New(CodeResourceLimit, "Resource ceiling hit", detail, "Reduce concurrency or raise the configured limit", nil)
}

func NewIO(detail string, cause error) *StdError {
	return New(CodeIO, "Filesystem or OS error", detail, "Check permissions and available disk space", cause)
}

func NewVersionMissing(detail string) *StdError {
	return New(CodeVersionMissing, "Worker handshake rejected", detail, "Upgrade the worker binary and retry REGISTER", nil)
}

func NewVersionMismatch(detail string) *StdError {
	return New(CodeVersionMismatch, "Worker version mismatch", detail, "Align worker and daemon expected_worker_version", nil)
}

func NewScreenshotDenied(detail string) *StdError {
	return New(CodeScreenshotDenied, "Screenshot capability refused", detail, "Enable the screenshot capability in daemon config", nil)
}

func NewScreenshotFailed(detail string, cause error) *StdError {
	return New(CodeScreenshotFailed, "Screenshot backend failed", detail, "Retry, or check the capture backend is installed", cause)
}

func NewInternal(detail string, cause error) *StdError {
	return New(CodeInternal, "Internal invariant broken", detail, "", cause)
}

func NewInvalidFormat(detail string) *StdError {
	return New(CodeInvalidFormat, "Unsupported output format", detail, "Use one of: json, compact, table", nil)
}

func mergeRule(rule string, details map[string]any) map[string]any {
	out := map[string]any{"rule": rule}
	for k, v := range details {
		out[k] = v
	}
	return out
}
