// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package diffclass

import (
	"strconv"
	"strings"

	"github.com/n-engine/devit/internal/errors"
)

const (
	modeSymlink   = "120000"
	modeSubmodule = "160000"
	modeExecBit   = "100755"
)

// Classify parses a unified (git-style) diff into FileChange records. An
// empty or unparsable diff is InvalidDiff, per the atomic patcher's
// pre-apply contract.
func Classify(diff string) ([]FileChange, error) {
	diff = strings.ReplaceAll(diff, "\r\n", "\n")
	lines := strings.Split(diff, "\n")

	var changes []FileChange
	var cur *FileChange

	flush := func() {
		if cur != nil {
			changes = append(changes, *cur)
			cur = nil
		}
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flush()
			a, b := parseGitHeaderPaths(line)
			path := b
			if path == "" {
				path = a
			}
			cur = &FileChange{Path: path, Kind: Modify}
			if path == ".gitmodules" {
				cur.TouchesGitmodules = true
			}
		case cur == nil:
			continue
		case strings.HasPrefix(line, "old mode "):
			cur.OldMode = strings.TrimSpace(strings.TrimPrefix(line, "old mode "))
		case strings.HasPrefix(line, "new mode "):
			cur.NewMode = strings.TrimSpace(strings.TrimPrefix(line, "new mode "))
			if cur.OldMode != "" && cur.OldMode != modeExecBit && cur.NewMode == modeExecBit {
				cur.AddsExecBit = true
			}
		case strings.HasPrefix(line, "new file mode "):
			cur.Kind = Create
			cur.NewMode = strings.TrimSpace(strings.TrimPrefix(line, "new file mode "))
			classifySpecialMode(cur, cur.NewMode)
		case strings.HasPrefix(line, "deleted file mode "):
			cur.Kind = Delete
			cur.OldMode = strings.TrimSpace(strings.TrimPrefix(line, "deleted file mode "))
			classifySpecialMode(cur, cur.OldMode)
		case strings.HasPrefix(line, "rename from "):
			cur.Kind = Rename
			cur.OldPath = strings.TrimSpace(strings.TrimPrefix(line, "rename from "))
		case strings.HasPrefix(line, "rename to "):
			cur.Path = strings.TrimSpace(strings.TrimPrefix(line, "rename to "))
		case strings.HasPrefix(line, "copy from "):
			cur.Kind = Copy
			cur.OldPath = strings.TrimSpace(strings.TrimPrefix(line, "copy from "))
		case strings.HasPrefix(line, "copy to "):
			cur.Path = strings.TrimSpace(strings.TrimPrefix(line, "copy to "))
		case strings.HasPrefix(line, "index "):
			// "index <old>..<new> <mode>" — trailing mode present for pure
			// mode-preserving diffs; captures symlink/submodule on create too.
			fields := strings.Fields(strings.TrimPrefix(line, "index "))
			if len(fields) == 2 {
				classifySpecialMode(cur, fields[1])
			}
		case strings.HasPrefix(line, "Binary files "):
			cur.IsBinary = true
		case strings.HasPrefix(line, "--- "), strings.HasPrefix(line, "+++ "):
			// paths already captured from the diff --git header.
		case strings.HasPrefix(line, "@@ "):
			if cur.IsSymlink {
				// The single content line of a symlink hunk is its target.
				for j := i + 1; j < len(lines); j++ {
					t := lines[j]
					if strings.HasPrefix(t, "+") && !strings.HasPrefix(t, "+++") {
						cur.SymlinkTarget = strings.TrimPrefix(t, "+")
						break
					}
					if strings.HasPrefix(t, "@@") || strings.HasPrefix(t, "diff --git") {
						break
					}
				}
			}
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			cur.LinesAdded++
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			cur.LinesDeleted++
		}
	}
	flush()

	if len(changes) == 0 {
		return nil, errors.NewInvalidDiff("diff contains no parsable file changes", nil)
	}
	return changes, nil
}

func classifySpecialMode(cur *FileChange, mode string) {
	if cur == nil {
		return
	}
	switch mode {
	case modeSymlink:
		cur.IsSymlink = true
	case modeSubmodule:
		cur.IsSubmodule = true
	case modeExecBit:
		cur.AddsExecBit = cur.Kind == Create
	}
}

// parseGitHeaderPaths extracts the a/ and b/ paths from a "diff --git"
// line, tolerating paths containing spaces by splitting on the canonical
// " b/" marker when present.
func parseGitHeaderPaths(line string) (aPath, bPath string) {
	rest := strings.TrimPrefix(line, "diff --git ")
	idx := strings.Index(rest, " b/")
	if idx < 0 {
		fields := strings.Fields(rest)
		if len(fields) == 2 {
			return strings.TrimPrefix(fields[0], "a/"), strings.TrimPrefix(fields[1], "b/")
		}
		return "", ""
	}
	a := strings.TrimPrefix(rest[:idx], "a/")
	b := strings.TrimPrefix(rest[idx+3:], "b/")
	return a, b
}

// ParseFileSize is a small helper used by callers that need to attach
// FileChange.FileSize from a stat() result without importing os here.
func ParseFileSize(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
