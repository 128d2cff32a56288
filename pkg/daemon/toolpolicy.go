// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package daemon

import (
	"strings"

	"github.com/n-engine/devit/pkg/orchestration"
)

// evaluateTool applies the simplified tool-name policy used for DELEGATE
// (the §4.3 change-based matrix does not apply here; a DELEGATE carries a
// tool name, not a diff).
func evaluateTool(tool string, cfg Config) orchestration.Decision {
	if tool == "" {
		tool = "unknown"
	}
	switch strings.ToLower(cfg.ToolPolicy[tool]) {
	case "deny":
		return orchestration.Deny
	case "need_approval", "needapproval":
		return orchestration.NeedApproval
	case "allow", "":
		return orchestration.Allow
	default:
		return orchestration.Allow
	}
}
