// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package worker

import "strings"

// substitutePlaceholders replaces {goal}, {workspace}, {task_id}, {model} in
// s with the task's concrete values.
func substitutePlaceholders(s string, t Task, workspace, model string) string {
	r := strings.NewReplacer(
		"{goal}", t.Goal,
		"{workspace}", workspace,
		"{task_id}", t.ID,
		"{model}", model,
	)
	return r.Replace(s)
}

func containsGoalPlaceholder(args []string) bool {
	for _, a := range args {
		if strings.Contains(a, "{goal}") {
			return true
		}
	}
	return false
}
