// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package daemon

import (
	"encoding/json"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// hookPayload is the full NOTIFY-shaped payload handed to the hook as JSON
// via DEVIT_NOTIFY_PAYLOAD, in addition to the individual env vars.
type hookPayload struct {
	TaskID     string          `json:"task_id"`
	Status     string          `json:"status"`
	Worker     string          `json:"worker,omitempty"`
	ReturnTo   string          `json:"return_to,omitempty"`
	Summary    string          `json:"summary,omitempty"`
	Timestamp  string          `json:"timestamp"`
	WorkingDir string          `json:"working_dir,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	Evidence   json.RawMessage `json:"evidence,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// fireNotificationHook spawns $DEVIT_NOTIFY_HOOK (if set) asynchronously
// with the completion/expiry context in its environment. It never blocks
// the caller on the hook's own exit; a nonzero exit is logged only.
func fireNotificationHook(logger *slog.Logger, p hookPayload, markerPath string) {
	hookCmd := os.Getenv("DEVIT_NOTIFY_HOOK")
	if hookCmd == "" {
		return
	}

	payloadJSON, err := json.Marshal(p)
	if err != nil {
		logger.Warn("notify hook: cannot marshal payload", "error", err)
		return
	}

	go func() {
		cmd := exec.Command(hookCmd)
		cmd.Env = append(os.Environ(),
			"DEVIT_NOTIFY_TASK_ID="+p.TaskID,
			"DEVIT_NOTIFY_STATUS="+p.Status,
			"DEVIT_NOTIFY_WORKER="+p.Worker,
			"DEVIT_NOTIFY_RETURN_TO="+p.ReturnTo,
			"DEVIT_NOTIFY_SUMMARY="+p.Summary,
			"DEVIT_NOTIFY_TIMESTAMP="+p.Timestamp,
			"DEVIT_NOTIFY_WORKDIR="+p.WorkingDir,
			"DEVIT_NOTIFY_DETAILS="+string(p.Details),
			"DEVIT_NOTIFY_EVIDENCE="+string(p.Evidence),
			"DEVIT_NOTIFY_METADATA="+string(p.Metadata),
			"DEVIT_NOTIFY_PAYLOAD="+string(payloadJSON),
			"DEVIT_ACK_MARKER="+markerPath,
		)
		if runtime.GOOS != "windows" {
			cmd.Env = append(cmd.Env, "DEVIT_ACK_SOCKET="+markerPath+".sock")
		} else {
			cmd.Env = append(cmd.Env, "DEVIT_ACK_PIPE="+`\\.\pipe\devit-ack-`+p.TaskID)
		}

		cmd.Stdin = nil
		cmd.Stdout = nil
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			logger.Warn("notify hook exited non-zero", "task_id", p.TaskID, "error", err)
		}
	}()
}

func nowISO8601Zulu() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
}
