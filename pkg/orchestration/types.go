// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package orchestration implements the Orchestration Manager (C9): the
// in-process client, lease, and task tables the daemon broker consults for
// every REGISTER/HEARTBEAT/DELEGATE/NOTIFY/POLL/STATUS_REQUEST message, plus
// the lease-expiry sweep and pending-notification queues.
package orchestration

import (
	"encoding/json"
	"time"
)

// TaskStatus mirrors the DelegatedTask status enum.
type TaskStatus string

const (
	StatusPending    TaskStatus = "Pending"
	StatusInProgress TaskStatus = "InProgress"
	StatusCompleted  TaskStatus = "Completed"
	StatusFailed     TaskStatus = "Failed"
	StatusCancelled  TaskStatus = "Cancelled"
)

// Client is a registered REGISTER/HEARTBEAT endpoint.
type Client struct {
	Ident         string    `json:"ident"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Capabilities  []string  `json:"capabilities"`
	Version       string    `json:"version,omitempty"`
}

// Lease tracks a delegated task's deadline before it is considered expired.
type Lease struct {
	TaskID         string     `json:"task_id"`
	AssignedTo     string     `json:"assigned_to"`
	OriginalFrom   string     `json:"original_from"`
	Deadline       time.Time  `json:"deadline"`
	ReturnTo       string     `json:"return_to,omitempty"`
	WorkingDir     string     `json:"working_dir,omitempty"`
	ResponseFormat string     `json:"response_format,omitempty"`
	ModelRequested string     `json:"model_requested,omitempty"`
	ModelResolved  string     `json:"model_resolved,omitempty"`
}

// Notification is one artifact-bearing completion report attached to a task.
type Notification struct {
	Status    string          `json:"status"`
	Artifacts json.RawMessage `json:"artifacts,omitempty"`
	At        time.Time       `json:"at"`
}

// DelegatedTask is the full record tracked in the active or completed table.
type DelegatedTask struct {
	ID             string          `json:"id"`
	Goal           string          `json:"goal"`
	DelegatedTo    string          `json:"delegated_to"`
	CreatedAt      time.Time       `json:"created_at"`
	TimeoutSecs    int             `json:"timeout_secs"`
	Status         TaskStatus      `json:"status"`
	Context        json.RawMessage `json:"context,omitempty"`
	WatchPatterns  []string        `json:"watch_patterns,omitempty"`
	LastActivity   time.Time       `json:"last_activity"`
	Notifications  []Notification  `json:"notifications,omitempty"`
	WorkingDir     string          `json:"working_dir,omitempty"`
	ResponseFormat string          `json:"response_format,omitempty"`
	Model          string          `json:"model,omitempty"`
	ModelResolved  string          `json:"model_resolved,omitempty"`
	ReturnTo       string          `json:"return_to,omitempty"`
	Summary        string          `json:"summary,omitempty"`
}

// PendingApproval records a DELEGATE that requires human sign-off before
// dispatch.
type PendingApproval struct {
	TaskID          string          `json:"task_id"`
	OriginalMessage json.RawMessage `json:"original_message"`
	Tool            string          `json:"tool"`
	RequestedAt     time.Time       `json:"requested_at"`
}

// Decision is the simplified allow/deny/need-approval verdict for a
// DELEGATE tool name, mirroring the policy engine's allow/deny shape.
type Decision int

const (
	Allow Decision = iota
	Deny
	NeedApproval
)
