// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package daemon implements the Orchestration Daemon (C10): the
// HMAC-authenticated, line-oriented broker that fronts the in-process
// Manager (pkg/orchestration) and the Worker Executor (pkg/worker).
package daemon

import (
	"time"

	"github.com/n-engine/devit/pkg/worker"
)

// ScreenshotBackend selects how SCREENSHOT captures are performed.
type ScreenshotBackend string

const (
	ScreenshotScrot       ScreenshotBackend = "scrot"
	ScreenshotImagemagick ScreenshotBackend = "imagemagick"
)

// ScreenshotConfig gates and rate-limits the SCREENSHOT message type.
type ScreenshotConfig struct {
	Enabled    bool
	Backend    ScreenshotBackend
	Directory  string
	MaxPerWindow int
	Window     time.Duration
}

// Config is the daemon's static configuration, sourced from devit.core.toml.
type Config struct {
	SocketPath            string
	Secret                []byte
	DaemonVersion         string
	ExpectedWorkerVersion string

	Workspace string

	Workers map[string]worker.Definition

	// ToolPolicy maps a DELEGATE tool name (payload.task.action) to a
	// simplified Allow/Deny/NeedApproval decision. Unlisted tools default
	// to Allow.
	ToolPolicy map[string]string
	ApproverTo string

	Screenshot ScreenshotConfig

	// IdleShutdown, if nonzero, auto-exits the daemon after this long with
	// no live clients, leases, active tasks, or pending approvals.
	IdleShutdown time.Duration

	// SweepInterval is the lease-expiry/dead-client sweep tick (~10s per
	// the concurrency model).
	SweepInterval time.Duration
}

func (c Config) sweepInterval() time.Duration {
	if c.SweepInterval > 0 {
		return c.SweepInterval
	}
	return 10 * time.Second
}
