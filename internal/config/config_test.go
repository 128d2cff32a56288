// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadCLIConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	cfg, err := LoadCLIConfig(filepath.Join(dir, "nope.toml"))
	if err != nil {
		t.Fatalf("LoadCLIConfig() error = %v", err)
	}
	if cfg.OrchestrationMode != "auto" {
		t.Fatalf("OrchestrationMode = %q, want auto", cfg.OrchestrationMode)
	}
	if cfg.TimeoutSecs != 300 {
		t.Fatalf("TimeoutSecs = %d, want 300", cfg.TimeoutSecs)
	}
}

func TestLoadCLIConfigEnvOverrides(t *testing.T) {
	t.Setenv("DEVIT_ORCHESTRATION_MODE", "daemon")
	t.Setenv("DEVIT_DAEMON_SOCKET", "/tmp/devitd.sock")
	t.Setenv("DEVIT_ASSUME_YES", "true")
	t.Setenv("DEVIT_TIMEOUT_SECS", "45")

	cfg, err := LoadCLIConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadCLIConfig() error = %v", err)
	}
	if cfg.OrchestrationMode != "daemon" {
		t.Fatalf("OrchestrationMode = %q, want daemon", cfg.OrchestrationMode)
	}
	if cfg.DaemonSocket != "/tmp/devitd.sock" {
		t.Fatalf("DaemonSocket = %q", cfg.DaemonSocket)
	}
	if !cfg.AssumeYes {
		t.Fatal("AssumeYes = false, want true")
	}
	if cfg.TimeoutSecs != 45 {
		t.Fatalf("TimeoutSecs = %d, want 45", cfg.TimeoutSecs)
	}
}

func TestLoadEngineConfigDefaultsAndOverrides(t *testing.T) {
	t.Setenv("DEVIT_MAX_FILES_MODERATE", "7")
	t.Setenv("DEVIT_PROTECTED_PATHS", ".git,.devit")

	cfg, err := LoadEngineConfig(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("LoadEngineConfig() error = %v", err)
	}
	if cfg.DefaultApproval != "Moderate" {
		t.Fatalf("DefaultApproval = %q, want Moderate", cfg.DefaultApproval)
	}
	if cfg.MaxFilesModerate != 7 {
		t.Fatalf("MaxFilesModerate = %d, want 7", cfg.MaxFilesModerate)
	}
	if len(cfg.ProtectedPaths) != 2 || cfg.ProtectedPaths[0] != ".git" {
		t.Fatalf("ProtectedPaths = %v", cfg.ProtectedPaths)
	}
}

func TestEngineConfigApprovalLevelFallsBackToModerate(t *testing.T) {
	cfg := &EngineConfig{DefaultApproval: "not-a-level"}
	lvl := cfg.ApprovalLevel()
	if lvl.Rank.String() != "moderate" {
		t.Fatalf("ApprovalLevel() = %v, want moderate", lvl.Rank)
	}
}

func TestStateRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "state.yaml")
	if err := SaveState(path, &State{Workspace: "/srv/project"}); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	got, err := LoadState(path)
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if got.Workspace != "/srv/project" {
		t.Fatalf("Workspace = %q", got.Workspace)
	}
}

func TestLoadStateMissingFileReturnsZeroValue(t *testing.T) {
	got, err := LoadState(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadState() error = %v", err)
	}
	if got.Workspace != "" {
		t.Fatalf("Workspace = %q, want empty", got.Workspace)
	}
}

func TestDaemonConfigProjection(t *testing.T) {
	cli := &CLIConfig{DaemonSocket: "/tmp/d.sock", Secret: "s3cr3t", AutoShutdownAfter: 2 * time.Minute}
	eng := &EngineConfig{ExpectedWorkerVersion: "1.2.3", ScreenshotWindowSecs: 60}

	dc := eng.DaemonConfig(cli, "/srv/ws")
	if dc.SocketPath != "/tmp/d.sock" {
		t.Fatalf("SocketPath = %q", dc.SocketPath)
	}
	if string(dc.Secret) != "s3cr3t" {
		t.Fatalf("Secret = %q", dc.Secret)
	}
	if dc.Workspace != "/srv/ws" {
		t.Fatalf("Workspace = %q", dc.Workspace)
	}
	if dc.Screenshot.Window != time.Minute {
		t.Fatalf("Screenshot.Window = %v, want 1m", dc.Screenshot.Window)
	}
}
