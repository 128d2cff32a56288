// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config loads devit.toml (CLI) and devit.core.toml (engine)
// configuration, applies DEVIT_* environment overrides, and persists the
// CLI's workspace-directory state for `devit cd`/`devit pwd`.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/n-engine/devit/internal/errors"
	"github.com/n-engine/devit/pkg/daemon"
	"github.com/n-engine/devit/pkg/journal"
	"github.com/n-engine/devit/pkg/policy"
	"github.com/n-engine/devit/pkg/worker"
)

// CLIConfig is devit.toml: the CLI-facing settings (orchestration mode,
// daemon connection, assume-yes, notify hook).
type CLIConfig struct {
	OrchestrationMode    string        `toml:"orchestration_mode"` // local|daemon|auto
	OrchestrationTimeout time.Duration `toml:"orchestration_timeout"`
	DaemonSocket         string        `toml:"daemon_socket"`
	Secret               string        `toml:"secret"`
	SandboxRoot          string        `toml:"sandbox_root"`
	AssumeYes            bool          `toml:"assume_yes"`
	NotifyHook           string        `toml:"notify_hook"`
	AutoShutdownAfter    time.Duration `toml:"auto_shutdown_after"`
	TimeoutSecs          int           `toml:"timeout_secs"`
}

// EngineConfig is devit.core.toml: the patch lifecycle / policy engine
// tuning knobs plus the orchestration daemon's worker definitions.
type EngineConfig struct {
	DefaultApproval          string                        `toml:"default_approval"`
	MaxFilesModerate         int                            `toml:"max_files_moderate"`
	MaxLinesModerate         int                            `toml:"max_lines_moderate"`
	ProtectedPaths           []string                       `toml:"protected_paths"`
	SmallBinaryMaxBytes      int64                          `toml:"small_binary_max_bytes"`
	SmallBinaryExtWhitelist  []string                       `toml:"small_binary_ext_whitelist"`
	SandboxProfileDefault    string                         `toml:"sandbox_profile_default"`
	IdempotencyTTLSecs       int                            `toml:"idempotency_ttl_secs"`
	JournalMaxFileSizeMB     int64                          `toml:"journal_max_file_size_mb"`
	JournalMaxRotatedFiles   int                            `toml:"journal_max_rotated_files"`
	TestTimeoutSecs          int                            `toml:"test_timeout_secs"`
	ExpectedWorkerVersion    string                         `toml:"expected_worker_version"`
	PrivilegedAllowedPaths   []string                       `toml:"privileged_allowed_paths"`
	Workers                  map[string]worker.Definition   `toml:"workers"`
	ToolPolicy               map[string]string              `toml:"tool_policy"`
	ApproverTo               string                         `toml:"approver_to"`
	ScreenshotEnabled         bool                           `toml:"screenshot_enabled"`
	ScreenshotBackend         string                         `toml:"screenshot_backend"`
	ScreenshotDirectory       string                         `toml:"screenshot_directory"`
	ScreenshotMaxPerWindow    int                            `toml:"screenshot_max_per_window"`
	ScreenshotWindowSecs      int                            `toml:"screenshot_window_secs"`
}

// LoadCLIConfig reads devit.toml from path (or DEVIT_CONFIG, or the
// working directory default) and applies env overrides.
func LoadCLIConfig(path string) (*CLIConfig, error) {
	if path == "" {
		path = firstNonEmpty(os.Getenv("DEVIT_CONFIG"), "devit.toml")
	}
	cfg := &CLIConfig{OrchestrationMode: "auto", TimeoutSecs: 300}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, errors.NewIO(fmt.Sprintf("cannot parse %s", path), err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *CLIConfig) applyEnvOverrides() {
	if v := os.Getenv("DEVIT_ORCHESTRATION_MODE"); v != "" {
		c.OrchestrationMode = v
	}
	if v := os.Getenv("DEVIT_ORCHESTRATION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.OrchestrationTimeout = d
		}
	}
	if v := os.Getenv("DEVIT_DAEMON_SOCKET"); v != "" {
		c.DaemonSocket = v
	}
	if v := os.Getenv("DEVIT_SECRET"); v != "" {
		c.Secret = v
	}
	if v := os.Getenv("DEVIT_SANDBOX_ROOT"); v != "" {
		c.SandboxRoot = v
	}
	if v := os.Getenv("DEVIT_ASSUME_YES"); v != "" {
		c.AssumeYes = isTruthy(v)
	}
	if v := os.Getenv("DEVIT_NOTIFY_HOOK"); v != "" {
		c.NotifyHook = v
	}
	if v := os.Getenv("DEVIT_AUTO_SHUTDOWN_AFTER"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.AutoShutdownAfter = d
		}
	}
	if v := os.Getenv("DEVIT_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.TimeoutSecs = n
		}
	}
}

// LoadEngineConfig reads devit.core.toml and applies policy-related env
// overrides.
func LoadEngineConfig(path string) (*EngineConfig, error) {
	if path == "" {
		path = firstNonEmpty(os.Getenv("DEVIT_CORE_CONFIG"), "devit.core.toml")
	}
	cfg := &EngineConfig{
		DefaultApproval:       "Moderate",
		SandboxProfileDefault: "strict",
		IdempotencyTTLSecs:    300,
		JournalMaxFileSizeMB:  10,
		JournalMaxRotatedFiles: 5,
		TestTimeoutSecs:       120,
	}
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, errors.NewIO(fmt.Sprintf("cannot parse %s", path), err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *EngineConfig) applyEnvOverrides() {
	if v := os.Getenv("DEVIT_DEFAULT_APPROVAL"); v != "" {
		c.DefaultApproval = v
	}
	if v := os.Getenv("DEVIT_MAX_FILES_MODERATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxFilesModerate = n
		}
	}
	if v := os.Getenv("DEVIT_MAX_LINES_MODERATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxLinesModerate = n
		}
	}
	if v := os.Getenv("DEVIT_PROTECTED_PATHS"); v != "" {
		c.ProtectedPaths = strings.Split(v, ",")
	}
	if v := os.Getenv("DEVIT_SMALL_BINARY_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.SmallBinaryMaxBytes = n
		}
	}
	if v := os.Getenv("DEVIT_SMALL_BINARY_EXT_WHITELIST"); v != "" {
		c.SmallBinaryExtWhitelist = strings.Split(v, ",")
	}
	if v := os.Getenv("DEVIT_SANDBOX_PROFILE_DEFAULT"); v != "" {
		c.SandboxProfileDefault = v
	}
}

// ApprovalLevel parses DefaultApproval into a policy.ApprovalLevel,
// defaulting to Moderate on an unrecognised value.
func (c *EngineConfig) ApprovalLevel() policy.ApprovalLevel {
	lvl, err := policy.ParseLevel(c.DefaultApproval)
	if err != nil {
		lvl = policy.Moderate
	}
	if lvl == policy.Privileged {
		return policy.NewPrivileged(c.PrivilegedAllowedPaths)
	}
	return policy.New(lvl)
}

// IdempotencyTTL returns the configured idempotency cache TTL as a
// time.Duration, defaulting to 300s.
func (c *EngineConfig) IdempotencyTTL() time.Duration {
	if c.IdempotencyTTLSecs <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.IdempotencyTTLSecs) * time.Second
}

// TestTimeout returns the configured post-apply test run timeout,
// defaulting to 120s.
func (c *EngineConfig) TestTimeout() time.Duration {
	if c.TestTimeoutSecs <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TestTimeoutSecs) * time.Second
}

// JournalConfig projects the rotation knobs into pkg/journal's Config
// shape, rooted at workspace/.devit.
func (c *EngineConfig) JournalConfig(workspace, fileName string) journal.Config {
	return journal.Config{
		Path:            filepath.Join(workspace, ".devit", fileName),
		KeyPath:         filepath.Join(workspace, ".devit", "hmac.key"),
		MaxFileSizeMB:   c.JournalMaxFileSizeMB,
		MaxRotatedFiles: c.JournalMaxRotatedFiles,
	}
}

// PolicyConfig projects the tuning knobs into pkg/policy's Config shape.
func (c *EngineConfig) PolicyConfig() policy.Config {
	return policy.Config{
		MaxFilesModerate:        c.MaxFilesModerate,
		MaxLinesModerate:        c.MaxLinesModerate,
		ProtectedPaths:          c.ProtectedPaths,
		SmallBinaryWhitelist:    c.SmallBinaryExtWhitelist,
		SmallBinaryMaxSizeBytes: c.SmallBinaryMaxBytes,
	}
}

// DaemonConfig projects the engine config (plus the CLI's socket/secret/
// workspace settings) into the shape pkg/daemon needs to construct a Broker.
func (c *EngineConfig) DaemonConfig(cli *CLIConfig, workspace string) daemon.Config {
	return daemon.Config{
		SocketPath:            cli.DaemonSocket,
		Secret:                []byte(cli.Secret),
		DaemonVersion:         "1.0.0",
		ExpectedWorkerVersion: c.ExpectedWorkerVersion,
		Workspace:             workspace,
		Workers:               c.Workers,
		ToolPolicy:            c.ToolPolicy,
		ApproverTo:            c.ApproverTo,
		Screenshot: daemon.ScreenshotConfig{
			Enabled:      c.ScreenshotEnabled,
			Backend:      daemon.ScreenshotBackend(c.ScreenshotBackend),
			Directory:    c.ScreenshotDirectory,
			MaxPerWindow: c.ScreenshotMaxPerWindow,
			Window:       time.Duration(c.ScreenshotWindowSecs) * time.Second,
		},
		IdleShutdown: cli.AutoShutdownAfter,
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func isTruthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
