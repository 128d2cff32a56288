// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package daemon

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/n-engine/devit/internal/errors"
)

// screenshotLimiter enforces "max N captures per window seconds" with a
// sliding window of capture timestamps.
type screenshotLimiter struct {
	mu   sync.Mutex
	hits []time.Time
	now  func() time.Time
}

func newScreenshotLimiter() *screenshotLimiter {
	return &screenshotLimiter{now: time.Now}
}

func (l *screenshotLimiter) allow(max int, window time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cutoff := now.Add(-window)
	kept := l.hits[:0]
	for _, h := range l.hits {
		if h.After(cutoff) {
			kept = append(kept, h)
		}
	}
	l.hits = kept
	if len(l.hits) >= max {
		return false
	}
	l.hits = append(l.hits, now)
	return true
}

// captureScreenshot resolves the output path (must live under workspace or
// the fallback directory), invokes the configured backend subprocess, and
// reports the resulting file's size.
func captureScreenshot(ctx context.Context, cfg ScreenshotConfig, workspace, format string) (path string, sizeBytes int64, err error) {
	if !cfg.Enabled {
		return "", 0, errors.NewScreenshotDenied("screenshot capability is disabled")
	}
	if format == "" {
		format = "png"
	}

	dir := cfg.Directory
	if dir == "" {
		dir = filepath.Join(workspace, ".devit", "screenshots")
	}
	if err := validateScreenshotDir(dir, workspace); err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", 0, errors.NewScreenshotFailed("cannot create screenshot directory", err)
	}

	outPath := filepath.Join(dir, fmt.Sprintf("screenshot-%d.%s", time.Now().UnixNano(), format))

	var cmd *exec.Cmd
	switch cfg.Backend {
	case ScreenshotImagemagick:
		cmd = exec.CommandContext(ctx, "import", "-window", "root", outPath)
	default:
		cmd = exec.CommandContext(ctx, "scrot", outPath)
	}
	if err := cmd.Run(); err != nil {
		return "", 0, errors.NewScreenshotFailed("screenshot backend failed", err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return "", 0, errors.NewScreenshotFailed("screenshot captured but output file is missing", err)
	}
	return outPath, info.Size(), nil
}

func validateScreenshotDir(dir, workspace string) error {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return errors.NewScreenshotFailed("cannot resolve screenshot directory", err)
	}
	if workspace != "" {
		absWS, err := filepath.Abs(workspace)
		if err == nil && (absDir == absWS || strings.HasPrefix(absDir, absWS+string(filepath.Separator))) {
			return nil
		}
	}
	fallback := fallbackScreenshotDir()
	if absDir == fallback || strings.HasPrefix(absDir, fallback+string(filepath.Separator)) {
		return nil
	}
	return errors.NewScreenshotDenied("screenshot output path is outside the workspace and fallback directory")
}

func fallbackScreenshotDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "devit", "screenshots")
	}
	return filepath.Join(os.TempDir(), "devit", "screenshots")
}

func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for val := n / unit; val >= unit; val /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
