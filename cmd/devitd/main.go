// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements devitd: the orchestration daemon that accepts
// REGISTER/HEARTBEAT/DELEGATE/NOTIFY/POLL/STATUS_REQUEST/APPROVAL_DECISION/
// SCREENSHOT messages over a Unix socket and exposes Prometheus metrics for
// the lease/task/client gauges the sweep loop maintains.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/n-engine/devit/internal/config"
	"github.com/n-engine/devit/pkg/daemon"
	"github.com/n-engine/devit/pkg/journal"
)

var (
	version = "dev"
)

func main() {
	var (
		workspace   = flag.StringP("workspace", "w", "", "Workspace root devitd serves (defaults to the current directory)")
		coreCfgPath = flag.String("core-config", "", "Path to devit.core.toml")
		cliCfgPath  = flag.String("config", "", "Path to devit.toml")
		metricsAddr = flag.String("metrics-addr", "", "Address to serve /metrics on, e.g. :9090 (disabled if empty)")
		jsonLogs    = flag.Bool("json-logs", false, "Emit structured JSON logs instead of text")
		logLevel    = flag.String("log-level", "info", "Log level: debug|info|warn|error")
	)
	flag.Parse()

	logger := newLogger(*jsonLogs, *logLevel)

	ws := *workspace
	if ws == "" {
		cwd, err := os.Getwd()
		if err != nil {
			logger.Error("cannot determine working directory", "error", err)
			os.Exit(1)
		}
		ws = cwd
	}

	cliCfg, err := config.LoadCLIConfig(*cliCfgPath)
	if err != nil {
		logger.Error("cannot load devit.toml", "error", err)
		os.Exit(1)
	}
	if cliCfg.DaemonSocket == "" {
		cliCfg.DaemonSocket = filepath.Join(ws, ".devit", "devitd.sock")
	}

	engineCfg, err := config.LoadEngineConfig(*coreCfgPath)
	if err != nil {
		logger.Error("cannot load devit.core.toml", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Join(ws, ".devit"), 0o755); err != nil {
		logger.Error("cannot create .devit directory", "error", err)
		os.Exit(1)
	}

	j, err := journal.Open(engineCfg.JournalConfig(ws, "journal.jsonl"))
	if err != nil {
		logger.Error("cannot open daemon journal", "error", err)
		os.Exit(1)
	}
	defer j.Close()

	cfg := engineCfg.DaemonConfig(cliCfg, ws)
	broker := daemon.New(cfg, j, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("devitd received shutdown signal")
		broker.Shutdown()
		cancel()
	}()

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, logger)
	}

	logger.Info("devitd starting",
		"version", version,
		"workspace", ws,
		"socket", cfg.SocketPath,
		"metrics_addr", *metricsAddr)

	if err := broker.Serve(ctx); err != nil {
		logger.Error("devitd exited with error", "error", err)
		os.Exit(1)
	}
}

func newLogger(jsonLogs bool, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if jsonLogs {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	logger.Info("devitd metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", "error", err)
	}
}
