// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package main implements the devit CLI: the local-first front end for the
// patch lifecycle engine and the orchestration daemon.
//
// Usage:
//
//	devit suggest --goal G [PATH]      Generate a unified diff; no writes
//	devit apply --patch-file F         Patch lifecycle (classify/policy/apply/test)
//	devit run --goal G                 suggest -> apply -> tests
//	devit test [--stack] [--timeout]   Framework-detected test run
//	devit snapshot                     Create a snapshot; print id
//	devit restore --id S               Restore a snapshot (optionally --path, --dry-run)
//	devit init --sandbox ROOT          Write sandbox config
//	devit cd PATH / devit pwd          Change / print current workspace dir
//	devit delegate --goal --delegated-to  Submit DELEGATE to the daemon
//	devit status                       STATUS_REQUEST
//	devit notify --task --status       External NOTIFY
//	devit task TASK_ID                 Fetch a task by id
package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/n-engine/devit/internal/config"
	"github.com/n-engine/devit/internal/ui"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds the flags every devit verb shares.
type GlobalFlags struct {
	Pretty    bool
	JSONLogs  bool
	LogLevel  string
	Yes       bool
	NoColor   bool
	Workspace string
	Config    string
	CoreConfig string
}

func main() {
	var (
		showVersion = flag.BoolP("version", "V", false, "Show version and exit")
		pretty      = flag.Bool("pretty", false, "Human-readable output (default is JSON)")
		jsonLogs    = flag.Bool("json-logs", false, "Emit structured JSON logs instead of colored text")
		logLevel    = flag.String("log-level", "info", "Log level: debug|info|warn|error")
		yes         = flag.Bool("yes", false, "Bypass interactive approval confirmation")
		noColor     = flag.Bool("no-color", false, "Disable color output")
		workspace   = flag.StringP("workspace", "w", "", "Workspace root (overrides DEVIT_SANDBOX_ROOT and persisted state)")
		cfgPath     = flag.StringP("config", "c", "", "Path to devit.toml")
		coreCfgPath = flag.String("core-config", "", "Path to devit.core.toml")
	)

	flag.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `devit - local-first developer-agent runtime

Usage:
  devit <command> [options]

Commands:
  suggest --goal G [PATH]                 Generate a unified diff; no writes
  apply --patch-file F [--approval L]     Patch lifecycle
  run --goal G                            suggest -> apply -> tests
  test [--stack] [--timeout]              Framework-detected test run
  snapshot                                Create a snapshot; print id
  restore --id S [--path P]* [--dry-run] Restore a snapshot, optionally scoped to paths
  init --sandbox ROOT [--allow G]*        Write sandbox config
  cd PATH                                 Persist the current workspace dir
  pwd                                     Print the current workspace dir
  delegate --goal G --delegated-to W      Submit DELEGATE to the daemon
  status [--filter] [--format F]          STATUS_REQUEST
  notify --task T --status S --summary M  External NOTIFY
  task TASK_ID                            Fetch a task by id

Global Options:
  --pretty          Human-readable output (default is JSON)
  --json-logs       Emit structured JSON logs
  --log-level       debug|info|warn|error (default info)
  --yes             Bypass interactive approval confirmation
  --no-color        Disable color output
  -w, --workspace   Workspace root
  -c, --config      Path to devit.toml
  --core-config     Path to devit.core.toml
  -V, --version     Show version and exit

Exit codes: 0 success; 1 generic failure; 124 context-map timeout.
`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("devit version %s\ncommit: %s\nbuilt: %s\n", version, commit, date)
		os.Exit(0)
	}

	ui.InitColors(*noColor)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	globals := GlobalFlags{
		Pretty:     *pretty,
		JSONLogs:   *jsonLogs,
		LogLevel:   *logLevel,
		Yes:        *yes,
		NoColor:    *noColor,
		Workspace:  *workspace,
		Config:     *cfgPath,
		CoreConfig: *coreCfgPath,
	}

	cliCfg, err := config.LoadCLIConfig(globals.Config)
	if err != nil {
		fatal(err, globals)
	}

	ws, err := resolveWorkspace(globals, cliCfg)
	if err != nil {
		fatal(err, globals)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "suggest":
		runSuggest(cmdArgs, globals, cliCfg, ws)
	case "apply":
		runApply(cmdArgs, globals, cliCfg, ws)
	case "run":
		runRun(cmdArgs, globals, cliCfg, ws)
	case "test":
		runTest(cmdArgs, globals, ws)
	case "snapshot":
		runSnapshot(cmdArgs, globals, ws)
	case "restore":
		runRestore(cmdArgs, globals, ws)
	case "init":
		runInit(cmdArgs, globals, ws)
	case "cd":
		runCd(cmdArgs, globals, ws)
	case "pwd":
		runPwd(cmdArgs, globals, ws)
	case "delegate":
		runDelegate(cmdArgs, globals, cliCfg)
	case "status":
		runStatus(cmdArgs, globals, cliCfg)
	case "notify":
		runNotify(cmdArgs, globals, cliCfg)
	case "task":
		runTask(cmdArgs, globals, cliCfg)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}
