// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui holds the terminal color and verbosity conventions shared by
// the devit CLI and daemon.
package ui

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	warnColor    = color.New(color.FgYellow, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	dimColor     = color.New(color.Faint)
)

// InitColors enables or disables ANSI color output. It mirrors the
// teacher's ui.InitColors: NO_COLOR and --no-color both force plain text,
// and color is disabled automatically when stdout isn't a TTY.
func InitColors(noColor bool) {
	if noColor || os.Getenv("NO_COLOR") != "" || !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
}

// Globals mirrors the CLI's GlobalFlags subset that every leveled-log
// helper needs to decide whether to print.
type Globals struct {
	Verbose int
	Quiet   bool
}

func Info(g Globals, format string, args ...any) {
	if !g.Quiet && g.Verbose >= 1 {
		fmt.Fprintf(os.Stderr, "[INFO] "+format+"\n", args...)
	}
}

func Debug(g Globals, format string, args ...any) {
	if g.Verbose >= 2 {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

func Warn(g Globals, format string, args ...any) {
	if !g.Quiet {
		fmt.Fprintln(os.Stderr, warnColor.Sprintf("[WARN] "+format, args...))
	}
}

func Error(g Globals, format string, args ...any) {
	if !g.Quiet {
		fmt.Fprintln(os.Stderr, errorColor.Sprintf("[ERROR] "+format, args...))
	}
}

func Success(format string, args ...any) {
	fmt.Println(successColor.Sprintf(format, args...))
}

func Dim(format string, args ...any) string {
	return dimColor.Sprintf(format, args...)
}
