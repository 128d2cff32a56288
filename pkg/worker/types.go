// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package worker implements the Worker Executor (C11): subprocess dispatch
// for delegated tasks, in either CLI or MCP (JSON-RPC 2.0 stdio) mode, with
// placeholder substitution, response parsing/truncation, and telemetry
// extraction.
package worker

import (
	"encoding/json"
	"time"
)

// Kind distinguishes the two dispatch backends. Modeled as a tagged union
// rather than an interface: there are exactly two shapes and no third is
// expected, so a concrete branch per kind is clearer than an abstraction
// layer built for one implementation.
type Kind string

const (
	KindCLI Kind = "cli"
	KindMCP Kind = "mcp"
)

// ResponseFormat controls how CLI worker stdout is turned into details.
type ResponseFormat string

const (
	FormatJSON    ResponseFormat = "json"
	FormatText    ResponseFormat = "text"
	FormatCompact ResponseFormat = "compact"
)

// Definition is a configured worker backend.
type Definition struct {
	Name     string         `toml:"name" yaml:"name"`
	Kind     Kind           `toml:"kind" yaml:"kind"`
	Binary   string         `toml:"binary" yaml:"binary"`
	Args     []string       `toml:"args" yaml:"args"`
	WorkDir  string         `toml:"working_dir" yaml:"working_dir"`
	Timeout  time.Duration  `toml:"timeout" yaml:"timeout"`
	Format   ResponseFormat `toml:"format" yaml:"format"`
	MCPTool  string         `toml:"mcp_tool" yaml:"mcp_tool"`
	MCPArgs  map[string]any `toml:"mcp_arguments" yaml:"mcp_arguments"`
	Version  string         `toml:"version" yaml:"version"`

	DefaultModel  string   `toml:"default_model" yaml:"default_model"`
	AllowedModels []string `toml:"allowed_models" yaml:"allowed_models"`

	MaxResponseChars int `toml:"max_response_chars" yaml:"max_response_chars"`
}

// Task is the delegated work item passed to a worker.
type Task struct {
	ID            string
	Action        string
	Goal          string
	Timeout       time.Duration
	Context       json.RawMessage
	WorkingDir    string
	Format        ResponseFormat
	Model         string
	ContextModel  string
	QueuedAt      time.Time
}

// Artifacts is the NOTIFY payload's artifacts object.
type Artifacts struct {
	Summary  string          `json:"summary"`
	Details  json.RawMessage `json:"details,omitempty"`
	Evidence json.RawMessage `json:"evidence,omitempty"`
	Metadata *Metadata       `json:"metadata,omitempty"`
}

// Metadata is the telemetry envelope collected from both worker kinds.
type Metadata struct {
	ExitCode       *int    `json:"exit_code,omitempty"`
	ExitReason     string  `json:"exit_reason,omitempty"`
	WorkerVersion  string  `json:"worker_version,omitempty"`
	ModelRequested string  `json:"model_requested,omitempty"`
	ModelUsed      string  `json:"model_used,omitempty"`
	InputTokens    int64   `json:"input_tokens,omitempty"`
	OutputTokens   int64   `json:"output_tokens,omitempty"`
	ReasoningToks  int64   `json:"reasoning_tokens,omitempty"`
	TotalTokens    int64   `json:"total_tokens,omitempty"`
	CostUSD        float64 `json:"cost_usd,omitempty"`
	QueuedMS       int64   `json:"queued_ms,omitempty"`
	RunningMS      int64   `json:"running_ms,omitempty"`
	TotalMS        int64   `json:"total_ms,omitempty"`
}

// Result is the outcome of dispatching one Task to one Definition.
type Result struct {
	Status    string // "completed" | "failed"
	Artifacts Artifacts
	Truncated bool
	ErrCode   string
	ErrMsg    string
}
