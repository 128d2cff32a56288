// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"

	"github.com/n-engine/devit/internal/errors"
)

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type mcpToolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// RunMCP speaks JSON-RPC 2.0 over the spawned subprocess's stdio:
// initialize, tools/list, then tools/call with the merged arguments.
// The call's result becomes details; an error response becomes a failed
// outcome carrying the RPC error's code and message.
func RunMCP(ctx context.Context, def Definition, t Task, workspace string) (Result, error) {
	model, err := ResolveModel(t.Model, t.ContextModel, def)
	if err != nil {
		return Result{}, err
	}

	timeout := def.Timeout
	if t.Timeout > 0 && (timeout == 0 || t.Timeout < timeout) {
		timeout = t.Timeout
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	workDir := workspace
	if def.WorkDir != "" {
		workDir = substitutePlaceholders(def.WorkDir, t, workspace, model)
	}

	started := time.Now()
	cmd := exec.CommandContext(cctx, def.Binary, def.Args...)
	cmd.Dir = workDir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Result{}, errors.NewIO("cannot open MCP worker stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, errors.NewIO("cannot open MCP worker stdout", err)
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf

	if err := cmd.Start(); err != nil {
		return Result{}, errors.NewIO("cannot start MCP worker", err)
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	session := &mcpSession{stdin: stdin, scanner: scanner, nextID: 1}

	result, callErr := mcpDispatch(session, def, t, workspace, model)

	_ = stdin.Close()
	waitErr := cmd.Wait()

	completed := time.Now()

	if cctx.Err() == context.DeadlineExceeded {
		return Result{}, errors.NewResourceLimit("MCP worker " + def.Name + " exceeded its timeout")
	}

	exitCode := 0
	exitReason := "exited"
	if waitErr != nil {
		exitReason = "error"
		if ee, ok := waitErr.(*exec.ExitError); ok {
			exitCode = ee.ExitCode()
		} else {
			exitCode = -1
		}
	}

	meta := &Metadata{
		ExitCode:      &exitCode,
		ExitReason:    exitReason,
		WorkerVersion: def.Version,
		ModelUsed:     model,
		QueuedMS:      started.Sub(t.QueuedAt).Milliseconds(),
		RunningMS:     completed.Sub(started).Milliseconds(),
		TotalMS:       completed.Sub(t.QueuedAt).Milliseconds(),
	}

	if callErr != nil {
		return Result{
			Status:    "failed",
			ErrMsg:    callErr.Error(),
			Artifacts: Artifacts{Metadata: meta},
		}, nil
	}

	extractTelemetry(result.raw, meta)
	result.res.Artifacts.Metadata = meta
	return result.res, nil
}

type mcpSession struct {
	stdin   interface{ Write([]byte) (int, error) }
	scanner *bufio.Scanner
	nextID  int
}

func (s *mcpSession) call(method string, params any) (json.RawMessage, error) {
	var raw json.RawMessage
	var err error
	if params != nil {
		raw, err = json.Marshal(params)
		if err != nil {
			return nil, err
		}
	}
	id := s.nextID
	s.nextID++
	req := jsonRPCRequest{JSONRPC: "2.0", ID: id, Method: method, Params: raw}
	line, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	if _, err := s.stdin.Write(append(line, '\n')); err != nil {
		return nil, err
	}

	for s.scanner.Scan() {
		text := s.scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var resp jsonRPCResponse
		if err := json.Unmarshal(text, &resp); err != nil {
			continue
		}
		if resp.ID != id {
			continue
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("mcp error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp.Result, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("mcp worker closed stdout before responding to %s", method)
}

type mcpCallOutcome struct {
	res Result
	raw json.RawMessage
}

func mcpDispatch(s *mcpSession, def Definition, t Task, workspace, model string) (mcpCallOutcome, error) {
	if _, err := s.call("initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]any{"name": "devit", "version": "1"},
	}); err != nil {
		return mcpCallOutcome{}, err
	}

	if _, err := s.call("tools/list", map[string]any{}); err != nil {
		return mcpCallOutcome{}, err
	}

	toolName := def.MCPTool
	if toolName == "" {
		toolName = "devit_delegate"
	}

	args := map[string]any{}
	for k, v := range def.MCPArgs {
		args[k] = v
	}
	args["goal"] = t.Goal
	args["prompt"] = t.Goal
	if t.Timeout > 0 {
		args["timeout"] = int(t.Timeout.Seconds())
	}
	workDir := workspace
	if t.WorkingDir != "" {
		workDir = t.WorkingDir
	}
	args["working_dir"] = workDir
	if t.Format != "" {
		args["format"] = string(t.Format)
	}
	if model != "" {
		args["model"] = model
	}

	result, err := s.call("tools/call", mcpToolCallParams{Name: toolName, Arguments: args})
	if err != nil {
		return mcpCallOutcome{}, err
	}

	summary := mcpSummaryFrom(result)
	return mcpCallOutcome{
		res: Result{
			Status: "completed",
			Artifacts: Artifacts{
				Summary: summary,
				Details: result,
			},
		},
		raw: result,
	}, nil
}

func mcpSummaryFrom(result json.RawMessage) string {
	var doc map[string]any
	if json.Unmarshal(result, &doc) != nil {
		return ""
	}
	return extractSummary(doc)
}
