// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/n-engine/devit/internal/errors"
)

const defaultMaxResponseChars = 4000
const textModeExcerptChars = 240

// ansiSequence matches CSI escape sequences (color codes, cursor moves) so
// colorized CLI worker output can be cleaned before JSON/compact parsing.
var ansiSequence = regexp.MustCompile("\x1b\\[[0-9;]*[a-zA-Z]")

func stripANSI(s string) string {
	if !strings.ContainsRune(s, '\x1b') {
		return s
	}
	return ansiSequence.ReplaceAllString(s, "")
}

// RunCLI spawns def.Binary with placeholder-substituted args and working
// directory, waits for completion under the lesser of def.Timeout and
// t.Timeout, and parses the response per def.Format.
func RunCLI(ctx context.Context, def Definition, t Task, workspace string) (Result, error) {
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

	args := make([]string, len(def.Args))
	for i, a := range def.Args {
		args[i] = substitutePlaceholders(a, t, workspace, model)
	}
	if !containsGoalPlaceholder(def.Args) {
		args = append(args, t.Goal)
	}

	workDir := workspace
	if def.WorkDir != "" {
		workDir = substitutePlaceholders(def.WorkDir, t, workspace, model)
	}

	started := time.Now()
	cmd := exec.CommandContext(cctx, def.Binary, args...)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	completed := time.Now()

	if cctx.Err() == context.DeadlineExceeded {
		return Result{}, errors.NewResourceLimit("CLI worker " + def.Name + " exceeded its timeout")
	}

	exitCode := 0
	exitReason := "exited"
	if runErr != nil {
		exitReason = "error"
		if ee, ok := runErr.(*exec.ExitError); ok {
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

	cleanStdout := stripANSI(stdout.String())
	cleanStderr := stripANSI(stderr.String())

	res := parseCLIResponse(def, cleanStdout, cleanStderr)
	extractTelemetry(json.RawMessage(cleanStdout), meta)
	res.Artifacts.Metadata = meta

	if runErr != nil && res.Status == "" {
		res.Status = "failed"
		res.ErrMsg = runErr.Error()
	}
	if res.Status == "" {
		res.Status = "completed"
	}

	return res, nil
}

func parseCLIResponse(def Definition, stdout, stderr string) Result {
	maxChars := def.MaxResponseChars
	if maxChars <= 0 {
		maxChars = defaultMaxResponseChars
	}

	switch def.Format {
	case FormatCompact:
		return parseCompactResponse(stdout, stderr, maxChars)
	case FormatJSON:
		return parseJSONResponse(stdout, maxChars)
	default:
		excerpt := stdout
		if len(excerpt) > textModeExcerptChars {
			excerpt = excerpt[:textModeExcerptChars]
		}
		return Result{
			Status: "completed",
			Artifacts: Artifacts{
				Summary: excerpt,
			},
		}
	}
}

func parseJSONResponse(stdout string, maxChars int) Result {
	var doc map[string]any
	if err := json.Unmarshal([]byte(stdout), &doc); err != nil {
		return Result{
			Status: "failed",
			ErrMsg: "worker stdout is not valid JSON",
		}
	}

	summary := extractSummary(doc)

	truncated := false
	body := stdout
	originalSize := len(stdout)
	if len(body) > maxChars {
		body = body[:maxChars]
		truncated = true
	}

	details := map[string]any{"stdout": body}
	if truncated {
		details["original_size"] = originalSize
	}
	detailsJSON, _ := json.Marshal(details)

	return Result{
		Status:    "completed",
		Truncated: truncated,
		Artifacts: Artifacts{
			Summary: summary,
			Details: detailsJSON,
		},
	}
}

func extractSummary(doc map[string]any) string {
	if s, ok := doc["result"].(string); ok {
		return s
	}
	if s, ok := doc["response"].(string); ok {
		return s
	}
	if content, ok := doc["content"].([]any); ok {
		var parts []string
		for _, c := range content {
			if m, ok := c.(map[string]any); ok {
				if txt, ok := m["text"].(string); ok {
					parts = append(parts, txt)
				}
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// compactDetails is the {structured_data, raw_excerpt, stderr?, format}
// shape for ResponseFormat "compact".
type compactDetails struct {
	StructuredData structuredData `json:"structured_data"`
	RawExcerpt     string         `json:"raw_excerpt"`
	Stderr         string         `json:"stderr,omitempty"`
	Format         string         `json:"format"`
	OriginalSize   int            `json:"original_size,omitempty"`
}

type structuredData struct {
	NewFuncs      []string `json:"new_funcs,omitempty"`
	ModifiedFuncs []string `json:"modified_funcs,omitempty"`
	Risks         []string `json:"risks,omitempty"`
	Highlights    []string `json:"highlights,omitempty"`
}

func parseCompactResponse(stdout, stderr string, maxChars int) Result {
	excerpt := stdout
	truncated := false
	originalSize := 0
	if len(excerpt) > maxChars {
		originalSize = len(excerpt)
		excerpt = excerpt[:maxChars]
		truncated = true
	}

	var sd structuredData
	var doc map[string]any
	if json.Unmarshal([]byte(stdout), &doc) == nil {
		sd = structuredDataFrom(doc)
	}

	cd := compactDetails{
		StructuredData: sd,
		RawExcerpt:     excerpt,
		Stderr:         stderr,
		Format:         "compact",
	}
	if truncated {
		cd.OriginalSize = originalSize
	}
	detailsJSON, _ := json.Marshal(cd)

	summary := strings.Join(sd.Highlights, "; ")
	if summary == "" {
		summary = excerpt
		if len(summary) > textModeExcerptChars {
			summary = summary[:textModeExcerptChars]
		}
	}

	return Result{
		Status:    "completed",
		Truncated: truncated,
		Artifacts: Artifacts{
			Summary: summary,
			Details: detailsJSON,
		},
	}
}

func structuredDataFrom(doc map[string]any) structuredData {
	var sd structuredData
	sd.NewFuncs = stringSliceOf(doc["new_funcs"])
	sd.ModifiedFuncs = stringSliceOf(doc["modified_funcs"])
	sd.Risks = stringSliceOf(doc["risks"])
	sd.Highlights = stringSliceOf(doc["highlights"])
	return sd
}

func stringSliceOf(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
