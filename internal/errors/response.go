// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package errors

import (
	"encoding/json"
	"fmt"
	"os"
)

// StdResponse is the envelope every CLI verb and daemon reply wraps its
// payload in: exactly one of Data or Error is set.
type StdResponse struct {
	OK    bool      `json:"ok"`
	Data  any       `json:"data,omitempty"`
	Error *StdError `json:"error,omitempty"`
}

// PrintResponse writes data (on success) or err (on failure) as a
// StdResponse. In JSON mode the whole envelope is marshalled to stdout with
// two-space indent; in pretty mode render is called for success and the
// StdError's own Format for failure. PrintResponse never exits the process
// — callers decide the exit code from the returned ok value.
func PrintResponse(data any, err error, jsonMode bool, render func(any)) bool {
	if err != nil {
		se, ok := err.(*StdError)
		if !ok {
			se = New(CodeInternal, "Unexpected error", err.Error(), "", err)
		}
		if jsonMode {
			fmt.Println(mustIndentJSON(StdResponse{OK: false, Error: se}))
		} else {
			fmt.Fprintln(os.Stderr, se.Format(false))
		}
		return false
	}
	if jsonMode {
		fmt.Println(mustIndentJSON(StdResponse{OK: true, Data: data}))
		return true
	}
	if render != nil {
		render(data)
	}
	return true
}

func mustIndentJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return `{"ok":false,"error":{"code":"E_INTERNAL","title":"cannot marshal response"}}`
	}
	return string(b)
}
