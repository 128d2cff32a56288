// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package worker

import (
	"encoding/json"
	"strings"
)

var costFieldNames = map[string]bool{
	"cost_usd":           true,
	"estimated_cost_usd": true,
	"total_cost_usd":     true,
	"cost_estimate_usd":  true,
}

// extractTelemetry walks an arbitrary JSON value looking for token-count and
// USD-cost fields anywhere in the tree, folding whatever it finds into m. A
// worker's own response shape is not under our control, so this is a scan
// rather than a fixed unmarshal target.
func extractTelemetry(raw json.RawMessage, m *Metadata) {
	var v any
	if len(raw) == 0 {
		return
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}
	walkTelemetry(v, m)
}

func walkTelemetry(v any, m *Metadata) {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			lk := strings.ToLower(k)
			if n, ok := numberOf(val); ok {
				switch {
				case lk == "input_tokens":
					m.InputTokens += int64(n)
				case lk == "output_tokens":
					m.OutputTokens += int64(n)
				case lk == "reasoning_tokens":
					m.ReasoningToks += int64(n)
				case lk == "total_tokens" || strings.HasSuffix(lk, "_token_count"):
					m.TotalTokens += int64(n)
				case costFieldNames[lk]:
					m.CostUSD += n
				}
			}
			walkTelemetry(val, m)
		}
	case []any:
		for _, item := range t {
			walkTelemetry(item, m)
		}
	}
}

func numberOf(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
