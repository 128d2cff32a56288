// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package worker

import (
	"context"
	"fmt"
)

// Dispatch runs t against def, branching on def.Kind. This is the tagged
// union's single switch point; callers never need to know which backend a
// Definition names.
func Dispatch(ctx context.Context, def Definition, t Task, workspace string) (Result, error) {
	switch def.Kind {
	case KindCLI:
		return RunCLI(ctx, def, t, workspace)
	case KindMCP:
		return RunMCP(ctx, def, t, workspace)
	default:
		return Result{}, fmt.Errorf("unknown worker kind %q for %q", def.Kind, def.Name)
	}
}
