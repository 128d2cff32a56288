// Copyright 2026 The Devit Authors
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package testexec

import (
	"regexp"
	"strconv"
)

var (
	cargoResultRe  = regexp.MustCompile(`test result: \w+\. (\d+) passed; (\d+) failed; (\d+) ignored`)
	pytestResultRe = regexp.MustCompile(`(\d+) passed`)
	pytestFailedRe = regexp.MustCompile(`(\d+) failed`)
	pytestSkipRe   = regexp.MustCompile(`(\d+) skipped`)
	npmTestsRe     = regexp.MustCompile(`Tests:\s+(?:(\d+) failed, )?(?:(\d+) skipped, )?(\d+) passed, (\d+) total`)
)

// Parse extracts {total, passed, failed, skipped} from a framework's raw
// stdout. Unknown or unrecognized output reports only Success, matching the
// spec's "unknown frameworks surface success-or-not only" fallback.
func Parse(fw Framework, stdout string) Summary {
	s := Summary{Framework: fw}
	switch fw {
	case FrameworkCargo:
		if m := cargoResultRe.FindStringSubmatch(stdout); m != nil {
			s.Passed = atoi(m[1])
			s.Failed = atoi(m[2])
			s.Skipped = atoi(m[3])
			s.Total = s.Passed + s.Failed + s.Skipped
			s.Success = s.Failed == 0
			return s
		}
	case FrameworkNPM:
		if m := npmTestsRe.FindStringSubmatch(stdout); m != nil {
			s.Failed = atoi(m[1])
			s.Skipped = atoi(m[2])
			s.Passed = atoi(m[3])
			s.Total = atoi(m[4])
			s.Success = s.Failed == 0
			return s
		}
	case FrameworkPytest:
		if m := pytestResultRe.FindStringSubmatch(stdout); m != nil {
			s.Passed = atoi(m[1])
		}
		if m := pytestFailedRe.FindStringSubmatch(stdout); m != nil {
			s.Failed = atoi(m[1])
		}
		if m := pytestSkipRe.FindStringSubmatch(stdout); m != nil {
			s.Skipped = atoi(m[1])
		}
		if s.Passed+s.Failed+s.Skipped > 0 {
			s.Total = s.Passed + s.Failed + s.Skipped
			s.Success = s.Failed == 0
			return s
		}
	}
	s.Success = true
	return s
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
