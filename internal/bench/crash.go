// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bench

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ZaparooProject/go-nci"
)

// CrashReport is written for every failed case so the frames leading up to
// the failure survive the run.
type CrashReport struct {
	Timestamp time.Time     `json:"timestamp"`
	RunID     string        `json:"run_id"`
	Suite     string        `json:"suite"`
	Backend   string        `json:"backend"`
	Case      string        `json:"case"`
	Error     string        `json:"error,omitempty"`
	Failures  []string      `json:"failures"`
	Trace     []string      `json:"trace,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// CrashReports builds one report per failed case of rep. The trace is the
// session's frame history, shared by all of them.
func CrashReports(rep *nci.Report, trace []nci.TraceEntry) []*CrashReport {
	lines := make([]string, 0, len(trace))
	for _, e := range trace {
		lines = append(lines, e.String())
	}

	var out []*CrashReport
	for _, c := range rep.Cases {
		if c.Disabled || c.Passed() {
			continue
		}
		cr := &CrashReport{
			Timestamp: rep.Finished,
			RunID:     rep.ID,
			Suite:     rep.Suite,
			Backend:   rep.Backend,
			Case:      c.Name,
			Error:     c.Error,
			Duration:  c.Duration,
			Trace:     lines,
		}
		for _, f := range c.Failures {
			cr.Failures = append(cr.Failures, f.String())
		}
		out = append(out, cr)
	}
	return out
}

// WriteCrashReport stores cr as indented JSON in dir and returns the path.
func WriteCrashReport(dir string, cr *CrashReport) (string, error) {
	safe := strings.NewReplacer("/", "_", " ", "_", ".", "_").Replace(cr.Case)
	name := fmt.Sprintf("nci_crash_%s_%s.json", safe, cr.Timestamp.Format("20060102_150405"))
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(cr, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}
