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

package nci

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
)

// CaseFunc is test logic that does not fit a fixed step list.
type CaseFunc func(ctx context.Context, s *Session, rec *Recorder)

// TestCase is one conformance case: Steps run first, then Run if set.
type TestCase struct {
	Run      CaseFunc
	Name     string
	Steps    []Step
	Disabled bool
}

// Suite groups cases that share a fixture. SetUp runs before each case and
// defaults to opening the session. It records soft failures on the case's
// recorder; an error skips the case. TearDown runs after it and defaults to
// closing with CloseType.
type Suite struct {
	SetUp       func(ctx context.Context, s *Session, rec *Recorder) error
	TearDown    func(ctx context.Context, s *Session) error
	Name        string
	Description string
	Cases       []TestCase
	CloseType   CloseType
}

func (su Suite) setUp(ctx context.Context, s *Session, rec *Recorder) error {
	if su.SetUp != nil {
		return su.SetUp(ctx, s, rec)
	}
	return s.Open(ctx)
}

func (su Suite) tearDown(ctx context.Context, s *Session) error {
	if su.TearDown != nil {
		return su.TearDown(ctx, s)
	}
	return s.Close(ctx, su.CloseType)
}

// CaseResult is the outcome of one case.
type CaseResult struct {
	Name     string        `json:"name"`
	Error    string        `json:"error,omitempty"`
	Failures []Failure     `json:"failures,omitempty"`
	Duration time.Duration `json:"duration"`
	Disabled bool          `json:"disabled,omitempty"`
}

// Passed reports a case that ran without failures.
func (c CaseResult) Passed() bool {
	return !c.Disabled && c.Error == "" && len(c.Failures) == 0
}

// Report is the outcome of one run.
type Report struct {
	Started  time.Time    `json:"started"`
	Finished time.Time    `json:"finished"`
	ID       string       `json:"id"`
	Suite    string       `json:"suite"`
	Backend  string       `json:"backend"`
	Cases    []CaseResult `json:"cases"`
	Overflow int          `json:"overflow"`
}

// Passed counts cases that ran clean.
func (r *Report) Passed() int {
	n := 0
	for _, c := range r.Cases {
		if c.Passed() {
			n++
		}
	}
	return n
}

// Failed counts cases with at least one failure or a fixture error.
func (r *Report) Failed() int {
	n := 0
	for _, c := range r.Cases {
		if !c.Disabled && !c.Passed() {
			n++
		}
	}
	return n
}

// Disabled counts cases that were listed but not run.
func (r *Report) Disabled() int {
	n := 0
	for _, c := range r.Cases {
		if c.Disabled {
			n++
		}
	}
	return n
}

// maxExitCode keeps the failure count clear of the shell's 128+signal range.
const maxExitCode = 125

// ExitCode is the number of failed cases, capped at 125.
func (r *Report) ExitCode() int {
	return min(r.Failed(), maxExitCode)
}

// Summary is a one-line description of the run.
func (r *Report) Summary() string {
	return fmt.Sprintf("%s: %d passed, %d failed, %d disabled (%s)",
		r.Suite, r.Passed(), r.Failed(), r.Disabled(), r.Finished.Sub(r.Started).Round(time.Millisecond))
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithOutput sets where progress lines go. Defaults to stdout.
func WithOutput(w io.Writer) RunnerOption {
	return func(r *Runner) { r.out = w }
}

// WithFilter runs only cases whose name matches the path.Match pattern.
func WithFilter(pattern string) RunnerOption {
	return func(r *Runner) { r.filter = pattern }
}

// WithDisabled runs cases marked Disabled as well.
func WithDisabled(include bool) RunnerOption {
	return func(r *Runner) { r.includeDisabled = include }
}

// WithRepeat runs each suite n times.
func WithRepeat(n int) RunnerOption {
	return func(r *Runner) { r.repeat = n }
}

// Runner runs suites against one session and prints gtest-style progress.
type Runner struct {
	session         *Session
	out             io.Writer
	filter          string
	repeat          int
	includeDisabled bool
}

// NewRunner creates a runner for s.
func NewRunner(s *Session, opts ...RunnerOption) *Runner {
	r := &Runner{session: s, out: os.Stdout, repeat: 1}
	for _, opt := range opts {
		opt(r)
	}
	if r.repeat < 1 {
		r.repeat = 1
	}
	return r
}

func (r *Runner) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(r.out, format, args...)
}

func (r *Runner) selected(name string) bool {
	if r.filter == "" {
		return true
	}
	ok, err := path.Match(r.filter, name)
	return err == nil && ok
}

// Run runs the suite's cases in order. A fixture error that leaves the
// controller unreachable stops the run; the remaining cases are reported
// with an error. Cancelling ctx stops after the current case.
func (r *Runner) Run(ctx context.Context, su Suite) *Report {
	rep := &Report{
		ID:      uuid.NewString(),
		Suite:   su.Name,
		Backend: string(r.session.HAL().Backend()),
		Started: time.Now(),
	}
	overflowBefore := r.session.Overflow()

	r.printf("[==========] Running %s\n", su.Name)
	var abort string
	for iter := range r.repeat {
		if r.repeat > 1 {
			r.printf("Repeating all tests (iteration %d) . . .\n", iter+1)
		}
		for _, tc := range su.Cases {
			if !r.selected(tc.Name) {
				continue
			}
			full := su.Name + "." + tc.Name
			if tc.Disabled && !r.includeDisabled {
				r.printf("[ DISABLED ] %s\n", full)
				rep.Cases = append(rep.Cases, CaseResult{Name: full, Disabled: true})
				continue
			}
			if abort == "" && ctx.Err() != nil {
				abort = "not run: " + ctx.Err().Error()
			}
			if abort != "" {
				rep.Cases = append(rep.Cases, CaseResult{Name: full, Error: abort})
				continue
			}

			res, fatal := r.runCase(ctx, su, tc, full)
			rep.Cases = append(rep.Cases, res)
			if fatal != nil {
				abort = "not run: " + fatal.Error()
			}
		}
	}

	rep.Finished = time.Now()
	rep.Overflow = r.session.Overflow() - overflowBefore
	r.printf("[==========] %s\n", rep.Summary())
	if rep.Overflow > 0 {
		r.printf("WARNING: %d unclaimed frames were evicted from the callback queue\n", rep.Overflow)
	}
	return rep
}

func (r *Runner) runCase(ctx context.Context, su Suite, tc TestCase, full string) (CaseResult, error) {
	r.printf("[ RUN      ] %s\n", full)
	Debugf("starting %s", full)
	start := time.Now()
	rec := NewRecorder(full)
	res := CaseResult{Name: full}

	var fatal error
	if err := su.setUp(ctx, r.session, rec); err != nil {
		res.Error = fmt.Sprintf("set up: %v", err)
		if IsFatal(err) {
			fatal = err
		}
	} else {
		r.session.Run(ctx, rec, tc.Steps...)
		if tc.Run != nil {
			tc.Run(ctx, r.session, rec)
		}
		if err := su.tearDown(ctx, r.session); err != nil {
			rec.SetStep("TearDown")
			rec.Fail(FailureTimeout, "tear down: %v", err)
			if IsFatal(err) {
				fatal = err
			}
		}
	}

	res.Failures = rec.Failures()
	res.Duration = time.Since(start)
	ms := res.Duration.Milliseconds()
	if res.Passed() {
		r.printf("[       OK ] %s (%d ms)\n", full, ms)
	} else {
		if res.Error != "" {
			r.printf("    %s\n", res.Error)
		}
		r.printf("[  FAILED  ] %s (%d ms)\n", full, ms)
	}
	return res, fatal
}
