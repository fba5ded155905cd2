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
	"fmt"
	"strings"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ZaparooProject/go-nci/internal/syncutil"
)

// FailureKind is the class of a failed expectation.
type FailureKind int

const (
	// FailureWriteSize means the HAL accepted fewer bytes than the frame held.
	FailureWriteSize FailureKind = iota
	// FailureTimeout means an expected frame or event did not arrive in time.
	FailureTimeout
	// FailureMismatch means a frame arrived with the wrong content.
	FailureMismatch
)

func (k FailureKind) String() string {
	switch k {
	case FailureWriteSize:
		return "write-size"
	case FailureTimeout:
		return "timeout"
	case FailureMismatch:
		return "mismatch"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// Failure is one non-fatal expectation failure.
type Failure struct {
	At     time.Time   `json:"at"`
	Step   string      `json:"step"`
	Detail string      `json:"detail"`
	Kind   FailureKind `json:"kind"`
}

func (f Failure) String() string {
	if f.Step == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
	}
	return fmt.Sprintf("%s [%s]: %s", f.Kind, f.Step, f.Detail)
}

// Recorder collects expectation failures for one test case. Like a test
// framework's non-fatal expectations, a failure is counted and logged and
// the case carries on with its next step.
//
// Checks are written with testify's assert package against a Recorder (or a
// Recorder-backed assert.TestingT), so mismatch messages carry testify's
// diffs.
type Recorder struct {
	name     string
	step     string
	failures []Failure
	mu       syncutil.Mutex
}

// NewRecorder creates a recorder for the named case.
func NewRecorder(name string) *Recorder {
	return &Recorder{name: name}
}

// Name returns the case name.
func (r *Recorder) Name() string {
	return r.name
}

// SetStep labels subsequent failures.
func (r *Recorder) SetStep(step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.step = step
}

// Step returns the current step label.
func (r *Recorder) Step() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.step
}

// Fail records a failure of the given kind against the current step.
func (r *Recorder) Fail(kind FailureKind, format string, args ...any) {
	r.mu.Lock()
	f := Failure{
		At:     time.Now(),
		Step:   r.step,
		Kind:   kind,
		Detail: fmt.Sprintf(format, args...),
	}
	r.failures = append(r.failures, f)
	r.mu.Unlock()

	Debugf("%s: %s", r.name, f)
	_, _ = fmt.Printf("    expectation failed: %s\n", f)
}

// Errorf makes Recorder an assert.TestingT; testify failures become
// mismatches.
func (r *Recorder) Errorf(format string, args ...any) {
	r.Fail(FailureMismatch, "%s", compactTestifyMessage(fmt.Sprintf(format, args...)))
}

// As returns an assert.TestingT that records failures of kind k.
func (r *Recorder) As(k FailureKind) assert.TestingT {
	return kindT{r: r, kind: k}
}

type kindT struct {
	r    *Recorder
	kind FailureKind
}

func (t kindT) Errorf(format string, args ...any) {
	t.r.Fail(t.kind, "%s", compactTestifyMessage(fmt.Sprintf(format, args...)))
}

// compactTestifyMessage folds testify's multi-line report onto one line.
func compactTestifyMessage(msg string) string {
	lines := strings.Split(msg, "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if l == "" || strings.HasPrefix(l, "Error Trace:") {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, " ")
}

// ExpectWritten checks that the HAL took the whole frame.
func (r *Recorder) ExpectWritten(written, want int) bool {
	return assert.Equal(r.As(FailureWriteSize), want, written, "bytes written")
}

// ExpectArrived records a timeout when arrived is false.
func (r *Recorder) ExpectArrived(arrived bool, what string) bool {
	if !arrived {
		r.Fail(FailureTimeout, "no %s within timeout", what)
	}
	return arrived
}

// ExpectFrame runs checks against f; every failing check is recorded.
func (r *Recorder) ExpectFrame(f Frame, checks ...Check) bool {
	ok := true
	for _, check := range checks {
		if !check(r, f) {
			ok = false
		}
	}
	return ok
}

// ExpectTrue records a mismatch when cond is false.
func (r *Recorder) ExpectTrue(cond bool, format string, args ...any) bool {
	return assert.True(r, cond, append([]any{format}, args...)...)
}

// Failures returns a copy of the recorded failures.
func (r *Recorder) Failures() []Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Failure(nil), r.failures...)
}

// Count returns the number of recorded failures.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failures)
}

// CountKind returns the number of failures of kind k.
func (r *Recorder) CountKind(k FailureKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.failures {
		if f.Kind == k {
			n++
		}
	}
	return n
}

// Failed reports whether anything was recorded.
func (r *Recorder) Failed() bool {
	return r.Count() > 0
}

// Check validates one aspect of a received frame, reporting through t.
type Check func(t assert.TestingT, f Frame) bool

// Exact requires the frame to equal want byte for byte.
func Exact(want ...byte) Check {
	return func(t assert.TestingT, f Frame) bool {
		return assert.Equal(t, Frame(want).String(), f.String(), "frame content")
	}
}

// Length requires the total frame length to be n.
func Length(n int) Check {
	return func(t assert.TestingT, f Frame) bool {
		return assert.Equal(t, n, f.Len(), "frame length of [%s]", f)
	}
}

// MinLength requires the total frame length to be at least n.
func MinLength(n int) Check {
	return func(t assert.TestingT, f Frame) bool {
		return assert.GreaterOrEqual(t, f.Len(), n, "frame length of [%s]", f)
	}
}

// LengthByteConsistent requires byte 2 to equal the frame length minus the header.
func LengthByteConsistent() Check {
	return func(t assert.TestingT, f Frame) bool {
		if !assert.GreaterOrEqual(t, f.Len(), 3, "frame too short for header: [%s]", f) {
			return false
		}
		return assert.Equal(t, f.Len()-3, int(f[2]), "length byte of [%s]", f)
	}
}

// ByteAt requires f[i] == want.
func ByteAt(i int, want byte) Check {
	return func(t assert.TestingT, f Frame) bool {
		if !assert.Greater(t, f.Len(), i, "no byte[%d] in [%s]", i, f) {
			return false
		}
		return assert.Equal(t, want, f[i], "byte[%d] of [%s]", i, f)
	}
}

// ByteAtMost requires f[i] <= limit.
func ByteAtMost(i int, limit byte) Check {
	return func(t assert.TestingT, f Frame) bool {
		if !assert.Greater(t, f.Len(), i, "no byte[%d] in [%s]", i, f) {
			return false
		}
		return assert.LessOrEqual(t, f[i], limit, "byte[%d] of [%s]", i, f)
	}
}

// StatusIs requires the status byte to be s.
func StatusIs(s Status) Check {
	return func(t assert.TestingT, f Frame) bool {
		got, ok := f.Status()
		if !assert.True(t, ok, "no status byte in [%s]", f) {
			return false
		}
		return assert.Equal(t, s.String(), got.String(), "status of [%s]", f)
	}
}

// StatusIsOK requires STATUS_OK.
func StatusIsOK() Check {
	return StatusIs(StatusOK)
}

// Prefix requires the frame to start with p.
func Prefix(p ...byte) Check {
	return func(t assert.TestingT, f Frame) bool {
		if !assert.GreaterOrEqual(t, f.Len(), len(p), "frame [%s] shorter than prefix [%s]", f, Frame(p)) {
			return false
		}
		return assert.Equal(t, Frame(p).String(), f[:len(p)].String(), "prefix of [%s]", f)
	}
}

// Opcode requires the header to carry mt, gid and oid.
func Opcode(mt MessageType, gid, oid byte) Check {
	return func(t assert.TestingT, f Frame) bool {
		want := fmt.Sprintf("%s %s", mt, opcodeName(gid, oid))
		got := fmt.Sprintf("%s %s", f.MT(), opcodeName(f.GID(), f.OID()))
		return assert.Equal(t, want, got, "header of [%s]", f)
	}
}
