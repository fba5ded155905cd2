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
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRunnerSession(m *MockHAL) *Session {
	return NewSession(m,
		WithCallbackTimeout(30*time.Millisecond),
		WithEventTimeout(100*time.Millisecond),
	)
}

func TestRunner_Run(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	scriptReset(m)
	s := newRunnerSession(m)

	var out bytes.Buffer
	su := Suite{
		Name: "Core",
		Cases: []TestCase{
			{Name: "reset", Steps: []Step{CoreResetStep(true)}},
			{Name: "init_without_answer", Steps: []Step{CoreInitStep(Version10)}},
			{Name: "eeprom", Disabled: true, Steps: []Step{CoreResetStep(true)}},
			{Name: "custom", Run: func(ctx context.Context, s *Session, rec *Recorder) {
				s.ResetAndInit(ctx, rec)
			}},
		},
	}

	rep := NewRunner(s, WithOutput(&out)).Run(context.Background(), su)

	require.Len(t, rep.Cases, 4)
	assert.Equal(t, 2, rep.Passed())
	assert.Equal(t, 1, rep.Failed())
	assert.Equal(t, 1, rep.Disabled())
	assert.Equal(t, 1, rep.ExitCode())
	assert.Equal(t, "mock", rep.Backend)
	_, err := uuid.Parse(rep.ID)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "[ RUN      ] Core.reset\n")
	assert.Contains(t, text, "[       OK ] Core.reset (")
	assert.Contains(t, text, "[  FAILED  ] Core.init_without_answer (")
	assert.Contains(t, text, "[ DISABLED ] Core.eeprom\n")
	assert.Contains(t, text, "Core: 2 passed, 1 failed, 1 disabled")
	assert.False(t, m.IsOpen(), "each case closes the HAL")
}

func TestRunner_FilterAndDisabled(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	scriptReset(m)
	s := newRunnerSession(m)
	su := Suite{
		Name: "Core",
		Cases: []TestCase{
			{Name: "reset_keep", Steps: []Step{CoreResetStep(true)}},
			{Name: "reset_clear", Disabled: true, Steps: []Step{CoreResetStep(true)}},
			{Name: "init", Steps: []Step{CoreInitStep(Version20)}},
		},
	}

	var out bytes.Buffer
	rep := NewRunner(s, WithOutput(&out), WithFilter("reset_*"), WithDisabled(true)).Run(context.Background(), su)

	require.Len(t, rep.Cases, 2)
	assert.Equal(t, 2, rep.Passed())
	assert.NotContains(t, out.String(), "Core.init")
}

func TestRunner_Repeat(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	scriptReset(m)
	s := newRunnerSession(m)
	su := Suite{Name: "Core", Cases: []TestCase{{Name: "reset", Steps: []Step{CoreResetStep(true)}}}}

	var out bytes.Buffer
	rep := NewRunner(s, WithOutput(&out), WithRepeat(3)).Run(context.Background(), su)

	assert.Len(t, rep.Cases, 3)
	assert.Equal(t, 3, m.GetCallCount(CoreReset(true)))
	assert.Contains(t, out.String(), "Repeating all tests (iteration 3)")
}

func TestRunner_FatalSetUpAbortsRun(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	m.SetError(MockOpOpen, NewNotOpenError("Open", "/dev/nq-nci"))
	s := newRunnerSession(m)
	su := Suite{
		Name: "Core",
		Cases: []TestCase{
			{Name: "first"},
			{Name: "second"},
		},
	}

	var out bytes.Buffer
	rep := NewRunner(s, WithOutput(&out)).Run(context.Background(), su)

	require.Len(t, rep.Cases, 2)
	assert.Contains(t, rep.Cases[0].Error, "set up")
	assert.Contains(t, rep.Cases[1].Error, "not run")
	assert.Equal(t, 2, rep.ExitCode())
	assert.Equal(t, 1, m.OpenCount())
}

func TestRunner_TearDownFailureCounts(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	s := newRunnerSession(m)
	su := Suite{
		Name: "Core",
		TearDown: func(context.Context, *Session) error {
			return errors.New("CLOSE_CPLT missing")
		},
		Cases: []TestCase{{Name: "noop"}},
	}

	var out bytes.Buffer
	rep := NewRunner(s, WithOutput(&out)).Run(context.Background(), su)

	require.Len(t, rep.Cases, 1)
	require.Len(t, rep.Cases[0].Failures, 1)
	assert.Equal(t, "TearDown", rep.Cases[0].Failures[0].Step)
}

func TestRunner_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMockHAL()
	s := newRunnerSession(m)
	su := Suite{Name: "Core", Cases: []TestCase{{Name: "a"}, {Name: "b"}}}

	var out bytes.Buffer
	rep := NewRunner(s, WithOutput(&out)).Run(ctx, su)

	assert.Equal(t, 2, rep.Failed())
	assert.Zero(t, m.OpenCount())
}

func TestRunner_ReportsOverflow(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	s := NewSession(m, WithQueueCapacity(2), WithEventTimeout(100*time.Millisecond))
	su := Suite{
		Name: "Core",
		Cases: []TestCase{{Name: "flood", Run: func(_ context.Context, _ *Session, _ *Recorder) {
			for range 5 {
				m.Inject(ctsNtf)
			}
		}}},
	}

	var out bytes.Buffer
	rep := NewRunner(s, WithOutput(&out)).Run(context.Background(), su)

	assert.Equal(t, 3, rep.Overflow)
	assert.Contains(t, out.String(), "WARNING: 3 unclaimed frames")
}

func TestReport_ExitCodeCapped(t *testing.T) {
	t.Parallel()

	rep := &Report{}
	for range 200 {
		rep.Cases = append(rep.Cases, CaseResult{Name: "x", Error: "boom"})
	}
	assert.Equal(t, 125, rep.ExitCode())
	assert.Zero(t, (&Report{}).ExitCode())
}
