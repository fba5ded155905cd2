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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, m *MockHAL, opts ...SessionOption) *Session {
	t.Helper()
	base := []SessionOption{
		WithCallbackTimeout(50 * time.Millisecond),
		WithEventTimeout(100 * time.Millisecond),
	}
	s := NewSession(m, append(base, opts...)...)
	require.NoError(t, s.Open(context.Background()))
	return s
}

func scriptReset(m *MockHAL) {
	m.SetResponse(CoreReset(true), resetRsp, resetNtf)
	m.SetResponse(CoreInit(Version20), MustHex("40 01 05 00 1A 7E 06 02"))
}

func TestSession_OpenClose(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	s := newTestSession(t, m)
	assert.True(t, s.IsOpen())
	assert.True(t, m.IsOpen())

	m.Inject(ctsNtf)
	assert.Equal(t, 1, s.Pending())

	require.NoError(t, s.Close(context.Background(), CloseDisable))
	assert.False(t, s.IsOpen())
	assert.Zero(t, s.Pending(), "close discards unclaimed frames")
}

func TestSession_OpenErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		setup   func(m *MockHAL)
		wantErr error
		name    string
	}{
		{
			name:    "hal refuses",
			setup:   func(m *MockHAL) { m.SetError(MockOpOpen, ErrDeviceNotFound) },
			wantErr: ErrDeviceNotFound,
		},
		{
			name:    "open complete with failure",
			setup:   func(m *MockHAL) { m.SetOpenStatus(EventStatusTransportError) },
			wantErr: ErrEventFailed,
		},
		{
			name:    "open complete missing",
			setup:   func(m *MockHAL) { m.DropEvent(EventOpenComplete) },
			wantErr: ErrEventTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewMockHAL()
			tt.setup(m)
			s := NewSession(m, WithEventTimeout(30*time.Millisecond))
			err := s.Open(context.Background())
			require.ErrorIs(t, err, tt.wantErr)
			assert.False(t, s.IsOpen())
		})
	}
}

func TestSession_TimeoutCarriesTrace(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	m.DropEvent(EventCloseComplete)
	s := newTestSession(t, m, WithTrace("/dev/nq-nci", 8))
	_, err := s.Send(context.Background(), CoreReset(true))
	require.NoError(t, err)

	err = s.Close(context.Background(), CloseDisable)
	require.ErrorIs(t, err, ErrEventTimeout)

	var te *TraceableError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "mock", te.Backend)
	assert.Equal(t, "/dev/nq-nci", te.Port)
	assert.Contains(t, te.FormatTrace(), "> 20 00 01 01")
}

func TestSession_TransactPasses(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	scriptReset(m)
	s := newTestSession(t, m)
	rec := NewRecorder("reset")

	got := s.Transact(context.Background(), rec, CoreResetStep(true))

	assert.False(t, rec.Failed(), "%v", rec.Failures())
	require.Len(t, got, 2)
	assert.Equal(t, resetRsp, got[0])
	assert.Equal(t, resetNtf, got[1])
	assert.Equal(t, "CORE_RESET", rec.Step())
}

func TestSession_TransactRecordsEveryFailure(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	// Wrong status and no notification.
	m.SetResponse(CoreReset(true), MustHex("40 00 01 06"))
	s := newTestSession(t, m)
	rec := NewRecorder("reset")

	got := s.Transact(context.Background(), rec, CoreResetStep(true))

	assert.Len(t, got, 1)
	assert.Equal(t, 1, rec.CountKind(FailureMismatch))
	assert.Equal(t, 1, rec.CountKind(FailureTimeout))
}

func TestSession_TransactWriteFailures(t *testing.T) {
	t.Parallel()

	t.Run("short write", func(t *testing.T) {
		t.Parallel()
		m := NewMockHAL()
		scriptReset(m)
		m.SetShortWrite(1)
		s := newTestSession(t, m)
		rec := NewRecorder("short")
		s.Transact(context.Background(), rec, CoreResetStep(true))
		assert.Equal(t, 1, rec.CountKind(FailureWriteSize))
		assert.Zero(t, rec.CountKind(FailureTimeout), "the mock still answers")
	})

	t.Run("write error", func(t *testing.T) {
		t.Parallel()
		m := NewMockHAL()
		m.SetError(MockOpWrite, NewWriteError("Write", "mock"))
		s := newTestSession(t, m)
		rec := NewRecorder("error")
		s.Transact(context.Background(), rec, NewStep("PROP_ACT", MustHex("2F 02 00"), ResponseOK(8)))
		assert.Equal(t, 1, rec.CountKind(FailureWriteSize))
		assert.Equal(t, 1, rec.CountKind(FailureTimeout))
	})
}

func TestSession_TimeoutListsUnclaimed(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	m.SetResponse(MustHex("2F 02 00"), ctsNtf)
	s := newTestSession(t, m)
	rec := NewRecorder("unclaimed")

	s.Transact(context.Background(), rec, NewStep("PROP_ACT", MustHex("2F 02 00"), ResponseOK(8)))

	failures := rec.Failures()
	require.Len(t, failures, 1)
	assert.Equal(t, FailureTimeout, failures[0].Kind)
	assert.Contains(t, failures[0].Detail, "unclaimed: [6F 22 02 00 00]")
}

func TestSession_DelayedResponse(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	m.SetResponse(MustHex("2F 02 00"), MustHex("4F 02 05 00 12 02 10 00"))
	m.SetDelay(120 * time.Millisecond)
	s := newTestSession(t, m, WithProlongFactor(6))

	t.Run("default wait expires", func(t *testing.T) {
		rec := NewRecorder("slow")
		s.Transact(context.Background(), rec, NewStep("PROP_ACT", MustHex("2F 02 00"), ResponseOK(8)))
		assert.Equal(t, 1, rec.CountKind(FailureTimeout))
		// Let the late frame land, then drop it.
		assert.Equal(t, 1, s.Drain(context.Background(), 1, time.Second))
	})

	t.Run("prolonged wait succeeds", func(t *testing.T) {
		rec := NewRecorder("prolonged")
		s.Transact(context.Background(), rec, NewStep("PROP_ACT", MustHex("2F 02 00"), ResponseOK(8).Prolonged()))
		assert.False(t, rec.Failed(), "%v", rec.Failures())
	})
}

func TestSession_ResponseMatchesCommandOpcode(t *testing.T) {
	t.Parallel()

	stale := MustHex("4F 02 05 00 01 02 03 04")
	initRsp := MustHex("40 01 05 00 1A 7E 06 02")

	m := NewMockHAL()
	scriptReset(m)
	s := newTestSession(t, m)
	rec := NewRecorder("stale")

	s.CoreReset(context.Background(), rec)
	m.Inject(stale)
	got := s.Transact(context.Background(), rec, CoreInitStep(Version20))

	assert.False(t, rec.Failed(), "%v", rec.Failures())
	require.Len(t, got, 1)
	assert.Equal(t, initRsp, got[0])
	assert.Equal(t, []Frame{stale}, s.corr.Snapshot(), "the stray response stays queued")
}

func TestSession_ResponseFromOtherCommandTimesOut(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	m.SetResponse(CoreInit(Version20), MustHex("4F 02 05 00 01 02 03 04"))
	s := newTestSession(t, m)
	rec := NewRecorder("wrong_opcode")

	got := s.Transact(context.Background(), rec, CoreInitStep(Version20))

	assert.Empty(t, got)
	assert.Equal(t, 1, rec.CountKind(FailureTimeout))
	assert.Equal(t, 1, s.Pending())
}

func TestSession_DataStepTakesAnyResponse(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	s := newTestSession(t, m)
	rec := NewRecorder("no_command")
	m.Inject(resetRsp)

	got := s.Transact(context.Background(), rec, Step{Name: "WAIT", Expect: []Expectation{Response()}})

	assert.False(t, rec.Failed(), "%v", rec.Failures())
	assert.Equal(t, []Frame{resetRsp}, got)
}

func TestSession_Timeouts(t *testing.T) {
	t.Parallel()

	s := NewSession(NewMockHAL(), WithCallbackTimeout(100*time.Millisecond), WithProlongFactor(4))

	assert.Equal(t, 400*time.Millisecond, s.ProlongedTimeout())
	assert.Equal(t, 100*time.Millisecond, s.Timeout(0))
	assert.Equal(t, 300*time.Millisecond, s.Timeout(3))

	tests := []struct {
		name string
		exp  Expectation
		want time.Duration
	}{
		{name: "default", exp: Response(), want: 100 * time.Millisecond},
		{name: "factor", exp: Expectation{Factor: 2}, want: 200 * time.Millisecond},
		{name: "prolonged", exp: Response().Prolonged(), want: 400 * time.Millisecond},
		{name: "explicit", exp: Response().Within(time.Second), want: time.Second},
		{name: "explicit prolonged", exp: Response().Within(10 * time.Millisecond).Prolonged(), want: 40 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, s.timeoutFor(tt.exp), tt.name)
	}
}

func TestSession_PowerCycle(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	s := newTestSession(t, m)
	m.Inject(resetNtf)

	require.NoError(t, s.PowerCycle(context.Background()))
	assert.Zero(t, s.Pending())

	m.SetError(MockOpPowerCycle, ErrHALClosed)
	require.ErrorIs(t, s.PowerCycle(context.Background()), ErrHALClosed)
}

func TestSession_EventQueueDropsOldest(t *testing.T) {
	t.Parallel()

	s := NewSession(NewMockHAL())
	for range eventQueueSize + 3 {
		s.onEvent(EventRequestControl, EventStatusOK)
	}
	s.onEvent(EventOpenComplete, EventStatusOK)

	assert.Len(t, s.events, eventQueueSize)
	require.NoError(t, s.awaitEvent(context.Background(), EventOpenComplete))
}

func TestSession_Vendor(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	s := NewSession(NewRetryingHAL(m, nil))
	v, ok := s.Vendor()
	require.True(t, ok)
	_, err := v.SetTransitConfig(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []string{""}, m.TransitCalls())
}
