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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		replies   []Frame
		want      Version
		wantOK    bool
		wantFails int
	}{
		{
			name:    "NCI 1.0 answers in the response",
			replies: []Frame{MustHex("40 00 03 00 10 00")},
			want:    Version10,
			wantOK:  true,
		},
		{
			name:    "NCI 2.0 reports in the notification",
			replies: []Frame{MustHex("40 00 01 00"), MustHex("60 00 09 02 00 20 04 04 51 12 01 90")},
			want:    Version20,
			wantOK:  true,
		},
		{
			name:    "NCI 2.1",
			replies: []Frame{MustHex("40 00 01 00"), MustHex("60 00 09 02 00 21 04 04 51 12 01 90")},
			want:    Version(0x21),
			wantOK:  true,
		},
		{
			name:      "notification missing falls back to 2.0",
			replies:   []Frame{MustHex("40 00 01 00")},
			want:      Version20,
			wantOK:    true,
			wantFails: 1,
		},
		{
			name:      "no response",
			wantFails: 1,
		},
		{
			name:      "response of an unexpected size",
			replies:   []Frame{MustHex("40 00 02 00 00")},
			wantFails: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewMockHAL()
			frames := make([][]byte, len(tt.replies))
			for i, f := range tt.replies {
				frames[i] = f
			}
			m.SetResponse(CoreReset(false), frames...)
			s := newTestSession(t, m)
			rec := NewRecorder("probe")

			got, ok := s.ProbeVersion(context.Background(), rec)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantFails, rec.Count(), "%v", rec.Failures())
			if ok {
				assert.Equal(t, tt.want, s.Version())
			}
		})
	}
}

func TestProbeVersion_SkipsStrayResponse(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	m.SetResponse(CoreReset(false), MustHex("40 00 03 00 10 00"))
	s := newTestSession(t, m)
	m.Inject(MustHex("4F 02 05 00 01 02 03 04"))
	rec := NewRecorder("probe")

	got, ok := s.ProbeVersion(context.Background(), rec)

	require.True(t, ok, "%v", rec.Failures())
	assert.Equal(t, Version10, got)
	assert.Equal(t, 1, s.Pending())
}

func TestResetAndInit(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	scriptReset(m)
	s := newTestSession(t, m)
	rec := NewRecorder("preamble")

	s.ResetAndInit(context.Background(), rec)

	assert.False(t, rec.Failed(), "%v", rec.Failures())
	assert.Equal(t, 1, m.GetCallCount(CoreReset(true)))
	assert.Equal(t, 1, m.GetCallCount(CoreInit(Version20)))
}

func TestCoreResetStep_RejectsBadNotification(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	// Reason "unspecified" and a configuration status of 2.
	m.SetResponse(CoreReset(true), resetRsp, MustHex("60 00 09 00 02 20 04 04 51 12 01 90"))
	s := newTestSession(t, m)
	rec := NewRecorder("bad_ntf")

	s.CoreReset(context.Background(), rec)

	require.Equal(t, 2, rec.CountKind(FailureMismatch), "%v", rec.Failures())
}
