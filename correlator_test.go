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
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	resetRsp   = MustHex("40 00 01 00")
	resetNtf   = MustHex("60 00 09 02 01 20 04 04 51 12 01 90")
	fieldOnNtf = MustHex("61 07 01 01")
	ctsNtf     = MustHex("6F 22 02 00 00")
)

func TestCorrelator_ArrivalOrder(t *testing.T) {
	t.Parallel()

	c := NewCorrelator(4)
	c.Deliver(resetRsp)
	c.Deliver(resetNtf)

	ctx := context.Background()
	first, ok := c.Await(ctx, time.Second)
	require.True(t, ok)
	second, ok := c.Await(ctx, time.Second)
	require.True(t, ok)

	if diff := cmp.Diff([]Frame{resetRsp, resetNtf}, []Frame{first, second}); diff != "" {
		t.Errorf("arrival order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 2, c.Delivered())
}

func TestCorrelator_MatchSkipsUnsolicited(t *testing.T) {
	t.Parallel()

	c := NewCorrelator(4)
	c.Deliver(fieldOnNtf)
	c.Deliver(resetRsp)

	f, ok := c.AwaitMatch(context.Background(), time.Second, MatchResponse())
	require.True(t, ok)
	assert.Equal(t, resetRsp, f)
	assert.Equal(t, []Frame{fieldOnNtf}, c.Snapshot())
}

func TestCorrelator_WaiterGetsFrameDirectly(t *testing.T) {
	t.Parallel()

	c := NewCorrelator(4)
	fut := c.Expect(MatchNotification(GIDCore, OIDCoreReset))

	c.Deliver(resetRsp)
	c.Deliver(resetNtf)

	f, ok := fut.Wait(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, resetNtf, f)
	assert.Equal(t, 1, c.Pending(), "the response nobody waited for stays queued")
}

func TestCorrelator_DeliverCopies(t *testing.T) {
	t.Parallel()

	c := NewCorrelator(4)
	raw := []byte{0x40, 0x00, 0x01, 0x00}
	c.Deliver(raw)
	raw[3] = 0xFF

	f, ok := c.Await(context.Background(), time.Second)
	require.True(t, ok)
	assert.Equal(t, byte(0x00), f[3])
}

func TestCorrelator_Overflow(t *testing.T) {
	t.Parallel()

	c := NewCorrelator(3)
	for i := range 5 {
		c.Deliver(NewNotification(GIDProprietary, OIDPropCTS, byte(i), 0x00))
	}

	assert.Equal(t, 3, c.Pending())
	assert.Equal(t, 2, c.Overflow())
	q := c.Snapshot()
	require.Len(t, q, 3)
	assert.Equal(t, byte(2), q[0].Payload()[0], "oldest frames are evicted first")
}

func TestCorrelator_Timeout(t *testing.T) {
	t.Parallel()

	c := NewCorrelator(4)
	start := time.Now()
	f, ok := c.Await(context.Background(), 30*time.Millisecond)
	assert.False(t, ok)
	assert.Nil(t, f)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	// A frame arriving after the timeout is queued, not lost.
	c.Deliver(resetRsp)
	assert.Equal(t, 1, c.Pending())
}

func TestCorrelator_ContextCancel(t *testing.T) {
	t.Parallel()

	c := NewCorrelator(4)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, ok := c.Await(ctx, 0)
	assert.False(t, ok)
}

func TestCorrelator_NonPositiveTimeoutFallsBack(t *testing.T) {
	t.Parallel()

	c := NewCorrelator(4)
	c.SetDefaultTimeout(20 * time.Millisecond)
	c.SetDefaultTimeout(0)

	for _, timeout := range []time.Duration{0, -time.Second} {
		start := time.Now()
		_, ok := c.Await(context.Background(), timeout)
		assert.False(t, ok)
		assert.Less(t, time.Since(start), time.Second, "timeout %s must not block on ctx alone", timeout)
	}

	c.SetDefaultTimeout(time.Second)
	go func() {
		time.Sleep(5 * time.Millisecond)
		c.Deliver(ctsNtf)
	}()
	f, ok := c.Await(context.Background(), 0)
	require.True(t, ok)
	assert.Equal(t, ctsNtf, f)
}

func TestCorrelator_CancelReturnsHandedOverFrame(t *testing.T) {
	t.Parallel()

	c := NewCorrelator(4)
	fut := c.Expect(nil)
	c.Deliver(ctsNtf)

	f, ok := fut.Cancel()
	require.True(t, ok)
	assert.Equal(t, ctsNtf, f)
	assert.Zero(t, c.Pending())

	// After Cancel the future no longer claims anything.
	fut2 := c.Expect(MatchResponse())
	_, ok = fut2.Cancel()
	assert.False(t, ok)
	c.Deliver(resetRsp)
	assert.Equal(t, 1, c.Pending())
}

func TestCorrelator_Drain(t *testing.T) {
	t.Parallel()

	c := NewCorrelator(16)
	for range 3 {
		c.Deliver(ctsNtf)
	}
	got := c.Drain(context.Background(), 5, 20*time.Millisecond)
	assert.Equal(t, 3, got)
	assert.Zero(t, c.Pending())
}

func TestCorrelator_FlushAndClose(t *testing.T) {
	t.Parallel()

	c := NewCorrelator(4)
	c.Deliver(resetRsp)
	c.Deliver(resetNtf)
	assert.Equal(t, 2, c.Flush())
	assert.Zero(t, c.Pending())

	fut := c.Expect(nil)
	c.Close()
	_, ok := fut.Wait(context.Background(), time.Second)
	assert.False(t, ok)

	c.Deliver(resetRsp)
	assert.Zero(t, c.Pending(), "deliveries after close are ignored")
	c.Close()
}

func TestCorrelator_ConcurrentDelivery(t *testing.T) {
	t.Parallel()

	const producers, perProducer = 4, 25
	c := NewCorrelator(producers * perProducer)

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := range perProducer {
				c.Deliver(NewNotification(GIDProprietary, OIDPropCTS, byte(p), byte(i)))
			}
		}(p)
	}

	received := 0
	for received < producers*perProducer {
		if _, ok := c.Await(context.Background(), time.Second); !ok {
			break
		}
		received++
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, received)
	assert.Zero(t, c.Overflow())
}

func TestMatchers(t *testing.T) {
	t.Parallel()

	tests := []struct {
		match Matcher
		frame Frame
		name  string
		want  bool
	}{
		{name: "any", match: MatchAny(), frame: ctsNtf, want: true},
		{name: "response", match: MatchResponse(), frame: resetRsp, want: true},
		{name: "response rejects notification", match: MatchResponse(), frame: resetNtf, want: false},
		{name: "response to reset", match: MatchResponseTo(CoreReset(true)), frame: resetRsp, want: true},
		{name: "response to other opcode", match: MatchResponseTo(CoreInit(Version20)), frame: resetRsp, want: false},
		{name: "notification opcode", match: MatchNotification(GIDCore, OIDCoreReset), frame: resetNtf, want: true},
		{name: "notification wrong gid", match: MatchNotification(GIDRF, OIDCoreReset), frame: resetNtf, want: false},
		{name: "data on conn", match: MatchData(1), frame: MustHex("01 00 01 AA"), want: true},
		{name: "data on other conn", match: MatchData(2), frame: MustHex("01 00 01 AA"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.match(tt.frame))
		})
	}
}
