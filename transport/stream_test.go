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

package transport

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-nci"
	virt "github.com/ZaparooProject/go-nci/internal/testing"
)

// nopCloser lets a test io.ReadWriter stand in for a port.
type nopCloser struct{ io.ReadWriter }

func (nopCloser) Close() error { return nil }

func readN(t *testing.T, l *StreamLink, want int) []nci.Frame {
	t.Helper()
	var got []nci.Frame
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < want {
		require.True(t, time.Now().Before(deadline), "only %d of %d frames", len(got), want)
		f, err := l.ReadFrame()
		require.NoError(t, err)
		if f != nil {
			got = append(got, f)
		}
	}
	return got
}

func TestStreamLink_ReassemblesFragmentedStream(t *testing.T) {
	t.Parallel()

	wire := virt.NewWire(nil)
	conn := virt.NewBridge(wire, virt.BridgeConfig{Fragment: true, MinChunk: 1, Seed: 3})
	l := NewStreamLink(nopCloser{conn})

	_, err := l.Write(nci.CoreReset(true))
	require.NoError(t, err)
	_, err = l.Write(nci.CoreInit(nci.Version20))
	require.NoError(t, err)

	got := readN(t, l, 3)
	assert.Equal(t, nci.MustHex("40 00 01 00"), got[0])
	assert.Equal(t, nci.MTNotification, got[1].MT())
	assert.Equal(t, byte(0x41), got[2][0])
	assert.Equal(t, byte(0x01), got[2][1])
	assert.Zero(t, l.Pending())
}

func TestStreamLink_SeveralFramesInOneRead(t *testing.T) {
	t.Parallel()

	wire := virt.NewWire(nil)
	l := NewStreamLink(nopCloser{wire})
	wire.Inject(nci.MustHex("61 07 01 01 6F 22 02 00 00"))

	got := readN(t, l, 2)
	assert.Equal(t, nci.MustHex("61 07 01 01"), got[0])
	assert.Equal(t, nci.MustHex("6F 22 02 00 00"), got[1])

	f, err := l.ReadFrame()
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestStreamLink_ResetFramingDropsPartialFrame(t *testing.T) {
	t.Parallel()

	wire := virt.NewWire(nil)
	l := NewStreamLink(nopCloser{wire})
	wire.Inject([]byte{0x40, 0x00, 0x01})

	f, err := l.ReadFrame()
	require.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, 3, l.Pending())

	l.ResetFraming()
	assert.Zero(t, l.Pending())

	wire.Inject(nci.MustHex("40 00 01 00"))
	got := readN(t, l, 1)
	assert.Equal(t, nci.MustHex("40 00 01 00"), got[0])
}

type failingReader struct {
	data []byte
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, r.err
}

func (*failingReader) Write(p []byte) (int, error) { return len(p), nil }

func TestStreamLink_FrameBeforeError(t *testing.T) {
	t.Parallel()

	boom := errors.New("port vanished")
	l := NewStreamLink(nopCloser{&failingReader{data: nci.MustHex("40 00 01 00"), err: boom}})

	f, err := l.ReadFrame()
	require.NoError(t, err, "a completed frame wins over the error")
	assert.Equal(t, []byte{0x40, 0x00, 0x01, 0x00}, f)

	_, err = l.ReadFrame()
	require.ErrorIs(t, err, boom)
}

// A session behind a slow, fragmenting USB bridge sees the same controller
// as the virtual HAL does.
func TestHAL_SessionOverStream(t *testing.T) {
	t.Parallel()

	wire := virt.NewWire(nil)
	conn := virt.NewBridge(wire, virt.BridgeConfig{
		Latency:    2 * time.Millisecond,
		Stall:      20 * time.Millisecond,
		StallAt:    2,
		MinChunk:   1,
		Seed:       7,
		Fragment:   true,
		USBPackets: true,
	})
	h := NewHAL(nci.BackendUART, "sim", dialer(NewStreamLink(nopCloser{conn})))

	s := nci.NewSession(h, nci.WithCallbackTimeout(time.Second), nci.WithEventTimeout(time.Second))
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))

	rec := nci.NewRecorder("reset_and_init")
	s.ResetAndInit(ctx, rec)
	assert.False(t, rec.Failed(), "%v", rec.Failures())
	assert.True(t, wire.NFCC().Initialized())

	require.NoError(t, s.Close(ctx, nci.CloseDisable))
}
