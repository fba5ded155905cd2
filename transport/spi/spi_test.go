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

package spi

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"periph.io/x/conn/v3/gpio"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/internal/frame"
	virt "github.com/ZaparooProject/go-nci/internal/testing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// simSPI answers transfers the way a PN7160 in SPI mode does.
type simSPI struct {
	nfcc     *virt.NFCC
	rx       []byte
	prefixes []byte
	mu       sync.Mutex
}

func newSimSPI() *simSPI {
	return &simSPI{nfcc: virt.NewNFCC()}
}

func (s *simSPI) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefixes = append(s.prefixes, w[0])
	switch w[0] {
	case frame.SPIWritePrefix:
		for _, reply := range s.nfcc.Handle(w[1:]) {
			s.rx = append(s.rx, reply...)
		}
	case frame.SPIReadPrefix:
		r[0] = 0x00
		n := copy(r[1:], s.rx)
		s.rx = s.rx[n:]
		for i := n + 1; i < len(r); i++ {
			r[i] = 0xFF
		}
	}
	return nil
}

func (s *simSPI) Out(l gpio.Level) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l == gpio.High {
		s.nfcc.PowerOn()
		s.rx = nil
	}
	return nil
}

func (s *simSPI) initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nfcc.Initialized()
}

func TestSPI_ResetAndInit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sim := newSimSPI()
	h := New("SPI0.0", withConn(sim, nil, nil))
	assert.Equal(t, nci.BackendSPI, h.Backend())

	s := nci.NewSession(h, nci.WithCallbackTimeout(time.Second), nci.WithEventTimeout(time.Second))
	require.NoError(t, s.Open(ctx))
	defer func() { _ = s.Close(ctx, nci.CloseDisable) }()

	rec := nci.NewRecorder("reset_and_init")
	s.ResetAndInit(ctx, rec)
	assert.False(t, rec.Failed(), "%v", rec.Failures())
	assert.True(t, sim.initialized())

	sim.mu.Lock()
	defer sim.mu.Unlock()
	assert.Contains(t, sim.prefixes, byte(frame.SPIWritePrefix))
	assert.Contains(t, sim.prefixes, byte(frame.SPIReadPrefix))
}

func TestSPI_PowerCycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	sim := newSimSPI()
	s := nci.NewSession(New("SPI0.0", withConn(sim, nil, sim)),
		nci.WithCallbackTimeout(time.Second), nci.WithEventTimeout(time.Second))
	require.NoError(t, s.Open(ctx))
	defer func() { _ = s.Close(ctx, nci.CloseDisable) }()

	rec := nci.NewRecorder("power_cycle")
	s.ResetAndInit(ctx, rec)
	require.True(t, sim.initialized())

	require.NoError(t, s.PowerCycle(ctx))
	assert.False(t, sim.initialized())
}

func TestLink_WritePrefixesFrame(t *testing.T) {
	t.Parallel()

	var got []byte
	l := &link{conn: connFunc(func(w, _ []byte) error {
		got = append([]byte(nil), w...)
		return nil
	}), closePort: func() error { return nil }}

	n, err := l.Write([]byte{0x20, 0x00, 0x01, 0x01})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, []byte{0x7F, 0x20, 0x00, 0x01, 0x01}, got)
}

type connFunc func(w, r []byte) error

func (f connFunc) Tx(w, r []byte) error { return f(w, r) }
