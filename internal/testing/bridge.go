// go-nci
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-nci.
//
// go-nci is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-nci is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-nci; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package testing

import (
	"io"
	"math/rand/v2"
	"sync"
	"time"
)

// usbPacket is the largest bulk transfer of a full-speed USB bridge.
const usbPacket = 64

// BridgeConfig describes how badly a USB-UART bridge mangles the receive
// path. The zero value passes bytes through untouched.
type BridgeConfig struct {
	// Latency is the upper bound of a random delay before each read.
	Latency time.Duration
	// Stall pauses once, after StallAt bytes have been delivered. Reads
	// before that never cross StallAt, so a stall can land inside a header.
	Stall   time.Duration
	StallAt int
	// MinChunk is the smallest fragment Fragment cuts a read into.
	MinChunk int
	Seed     uint64
	// Fragment cuts every read to a random length.
	Fragment bool
	// USBPackets ends reads on 64-byte bulk transfer boundaries.
	USBPackets bool
}

// Bridge sits between a HAL and a byte stream the way an FTDI or CH340
// bridge sits between the host and an NFCC UART. Writes pass straight
// through; reads come back late and split.
type Bridge struct {
	link      io.ReadWriter
	rng       *rand.Rand
	pending   []byte
	cfg       BridgeConfig
	delivered int
	mu        sync.Mutex
	stalled   bool
}

// NewBridge wraps link. A zero Seed picks a random one.
func NewBridge(link io.ReadWriter, cfg BridgeConfig) *Bridge {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	cfg.MinChunk = max(cfg.MinChunk, 1)
	return &Bridge{
		link: link,
		cfg:  cfg,
		rng:  rand.New(rand.NewPCG(seed, seed>>1|1)), //nolint:gosec // fault injection only
	}
}

func (b *Bridge) Write(p []byte) (int, error) {
	return b.link.Write(p) //nolint:wrapcheck // transparent
}

// fill tops up pending from the link; it reports false when the link had
// nothing to give.
func (b *Bridge) fill() (bool, error) {
	if len(b.pending) > 0 {
		return true, nil
	}
	var tmp [256]byte
	n, err := b.link.Read(tmp[:])
	if err != nil {
		return false, err //nolint:wrapcheck // transparent
	}
	b.pending = append(b.pending, tmp[:n]...)
	return n > 0, nil
}

// cut decides how many of n available bytes the next read hands out.
func (b *Bridge) cut(n int) int {
	if b.cfg.StallAt > 0 && !b.stalled {
		left := b.cfg.StallAt - b.delivered
		if left <= 0 {
			b.stalled = true
			time.Sleep(b.cfg.Stall)
		} else {
			n = min(n, left)
		}
	}
	if b.cfg.USBPackets {
		n = min(n, usbPacket-b.delivered%usbPacket)
	}
	if b.cfg.Fragment && n > b.cfg.MinChunk {
		n = b.cfg.MinChunk + b.rng.IntN(n-b.cfg.MinChunk+1)
	}
	return n
}

func (b *Bridge) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.Latency > 0 {
		time.Sleep(time.Duration(b.rng.Int64N(int64(b.cfg.Latency) + 1)))
	}
	ok, err := b.fill()
	if !ok {
		return 0, err
	}
	n := copy(p, b.pending[:b.cut(min(len(b.pending), len(p)))])
	b.pending = b.pending[n:]
	b.delivered += n
	return n, nil
}

// Rearm lets the stall fire again.
func (b *Bridge) Rearm() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delivered = 0
	b.stalled = false
}

// Flush drops bytes the bridge already took from the link, as unplugging
// the controller would.
func (b *Bridge) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = nil
}
