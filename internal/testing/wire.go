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
	"errors"
	"sync"

	"github.com/ZaparooProject/go-nci/internal/frame"
)

// ErrWireClosed is returned by Wire after Close.
var ErrWireClosed = errors.New("wire closed")

// Wire exposes an NFCC as the raw byte stream a UART or character device
// would carry. Written bytes are split into frames and handled; replies are
// queued for Read. Read never blocks: an empty buffer returns 0, nil, the
// same as a serial port read timeout.
type Wire struct {
	nfcc     *NFCC
	splitter *frame.Splitter
	rx       []byte
	Writes   [][]byte
	mu       sync.Mutex
	closed   bool
}

// NewWire creates a wire around nfcc, or a fresh NFCC when nfcc is nil.
func NewWire(nfcc *NFCC) *Wire {
	if nfcc == nil {
		nfcc = NewNFCC()
	}
	return &Wire{nfcc: nfcc, splitter: frame.NewSplitter()}
}

// NFCC returns the controller behind the wire.
func (w *Wire) NFCC() *NFCC {
	return w.nfcc
}

func (w *Wire) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrWireClosed
	}
	for _, f := range w.splitter.Feed(p) {
		w.Writes = append(w.Writes, f)
		for _, reply := range w.nfcc.Handle(f) {
			w.rx = append(w.rx, reply...)
		}
	}
	return len(p), nil
}

func (w *Wire) Read(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return 0, ErrWireClosed
	}
	n := copy(p, w.rx)
	w.rx = w.rx[n:]
	return n, nil
}

// Inject queues raw bytes for Read as if the controller sent them unprompted.
func (w *Wire) Inject(b []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rx = append(w.rx, b...)
}

// PowerCycle resets the controller and drops anything in flight.
func (w *Wire) PowerCycle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nfcc.PowerOn()
	w.splitter.Reset()
	w.rx = nil
}

// Buffered reports how many reply bytes are waiting to be read.
func (w *Wire) Buffered() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.rx)
}

func (w *Wire) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}
