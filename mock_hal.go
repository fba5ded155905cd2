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

package nci

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/ZaparooProject/go-nci/internal/syncutil"
)

// Operations MockHAL.SetError can fail.
const (
	MockOpOpen       = "open"
	MockOpWrite      = "write"
	MockOpClose      = "close"
	MockOpPowerCycle = "powercycle"
)

// MockHAL is a scripted HAL for unit tests. Each written command is looked up
// by its exact bytes and the scripted frames are delivered back, immediately
// or after SetDelay. Lifecycle events are emitted synchronously.
type MockHAL struct {
	cb           Callbacks
	responses    map[string][][]byte
	errs         map[string]error
	callCount    map[string]int
	dropped      map[Event]bool
	writes       [][]byte
	transitCalls []string
	eseCalls     []EseUpdateState
	delay        time.Duration
	shortWrite   int
	opens        int
	openStatus   EventStatus
	mu           syncutil.RWMutex
	open         bool
	vendorResult bool
}

// NewMockHAL creates a mock whose vendor calls succeed.
func NewMockHAL() *MockHAL {
	return &MockHAL{
		responses:    make(map[string][][]byte),
		errs:         make(map[string]error),
		callCount:    make(map[string]int),
		dropped:      make(map[Event]bool),
		vendorResult: true,
	}
}

func mockKey(b []byte) string {
	return hex.EncodeToString(b)
}

// Open records the callbacks and emits OPEN_CPLT.
func (m *MockHAL) Open(_ context.Context, cb Callbacks) error {
	m.mu.Lock()
	m.opens++
	if err := m.errs[MockOpOpen]; err != nil {
		m.mu.Unlock()
		return err
	}
	m.cb = cb
	m.open = true
	status := m.openStatus
	drop := m.dropped[EventOpenComplete]
	m.mu.Unlock()

	if !drop {
		cb.Emit(EventOpenComplete, status)
	}
	return nil
}

// Write logs data and plays back the scripted response frames.
func (m *MockHAL) Write(_ context.Context, data []byte) (int, error) {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return 0, NewNotOpenError("Write", "mock")
	}
	if err := m.errs[MockOpWrite]; err != nil {
		m.mu.Unlock()
		return 0, err
	}
	key := mockKey(data)
	m.writes = append(m.writes, append([]byte(nil), data...))
	m.callCount[key]++
	frames := m.responses[key]
	delay := m.delay
	cb := m.cb
	n := len(data) - m.shortWrite
	if n < 0 {
		n = 0
	}
	m.mu.Unlock()

	deliver := func() {
		for _, f := range frames {
			cb.Deliver(append([]byte(nil), f...))
		}
	}
	if len(frames) > 0 {
		if delay > 0 {
			time.AfterFunc(delay, deliver)
		} else {
			deliver()
		}
	}
	return n, nil
}

// Close emits CLOSE_CPLT.
func (m *MockHAL) Close(_ context.Context, _ CloseType) error {
	m.mu.Lock()
	if err := m.errs[MockOpClose]; err != nil {
		m.mu.Unlock()
		return err
	}
	m.open = false
	cb := m.cb
	drop := m.dropped[EventCloseComplete]
	m.mu.Unlock()

	if !drop {
		cb.Emit(EventCloseComplete, EventStatusOK)
	}
	return nil
}

// PowerCycle emits a fresh OPEN_CPLT.
func (m *MockHAL) PowerCycle(_ context.Context) error {
	m.mu.Lock()
	if err := m.errs[MockOpPowerCycle]; err != nil {
		m.mu.Unlock()
		return err
	}
	cb := m.cb
	status := m.openStatus
	drop := m.dropped[EventOpenComplete]
	m.mu.Unlock()

	if !drop {
		cb.Emit(EventOpenComplete, status)
	}
	return nil
}

// Backend returns BackendMock.
func (*MockHAL) Backend() Backend {
	return BackendMock
}

// SetTransitConfig records config and returns the scripted vendor result.
func (m *MockHAL) SetTransitConfig(_ context.Context, config string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitCalls = append(m.transitCalls, config)
	return m.vendorResult, nil
}

// SetEseUpdateState records state and returns the scripted vendor result.
func (m *MockHAL) SetEseUpdateState(_ context.Context, state EseUpdateState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eseCalls = append(m.eseCalls, state)
	return m.vendorResult, nil
}

// SetResponse scripts the frames delivered after cmd is written.
func (m *MockHAL) SetResponse(cmd []byte, frames ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[mockKey(cmd)] = frames
}

// SetError makes op fail with err.
func (m *MockHAL) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[op] = err
}

// ClearError removes a scripted failure.
func (m *MockHAL) ClearError(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.errs, op)
}

// SetDelay delays scripted responses.
func (m *MockHAL) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetShortWrite makes Write report n fewer bytes than it was given.
func (m *MockHAL) SetShortWrite(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shortWrite = n
}

// SetOpenStatus sets the status reported with OPEN_CPLT.
func (m *MockHAL) SetOpenStatus(s EventStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openStatus = s
}

// DropEvent suppresses e so waits for it time out.
func (m *MockHAL) DropEvent(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropped[e] = true
}

// SetVendorResult sets what the vendor calls return.
func (m *MockHAL) SetVendorResult(ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vendorResult = ok
}

// Inject delivers an unsolicited frame as if the controller sent it.
func (m *MockHAL) Inject(f []byte) {
	m.mu.RLock()
	cb := m.cb
	m.mu.RUnlock()
	cb.Deliver(append([]byte(nil), f...))
}

// Writes returns every frame written so far.
func (m *MockHAL) Writes() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]byte, len(m.writes))
	for i, w := range m.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// GetCallCount returns how often cmd was written.
func (m *MockHAL) GetCallCount(cmd []byte) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount[mockKey(cmd)]
}

// OpenCount returns how often Open was called, failed attempts included.
func (m *MockHAL) OpenCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opens
}

// TransitCalls returns the transit configs passed to SetTransitConfig.
func (m *MockHAL) TransitCalls() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.transitCalls...)
}

// EseCalls returns the states passed to SetEseUpdateState.
func (m *MockHAL) EseCalls() []EseUpdateState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]EseUpdateState(nil), m.eseCalls...)
}

// IsOpen reports whether Open succeeded and Close has not run.
func (m *MockHAL) IsOpen() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.open
}

// Reset clears scripts, errors and logs.
func (m *MockHAL) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = make(map[string][][]byte)
	m.errs = make(map[string]error)
	m.callCount = make(map[string]int)
	m.dropped = make(map[Event]bool)
	m.writes = nil
	m.opens = 0
	m.transitCalls = nil
	m.eseCalls = nil
	m.delay = 0
	m.shortWrite = 0
	m.openStatus = EventStatusOK
	m.vendorResult = true
}

var (
	_ HAL             = (*MockHAL)(nil)
	_ VendorExtension = (*MockHAL)(nil)
)
