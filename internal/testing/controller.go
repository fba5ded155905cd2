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

package testing

import (
	"context"
	"sync"
	"time"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/internal/syncutil"
)

// CommandLogEntry records a frame written to the virtual controller.
type CommandLogEntry struct {
	Timestamp time.Time
	Frame     []byte
}

type outbound struct {
	data  []byte
	event nci.Event
	delay time.Duration
	isEvt bool
	last  bool
}

// VirtualController is an nci.HAL backed by NFCC. Replies are delivered from
// a goroutine of its own, like a vendor HAL callback thread, so tests see
// the same asynchrony as on hardware. Fault injection hooks cover the cases
// the harness has to survive: lost frames, late frames, unsolicited
// notifications and short writes.
type VirtualController struct {
	nfcc         *NFCC
	out          chan outbound
	done         chan struct{}
	cb           nci.Callbacks
	openErr      error
	suppressed   map[nci.Event]bool
	CommandLog   []CommandLogEntry
	unsolicited  [][]byte
	eseStates    []nci.EseUpdateState
	transitCalls []string
	latency      time.Duration
	dropNext     int
	shortWrite   int
	openStatus   nci.EventStatus
	wg           sync.WaitGroup
	mu           syncutil.Mutex
	open         bool
	vendorResult bool
}

// NewVirtualController creates a closed HAL around a fresh NCI 2.0 NFCC.
func NewVirtualController() *VirtualController {
	return &VirtualController{
		nfcc:         NewNFCC(),
		suppressed:   make(map[nci.Event]bool),
		vendorResult: true,
	}
}

// NFCC exposes the simulated controller for state assertions and setup.
// Callers must not use it concurrently with Write.
func (v *VirtualController) NFCC() *NFCC {
	return v.nfcc
}

// Open starts the callback goroutine and reports OPEN_CPLT.
func (v *VirtualController) Open(_ context.Context, cb nci.Callbacks) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.openErr != nil {
		return v.openErr
	}
	if v.open {
		return nil
	}
	v.cb = cb
	v.out = make(chan outbound, 512)
	v.done = make(chan struct{})
	v.open = true
	v.nfcc.PowerOn()

	v.wg.Add(1)
	go v.deliverLoop(v.out, v.done, cb)

	v.enqueueEventLocked(nci.EventOpenComplete)
	return nil
}

func (v *VirtualController) deliverLoop(out <-chan outbound, done chan<- struct{}, cb nci.Callbacks) {
	defer v.wg.Done()
	defer close(done)
	for item := range out {
		if item.delay > 0 {
			time.Sleep(item.delay)
		}
		if item.isEvt {
			v.mu.Lock()
			status := v.openStatus
			v.mu.Unlock()
			if item.event != nci.EventOpenComplete {
				status = nci.EventStatusOK
			}
			cb.Emit(item.event, status)
		} else {
			cb.Deliver(item.data)
		}
		if item.last {
			return
		}
	}
}

func (v *VirtualController) enqueueEventLocked(e nci.Event) {
	if v.suppressed[e] {
		return
	}
	v.out <- outbound{isEvt: true, event: e}
}

// Write hands data to the NFCC and queues its replies.
func (v *VirtualController) Write(_ context.Context, data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.open {
		return 0, nci.NewNotOpenError("Write", "virtual")
	}

	v.CommandLog = append(v.CommandLog, CommandLogEntry{
		Timestamp: time.Now(),
		Frame:     append([]byte(nil), data...),
	})

	n := len(data) - v.shortWrite
	if n < 0 {
		n = 0
	}
	if v.shortWrite > 0 {
		// The controller never saw a complete frame.
		return n, nil
	}

	for _, u := range v.unsolicited {
		v.out <- outbound{data: u}
	}
	v.unsolicited = nil

	for i, reply := range v.nfcc.Handle(data) {
		if v.dropNext > 0 {
			v.dropNext--
			continue
		}
		item := outbound{data: reply}
		if i == 0 {
			item.delay = v.latency
		}
		v.out <- item
	}
	return n, nil
}

// Close reports CLOSE_CPLT and stops the callback goroutine once every
// queued reply has been delivered.
func (v *VirtualController) Close(_ context.Context, _ nci.CloseType) error {
	v.mu.Lock()
	if !v.open {
		v.mu.Unlock()
		return nil
	}
	v.open = false
	item := outbound{last: true}
	if v.suppressed[nci.EventCloseComplete] {
		item.data = nil
		item.isEvt = false
	} else {
		item.isEvt = true
		item.event = nci.EventCloseComplete
	}
	out, done := v.out, v.done
	v.mu.Unlock()

	if item.isEvt {
		out <- item
	} else {
		close(out)
	}
	<-done
	v.wg.Wait()
	return nil
}

// PowerCycle resets the NFCC and reports OPEN_CPLT again.
func (v *VirtualController) PowerCycle(_ context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.open {
		return nci.NewNotOpenError("PowerCycle", "virtual")
	}
	v.nfcc.PowerOn()
	v.enqueueEventLocked(nci.EventOpenComplete)
	return nil
}

// Backend returns nci.BackendVirtual.
func (*VirtualController) Backend() nci.Backend {
	return nci.BackendVirtual
}

// SetTransitConfig records config and returns the scripted vendor result.
func (v *VirtualController) SetTransitConfig(_ context.Context, config string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.transitCalls = append(v.transitCalls, config)
	return v.vendorResult, nil
}

// SetEseUpdateState records state and returns the scripted vendor result.
func (v *VirtualController) SetEseUpdateState(_ context.Context, state nci.EseUpdateState) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.eseStates = append(v.eseStates, state)
	return v.vendorResult, nil
}

// SetLatency delays the first reply to every command.
func (v *VirtualController) SetLatency(d time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.latency = d
}

// DropNext discards the next n replies.
func (v *VirtualController) DropNext(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dropNext = n
}

// InjectBeforeNext queues an unsolicited frame ahead of the next reply.
func (v *VirtualController) InjectBeforeNext(frame []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.unsolicited = append(v.unsolicited, append([]byte(nil), frame...))
}

// SetShortWrite makes Write accept n fewer bytes and drop the frame.
func (v *VirtualController) SetShortWrite(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.shortWrite = n
}

// FailOpen makes Open return err.
func (v *VirtualController) FailOpen(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.openErr = err
}

// SetOpenStatus sets the status reported with OPEN_CPLT.
func (v *VirtualController) SetOpenStatus(s nci.EventStatus) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.openStatus = s
}

// Suppress stops e from being reported.
func (v *VirtualController) Suppress(e nci.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.suppressed[e] = true
}

// SetVendorResult sets what the vendor calls return.
func (v *VirtualController) SetVendorResult(ok bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.vendorResult = ok
}

// EseStates returns the states passed to SetEseUpdateState.
func (v *VirtualController) EseStates() []nci.EseUpdateState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]nci.EseUpdateState(nil), v.eseStates...)
}

// TransitCalls returns the configs passed to SetTransitConfig.
func (v *VirtualController) TransitCalls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.transitCalls...)
}

// IsOpen reports whether the HAL is open.
func (v *VirtualController) IsOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.open
}

// HasCommand reports whether a frame starting with prefix was written.
func (v *VirtualController) HasCommand(prefix ...byte) bool {
	return v.GetCommandCount(prefix...) > 0
}

// GetCommandCount counts written frames starting with prefix.
func (v *VirtualController) GetCommandCount(prefix ...byte) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	count := 0
	for _, e := range v.CommandLog {
		if len(e.Frame) >= len(prefix) && string(e.Frame[:len(prefix)]) == string(prefix) {
			count++
		}
	}
	return count
}

// ClearCommandLog empties the command log.
func (v *VirtualController) ClearCommandLog() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.CommandLog = v.CommandLog[:0]
}

var (
	_ nci.HAL             = (*VirtualController)(nil)
	_ nci.VendorExtension = (*VirtualController)(nil)
)
