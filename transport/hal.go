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

// Package transport holds the pieces shared by the hardware HAL backends:
// a read loop that turns a physical link into OnData callbacks, and the
// OPEN_CPLT/CLOSE_CPLT bookkeeping around it. The uart, i2c, spi and
// chardev subpackages only supply a Link.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/internal/frame"
	"github.com/ZaparooProject/go-nci/internal/syncutil"
)

// Link is one open connection to a controller.
type Link interface {
	// ReadFrame returns the next complete NCI frame, or nil with a nil
	// error when nothing arrived within the link's poll window.
	ReadFrame() ([]byte, error)
	// Write sends one frame and reports how many bytes left the host.
	Write(p []byte) (int, error)
	Close() error
}

// PowerCycler is implemented by links wired to the controller's VEN line.
type PowerCycler interface {
	PowerCycle(ctx context.Context) error
}

// Dialer opens a Link. It is called on every HAL Open.
type Dialer func(ctx context.Context) (Link, error)

// HAL adapts a Link to nci.HAL. Frames are delivered from a single read
// goroutine, in the order the controller sent them.
type HAL struct {
	dial    Dialer
	link    Link
	cancel  context.CancelFunc
	group   *errgroup.Group
	cb      nci.Callbacks
	backend nci.Backend
	port    string
	mu      syncutil.Mutex
}

// NewHAL creates a closed HAL for the given backend and port name.
func NewHAL(backend nci.Backend, port string, dial Dialer) *HAL {
	return &HAL{backend: backend, port: port, dial: dial}
}

// Backend names the kind of link.
func (h *HAL) Backend() nci.Backend {
	return h.backend
}

// Port is the device path or bus name the HAL was created for.
func (h *HAL) Port() string {
	return h.port
}

// Open dials the link, starts the read loop and reports OPEN_CPLT.
func (h *HAL) Open(ctx context.Context, cb nci.Callbacks) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.link != nil {
		return nil
	}

	link, err := h.dial(ctx)
	if err != nil {
		if nci.IsFatal(err) {
			return nci.NewHALError("Open", h.port, err, nci.ErrorTypePermanent)
		}
		return nci.NewHALError("Open", h.port, fmt.Errorf("%w: %w", nci.ErrHALOpenFailed, err), nci.ErrorTypeTransient)
	}

	h.startLocked(link, cb)
	nci.Debugf("%s: opened %s", h.backend, h.port)
	cb.Emit(nci.EventOpenComplete, nci.EventStatusOK)
	return nil
}

func (h *HAL) startLocked(link Link, cb nci.Callbacks) {
	loopCtx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(loopCtx)
	h.link = link
	h.cb = cb
	h.cancel = cancel
	h.group = g
	g.Go(func() error {
		return h.readLoop(gctx, link, cb)
	})
}

// stopLocked ends the read loop. The link stays open.
func (h *HAL) stopLocked() error {
	if h.cancel == nil {
		return nil
	}
	h.cancel()
	err := h.group.Wait()
	h.cancel = nil
	h.group = nil
	return err
}

func (h *HAL) readLoop(ctx context.Context, link Link, cb nci.Callbacks) error {
	for ctx.Err() == nil {
		f, err := link.ReadFrame()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			if nci.IsFatal(err) {
				nci.Debugf("%s: read loop stopped: %v", h.backend, err)
				cb.Emit(nci.EventError, nci.EventStatusTransportError)
				return fmt.Errorf("%s read: %w", h.port, err)
			}
			if errors.Is(err, frame.ErrLengthMismatch) || errors.Is(err, frame.ErrShortHeader) {
				nci.Debugf("%s: dropped corrupt frame: %v", h.backend, err)
			} else {
				nci.Debugf("%s: read error: %v", h.backend, err)
			}
			_ = Sleep(ctx, nci.ReadPollInterval)
			continue
		}
		if f == nil {
			_ = Sleep(ctx, nci.ReadPollInterval)
			continue
		}
		cb.Deliver(f)
	}
	return nil
}

// Write sends one frame. A partial write is returned as-is together with a
// short write error so the caller can report the byte count.
func (h *HAL) Write(_ context.Context, data []byte) (int, error) {
	h.mu.Lock()
	link := h.link
	h.mu.Unlock()
	if link == nil {
		return 0, nci.NewNotOpenError("Write", h.port)
	}
	if len(data) > frame.MaxFrameSize {
		return 0, nci.NewDataTooLargeError("Write", h.port)
	}

	n, err := link.Write(data)
	if err != nil {
		if nci.IsFatal(err) {
			return n, nci.NewHALError("Write", h.port, err, nci.ErrorTypePermanent)
		}
		return n, nci.NewHALError("Write", h.port, fmt.Errorf("%w: %w", nci.ErrHALWrite, err), nci.ErrorTypeTransient)
	}
	if n < len(data) {
		return n, nci.NewShortWriteError("Write", h.port, n, len(data))
	}
	return n, nil
}

// Close stops the read loop, closes the link and reports CLOSE_CPLT. The
// close type only matters to vendor HALs; a bare link has nothing to keep
// powered.
func (h *HAL) Close(_ context.Context, ct nci.CloseType) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.link == nil {
		return nil
	}

	loopErr := h.stopLocked()
	closeErr := h.link.Close()
	cb := h.cb
	h.link = nil
	h.cb = nci.Callbacks{}

	nci.Debugf("%s: closed %s (%s)", h.backend, h.port, ct)
	if loopErr != nil {
		nci.Debugf("%s: read loop had failed: %v", h.backend, loopErr)
	}
	if closeErr != nil {
		cb.Emit(nci.EventCloseComplete, nci.EventStatusFailed)
		return fmt.Errorf("close %s: %w", h.port, closeErr)
	}
	cb.Emit(nci.EventCloseComplete, nci.EventStatusOK)
	return nil
}

// PowerCycle toggles VEN through the link and reports OPEN_CPLT. The read
// loop is paused across the reset so no half-received frame survives it.
func (h *HAL) PowerCycle(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.link == nil {
		return nci.NewNotOpenError("PowerCycle", h.port)
	}
	pc, ok := h.link.(PowerCycler)
	if !ok {
		return nci.NewHALError("PowerCycle", h.port, nci.ErrDeviceNotSupported, nci.ErrorTypePermanent)
	}

	link, cb := h.link, h.cb
	if err := h.stopLocked(); err != nil {
		nci.Debugf("%s: read loop had failed: %v", h.backend, err)
	}
	if err := pc.PowerCycle(ctx); err != nil {
		h.startLocked(link, cb)
		cb.Emit(nci.EventOpenComplete, nci.EventStatusFailed)
		return fmt.Errorf("power cycle %s: %w", h.port, err)
	}
	h.startLocked(link, cb)
	cb.Emit(nci.EventOpenComplete, nci.EventStatusOK)
	return nil
}

// Sleep waits for d unless ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IdleHeader reports whether a polled header read returned the bus idle
// pattern rather than a frame: all ones, or all zeros on some boards.
func IdleHeader(h []byte) bool {
	return (h[0] == 0xFF && h[1] == 0xFF && h[2] == 0xFF) ||
		(h[0] == 0x00 && h[1] == 0x00 && h[2] == 0x00)
}
