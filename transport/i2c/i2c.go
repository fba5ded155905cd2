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

// Package i2c provides the NCI HAL backend for controllers on an I2C bus,
// such as the NXP PN7160 and PN7150, with optional VEN and IRQ lines.
package i2c

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/internal/frame"
	"github.com/ZaparooProject/go-nci/transport"
)

const (
	// DefaultAddress is the 7-bit address of NXP controllers with both
	// address pins low.
	DefaultAddress = 0x28

	// Max clock frequency (400 kHz).
	maxClockFreq = 400 * physic.KiloHertz

	// Controllers NACK the first write after waking from standby.
	writeRetryDelay = 5 * time.Millisecond
)

type config struct {
	openBus func(name string) (conn.Conn, func() error, error)
	irq     transport.IRQPin
	ven     transport.VENPin
	irqName string
	venName string
	addr    uint16
}

// Option configures the I2C backend.
type Option func(*config)

// WithAddress overrides the device address.
func WithAddress(addr uint16) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// WithIRQ names the GPIO wired to IRQ, as known to gpioreg (e.g. "GPIO23").
// Without it the backend polls the bus.
func WithIRQ(name string) Option {
	return func(c *config) {
		c.irqName = name
	}
}

// WithVEN names the GPIO wired to VEN. Without it PowerCycle is unsupported.
func WithVEN(name string) Option {
	return func(c *config) {
		c.venName = name
	}
}

// withDevice bypasses periph's registries; tests use it to attach a
// simulated controller.
func withDevice(dev conn.Conn, irq transport.IRQPin, ven transport.VENPin) Option {
	return func(c *config) {
		c.openBus = func(string) (conn.Conn, func() error, error) {
			return dev, func() error { return nil }, nil
		}
		c.irq = irq
		c.ven = ven
	}
}

// ParsePath splits a detection path such as "/dev/i2c-1:0x28" into the bus
// name and the address. A path without an address yields DefaultAddress.
func ParsePath(path string) (bus string, addr uint16, err error) {
	bus, rest, found := strings.Cut(path, ":")
	if !found || rest == "" {
		return bus, DefaultAddress, nil
	}
	v, err := strconv.ParseUint(rest, 0, 7)
	if err != nil {
		return "", 0, fmt.Errorf("%w: i2c address %q", nci.ErrInvalidParameter, rest)
	}
	return bus, uint16(v), nil
}

// New returns a closed HAL for busName. An address suffix on busName is
// honoured unless WithAddress is given.
func New(busName string, opts ...Option) *transport.HAL {
	bus, addr, parseErr := ParsePath(busName)
	cfg := &config{addr: addr}
	cfg.openBus = func(string) (conn.Conn, func() error, error) {
		return openBus(bus, cfg.addr)
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return transport.NewHAL(nci.BackendI2C, busName, func(_ context.Context) (transport.Link, error) {
		if parseErr != nil {
			return nil, parseErr
		}
		return dial(busName, cfg)
	})
}

func openBus(name string, addr uint16) (conn.Conn, func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: i2c bus %s: %w", nci.ErrDeviceNotFound, name, err)
	}
	// Ignore error, continue with default speed
	_ = bus.SetSpeed(maxClockFreq)
	return &i2c.Dev{Addr: addr, Bus: bus}, bus.Close, nil
}

func dial(name string, cfg *config) (transport.Link, error) {
	if cfg.irq == nil && cfg.ven == nil {
		irq, ven, err := transport.OpenGPIO(cfg.irqName, cfg.venName)
		if err != nil {
			return nil, err
		}
		cfg.irq, cfg.ven = irq, ven
	}

	dev, closeBus, err := cfg.openBus(name)
	if err != nil {
		return nil, err
	}
	return &link{dev: dev, closeBus: closeBus, irq: cfg.irq, ven: cfg.ven, name: name}, nil
}

type link struct {
	dev      conn.Conn
	closeBus func() error
	irq      transport.IRQPin
	ven      transport.VENPin
	name     string
}

// ReadFrame reads one frame as two transfers, header then payload, the way
// NXP controllers expect it.
func (l *link) ReadFrame() ([]byte, error) {
	if l.irq != nil && !transport.AwaitIRQ(l.irq) {
		return nil, nil
	}

	hdr := frame.GetBuffer(frame.HeaderSize)
	defer frame.PutBuffer(hdr)
	if err := l.dev.Tx(nil, hdr); err != nil {
		if l.irq == nil {
			// A controller with nothing to say may NACK.
			return nil, nil
		}
		return nil, fmt.Errorf("%w: header: %w", nci.ErrHALRead, err)
	}
	if l.irq == nil && transport.IdleHeader(hdr) {
		return nil, nil
	}

	h, err := frame.ParseHeader(hdr)
	if err != nil {
		return nil, err
	}
	out := make([]byte, h.FrameLen())
	copy(out, hdr)
	if h.Length > 0 {
		if err := l.dev.Tx(nil, out[frame.HeaderSize:]); err != nil {
			return nil, fmt.Errorf("%w: payload: %w", nci.ErrHALRead, err)
		}
	}
	return out, nil
}

// Write sends p in one transfer, retrying once if the controller was asleep.
func (l *link) Write(p []byte) (int, error) {
	err := l.dev.Tx(p, nil)
	if err != nil {
		time.Sleep(writeRetryDelay)
		err = l.dev.Tx(p, nil)
	}
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (l *link) Close() error {
	return l.closeBus()
}

// PowerCycle toggles VEN.
func (l *link) PowerCycle(ctx context.Context) error {
	return transport.ToggleVEN(ctx, l.ven, l.name)
}
