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

// Package spi provides the NCI HAL backend for NXP controllers in SPI mode.
// Every transfer starts with a direction byte: 0x7F for a host write and
// 0xFF for a host read.
package spi

import (
	"context"
	"fmt"
	"strings"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/internal/frame"
	"github.com/ZaparooProject/go-nci/transport"
)

const (
	// Default SPI settings
	defaultFreq = 7 * physic.MegaHertz
	mode        = spi.Mode0
)

// Conn is the part of spi.Conn the backend needs.
type Conn interface {
	Tx(w, r []byte) error
}

type config struct {
	openPort func(name string) (Conn, func() error, error)
	irq      transport.IRQPin
	ven      transport.VENPin
	irqName  string
	venName  string
	freq     physic.Frequency
}

// Option configures the SPI backend.
type Option func(*config)

// WithFrequency overrides the 7 MHz default clock.
func WithFrequency(f physic.Frequency) Option {
	return func(c *config) {
		c.freq = f
	}
}

// WithIRQ names the GPIO wired to IRQ. Without it the backend polls.
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

func withConn(c Conn, irq transport.IRQPin, ven transport.VENPin) Option {
	return func(cfg *config) {
		cfg.openPort = func(string) (Conn, func() error, error) {
			return c, func() error { return nil }, nil
		}
		cfg.irq = irq
		cfg.ven = ven
	}
}

// New returns a closed HAL for portName, a spireg name such as
// "/dev/spidev0.0" or "SPI0.0".
func New(portName string, opts ...Option) *transport.HAL {
	cfg := &config{freq: defaultFreq}
	cfg.openPort = func(name string) (Conn, func() error, error) {
		return openPort(name, cfg.freq)
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return transport.NewHAL(nci.BackendSPI, portName, func(_ context.Context) (transport.Link, error) {
		return dial(portName, cfg)
	})
}

func openPort(name string, freq physic.Frequency) (Conn, func() error, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	port, err := spireg.Open(strings.TrimSpace(name))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: spi port %s: %w", nci.ErrDeviceNotFound, name, err)
	}
	c, err := port.Connect(freq, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, nil, fmt.Errorf("failed to connect SPI: %w", err)
	}
	return c, port.Close, nil
}

func dial(name string, cfg *config) (transport.Link, error) {
	if cfg.irq == nil && cfg.ven == nil {
		irq, ven, err := transport.OpenGPIO(cfg.irqName, cfg.venName)
		if err != nil {
			return nil, err
		}
		cfg.irq, cfg.ven = irq, ven
	}
	c, closePort, err := cfg.openPort(name)
	if err != nil {
		return nil, err
	}
	return &link{conn: c, closePort: closePort, irq: cfg.irq, ven: cfg.ven, name: name}, nil
}

type link struct {
	conn      Conn
	closePort func() error
	irq       transport.IRQPin
	ven       transport.VENPin
	name      string
}

// read clocks n bytes out of the controller after the read prefix.
func (l *link) read(dst []byte) error {
	w := frame.GetBuffer(len(dst) + 1)
	r := frame.GetBuffer(len(dst) + 1)
	defer frame.PutBuffer(w)
	defer frame.PutBuffer(r)

	w[0] = frame.SPIReadPrefix
	if err := l.conn.Tx(w, r); err != nil {
		return fmt.Errorf("%w: %w", nci.ErrHALRead, err)
	}
	copy(dst, r[1:])
	return nil
}

// ReadFrame reads the header, then the payload in a second transfer.
func (l *link) ReadFrame() ([]byte, error) {
	if l.irq != nil && !transport.AwaitIRQ(l.irq) {
		return nil, nil
	}

	var hdr [frame.HeaderSize]byte
	if err := l.read(hdr[:]); err != nil {
		return nil, err
	}
	if l.irq == nil && transport.IdleHeader(hdr[:]) {
		return nil, nil
	}
	h, err := frame.ParseHeader(hdr[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, h.FrameLen())
	copy(out, hdr[:])
	if h.Length > 0 {
		if err := l.read(out[frame.HeaderSize:]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Write sends the write prefix and p in one transfer.
func (l *link) Write(p []byte) (int, error) {
	w := frame.GetBuffer(len(p) + 1)
	defer frame.PutBuffer(w)
	w[0] = frame.SPIWritePrefix
	copy(w[1:], p)
	if err := l.conn.Tx(w, nil); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (l *link) Close() error {
	return l.closePort()
}

// PowerCycle toggles VEN.
func (l *link) PowerCycle(ctx context.Context) error {
	return transport.ToggleVEN(ctx, l.ven, l.name)
}
