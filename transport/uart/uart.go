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

// Package uart provides the NCI HAL backend for controllers reached through
// a serial port, typically a USB-UART bridge on an evaluation board.
package uart

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/transport"
)

// DefaultBaudRate is the NCI UART rate used by NXP and ST evaluation boards.
const DefaultBaudRate = 115200

// Port is the part of serial.Port the backend needs.
type Port interface {
	io.ReadWriteCloser
	SetDTR(dtr bool) error
	ResetInputBuffer() error
	Drain() error
}

type config struct {
	open      func(name string, baud int) (Port, error)
	baudRate  int
	powerLine bool
}

// Option configures the UART backend.
type Option func(*config)

// WithBaudRate overrides DefaultBaudRate.
func WithBaudRate(baud int) Option {
	return func(c *config) {
		c.baudRate = baud
	}
}

// WithDTRPowerControl wires PowerCycle to the DTR line, which most bench
// adapters route to VEN. Without it PowerCycle is unsupported.
func WithDTRPowerControl() Option {
	return func(c *config) {
		c.powerLine = true
	}
}

// withPortOpener replaces serial.Open; tests hand in a simulated port.
func withPortOpener(open func(name string, baud int) (Port, error)) Option {
	return func(c *config) {
		c.open = open
	}
}

// New returns a closed HAL for portName. The port is opened by HAL.Open.
func New(portName string, opts ...Option) *transport.HAL {
	cfg := &config{baudRate: DefaultBaudRate, open: openSerial}
	for _, opt := range opts {
		opt(cfg)
	}
	return transport.NewHAL(nci.BackendUART, portName, func(_ context.Context) (transport.Link, error) {
		return dial(portName, cfg)
	})
}

// readTimeout returns the per-read timeout. Windows serial drivers need
// longer than the 50ms that works on Linux and macOS.
func readTimeout() time.Duration {
	if runtime.GOOS == "windows" {
		return 2 * nci.BackendReadTimeout
	}
	return nci.BackendReadTimeout
}

func openSerial(name string, baud int) (Port, error) {
	port, err := serial.Open(name, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		var pe *serial.PortError
		if errors.As(err, &pe) && (pe.Code() == serial.PortNotFound || pe.Code() == serial.InvalidSerialPort) {
			return nil, fmt.Errorf("%w: %s: %w", nci.ErrDeviceNotFound, name, err)
		}
		return nil, fmt.Errorf("failed to open UART port %s: %w", name, err)
	}
	if err := port.SetReadTimeout(readTimeout()); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to set UART read timeout: %w", err)
	}
	return port, nil
}

func dial(name string, cfg *config) (transport.Link, error) {
	port, err := cfg.open(name, cfg.baudRate)
	if err != nil {
		return nil, err
	}
	// Whatever the controller said before we opened belongs to no session.
	if err := port.ResetInputBuffer(); err != nil {
		nci.Debugf("uart: reset input buffer on %s: %v", name, err)
	}
	return &link{
		StreamLink: transport.NewStreamLink(port),
		port:       port,
		name:       name,
		powerLine:  cfg.powerLine,
	}, nil
}

type link struct {
	*transport.StreamLink
	port      Port
	name      string
	powerLine bool
}

// Write sends p and drains the port so the frame is on the wire before the
// caller starts its response timer.
func (l *link) Write(p []byte) (int, error) {
	n, err := l.StreamLink.Write(p)
	if err != nil {
		return n, err
	}
	if err := drainWithRetry(l.port); err != nil {
		nci.Debugf("uart: %v", err)
	}
	return n, nil
}

// PowerCycle holds DTR low for nci.PowerCycleLowTime, then waits for the
// controller to boot.
func (l *link) PowerCycle(ctx context.Context) error {
	if !l.powerLine {
		return fmt.Errorf("%w: %s has no power line", nci.ErrDeviceNotSupported, l.name)
	}
	if err := l.port.SetDTR(false); err != nil {
		return fmt.Errorf("UART drop DTR: %w", err)
	}
	if err := transport.Sleep(ctx, nci.PowerCycleLowTime); err != nil {
		_ = l.port.SetDTR(true)
		return err
	}
	if err := l.port.SetDTR(true); err != nil {
		return fmt.Errorf("UART raise DTR: %w", err)
	}
	if err := transport.Sleep(ctx, nci.PowerCycleBootTime); err != nil {
		return err
	}
	if err := l.port.ResetInputBuffer(); err != nil {
		nci.Debugf("uart: reset input buffer on %s: %v", l.name, err)
	}
	l.ResetFraming()
	return nil
}

func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry drains the port, retrying when a signal interrupts the call.
func drainWithRetry(port Port) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		err := port.Drain()
		if err == nil {
			return nil
		}
		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<attempt))
			continue
		}
		return fmt.Errorf("UART drain failed: %w", err)
	}
	return fmt.Errorf("UART drain failed after %d retries", maxRetries)
}
