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
	"fmt"
)

// HAL is the vendor hardware abstraction the harness drives. It mirrors the
// Android NFC HAL: Open and Close complete asynchronously through OnEvent,
// and every frame the controller produces arrives through OnData on a
// goroutine owned by the backend.
//
// Implementations are provided by the transport packages (uart, i2c, spi,
// chardev) and by internal/testing for the simulated controller.
type HAL interface {
	// Open starts the backend. EventOpenComplete is reported once the
	// controller is reachable; Open itself may return before that.
	Open(ctx context.Context, cb Callbacks) error

	// Write sends one frame and returns how many bytes left the host.
	Write(ctx context.Context, data []byte) (int, error)

	// Close stops the backend and reports EventCloseComplete.
	Close(ctx context.Context, ct CloseType) error

	// PowerCycle resets the controller and reports EventOpenComplete again.
	PowerCycle(ctx context.Context) error

	// Backend names the kind of HAL.
	Backend() Backend
}

// Callbacks receive asynchronous HAL output. Both may be called from any
// goroutine and must not block for long.
type Callbacks struct {
	OnEvent func(Event, EventStatus)
	OnData  func([]byte)
}

// Emit reports an event if OnEvent is set.
func (cb Callbacks) Emit(e Event, s EventStatus) {
	if cb.OnEvent != nil {
		cb.OnEvent(e, s)
	}
}

// Deliver hands a received frame to OnData if it is set.
func (cb Callbacks) Deliver(b []byte) {
	if cb.OnData != nil {
		cb.OnData(b)
	}
}

// Backend identifies a HAL implementation.
type Backend string

const (
	BackendUART    Backend = "uart"
	BackendI2C     Backend = "i2c"
	BackendSPI     Backend = "spi"
	BackendCharDev Backend = "chardev"
	BackendVirtual Backend = "virtual"
	BackendMock    Backend = "mock"
)

// Event is a HAL lifecycle event.
type Event int

const (
	EventOpenComplete Event = iota
	EventCloseComplete
	EventPostInitComplete
	EventPreDiscoverComplete
	EventRequestControl
	EventReleaseControl
	EventError
)

func (e Event) String() string {
	switch e {
	case EventOpenComplete:
		return "OPEN_CPLT"
	case EventCloseComplete:
		return "CLOSE_CPLT"
	case EventPostInitComplete:
		return "POST_INIT_CPLT"
	case EventPreDiscoverComplete:
		return "PRE_DISCOVER_CPLT"
	case EventRequestControl:
		return "REQUEST_CONTROL"
	case EventReleaseControl:
		return "RELEASE_CONTROL"
	case EventError:
		return "ERROR"
	default:
		return fmt.Sprintf("EVENT(%d)", int(e))
	}
}

// EventStatus accompanies an Event.
type EventStatus int

const (
	EventStatusOK EventStatus = iota
	EventStatusFailed
	EventStatusTransportError
	EventStatusCommandTimeout
	EventStatusRefused
)

func (s EventStatus) String() string {
	switch s {
	case EventStatusOK:
		return "OK"
	case EventStatusFailed:
		return "FAILED"
	case EventStatusTransportError:
		return "ERR_TRANSPORT"
	case EventStatusCommandTimeout:
		return "ERR_CMD_TIMEOUT"
	case EventStatusRefused:
		return "REFUSED"
	default:
		return fmt.Sprintf("STATUS(%d)", int(s))
	}
}

// CloseType tells the controller why the host is closing.
type CloseType int

const (
	// CloseDisable is a normal shutdown.
	CloseDisable CloseType = iota
	// CloseHostSwitchedOff leaves the controller powered for card emulation
	// while the host is off.
	CloseHostSwitchedOff
)

func (c CloseType) String() string {
	if c == CloseHostSwitchedOff {
		return "HOST_SWITCHED_OFF"
	}
	return "DISABLE"
}

// EseUpdateState selects which host owns the embedded secure element.
type EseUpdateState int

const (
	// EseUpdateSMCU hands the eSE to the secure MCU for EMVCo transactions.
	EseUpdateSMCU EseUpdateState = 1
	// EseUpdateNFC returns the eSE to the Android NFC stack.
	EseUpdateNFC EseUpdateState = 2
	// EseUpdateFirmware enters secure firmware download.
	EseUpdateFirmware EseUpdateState = 3
)

func (s EseUpdateState) String() string {
	switch s {
	case EseUpdateSMCU:
		return "EMVCo (SMCU)"
	case EseUpdateNFC:
		return "NFC (Android)"
	case EseUpdateFirmware:
		return "secure FW download"
	default:
		return fmt.Sprintf("ESE_STATE(%d)", int(s))
	}
}

// Valid reports whether s is one of the three defined states.
func (s EseUpdateState) Valid() bool {
	return s >= EseUpdateSMCU && s <= EseUpdateFirmware
}

// VendorExtension is the optional vendor interface next to the HAL.
type VendorExtension interface {
	// SetTransitConfig writes a transit configuration string; "" resets it.
	SetTransitConfig(ctx context.Context, config string) (bool, error)
	// SetEseUpdateState moves eSE ownership between hosts.
	SetEseUpdateState(ctx context.Context, state EseUpdateState) (bool, error)
}

// RetryingHAL retries Open on retryable backend errors. Writes are never
// retried: a short write is a verdict on the controller link, not noise.
type RetryingHAL struct {
	HAL
	config *RetryConfig
}

// NewRetryingHAL wraps h. A nil config uses DefaultRetryConfig.
func NewRetryingHAL(h HAL, config *RetryConfig) *RetryingHAL {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &RetryingHAL{HAL: h, config: config}
}

// Open opens the wrapped HAL, backing off between failed attempts.
func (r *RetryingHAL) Open(ctx context.Context, cb Callbacks) error {
	err := RetryWithConfig(ctx, r.config, func() error {
		if err := r.HAL.Open(ctx, cb); err != nil {
			Debugf("%s open failed: %v", r.HAL.Backend(), err)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", r.HAL.Backend(), err)
	}
	return nil
}

// Unwrap returns the wrapped HAL.
func (r *RetryingHAL) Unwrap() HAL {
	return r.HAL
}

// VendorOf returns h's vendor extension, looking through wrappers.
func VendorOf(h HAL) (VendorExtension, bool) {
	for h != nil {
		if v, ok := h.(VendorExtension); ok {
			return v, true
		}
		u, ok := h.(interface{ Unwrap() HAL })
		if !ok {
			return nil, false
		}
		h = u.Unwrap()
	}
	return nil, false
}

// WithVendor attaches a vendor extension to a HAL that lacks one, such as a
// bare transport paired with the platform binder client.
func WithVendor(h HAL, v VendorExtension) HAL {
	return &vendorHAL{HAL: h, VendorExtension: v}
}

type vendorHAL struct {
	HAL
	VendorExtension
}

func (v *vendorHAL) Unwrap() HAL { return v.HAL }
