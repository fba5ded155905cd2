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

package nci

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"syscall"
)

// Error categories used by the retry logic and by the harness to decide
// whether a failure is a controller verdict or a bench problem.
var (
	// HAL errors - potentially retryable
	ErrHALTimeout    = errors.New("hal timeout")
	ErrHALWrite      = errors.New("hal write failed")
	ErrHALRead       = errors.New("hal read failed")
	ErrHALClosed     = errors.New("hal is closed")
	ErrHALNotOpen    = errors.New("hal not open")
	ErrHALOpenFailed = errors.New("hal open failed")
	ErrShortWrite    = errors.New("short write")

	// Communication errors
	ErrFrameCorrupted  = errors.New("frame corrupted")
	ErrInvalidFrame    = errors.New("invalid nci frame")
	ErrUnexpectedFrame = errors.New("unexpected nci frame")

	// Session errors - not retryable
	ErrSessionClosed     = errors.New("session closed")
	ErrEventTimeout      = errors.New("timed out waiting for hal event")
	ErrEventFailed       = errors.New("hal event reported failure")
	ErrNoVendorExtension = errors.New("hal has no vendor extension")

	// Device errors - not retryable
	ErrDeviceNotFound     = errors.New("device not found")
	ErrDeviceNotSupported = errors.New("device not supported")

	// Data errors - not retryable
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrDataTooLarge     = errors.New("data too large")
	ErrInvalidFormat    = errors.New("invalid data format")
)

// ErrorType classifies a HAL error for retry decisions.
type ErrorType int

const (
	// ErrorTypeTransient may succeed on retry
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent will not
	ErrorTypePermanent
	// ErrorTypeTimeout is retryable but reported separately
	ErrorTypeTimeout
)

// HALError wraps a backend failure with the operation and device it hit.
type HALError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *HALError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *HALError) Unwrap() error {
	return e.Err
}

// StatusError is a response whose status byte was not STATUS_OK.
type StatusError struct {
	Op     string
	Status Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status 0x%02X (%s)", e.Op, byte(e.Status), e.Status)
}

// IsRetryable reports whether err may clear on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var he *HALError
	if errors.As(err, &he) {
		return he.Retryable
	}

	var se *StatusError
	if errors.As(err, &se) {
		// RF errors depend on field conditions, everything else is a verdict.
		return se.Status == StatusRFTimeoutError || se.Status == StatusRFTransmissionError
	}

	switch {
	case errors.Is(err, ErrHALTimeout),
		errors.Is(err, ErrHALRead),
		errors.Is(err, ErrHALWrite),
		errors.Is(err, ErrHALOpenFailed),
		errors.Is(err, ErrFrameCorrupted):
		return true
	default:
		return false
	}
}

// IsFatal reports whether the controller or its device node is gone, in which
// case running further cases is pointless.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var he *HALError
	if errors.As(err, &he) {
		return he.Type == ErrorTypePermanent
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrHALClosed),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, ErrDeviceNotSupported),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// Windows errnos that mean the USB serial adapter was unplugged.
const (
	errAccessDenied syscall.Errno = 5   // ERROR_ACCESS_DENIED
	errGenFailure   syscall.Errno = 31  // ERROR_GEN_FAILURE
	errNoSuchDevice syscall.Errno = 433 // ERROR_NO_SUCH_DEVICE
)

func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	//nolint:exhaustive // only device-gone errnos matter
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}

	if runtime.GOOS == "windows" {
		//nolint:exhaustive // only device-gone errnos matter
		switch errno {
		case errAccessDenied, errGenFailure, errNoSuchDevice:
			return true
		}
	}
	return false
}

// NewHALError builds a HALError; transient and timeout errors are retryable.
func NewHALError(op, port string, err error, errType ErrorType) *HALError {
	return &HALError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTimeoutError creates a HAL timeout error.
func NewTimeoutError(op, port string) *HALError {
	return NewHALError(op, port, ErrHALTimeout, ErrorTypeTimeout)
}

// NewWriteError creates a transient write error.
func NewWriteError(op, port string) *HALError {
	return NewHALError(op, port, ErrHALWrite, ErrorTypeTransient)
}

// NewReadError creates a transient read error.
func NewReadError(op, port string) *HALError {
	return NewHALError(op, port, ErrHALRead, ErrorTypeTransient)
}

// NewShortWriteError reports that only written of want bytes left the host.
func NewShortWriteError(op, port string, written, want int) *HALError {
	return NewHALError(op, port, fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, written, want), ErrorTypeTransient)
}

// NewFrameCorruptedError creates a transient framing error.
func NewFrameCorruptedError(op, port string) *HALError {
	return NewHALError(op, port, ErrFrameCorrupted, ErrorTypeTransient)
}

// NewDataTooLargeError creates a permanent size error.
func NewDataTooLargeError(op, port string) *HALError {
	return NewHALError(op, port, ErrDataTooLarge, ErrorTypePermanent)
}

// NewNotOpenError creates a permanent error for I/O before Open.
func NewNotOpenError(op, port string) *HALError {
	return NewHALError(op, port, ErrHALNotOpen, ErrorTypePermanent)
}
