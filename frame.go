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
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ZaparooProject/go-nci/internal/frame"
)

// MessageType is the 3-bit MT field of an NCI header.
type MessageType byte

const (
	MTData         MessageType = 0
	MTCommand      MessageType = 1
	MTResponse     MessageType = 2
	MTNotification MessageType = 3
)

func (m MessageType) String() string {
	switch m {
	case MTData:
		return "DATA"
	case MTCommand:
		return "CMD"
	case MTResponse:
		return "RSP"
	case MTNotification:
		return "NTF"
	default:
		return fmt.Sprintf("MT(%d)", byte(m))
	}
}

// Frame is one NCI message as it crosses the HAL. Frames handed out by this
// package are private copies and are never modified afterwards.
type Frame []byte

// NewFrame copies raw into a Frame.
func NewFrame(raw []byte) Frame {
	if raw == nil {
		return nil
	}
	return append(Frame(nil), raw...)
}

// NewCommand builds a control command frame.
func NewCommand(gid, oid byte, payload ...byte) Frame {
	return newControl(frame.MTCommand, gid, oid, payload)
}

// NewResponse builds a control response frame.
func NewResponse(gid, oid byte, payload ...byte) Frame {
	return newControl(frame.MTResponse, gid, oid, payload)
}

// NewNotification builds a control notification frame.
func NewNotification(gid, oid byte, payload ...byte) Frame {
	return newControl(frame.MTNotification, gid, oid, payload)
}

// NewData builds a data packet for a logical connection.
func NewData(connID byte, payload ...byte) Frame {
	f := make(Frame, frame.HeaderSize+len(payload))
	frame.Header{MT: frame.MTData, GID: connID, Length: len(payload)}.Encode(f)
	copy(f[frame.HeaderSize:], payload)
	return f
}

func newControl(mt, gid, oid byte, payload []byte) Frame {
	f := make(Frame, frame.HeaderSize+len(payload))
	frame.Header{MT: mt, GID: gid, OID: oid, Length: len(payload)}.Encode(f)
	copy(f[frame.HeaderSize:], payload)
	return f
}

// ParseHex reads a frame written as hex, with or without spaces:
// "2F 3F 01 00", "2f3f0100" and "0x2F,0x3F,0x01,0x00" are all accepted.
func ParseHex(s string) (Frame, error) {
	clean := strings.NewReplacer("0x", "", "0X", "", ",", "", " ", "", "\t", "", "\n", "").Replace(s)
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidFormat, s, err)
	}
	return Frame(raw), nil
}

// MustHex is ParseHex for literals; it panics on malformed input.
func MustHex(s string) Frame {
	f, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return f
}

// Len is the total frame length including the header.
func (f Frame) Len() int { return len(f) }

// MT returns the message type, or MTData for frames shorter than one byte.
func (f Frame) MT() MessageType {
	if len(f) == 0 {
		return MTData
	}
	return MessageType(f[0] >> frame.MTShift)
}

// PBF reports whether more segments follow.
func (f Frame) PBF() bool {
	return len(f) > 0 && f[0]&frame.PBFBit != 0
}

// GID returns the group identifier (the connection ID for data packets).
func (f Frame) GID() byte {
	if len(f) == 0 {
		return 0
	}
	return f[0] & frame.GIDMask
}

// OID returns the opcode identifier.
func (f Frame) OID() byte {
	if len(f) < 2 {
		return 0
	}
	return f[1] & frame.OIDMask
}

// PayloadLen returns the length byte.
func (f Frame) PayloadLen() int {
	if len(f) < frame.HeaderSize {
		return 0
	}
	return int(f[2])
}

// Payload returns the bytes after the header.
func (f Frame) Payload() []byte {
	if len(f) <= frame.HeaderSize {
		return nil
	}
	return f[frame.HeaderSize:]
}

// Status returns byte 3, which is the status of every NCI response.
func (f Frame) Status() (Status, bool) {
	if len(f) <= frame.HeaderSize {
		return 0, false
	}
	return Status(f[frame.HeaderSize]), true
}

// OK reports whether the frame carries STATUS_OK.
func (f Frame) OK() bool {
	s, ok := f.Status()
	return ok && s == StatusOK
}

// Valid reports whether the length byte matches the frame size.
func (f Frame) Valid() bool {
	return frame.ValidateLength(f) == nil
}

// Opcode combines GID and OID so frames of the same kind compare equal.
func (f Frame) Opcode() uint16 {
	return uint16(f.GID())<<8 | uint16(f.OID())
}

// IsResponseTo reports whether f is the response for the command cmd.
func (f Frame) IsResponseTo(cmd Frame) bool {
	return f.MT() == MTResponse && cmd.MT() == MTCommand && f.Opcode() == cmd.Opcode()
}

// Equal reports byte equality.
func (f Frame) Equal(other []byte) bool {
	return bytes.Equal(f, other)
}

// Bytes returns a copy of the raw frame.
func (f Frame) Bytes() []byte {
	return append([]byte(nil), f...)
}

// String renders the frame as space separated hex.
func (f Frame) String() string {
	if len(f) == 0 {
		return "(empty)"
	}
	parts := make([]string, len(f))
	for i, b := range f {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}

// Describe adds the decoded header to String, for logs.
func (f Frame) Describe() string {
	if len(f) < frame.HeaderSize {
		return fmt.Sprintf("short frame [%s]", f)
	}
	if f.MT() == MTData {
		return fmt.Sprintf("DATA conn=%d len=%d [%s]", f.GID(), f.PayloadLen(), f)
	}
	return fmt.Sprintf("%s %s len=%d [%s]", f.MT(), opcodeName(f.GID(), f.OID()), f.PayloadLen(), f)
}
