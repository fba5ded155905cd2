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
package frame

import (
	"errors"
	"fmt"
)

var (
	// ErrShortHeader is returned when fewer than HeaderSize bytes are available.
	ErrShortHeader = errors.New("nci frame shorter than header")
	// ErrLengthMismatch is returned when the length byte disagrees with the buffer.
	ErrLengthMismatch = errors.New("nci payload length mismatch")
)

// Header is the decoded three byte NCI header.
type Header struct {
	MT     byte // already shifted into bits 7..5
	GID    byte
	OID    byte // connection ID for data packets
	Length int
	PBF    bool
}

// ParseHeader decodes the first HeaderSize bytes of buf.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes", ErrShortHeader, len(buf))
	}
	h := Header{
		MT:     buf[0] & MTMask,
		PBF:    buf[0]&PBFBit != 0,
		GID:    buf[0] & GIDMask,
		Length: int(buf[2]),
	}
	if h.MT == MTData {
		h.OID = buf[1]
	} else {
		h.OID = buf[1] & OIDMask
	}
	return h, nil
}

// FrameLen is the total frame size described by the header.
func (h Header) FrameLen() int {
	return HeaderSize + h.Length
}

// Encode writes the header into dst, which must hold HeaderSize bytes.
func (h Header) Encode(dst []byte) {
	b0 := h.MT&MTMask | h.GID&GIDMask
	if h.PBF {
		b0 |= PBFBit
	}
	dst[0] = b0
	if h.MT == MTData {
		dst[1] = h.OID
	} else {
		dst[1] = h.OID & OIDMask
	}
	dst[2] = byte(h.Length)
}

// ValidateLength checks that buf holds exactly one frame as described by its header.
func ValidateLength(buf []byte) error {
	h, err := ParseHeader(buf)
	if err != nil {
		return err
	}
	if h.FrameLen() != len(buf) {
		return fmt.Errorf("%w: header says %d, frame has %d", ErrLengthMismatch, h.Length, len(buf)-HeaderSize)
	}
	return nil
}
