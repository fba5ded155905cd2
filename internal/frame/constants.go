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
// Package frame holds the wire-level pieces of NCI framing shared by the
// transports: header layout, stream reassembly and pooled buffers.
package frame

// Header layout
const (
	HeaderSize     = 3   // MT/PBF/GID, OID (or connection ID), payload length
	MaxPayloadSize = 255 // payload length is a single byte
	MaxFrameSize   = HeaderSize + MaxPayloadSize
)

// Byte 0 bit fields
const (
	MTMask  = 0xE0
	MTShift = 5
	PBFBit  = 0x10
	GIDMask = 0x0F
	OIDMask = 0x3F
)

// Message types, already shifted into bits 7..5.
const (
	MTData         = 0x00
	MTCommand      = 0x20
	MTResponse     = 0x40
	MTNotification = 0x60
)

// SPI direction prefixes used by NXP controllers in SPI mode.
const (
	SPIWritePrefix = 0x7F
	SPIReadPrefix  = 0xFF
)
