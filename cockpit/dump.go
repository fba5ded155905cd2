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

// Package cockpit replays a PN72xx configuration dump into the controller.
//
// The dump is an XML export of EEPROM regions. Parameter values are written
// to the EEPROM block by block with CORE_SET_CONFIG on A2xx identifiers;
// protocol registers go through the A00D identifier, one protocol index at
// a time.
package cockpit

import (
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

// DefaultDumpPath is where the vendor partition keeps the dump.
const DefaultDumpPath = "/vendor/etc/PN72xx_DumpData.xml"

// ErrInvalidValue is returned for a dump value that is not hex.
var ErrInvalidValue = errors.New("cockpit: invalid hex value")

// Dump is a parsed configuration dump.
type Dump struct {
	XMLName xml.Name `xml:"EEPROM"`
	Regions []Region `xml:"Region"`
}

// Region is one EEPROM region. Regions hold either plain parameters or
// protocol register tables.
type Region struct {
	Name       string      `xml:"RegionName,attr"`
	Access     string      `xml:"RegionAccess,attr"`
	Type       string      `xml:"RegionType,attr"`
	Offset     string      `xml:"RegionOffset,attr"`
	Parameters []Parameter `xml:"Parameter"`
	Protocols  []Protocol  `xml:"Protocol"`
}

// Parameter is a little-endian EEPROM value.
type Parameter struct {
	Name   string `xml:"Name,attr"`
	Offset string `xml:"Offset,attr"`
	Value  string `xml:"Value,attr"`
}

// Protocol is the register table of one RF protocol.
type Protocol struct {
	Name      string     `xml:"ProtocolName,attr"`
	Index     string     `xml:"ProtocolIndex,attr"`
	Offset    string     `xml:"ProtocolOffset,attr"`
	Registers []Register `xml:"Register"`
}

// Register is one protocol register.
type Register struct {
	Name           string `xml:"RegisterName,attr"`
	LogicalAddress string `xml:"RegisterLogicalAddress,attr"`
	Value          string `xml:"RegisterValue,attr"`
}

// Parse reads a dump from r.
func Parse(r io.Reader) (*Dump, error) {
	var d Dump
	if err := xml.NewDecoder(r).Decode(&d); err != nil {
		return nil, fmt.Errorf("cockpit: parse dump: %w", err)
	}
	return &d, nil
}

// Load reads the dump at path.
func Load(path string) (*Dump, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cockpit: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// EEPROMStream concatenates every parameter value of every region in dump
// order.
func (d *Dump) EEPROMStream() ([]byte, error) {
	var out []byte
	for _, r := range d.Regions {
		for _, p := range r.Parameters {
			b, err := decodeLE(p.Value)
			if err != nil {
				return nil, fmt.Errorf("region %s parameter %s: %w", r.Name, p.Name, err)
			}
			out = append(out, b...)
		}
	}
	return out, nil
}

// ProtocolStream concatenates, for every register, the protocol index, the
// register's logical address and its value. Index and address are taken as
// written; the value is little-endian.
func (d *Dump) ProtocolStream() ([]byte, error) {
	var out []byte
	for _, r := range d.Regions {
		for _, p := range r.Protocols {
			idx, err := decodeBE(p.Index)
			if err != nil {
				return nil, fmt.Errorf("protocol %s index: %w", p.Name, err)
			}
			for _, reg := range p.Registers {
				addr, err := decodeBE(reg.LogicalAddress)
				if err != nil {
					return nil, fmt.Errorf("protocol %s register %s address: %w", p.Name, reg.Name, err)
				}
				val, err := decodeLE(reg.Value)
				if err != nil {
					return nil, fmt.Errorf("protocol %s register %s: %w", p.Name, reg.Name, err)
				}
				out = append(out, idx...)
				out = append(out, addr...)
				out = append(out, val...)
			}
		}
	}
	return out, nil
}

func trimHex(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}

// decodeBE decodes hex digits in order. A trailing odd nibble is dropped.
func decodeBE(s string) ([]byte, error) {
	s = trimHex(s)
	s = s[:len(s)&^1]
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	return b, nil
}

// decodeLE decodes a little-endian hex number into bytes, least significant
// byte first. With an odd digit count the leading nibble is dropped.
func decodeLE(s string) ([]byte, error) {
	s = trimHex(s)
	s = s[len(s)&1:]
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	slices.Reverse(b)
	return b, nil
}
