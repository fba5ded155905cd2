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

package cockpit

import (
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-nci"
)

const (
	// EEPROMChunk is the number of bytes written per A2xx identifier.
	EEPROMChunk = 8
	// ProtocolChunk is one register entry: index, address and a 4-byte value.
	ProtocolChunk = 6

	eepromBlockID   = 0xA2
	maxEEPROMBlocks = 0x100
)

var protocolID = []byte{0xA0, 0x0D}

// ErrDumpTooLarge is returned when the EEPROM stream needs more blocks than
// an A2xx identifier can address.
var ErrDumpTooLarge = errors.New("cockpit: eeprom data exceeds 256 blocks")

// setConfigRsp is the required CORE_SET_CONFIG_RSP shape: STATUS_OK and an
// empty invalid-parameter list.
func setConfigRsp() nci.Expectation {
	return nci.Response(nci.Length(5), nci.Prefix(0x40, nci.OIDCoreSetConfig, 0x02, byte(nci.StatusOK)))
}

// chunk returns n bytes of stream starting at off, zero padded.
func chunk(stream []byte, off, n int) []byte {
	out := make([]byte, n)
	copy(out, stream[off:])
	return out
}

// EEPROMSteps writes stream to consecutive EEPROM blocks, reading each block
// before it is overwritten.
func EEPROMSteps(stream []byte) ([]nci.Step, error) {
	blocks := (len(stream) + EEPROMChunk - 1) / EEPROMChunk
	if blocks > maxEEPROMBlocks {
		return nil, fmt.Errorf("%w: %d bytes", ErrDumpTooLarge, len(stream))
	}
	steps := make([]nci.Step, 0, 2*blocks)
	for k := 0; k < len(stream); k += EEPROMChunk {
		id := []byte{eepromBlockID, byte(k / EEPROMChunk)}
		steps = append(steps,
			nci.NewStep(fmt.Sprintf("GET_CONFIG %X", id),
				nci.CoreGetConfig(id...),
				nci.Response(nci.Prefix(0x40, nci.OIDCoreGetConfig, 0x0D, byte(nci.StatusOK)))),
			nci.NewStep(fmt.Sprintf("SET_CONFIG %X", id),
				nci.CoreSetConfig(id, chunk(stream, k, EEPROMChunk)),
				setConfigRsp()),
		)
	}
	return steps, nil
}

// ProtocolSteps writes stream through A00D in register entries. The
// protocol's current table is read whenever the protocol index changes.
func ProtocolSteps(stream []byte) []nci.Step {
	var steps []nci.Step
	prev := -1
	for z := 0; z < len(stream); z += ProtocolChunk {
		entry := chunk(stream, z, ProtocolChunk)
		if idx := int(entry[0]); idx != prev {
			prev = idx
			steps = append(steps, nci.NewStep(fmt.Sprintf("GET_CONFIG A00D/%02X", idx),
				nci.CoreGetConfig(protocolID[0], protocolID[1], entry[0]),
				nci.Response(nci.Prefix(0x40, nci.OIDCoreGetConfig), nci.StatusIsOK())))
		}
		steps = append(steps, nci.NewStep(fmt.Sprintf("SET_CONFIG A00D/%02X %02X", entry[0], entry[1]),
			nci.CoreSetConfig(protocolID, entry),
			setConfigRsp()))
	}
	return steps
}

// Steps is the full replay of d: EEPROM parameters first, then protocol
// registers.
func Steps(d *Dump) ([]nci.Step, error) {
	eeprom, err := d.EEPROMStream()
	if err != nil {
		return nil, err
	}
	proto, err := d.ProtocolStream()
	if err != nil {
		return nil, err
	}
	steps, err := EEPROMSteps(eeprom)
	if err != nil {
		return nil, err
	}
	nci.Debugf("cockpit: %d eeprom bytes, %d protocol bytes", len(eeprom), len(proto))
	return append(steps, ProtocolSteps(proto)...), nil
}

// Suite wraps the replay of d in a one-case suite.
func Suite(d *Dump) (nci.Suite, error) {
	steps, err := Steps(d)
	if err != nil {
		return nci.Suite{}, err
	}
	return nci.Suite{
		Name:        "cockpit",
		Description: "replay of the PN72xx configuration dump",
		Cases:       []nci.TestCase{{Name: "NfcCockPitTest", Steps: steps}},
		CloseType:   nci.CloseDisable,
	}, nil
}
