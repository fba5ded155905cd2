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
	"context"
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ZaparooProject/go-nci"
	virt "github.com/ZaparooProject/go-nci/internal/testing"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const sampleDump = `<?xml version="1.0" encoding="UTF-8"?>
<EEPROM>
  <Region RegionName="System" RegionAccess="RW" RegionType="Param" RegionOffset="0x0000">
    <Parameter Name="CLK" Offset="0x00" Value="0x11223344"/>
    <Parameter Name="PWR" Offset="0x04" Value="0x55667788"/>
    <Parameter Name="TRIM" Offset="0x08" Value="0xABC"/>
  </Region>
  <Region RegionName="RF" RegionAccess="RW" RegionType="Protocol" RegionOffset="0x0100">
    <Protocol ProtocolName="A106" ProtocolIndex="0x01" ProtocolOffset="0x00">
      <Register RegisterName="TX" RegisterLogicalAddress="0x10" RegisterValue="0xDEADBEEF"/>
      <Register RegisterName="RX" RegisterLogicalAddress="0x11" RegisterValue="0x00000001"/>
    </Protocol>
    <Protocol ProtocolName="B106" ProtocolIndex="0x02" ProtocolOffset="0x40">
      <Register RegisterName="TX" RegisterLogicalAddress="0x10" RegisterValue="0x0A0B0C0D"/>
    </Protocol>
  </Region>
</EEPROM>`

func parseSample(t *testing.T) *Dump {
	t.Helper()
	d, err := Parse(strings.NewReader(sampleDump))
	require.NoError(t, err)
	return d
}

func TestParse(t *testing.T) {
	t.Parallel()

	want := &Dump{
		XMLName: xml.Name{Local: "EEPROM"},
		Regions: []Region{
			{
				Name: "System", Access: "RW", Type: "Param", Offset: "0x0000",
				Parameters: []Parameter{
					{Name: "CLK", Offset: "0x00", Value: "0x11223344"},
					{Name: "PWR", Offset: "0x04", Value: "0x55667788"},
					{Name: "TRIM", Offset: "0x08", Value: "0xABC"},
				},
			},
			{
				Name: "RF", Access: "RW", Type: "Protocol", Offset: "0x0100",
				Protocols: []Protocol{
					{
						Name: "A106", Index: "0x01", Offset: "0x00",
						Registers: []Register{
							{Name: "TX", LogicalAddress: "0x10", Value: "0xDEADBEEF"},
							{Name: "RX", LogicalAddress: "0x11", Value: "0x00000001"},
						},
					},
					{
						Name: "B106", Index: "0x02", Offset: "0x40",
						Registers: []Register{
							{Name: "TX", LogicalAddress: "0x10", Value: "0x0A0B0C0D"},
						},
					},
				},
			},
		},
	}

	if diff := cmp.Diff(want, parseSample(t)); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Malformed(t *testing.T) {
	t.Parallel()

	_, err := Parse(strings.NewReader("<EEPROM><Region>"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "dump.xml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDump), 0o600))

	d, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, d.Regions, 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.xml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDecode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		in     string
		wantLE []byte
		wantBE []byte
	}{
		{name: "prefixed", in: "0x11223344", wantLE: []byte{0x44, 0x33, 0x22, 0x11}, wantBE: []byte{0x11, 0x22, 0x33, 0x44}},
		{name: "bare", in: "0A0B", wantLE: []byte{0x0B, 0x0A}, wantBE: []byte{0x0A, 0x0B}},
		{name: "odd nibble", in: "0xABC", wantLE: []byte{0xBC}, wantBE: []byte{0xAB}},
		{name: "single byte", in: "0x7F", wantLE: []byte{0x7F}, wantBE: []byte{0x7F}},
		{name: "empty", in: "", wantLE: []byte{}, wantBE: []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			le, err := decodeLE(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLE, le)

			be, err := decodeBE(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBE, be)
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	t.Parallel()

	_, err := decodeLE("0xZZ11")
	require.ErrorIs(t, err, ErrInvalidValue)
	_, err = decodeBE("0x1G")
	require.ErrorIs(t, err, ErrInvalidValue)

	d := &Dump{Regions: []Region{{Name: "bad", Parameters: []Parameter{{Name: "P", Value: "0xQQ"}}}}}
	_, err = Steps(d)
	require.ErrorIs(t, err, ErrInvalidValue)
	assert.Contains(t, err.Error(), "region bad parameter P")
}

func TestStreams(t *testing.T) {
	t.Parallel()

	d := parseSample(t)

	eeprom, err := d.EEPROMStream()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x44, 0x33, 0x22, 0x11, 0x88, 0x77, 0x66, 0x55, 0xBC}, eeprom)

	proto, err := d.ProtocolStream()
	require.NoError(t, err)
	assert.Equal(t, []byte{
		0x01, 0x10, 0xEF, 0xBE, 0xAD, 0xDE,
		0x01, 0x11, 0x01, 0x00, 0x00, 0x00,
		0x02, 0x10, 0x0D, 0x0C, 0x0B, 0x0A,
	}, proto)
}

func TestSteps(t *testing.T) {
	t.Parallel()

	steps, err := Steps(parseSample(t))
	require.NoError(t, err)

	got := make([]string, 0, len(steps))
	for _, s := range steps {
		got = append(got, s.Name+": "+s.Command.String())
	}
	want := []string{
		"GET_CONFIG A200: 20 03 03 01 A2 00",
		"SET_CONFIG A200: 20 02 0C 01 A2 00 08 44 33 22 11 88 77 66 55",
		"GET_CONFIG A201: 20 03 03 01 A2 01",
		"SET_CONFIG A201: 20 02 0C 01 A2 01 08 BC 00 00 00 00 00 00 00",
		"GET_CONFIG A00D/01: 20 03 04 01 A0 0D 01",
		"SET_CONFIG A00D/01 10: 20 02 0A 01 A0 0D 06 01 10 EF BE AD DE",
		"SET_CONFIG A00D/01 11: 20 02 0A 01 A0 0D 06 01 11 01 00 00 00",
		"GET_CONFIG A00D/02: 20 03 04 01 A0 0D 02",
		"SET_CONFIG A00D/02 10: 20 02 0A 01 A0 0D 06 02 10 0D 0C 0B 0A",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Steps() mismatch (-want +got):\n%s", diff)
	}
}

func TestProtocolSteps_PadsShortEntry(t *testing.T) {
	t.Parallel()

	steps := ProtocolSteps([]byte{0x03, 0x20, 0xFF})
	require.Len(t, steps, 2)
	assert.Equal(t, nci.MustHex("20 02 0A 01 A0 0D 06 03 20 FF 00 00 00"), steps[1].Command)
}

func TestEEPROMSteps_TooLarge(t *testing.T) {
	t.Parallel()

	_, err := EEPROMSteps(make([]byte, EEPROMChunk*maxEEPROMBlocks+1))
	require.ErrorIs(t, err, ErrDumpTooLarge)

	steps, err := EEPROMSteps(nil)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestSuite_ReplaysIntoController(t *testing.T) {
	t.Parallel()

	su, err := Suite(parseSample(t))
	require.NoError(t, err)

	vc := virt.NewVirtualController()
	s := nci.NewSession(vc, nci.WithCallbackTimeout(time.Second), nci.WithEventTimeout(time.Second))
	rep := nci.NewRunner(s, nci.WithOutput(io.Discard)).Run(context.Background(), su)

	require.Len(t, rep.Cases, 1)
	assert.Equal(t, 1, rep.Passed(), "failures: %v", rep.Cases[0].Failures)

	block0, ok := vc.NFCC().Config(0xA2, 0x00)
	require.True(t, ok)
	assert.Equal(t, []byte{0x44, 0x33, 0x22, 0x11, 0x88, 0x77, 0x66, 0x55}, block0)
	assert.Equal(t, 3, vc.GetCommandCount(0x20, 0x02, 0x0A, 0x01, 0xA0, 0x0D))
}

func TestSuite_RejectedWrite(t *testing.T) {
	t.Parallel()

	// Block F0 is outside the simulated EEPROM.
	stream := make([]byte, EEPROMChunk*0xF1)
	steps, err := EEPROMSteps(stream)
	require.NoError(t, err)
	last := steps[len(steps)-1]

	vc := virt.NewVirtualController()
	s := nci.NewSession(vc, nci.WithCallbackTimeout(time.Second), nci.WithEventTimeout(time.Second))
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))
	defer func() { _ = s.Close(ctx, nci.CloseDisable) }()

	rec := nci.NewRecorder("rejected")
	s.Run(ctx, rec, last)
	assert.True(t, rec.Failed())
	assert.Equal(t, "SET_CONFIG A2F0", last.Name)
}
