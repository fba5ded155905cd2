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

package selftest

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/go-nci"
)

// Technology is the RF technology a PRBS stream is modulated with.
type Technology byte

// RF technologies
const (
	TechA Technology = 0x00
	TechB Technology = 0x01
	TechF Technology = 0x02
)

func (t Technology) String() string {
	switch t {
	case TechA:
		return "A"
	case TechB:
		return "B"
	case TechF:
		return "F"
	default:
		return fmt.Sprintf("tech(%d)", byte(t))
	}
}

// Bitrate is the PRBS bit rate.
type Bitrate byte

// Bit rates in kbit/s
const (
	Rate106 Bitrate = 0x00
	Rate212 Bitrate = 0x01
	Rate424 Bitrate = 0x02
	Rate848 Bitrate = 0x03
)

func (b Bitrate) String() string {
	return fmt.Sprintf("%d", 106<<b)
}

// PRBSTest is one PRBS configuration. Firmware mode generates PRBS9; in
// hardware mode PRBS15 selects the longer sequence.
type PRBSTest struct {
	Tech     Technology
	Rate     Bitrate
	Hardware bool
	PRBS15   bool
}

// Name is the case name, e.g. Prbs_HW_PRBS9_A_106.
func (p PRBSTest) Name() string {
	if !p.Hardware {
		return fmt.Sprintf("Prbs_FW_%s_%s", p.Tech, p.Rate)
	}
	seq := "PRBS9"
	if p.PRBS15 {
		seq = "PRBS15"
	}
	return fmt.Sprintf("Prbs_HW_%s_%s_%s", seq, p.Tech, p.Rate)
}

// Command builds the proprietary PRBS start command.
func (p PRBSTest) Command() nci.Frame {
	return nci.NewCommand(nci.GIDProprietary, nci.OIDPropPRBS,
		boolByte(p.Hardware), boolByte(p.PRBS15), byte(p.Tech), byte(p.Rate), 0x01, 0x01)
}

func boolByte(b bool) byte {
	if b {
		return 0x01
	}
	return 0x00
}

// PRBSTests is the PRBS matrix run by the PRBS suites.
var PRBSTests = []PRBSTest{
	{Tech: TechA, Rate: Rate106},
	{Tech: TechA, Rate: Rate212},
	{Tech: TechA, Rate: Rate424},
	{Tech: TechA, Rate: Rate848},
	{Tech: TechB, Rate: Rate848},
	{Tech: TechB, Rate: Rate424},
	{Tech: TechB, Rate: Rate212},
	{Tech: TechB, Rate: Rate106},
	{Tech: TechF, Rate: Rate212},
	{Tech: TechF, Rate: Rate424},
	{Tech: TechA, Rate: Rate106, Hardware: true},
	{Tech: TechA, Rate: Rate212, Hardware: true},
	{Tech: TechA, Rate: Rate424, Hardware: true},
	{Tech: TechA, Rate: Rate848, Hardware: true},
	{Tech: TechB, Rate: Rate848, Hardware: true, PRBS15: true},
	// Sends Rate424; legacy NXP harness builds sent 0x00 here.
	{Tech: TechB, Rate: Rate424, Hardware: true, PRBS15: true},
}

// Proprietary commands used before a PRBS run.
var (
	propActivate   = nci.NewCommand(nci.GIDProprietary, nci.OIDPropActivate)
	disableStandby = nci.NewCommand(nci.GIDProprietary, nci.OIDPropStandby, 0x00)
)

// prbsActivateRspLen is STATUS_OK followed by the 4-byte firmware version.
const prbsActivateRspLen = 8

// prbsCase resets the controller, starts the PRBS stream and power cycles to
// stop it. A PRBS stream can only be ended by a reset. prolong applies the
// longer wait to the slow proprietary commands.
func prbsCase(p PRBSTest, prolong bool) nci.TestCase {
	wait := func(e nci.Expectation) nci.Expectation {
		if prolong {
			return e.Prolonged()
		}
		return e
	}
	return nci.TestCase{
		Name: p.Name(),
		Steps: []nci.Step{
			nci.CoreResetStep(false),
			nci.CoreInitStep(nci.Version20),
			nci.NewStep("PROP_ACT", propActivate, wait(nci.ResponseOK(prbsActivateRspLen))),
			nci.NewStep("DISABLE_STANDBY", disableStandby, wait(nci.ResponseOK(4))),
			nci.NewStep("PRBS "+p.Name(), p.Command(), wait(nci.ResponseOK(4))),
		},
		Run: powerCycle,
	}
}

func prbsCases(prolong bool) []nci.TestCase {
	cases := make([]nci.TestCase, 0, len(PRBSTests))
	for _, p := range PRBSTests {
		cases = append(cases, prbsCase(p, prolong))
	}
	return cases
}

func aidlPRBS(Options) nci.Suite {
	return nci.Suite{
		Name:        "aidl-prbs",
		Description: "PRBS matrix over the AIDL HAL, closed as host switched off",
		Cases:       append(prbsCases(true), transitCase()),
		CloseType:   nci.CloseHostSwitchedOff,
	}
}

// pn7160 runs the PRBS matrix on a PN7160. SetUp probes the NCI version and
// reopens the HAL so every case starts from a known state. A failed probe is
// recorded against the case, which still runs.
func pn7160(Options) nci.Suite {
	return nci.Suite{
		Name:        "pn7160",
		Description: "PN7160 PRBS matrix with version probe",
		SetUp:       probeAndReopen,
		Cases:       append(prbsCases(false), transitCase()),
		CloseType:   nci.CloseDisable,
	}
}

func probeAndReopen(ctx context.Context, s *nci.Session, rec *nci.Recorder) error {
	if err := s.Open(ctx); err != nil {
		return err
	}
	if v, ok := s.ProbeVersion(ctx, rec); ok {
		nci.Debugf("pn7160: controller reports NCI %s", v)
	}
	if err := s.Close(ctx, nci.CloseDisable); err != nil {
		return err
	}
	return s.Open(ctx)
}
