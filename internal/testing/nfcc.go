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

// Package testing provides a simulated NFC controller for exercising the
// harness without hardware.
//
// NFCC models the controller at the NCI message level: it answers core,
// RF and NXP proprietary commands, keeps a configuration memory that
// GET/SET_CONFIG operate on, and echoes data on a loopback connection.
// VirtualController wraps it as an nci.HAL, and Wire exposes it as a byte
// stream for transport tests.
package testing

import (
	"bytes"
	"fmt"

	"github.com/ZaparooProject/go-nci"
)

// LoopbackConnID is the connection ID handed out for loopback connections.
const LoopbackConnID byte = 0x01

// DefaultCTSNotifications is how many notifications RF_DISCOVER produces in
// CTS mode.
const DefaultCTSNotifications = 10

// eepromSize bounds the A2xx configuration space. Identifiers at or above it
// are rejected with STATUS_INVALID_PARAM.
const eepromSize = 0xF0

// FirmwareVersion is reported by PROP_ACT.
var FirmwareVersion = []byte{0x12, 0x02, 0x10, 0x00}

// NFCC is a simulated controller. It is not safe for concurrent use;
// VirtualController serialises access.
type NFCC struct {
	config           map[string][]byte
	ctsNotifications int
	version          nci.Version
	connCredits      byte
	initialized      bool
	rfOn             bool
	ctsMode          bool
	prbsActive       bool
	standby          bool
	loopbackOpen     bool
}

// NewNFCC creates an NCI 2.0 controller in its power-on state.
func NewNFCC() *NFCC {
	n := &NFCC{
		version:          nci.Version20,
		config:           make(map[string][]byte),
		ctsNotifications: DefaultCTSNotifications,
	}
	n.PowerOn()
	return n
}

// SetVersion makes the controller speak NCI 1.x or 2.x.
func (n *NFCC) SetVersion(v nci.Version) {
	n.version = v
}

// Version returns the NCI version in use.
func (n *NFCC) Version() nci.Version {
	return n.version
}

// SetCTSNotifications sets how many notifications RF_DISCOVER produces in CTS mode.
func (n *NFCC) SetCTSNotifications(count int) {
	n.ctsNotifications = count
}

// PowerOn clears volatile state. Configuration survives, as it does in
// controller EEPROM.
func (n *NFCC) PowerOn() {
	n.initialized = false
	n.rfOn = true
	n.ctsMode = false
	n.prbsActive = false
	n.standby = false
	n.loopbackOpen = false
	n.connCredits = 0
}

// Config returns a copy of the stored value for a configuration identifier.
func (n *NFCC) Config(id ...byte) ([]byte, bool) {
	v, ok := n.config[string(id)]
	return append([]byte(nil), v...), ok
}

// SetConfigValue stores a configuration value directly.
func (n *NFCC) SetConfigValue(id []byte, value []byte) {
	n.config[string(id)] = append([]byte(nil), value...)
}

// RFOn reports the RF field state.
func (n *NFCC) RFOn() bool { return n.rfOn }

// PRBSActive reports whether a PRBS test is running.
func (n *NFCC) PRBSActive() bool { return n.prbsActive }

// Initialized reports whether CORE_INIT has succeeded since the last reset.
func (n *NFCC) Initialized() bool { return n.initialized }

// Handle processes one host frame and returns what the controller sends back,
// in order.
func (n *NFCC) Handle(raw []byte) [][]byte {
	f := nci.Frame(raw)
	if len(raw) < 3 {
		return [][]byte{nci.NewNotification(nci.GIDCore, nci.OIDCoreGenericError, byte(nci.StatusSyntaxError))}
	}
	if f.MT() == nci.MTData {
		return n.handleData(f)
	}
	if f.MT() != nci.MTCommand {
		return nil
	}
	if !f.Valid() {
		return rsp(f, nci.StatusSyntaxError)
	}

	switch f.GID() {
	case nci.GIDCore:
		return n.handleCore(f)
	case nci.GIDRF:
		return n.handleRF(f)
	case nci.GIDProprietary:
		return n.handleProprietary(f)
	default:
		return [][]byte{nci.NewNotification(nci.GIDCore, nci.OIDCoreGenericError, byte(nci.StatusSyntaxError))}
	}
}

func rsp(cmd nci.Frame, status nci.Status, payload ...byte) [][]byte {
	return [][]byte{nci.NewResponse(cmd.GID(), cmd.OID(), append([]byte{byte(status)}, payload...)...)}
}

func (n *NFCC) handleCore(f nci.Frame) [][]byte {
	p := f.Payload()
	switch f.OID() {
	case nci.OIDCoreReset:
		return n.coreReset(f, p)
	case nci.OIDCoreInit:
		return n.coreInit(f)
	case nci.OIDCoreSetConfig:
		return n.setConfig(f, p)
	case nci.OIDCoreGetConfig:
		return n.getConfig(f, p)
	case nci.OIDCoreConnCreate:
		if len(p) < 2 || p[0] != nci.DestLoopback {
			return rsp(f, nci.StatusRejected)
		}
		n.loopbackOpen = true
		n.connCredits = 1
		return rsp(f, nci.StatusOK, 0xFC, n.connCredits, LoopbackConnID)
	case nci.OIDCoreConnClose:
		if len(p) != 1 || p[0] != LoopbackConnID || !n.loopbackOpen {
			return rsp(f, nci.StatusRejected)
		}
		n.loopbackOpen = false
		return rsp(f, nci.StatusOK)
	default:
		return [][]byte{nci.NewNotification(nci.GIDCore, nci.OIDCoreGenericError, byte(nci.StatusSyntaxError))}
	}
}

func (n *NFCC) coreReset(f nci.Frame, p []byte) [][]byte {
	if len(p) != 1 {
		return rsp(f, nci.StatusSyntaxError)
	}
	resetConfig := p[0]
	n.PowerOn()

	if !n.version.Is2x() {
		return rsp(f, nci.StatusOK, byte(n.version), resetConfig)
	}
	ntf := nci.NewNotification(nci.GIDCore, nci.OIDCoreReset,
		nci.ResetReasonCommand, resetConfig, byte(n.version),
		0x04, 0x04, 0x51, 0x12, 0x01, 0x90)
	return append(rsp(f, nci.StatusOK), ntf)
}

func (n *NFCC) coreInit(f nci.Frame) [][]byte {
	want := nci.CoreInit(n.version)
	if f.PayloadLen() != want.PayloadLen() {
		return rsp(f, nci.StatusSyntaxError)
	}
	n.initialized = true
	if !n.version.Is2x() {
		// features(4) interfaces(1) iface max logical conns, routing size(2),
		// max ctrl payload, max large params(2), manufacturer(1) info(4)
		return rsp(f, nci.StatusOK,
			0x1E, 0x03, 0x00, 0x08, 0x02, 0x01, 0x02, 0x01, 0x00, 0x02,
			0xC8, 0x00, 0xFF, 0x02, 0x00, 0x04, 0x04, 0x51, 0x12, 0x01)
	}
	return rsp(f, nci.StatusOK,
		0x1A, 0x7E, 0x06, 0x02, 0x01, 0xD0, 0x02, 0xFF, 0xFF, 0x01, 0xFF,
		0x00, 0x08, 0x00, 0x01, 0x01, 0x00, 0x02, 0x00, 0x03, 0x00, 0x80, 0x00, 0x82, 0x00)
}

// parseConfigID reads a one-byte identifier, or two bytes for the A0..AF
// extension space.
func parseConfigID(p []byte) ([]byte, []byte, bool) {
	if len(p) == 0 {
		return nil, nil, false
	}
	if p[0]&0xF0 == 0xA0 {
		if len(p) < 2 {
			return nil, nil, false
		}
		return p[:2], p[2:], true
	}
	return p[:1], p[1:], true
}

func validID(id []byte) bool {
	if len(id) == 2 && id[0] == 0xA2 {
		return id[1] < eepromSize
	}
	return true
}

func (n *NFCC) setConfig(f nci.Frame, p []byte) [][]byte {
	if len(p) < 1 {
		return rsp(f, nci.StatusSyntaxError)
	}
	count := int(p[0])
	rest := p[1:]
	var invalid [][]byte
	for range count {
		id, after, ok := parseConfigID(rest)
		if !ok || len(after) < 1 || len(after) < 1+int(after[0]) {
			return rsp(f, nci.StatusSyntaxError)
		}
		vlen := int(after[0])
		value := after[1 : 1+vlen]
		rest = after[1+vlen:]
		if !validID(id) {
			invalid = append(invalid, id)
			continue
		}
		n.config[string(id)] = append([]byte(nil), value...)
	}
	if len(invalid) > 0 {
		out := []byte{byte(len(invalid))}
		for _, id := range invalid {
			out = append(out, id...)
		}
		return rsp(f, nci.StatusInvalidParam, out...)
	}
	return rsp(f, nci.StatusOK, 0x00)
}

func (n *NFCC) getConfig(f nci.Frame, p []byte) [][]byte {
	if len(p) < 1 {
		return rsp(f, nci.StatusSyntaxError)
	}
	count := int(p[0])
	rest := p[1:]
	var ok []byte
	var bad []byte
	okCount, badCount := 0, 0
	for range count {
		id, after, parsed := parseConfigID(rest)
		if !parsed {
			return rsp(f, nci.StatusSyntaxError)
		}
		rest = after
		if !validID(id) {
			bad = append(bad, id...)
			bad = append(bad, 0x00)
			badCount++
			continue
		}
		value, found := n.config[string(id)]
		if !found {
			value = defaultConfigValue(id)
		}
		ok = append(ok, id...)
		ok = append(ok, byte(len(value)))
		ok = append(ok, value...)
		okCount++
	}
	// Bytes after the identifiers (a protocol index for A00D) are accepted
	// and ignored.
	if badCount > 0 {
		return rsp(f, nci.StatusInvalidParam, append([]byte{byte(badCount)}, bad...)...)
	}
	return rsp(f, nci.StatusOK, append([]byte{byte(okCount)}, ok...)...)
}

func defaultConfigValue(id []byte) []byte {
	switch {
	case len(id) == 2 && id[0] == 0xA2:
		return make([]byte, 8)
	case bytes.Equal(id, []byte{0xA0, 0x0D}):
		return make([]byte, 6)
	default:
		return []byte{0x00}
	}
}

func (n *NFCC) handleRF(f nci.Frame) [][]byte {
	switch f.OID() {
	case nci.OIDRFDiscover:
		out := rsp(f, nci.StatusOK)
		if n.ctsMode {
			for i := range n.ctsNotifications {
				out = append(out, nci.NewNotification(nci.GIDProprietary, nci.OIDPropCTS, byte(i), 0x00))
			}
		}
		return out
	case nci.OIDRFDiscoverMap, nci.OIDRFDeactivate:
		return rsp(f, nci.StatusOK)
	default:
		return rsp(f, nci.StatusRejected)
	}
}

func (n *NFCC) handleProprietary(f nci.Frame) [][]byte {
	p := f.Payload()
	switch f.OID() {
	case nci.OIDPropActivate:
		return rsp(f, nci.StatusOK, FirmwareVersion...)
	case nci.OIDPropStandby:
		if len(p) != 1 {
			return rsp(f, nci.StatusSyntaxError)
		}
		n.standby = p[0] == 0x01
		return rsp(f, nci.StatusOK)
	case nci.OIDPropPRBS:
		if len(p) != 6 || p[0] > 1 || p[1] > 1 || p[2] > 2 || p[3] > 3 {
			return rsp(f, nci.StatusInvalidParam)
		}
		n.prbsActive = true
		return rsp(f, nci.StatusOK)
	case nci.OIDPropRFFieldControl:
		if len(p) == 0 {
			return rsp(f, nci.StatusSyntaxError)
		}
		// 1.0 firmware takes a 0x32 selector, 2.x firmware the bare form.
		n.rfOn = len(p) > 1
		n.prbsActive = n.prbsActive && n.rfOn
		return rsp(f, nci.StatusOK)
	case nci.OIDPropRFSettings, nci.OIDPropSWPSwitch, nci.OIDPropAntennaTest:
		if len(p) == 0 {
			return rsp(f, nci.StatusSyntaxError)
		}
		return rsp(f, nci.StatusOK)
	case nci.OIDPropCTS:
		if len(p) == 2 && p[0] == 0x81 {
			n.ctsMode = p[1] == 0x01
		}
		return rsp(f, nci.StatusOK)
	default:
		return [][]byte{nci.NewNotification(nci.GIDCore, nci.OIDCoreGenericError, byte(nci.StatusSyntaxError))}
	}
}

func (n *NFCC) handleData(f nci.Frame) [][]byte {
	if !n.loopbackOpen || f.GID() != LoopbackConnID {
		return [][]byte{nci.NewNotification(nci.GIDCore, nci.OIDCoreInterfaceErr, byte(nci.StatusRejected), f.GID())}
	}
	echo := nci.NewData(LoopbackConnID, f.Payload()...)
	credits := nci.NewNotification(nci.GIDCore, nci.OIDCoreConnCredits, 0x01, LoopbackConnID, 0x01)
	return [][]byte{credits, echo}
}

// String summarises the controller state for test failure messages.
func (n *NFCC) String() string {
	return fmt.Sprintf("NFCC{nci=%s init=%t rf=%t prbs=%t cts=%t loopback=%t}",
		n.version, n.initialized, n.rfOn, n.prbsActive, n.ctsMode, n.loopbackOpen)
}
