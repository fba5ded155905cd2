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

import "fmt"

// Group identifiers
const (
	GIDCore        byte = 0x0
	GIDRF          byte = 0x1
	GIDNFCEE       byte = 0x2
	GIDProprietary byte = 0xF
)

// Core group opcodes
const (
	OIDCoreReset         byte = 0x00
	OIDCoreInit          byte = 0x01
	OIDCoreSetConfig     byte = 0x02
	OIDCoreGetConfig     byte = 0x03
	OIDCoreConnCreate    byte = 0x04
	OIDCoreConnClose     byte = 0x05
	OIDCoreConnCredits   byte = 0x06
	OIDCoreGenericError  byte = 0x07
	OIDCoreInterfaceErr  byte = 0x08
	OIDCoreSetPowerSubSt byte = 0x09
)

// RF group opcodes
const (
	OIDRFDiscoverMap byte = 0x00
	OIDRFDiscover    byte = 0x03
	OIDRFDeactivate  byte = 0x06
	OIDRFFieldInfo   byte = 0x07
)

// Proprietary opcodes used by NXP controllers
const (
	OIDPropStandby        byte = 0x00
	OIDPropActivate       byte = 0x02
	OIDPropRFSettings     byte = 0x0E
	OIDPropCTS            byte = 0x22
	OIDPropPRBS           byte = 0x30
	OIDPropAntennaTest    byte = 0x3D
	OIDPropSWPSwitch      byte = 0x3E
	OIDPropRFFieldControl byte = 0x3F
)

// Version is the NCI version reported in CORE_RESET.
type Version byte

const (
	Version10 Version = 0x10
	Version11 Version = 0x11
	Version20 Version = 0x20
)

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", byte(v)>>4, byte(v)&0x0F)
}

// Is2x reports an NCI 2.x controller.
func (v Version) Is2x() bool {
	return byte(v)>>4 == 2
}

// Status is an NCI status code.
type Status byte

const (
	StatusOK                              Status = 0x00
	StatusRejected                        Status = 0x01
	StatusRFFrameCorrupted                Status = 0x02
	StatusFailed                          Status = 0x03
	StatusNotInitialized                  Status = 0x04
	StatusSyntaxError                     Status = 0x05
	StatusSemanticError                   Status = 0x06
	StatusInvalidParam                    Status = 0x09
	StatusMessageSizeExceeded             Status = 0x0A
	StatusDiscoveryAlreadyStarted         Status = 0xA0
	StatusDiscoveryTargetActivationFailed Status = 0xA1
	StatusDiscoveryTearDown               Status = 0xA2
	StatusRFTransmissionError             Status = 0xB0
	StatusRFProtocolError                 Status = 0xB1
	StatusRFTimeoutError                  Status = 0xB2
	StatusNFCEEInterfaceActivationFailed  Status = 0xE0
	StatusNFCEETransmissionError          Status = 0xE1
	StatusNFCEEProtocolError              Status = 0xE2
	StatusNFCEETimeoutError               Status = 0xE3
)

var statusNames = map[Status]string{
	StatusOK:                              "STATUS_OK",
	StatusRejected:                        "STATUS_REJECTED",
	StatusRFFrameCorrupted:                "STATUS_RF_FRAME_CORRUPTED",
	StatusFailed:                          "STATUS_FAILED",
	StatusNotInitialized:                  "STATUS_NOT_INITIALIZED",
	StatusSyntaxError:                     "STATUS_SYNTAX_ERROR",
	StatusSemanticError:                   "STATUS_SEMANTIC_ERROR",
	StatusInvalidParam:                    "STATUS_INVALID_PARAM",
	StatusMessageSizeExceeded:             "STATUS_MESSAGE_SIZE_EXCEEDED",
	StatusDiscoveryAlreadyStarted:         "DISCOVERY_ALREADY_STARTED",
	StatusDiscoveryTargetActivationFailed: "DISCOVERY_TARGET_ACTIVATION_FAILED",
	StatusDiscoveryTearDown:               "DISCOVERY_TEAR_DOWN",
	StatusRFTransmissionError:             "RF_TRANSMISSION_ERROR",
	StatusRFProtocolError:                 "RF_PROTOCOL_ERROR",
	StatusRFTimeoutError:                  "RF_TIMEOUT_ERROR",
	StatusNFCEEInterfaceActivationFailed:  "NFCEE_INTERFACE_ACTIVATION_FAILED",
	StatusNFCEETransmissionError:          "NFCEE_TRANSMISSION_ERROR",
	StatusNFCEEProtocolError:              "NFCEE_PROTOCOL_ERROR",
	StatusNFCEETimeoutError:               "NFCEE_TIMEOUT_ERROR",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS_UNKNOWN(0x%02X)", byte(s))
}

// Reset notification reason codes (payload byte 0, frame byte 3).
const (
	ResetReasonUnspecified    byte = 0x00
	ResetReasonCorruptedParam byte = 0x01
	ResetReasonCommand        byte = 0x02
)

// Reset configuration status (frame byte 4).
const (
	ResetConfigKept  byte = 0x00
	ResetConfigReset byte = 0x01
)

// CoreReset builds CORE_RESET_CMD. resetConfig selects "reset configuration"
// over "keep configuration".
func CoreReset(resetConfig bool) Frame {
	if resetConfig {
		return NewCommand(GIDCore, OIDCoreReset, 0x01)
	}
	return NewCommand(GIDCore, OIDCoreReset, 0x00)
}

// CoreInit builds CORE_INIT_CMD in the form the given version expects.
// NCI 2.0 carries two feature-enable bytes, NCI 1.x none.
func CoreInit(v Version) Frame {
	if v.Is2x() {
		return NewCommand(GIDCore, OIDCoreInit, 0x00, 0x00)
	}
	return NewCommand(GIDCore, OIDCoreInit)
}

// CoreSetConfig builds CORE_SET_CONFIG_CMD for a single parameter.
func CoreSetConfig(param []byte, value []byte) Frame {
	payload := make([]byte, 0, 2+len(param)+len(value))
	payload = append(payload, 0x01)
	payload = append(payload, param...)
	payload = append(payload, byte(len(value)))
	payload = append(payload, value...)
	return NewCommand(GIDCore, OIDCoreSetConfig, payload...)
}

// CoreGetConfig builds CORE_GET_CONFIG_CMD for a single parameter.
func CoreGetConfig(param ...byte) Frame {
	payload := make([]byte, 0, 1+len(param))
	payload = append(payload, 0x01)
	payload = append(payload, param...)
	return NewCommand(GIDCore, OIDCoreGetConfig, payload...)
}

// Destination types for CORE_CONN_CREATE
const (
	DestLoopback byte = 0x01
	DestRemote   byte = 0x02
	DestNFCEE    byte = 0x03
)

// CoreConnCreate builds CORE_CONN_CREATE_CMD with no destination parameters.
func CoreConnCreate(dest byte) Frame {
	return NewCommand(GIDCore, OIDCoreConnCreate, dest, 0x00)
}

// CoreConnClose builds CORE_CONN_CLOSE_CMD.
func CoreConnClose(connID byte) Frame {
	return NewCommand(GIDCore, OIDCoreConnClose, connID)
}

// RFFieldOff builds the proprietary RF field control command in its
// single-byte form; controllers answer with exactly 4F 3F 01 00.
func RFFieldOff() Frame {
	return NewCommand(GIDProprietary, OIDPropRFFieldControl, 0x00)
}

var opcodeNames = map[uint16]string{
	uint16(GIDCore)<<8 | uint16(OIDCoreReset):                "CORE_RESET",
	uint16(GIDCore)<<8 | uint16(OIDCoreInit):                 "CORE_INIT",
	uint16(GIDCore)<<8 | uint16(OIDCoreSetConfig):            "CORE_SET_CONFIG",
	uint16(GIDCore)<<8 | uint16(OIDCoreGetConfig):            "CORE_GET_CONFIG",
	uint16(GIDCore)<<8 | uint16(OIDCoreConnCreate):           "CORE_CONN_CREATE",
	uint16(GIDCore)<<8 | uint16(OIDCoreConnClose):            "CORE_CONN_CLOSE",
	uint16(GIDCore)<<8 | uint16(OIDCoreConnCredits):          "CORE_CONN_CREDITS",
	uint16(GIDCore)<<8 | uint16(OIDCoreGenericError):         "CORE_GENERIC_ERROR",
	uint16(GIDCore)<<8 | uint16(OIDCoreInterfaceErr):         "CORE_INTERFACE_ERROR",
	uint16(GIDCore)<<8 | uint16(OIDCoreSetPowerSubSt):        "CORE_SET_POWER_SUB_STATE",
	uint16(GIDRF)<<8 | uint16(OIDRFDiscoverMap):              "RF_DISCOVER_MAP",
	uint16(GIDRF)<<8 | uint16(OIDRFDiscover):                 "RF_DISCOVER",
	uint16(GIDRF)<<8 | uint16(OIDRFDeactivate):               "RF_DEACTIVATE",
	uint16(GIDRF)<<8 | uint16(OIDRFFieldInfo):                "RF_FIELD_INFO",
	uint16(GIDProprietary)<<8 | uint16(OIDPropStandby):        "PROP_STANDBY",
	uint16(GIDProprietary)<<8 | uint16(OIDPropActivate):       "PROP_ACT",
	uint16(GIDProprietary)<<8 | uint16(OIDPropRFSettings):     "PROP_RF_SETTINGS",
	uint16(GIDProprietary)<<8 | uint16(OIDPropCTS):            "PROP_CTS",
	uint16(GIDProprietary)<<8 | uint16(OIDPropPRBS):           "PROP_PRBS",
	uint16(GIDProprietary)<<8 | uint16(OIDPropAntennaTest):    "PROP_ANTENNA_TEST",
	uint16(GIDProprietary)<<8 | uint16(OIDPropSWPSwitch):      "PROP_SWP_SWITCH",
	uint16(GIDProprietary)<<8 | uint16(OIDPropRFFieldControl): "PROP_RF_FIELD",
}

func opcodeName(gid, oid byte) string {
	if name, ok := opcodeNames[uint16(gid)<<8|uint16(oid)]; ok {
		return name
	}
	return fmt.Sprintf("GID%X/OID%02X", gid, oid)
}
