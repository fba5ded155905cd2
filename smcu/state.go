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

package smcu

import (
	"time"

	"github.com/ZaparooProject/go-nci"
)

// Phase is where the switcher is in its menu loop.
type Phase int

const (
	PhaseAwaitingChoice Phase = iota
	PhaseSwitching
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseAwaitingChoice:
		return "awaiting choice"
	case PhaseSwitching:
		return "switching"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Action is what a menu choice leads to.
type Action int

const (
	// ActionRetry rejects the choice and asks again.
	ActionRetry Action = iota
	// ActionAlready reports that the host already owns the eSE.
	ActionAlready
	// ActionSwitch hands the eSE to the SMCU and keeps the menu open.
	ActionSwitch
	// ActionSwitchAndExit hands the eSE back to Android and ends the loop.
	ActionSwitchAndExit
	// ActionDownload starts a secure firmware download and ends the loop.
	ActionDownload
	// ActionExit ends the loop without a switch.
	ActionExit
)

// ModeState tracks which host owns the embedded secure element.
type ModeState struct {
	LastSwitch time.Time
	Current    nci.EseUpdateState
	Phase      Phase
	Switches   int
}

// NewModeState starts with Android owning the eSE, as after boot.
func NewModeState() *ModeState {
	return &ModeState{Current: nci.EseUpdateNFC, Phase: PhaseAwaitingChoice}
}

// Decide maps a menu choice to an action without changing state.
func (ms *ModeState) Decide(choice int) Action {
	mode := nci.EseUpdateState(choice)
	if mode == ms.Current {
		if mode == nci.EseUpdateNFC {
			return ActionExit
		}
		return ActionAlready
	}
	switch mode {
	case nci.EseUpdateSMCU:
		return ActionSwitch
	case nci.EseUpdateNFC:
		return ActionSwitchAndExit
	case nci.EseUpdateFirmware:
		return ActionDownload
	default:
		return ActionRetry
	}
}

// TransitionToSwitching records the new owner before the vendor call, so a
// rejected switch still counts as the current mode.
func (ms *ModeState) TransitionToSwitching(mode nci.EseUpdateState) {
	ms.Phase = PhaseSwitching
	ms.Current = mode
	ms.LastSwitch = time.Now()
	ms.Switches++
}

// TransitionToAwaiting returns to the menu.
func (ms *ModeState) TransitionToAwaiting() {
	ms.Phase = PhaseAwaitingChoice
}

// TransitionToDone ends the loop.
func (ms *ModeState) TransitionToDone() {
	ms.Phase = PhaseDone
}
