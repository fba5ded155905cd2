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
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bareHAL hides MockHAL's vendor methods.
type bareHAL struct{ HAL }

func TestVendorOf(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()

	_, ok := VendorOf(bareHAL{m})
	assert.False(t, ok, "an unwrappable HAL without vendor methods has none")

	v, ok := VendorOf(NewRetryingHAL(m, nil))
	require.True(t, ok)
	assert.Same(t, m, v)

	other := NewMockHAL()
	h := WithVendor(bareHAL{m}, other)
	v, ok = VendorOf(NewRetryingHAL(h, nil))
	require.True(t, ok)
	_, err := v.SetEseUpdateState(context.Background(), EseUpdateNFC)
	require.NoError(t, err)
	assert.Equal(t, []EseUpdateState{EseUpdateNFC}, other.EseCalls())
	assert.Empty(t, m.EseCalls())
}

func TestEnumStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "OPEN_CPLT", EventOpenComplete.String())
	assert.Equal(t, "EVENT(42)", Event(42).String())
	assert.Equal(t, "ERR_TRANSPORT", EventStatusTransportError.String())
	assert.Equal(t, "HOST_SWITCHED_OFF", CloseHostSwitchedOff.String())
	assert.Equal(t, "DISABLE", CloseDisable.String())
	assert.Equal(t, "EMVCo (SMCU)", EseUpdateSMCU.String())
}

func TestEseUpdateState_Valid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state EseUpdateState
		want  bool
	}{
		{0, false},
		{EseUpdateSMCU, true},
		{EseUpdateNFC, true},
		{EseUpdateFirmware, true},
		{4, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.state.Valid(), "state %d", int(tt.state))
	}
}

func TestCallbacks_NilSafe(t *testing.T) {
	t.Parallel()

	var cb Callbacks
	assert.NotPanics(t, func() {
		cb.Emit(EventOpenComplete, EventStatusOK)
		cb.Deliver(resetRsp)
	})
}
