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

package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/platform"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	adapterDisable = "service call nfc 7"
	adapterEnable  = "service call nfc 8"
	voidParcel     = "Result: Parcel(00000000    '....')\n"
)

type fakeModules struct {
	err   error
	modes []platform.I2CMode
}

func (f *fakeModules) SwitchI2CMode(mode platform.I2CMode) error {
	f.modes = append(f.modes, mode)
	return f.err
}

func newTestConfig(mode int, input string) (*config, *platform.MockRunner, *fakeModules, *bytes.Buffer) {
	mock := platform.NewMockRunner()
	mock.SetOutput(adapterDisable, voidParcel)
	mock.SetOutput(adapterEnable, voidParcel)
	mods := &fakeModules{}
	var out bytes.Buffer
	return &config{
		runner:  mock,
		modules: mods,
		prompt:  platform.NewPrompter(strings.NewReader(input), &out),
		mode:    mode,
	}, mock, mods, &out
}

func TestRun_Switches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		wantOut string
		mode    platform.I2CMode
	}{
		{name: "host interface", mode: platform.I2CHostInterface, wantOut: "Remove the J55 jumper"},
		{name: "master", mode: platform.I2CMaster, wantOut: "Short circuit the J55 connector"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, mock, mods, out := newTestConfig(int(tt.mode), "\n")
			require.NoError(t, run(context.Background(), cfg))
			assert.Equal(t, []string{adapterDisable, adapterEnable}, mock.Commands())
			assert.Equal(t, []platform.I2CMode{tt.mode}, mods.modes)
			assert.Contains(t, out.String(), tt.wantOut)
			assert.Contains(t, out.String(), tt.mode.String())
		})
	}
}

func TestRun_InvalidMode(t *testing.T) {
	t.Parallel()

	cfg, mock, _, _ := newTestConfig(2, "\n")
	err := run(context.Background(), cfg)
	require.ErrorIs(t, err, nci.ErrInvalidParameter)
	assert.Empty(t, mock.Commands())
}

func TestRun_ReloadFailureStillEnables(t *testing.T) {
	t.Parallel()

	cfg, mock, mods, _ := newTestConfig(1, "\n")
	boom := errors.New("module busy")
	mods.err = boom

	err := run(context.Background(), cfg)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, mock.Count(adapterEnable))
}

func TestRun_AdapterDisableFails(t *testing.T) {
	t.Parallel()

	mock := platform.NewMockRunner()
	mock.SetOutput(adapterDisable, "Result: Parcel(fffffffc 00000000 '........')\n")
	mods := &fakeModules{}
	cfg := &config{
		runner:  mock,
		modules: mods,
		prompt:  platform.NewPrompter(strings.NewReader("\n"), &bytes.Buffer{}),
		mode:    0,
	}

	err := run(context.Background(), cfg)
	require.ErrorIs(t, err, platform.ErrBadParcel)
	assert.Empty(t, mods.modes)
}

func TestRun_NoOperatorInput(t *testing.T) {
	t.Parallel()

	cfg, _, mods, _ := newTestConfig(0, "")
	err := run(context.Background(), cfg)
	require.Error(t, err)
	assert.Empty(t, mods.modes)
}
