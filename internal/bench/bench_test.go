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

package bench

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/detection"
	virt "github.com/ZaparooProject/go-nci/internal/testing"
	"github.com/ZaparooProject/go-nci/platform"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewHAL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		backend    nci.Backend
		path       string
		withRunner bool
		wantVendor bool
	}{
		{name: "virtual", backend: nci.BackendVirtual, wantVendor: true},
		{name: "uart", backend: nci.BackendUART, path: "/dev/ttyUSB0"},
		{name: "uart with binder", backend: nci.BackendUART, path: "/dev/ttyUSB0", withRunner: true, wantVendor: true},
		{name: "i2c", backend: nci.BackendI2C, path: "/dev/i2c-1"},
		{name: "spi", backend: nci.BackendSPI, path: "/dev/spidev0.0"},
		{name: "chardev default node", backend: nci.BackendCharDev, withRunner: true, wantVendor: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := nci.DefaultConfig()
			cfg.HAL.Backend = string(tt.backend)
			cfg.HAL.Path = tt.path
			var r platform.Runner
			if tt.withRunner {
				r = platform.NewMockRunner()
			}
			h, err := NewHAL(cfg, r)
			require.NoError(t, err)
			assert.Equal(t, tt.backend, h.Backend())
			_, ok := nci.VendorOf(h)
			assert.Equal(t, tt.wantVendor, ok)
		})
	}
}

func TestNewHAL_UnknownBackend(t *testing.T) {
	t.Parallel()

	cfg := nci.DefaultConfig()
	cfg.HAL.Backend = "usb"
	_, err := NewHAL(cfg, nil)
	require.ErrorIs(t, err, nci.ErrInvalidParameter)
}

func TestResolve_FixedPath(t *testing.T) {
	t.Parallel()

	cfg := nci.DefaultConfig()
	cfg.HAL.Path = "/dev/nq-nci"
	dev, err := Resolve(context.Background(), cfg, detection.DefaultOptions())
	require.NoError(t, err)
	assert.Nil(t, dev)
	assert.Equal(t, "/dev/nq-nci", cfg.HAL.Path)
}

func TestBest(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Best(nil))
	devs := []detection.DeviceInfo{
		{Path: "/dev/i2c-1:0x28", Confidence: detection.Low},
		{Path: "/dev/nq-nci", Confidence: detection.High},
		{Path: "/dev/ttyUSB0", Confidence: detection.High},
	}
	assert.Equal(t, "/dev/nq-nci", Best(devs).Path)
}

type codedError struct{ code int }

func (e codedError) Error() string { return fmt.Sprintf("code %d", e.code) }
func (e codedError) ExitCode() int { return e.code }

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want int
	}{
		{name: "nil", want: ExitOK},
		{name: "canceled", err: fmt.Errorf("run: %w", context.Canceled), want: ExitOK},
		{name: "usage", err: fmt.Errorf("flag: %w", nci.ErrInvalidParameter), want: ExitUsage},
		{name: "own code", err: fmt.Errorf("wrapped: %w", codedError{code: 20}), want: 20},
		{name: "other", err: errors.New("boom"), want: ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestCrashReports(t *testing.T) {
	t.Parallel()

	finished := time.Date(2026, 4, 2, 13, 14, 15, 0, time.UTC)
	rep := &nci.Report{
		ID:       "7b4a3e0c-2a7e-4f43-9a57-0f5c3b1b2c11",
		Suite:    "hidl-v1.2",
		Backend:  string(nci.BackendVirtual),
		Finished: finished,
		Cases: []nci.CaseResult{
			{Name: "hidl-v1.2.NxpNfc_CoreReset"},
			{Name: "hidl-v1.2.NxpNfc_EEPROM", Disabled: true},
			{
				Name: "hidl-v1.2.NxpNfc_Transit",
				Failures: []nci.Failure{{
					Step:   "SET_CONFIG",
					Detail: "no response within 1s",
					Kind:   nci.FailureTimeout,
				}},
			},
			{Name: "hidl-v1.2.NxpNfc_Loopback", Error: "set up: open virtual: boom"},
		},
	}
	trace := []nci.TraceEntry{
		{Timestamp: finished, Direction: nci.TraceTX, Data: []byte{0x20, 0x00, 0x01, 0x01}},
		{Timestamp: finished, Direction: nci.TraceRX, Data: []byte{0x40, 0x00, 0x01, 0x00}},
	}

	crs := CrashReports(rep, trace)
	require.Len(t, crs, 2)
	assert.Equal(t, "hidl-v1.2.NxpNfc_Transit", crs[0].Case)
	require.Len(t, crs[0].Failures, 1)
	assert.Contains(t, crs[0].Failures[0], "SET_CONFIG")
	assert.Len(t, crs[0].Trace, 2)
	assert.Contains(t, crs[0].Trace[0], "TX")
	assert.Equal(t, "set up: open virtual: boom", crs[1].Error)

	dir := t.TempDir()
	path, err := WriteCrashReport(dir, crs[0])
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nci_crash_hidl-v1_2_NxpNfc_Transit_20260402_131415.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var back CrashReport
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, rep.ID, back.RunID)
	assert.Equal(t, crs[0].Failures, back.Failures)
}

func TestWriteCrashReport_MissingDir(t *testing.T) {
	t.Parallel()

	_, err := WriteCrashReport(filepath.Join(t.TempDir(), "missing"), &CrashReport{Case: "x"})
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewHAL_VirtualOpens(t *testing.T) {
	t.Parallel()

	cfg := nci.DefaultConfig()
	cfg.HAL.Backend = string(nci.BackendVirtual)
	h, err := NewHAL(cfg, nil)
	require.NoError(t, err)
	vc, ok := h.(*virt.VirtualController)
	require.True(t, ok)

	s := nci.NewSession(h, cfg.SessionOptions()...)
	require.NoError(t, s.Open(context.Background()))
	assert.True(t, vc.IsOpen())
	require.NoError(t, s.Close(context.Background(), nci.CloseDisable))
}
