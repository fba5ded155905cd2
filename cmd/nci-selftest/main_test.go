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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ZaparooProject/go-nci"
	virt "github.com/ZaparooProject/go-nci/internal/testing"
	"github.com/ZaparooProject/go-nci/platform"
	"github.com/ZaparooProject/go-nci/results"
	"github.com/ZaparooProject/go-nci/selftest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// newTestConfig runs against the given virtual controller with no settle
// delays.
func newTestConfig(t *testing.T, vc *virt.VirtualController) (*config, *bytes.Buffer) {
	t.Helper()
	base := nci.DefaultConfig()
	base.HAL.Backend = string(nci.BackendVirtual)
	base.HAL.Path = ""
	base.Timeouts.Event = time.Second
	base.Service.DisableSettle = 0
	base.Service.EnableSettle = 0

	var out bytes.Buffer
	return &config{
		nci:    base,
		out:    &out,
		runner: platform.NewMockRunner(),
		newHAL: func(*nci.Config, platform.Runner) (nci.HAL, error) {
			return vc, nil
		},
		suiteOpts: []selftest.Option{selftest.WithSettle(0, 0)},
	}, &out
}

func TestRun_List(t *testing.T) {
	t.Parallel()

	cfg, out := newTestConfig(t, virt.NewVirtualController())
	cfg.list = true

	code, err := run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	for _, name := range selftest.Names() {
		assert.Contains(t, out.String(), name)
	}
}

func TestRun_UsageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		suite string
	}{
		{name: "no suite", suite: ""},
		{name: "unknown suite", suite: "hidl-v9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg, _ := newTestConfig(t, virt.NewVirtualController())
			cfg.nci.Suite.Name = tt.suite

			_, err := run(context.Background(), cfg)
			require.ErrorIs(t, err, nci.ErrInvalidParameter)
		})
	}
}

func TestRun_PassingSuiteStoresReport(t *testing.T) {
	t.Parallel()

	vc := virt.NewVirtualController()
	cfg, out := newTestConfig(t, vc)
	cfg.nci.Suite.Name = "transit"
	cfg.nci.Results.Path = filepath.Join(t.TempDir(), "results.db")

	code, err := run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.False(t, vc.IsOpen())
	assert.Contains(t, out.String(), "stored in")

	store, err := results.Open(cfg.nci.Results.Path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	reps, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, reps, 1)
	assert.Equal(t, "transit", reps[0].Suite)
	assert.Equal(t, 0, reps[0].Failed())
}

func TestRun_FailureWritesCrashReport(t *testing.T) {
	t.Parallel()

	vc := virt.NewVirtualController()
	vc.SetVendorResult(false)
	cfg, _ := newTestConfig(t, vc)
	cfg.nci.Suite.Name = "transit"
	cfg.crashDir = t.TempDir()

	code, err := run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	entries, err := os.ReadDir(cfg.crashDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "nci_crash_")
}

func TestRun_ManagesService(t *testing.T) {
	t.Parallel()

	cfg, _ := newTestConfig(t, virt.NewVirtualController())
	cfg.nci.Suite.Name = "transit"
	cfg.nci.Service.Manage = true
	mock := platform.NewMockRunner()
	cfg.runner = mock

	code, err := run(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, []string{"svc nfc disable", "svc nfc enable"}, mock.Commands())
}

func TestRun_HALError(t *testing.T) {
	t.Parallel()

	cfg, _ := newTestConfig(t, virt.NewVirtualController())
	cfg.nci.Suite.Name = "transit"
	boom := errors.New("no such device")
	cfg.newHAL = func(*nci.Config, platform.Runner) (nci.HAL, error) {
		return nil, boom
	}

	_, err := run(context.Background(), cfg)
	require.ErrorIs(t, err, boom)
}
