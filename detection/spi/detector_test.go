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

package spi

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/detection"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDetect(t *testing.T) {
	t.Parallel()

	d := &detector{
		ports: func() ([]string, error) { return []string{"/dev/spidev0.0", "/dev/spidev0.1"}, nil },
		probe: func(_ context.Context, path string, _ time.Duration) (nci.Version, error) {
			if path == "/dev/spidev0.1" {
				return nci.Version11, nil
			}
			return 0, detection.ErrNotNCI
		},
	}

	tests := []struct {
		name  string
		want  []string
		mode  detection.Mode
		level detection.Confidence
	}{
		{name: "passive", mode: detection.Passive, want: []string{"/dev/spidev0.0", "/dev/spidev0.1"}, level: detection.Low},
		{name: "probe", mode: detection.Probe, want: []string{"/dev/spidev0.1"}, level: detection.High},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			devs, err := d.Detect(context.Background(), &detection.Options{Mode: tt.mode})
			require.NoError(t, err)
			var got []string
			for _, dev := range devs {
				got = append(got, dev.Path)
				assert.Equal(t, tt.level, dev.Confidence)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetect_PortsFail(t *testing.T) {
	t.Parallel()

	boom := errors.New("no spi")
	d := &detector{ports: func() ([]string, error) { return nil, boom }}
	_, err := d.Detect(context.Background(), &detection.Options{})
	require.ErrorIs(t, err, boom)
}
