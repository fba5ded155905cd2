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

// Package i2c finds NCI controllers on I2C buses known to periph. Importing
// it registers the detector.
package i2c

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/detection"
	"github.com/ZaparooProject/go-nci/transport/i2c"
)

// Addresses are the four addresses NXP controllers strap to.
var Addresses = []uint16{0x28, 0x29, 0x2A, 0x2B}

type detector struct {
	buses func() ([]string, error)
	probe func(ctx context.Context, path string, timeout time.Duration) (nci.Version, error)
	addrs []uint16
}

// New returns the I2C detector.
func New() detection.Detector {
	return &detector{buses: listBuses, probe: probeAddress, addrs: Addresses}
}

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Backend() nci.Backend {
	return nci.BackendI2C
}

func listBuses() ([]string, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	refs := i2creg.All()
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.Name)
	}
	return names, nil
}

// Path joins a bus name and an address the way transport/i2c parses it.
func Path(bus string, addr uint16) string {
	return fmt.Sprintf("%s:0x%02X", bus, addr)
}

// Detect reports each bus at the default address in passive mode. In probe
// mode every address in Addresses is tried on every bus.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	buses, err := d.buses()
	if err != nil {
		return nil, err
	}

	var devices []detection.DeviceInfo
	for _, bus := range buses {
		if detection.IsPathIgnored(bus, opts.IgnorePaths) {
			continue
		}
		if opts.Mode == detection.Passive {
			devices = append(devices, detection.DeviceInfo{
				Backend:    nci.BackendI2C,
				Path:       Path(bus, i2c.DefaultAddress),
				Name:       bus,
				Confidence: detection.Low,
			})
			continue
		}
		for _, addr := range d.addrs {
			if ctx.Err() != nil {
				return devices, nil
			}
			path := Path(bus, addr)
			if detection.IsPathIgnored(path, opts.IgnorePaths) {
				continue
			}
			v, err := d.probe(ctx, path, opts.ProbeTimeout)
			if err != nil {
				nci.Debugf("i2c detect: %s: %v", path, err)
				continue
			}
			devices = append(devices, detection.DeviceInfo{
				Backend:    nci.BackendI2C,
				Path:       path,
				Name:       bus,
				Version:    v,
				Confidence: detection.High,
				Metadata:   map[string]string{"address": fmt.Sprintf("0x%02X", addr)},
			})
		}
	}
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func probeAddress(ctx context.Context, path string, timeout time.Duration) (nci.Version, error) {
	return detection.ProbeHAL(ctx, i2c.New(path), timeout)
}
