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

// Package spi finds NCI controllers on SPI ports known to periph. Importing
// it registers the detector.
package spi

import (
	"context"
	"fmt"
	"time"

	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/detection"
	"github.com/ZaparooProject/go-nci/transport/spi"
)

type detector struct {
	ports func() ([]string, error)
	probe func(ctx context.Context, path string, timeout time.Duration) (nci.Version, error)
}

// New returns the SPI detector.
func New() detection.Detector {
	return &detector{ports: listPorts, probe: probePort}
}

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Backend() nci.Backend {
	return nci.BackendSPI
}

func listPorts() ([]string, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	refs := spireg.All()
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r.Name)
	}
	return names, nil
}

// Detect reports every SPI port at low confidence in passive mode. An SPI
// slave cannot acknowledge, so only a probe can confirm a controller.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.ports()
	if err != nil {
		return nil, err
	}
	var devices []detection.DeviceInfo
	for _, p := range ports {
		if ctx.Err() != nil {
			break
		}
		if detection.IsPathIgnored(p, opts.IgnorePaths) {
			continue
		}
		dev := detection.DeviceInfo{
			Backend:    nci.BackendSPI,
			Path:       p,
			Name:       fmt.Sprintf("SPI port %s", p),
			Confidence: detection.Low,
		}
		if opts.Mode == detection.Probe {
			v, err := d.probe(ctx, p, opts.ProbeTimeout)
			if err != nil {
				nci.Debugf("spi detect: %s: %v", p, err)
				continue
			}
			dev.Confidence = detection.High
			dev.Version = v
		}
		devices = append(devices, dev)
	}
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func probePort(ctx context.Context, path string, timeout time.Duration) (nci.Version, error) {
	return detection.ProbeHAL(ctx, spi.New(path), timeout)
}
