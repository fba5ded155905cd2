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

// Package uart finds NCI controllers behind serial ports. Importing it
// registers the detector.
package uart

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.bug.st/serial/enumerator"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/detection"
	"github.com/ZaparooProject/go-nci/transport/uart"
)

// knownBridges are USB serial bridges found on NCI evaluation boards.
var knownBridges = []string{
	"0403:6001", // FTDI FT232R
	"0403:6015", // FTDI FT231X
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
	"1FC9:0117", // NXP LPC USB CDC
}

var productKeywords = []string{"nfc", "nci", "pn71", "pn72", "nxp"}

type prober func(ctx context.Context, path string, timeout time.Duration) (nci.Version, error)

type detector struct {
	list  func() ([]*enumerator.PortDetails, error)
	probe prober
}

// New returns the serial port detector.
func New() detection.Detector {
	return &detector{list: enumerator.GetDetailedPortsList, probe: probePort}
}

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Backend() nci.Backend {
	return nci.BackendUART
}

// Detect lists serial ports and, in probe mode, sends CORE_RESET to each
// USB port that is not blocked or ignored.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := d.list()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for _, p := range ports {
		if ctx.Err() != nil {
			break
		}
		if dev, ok := d.processPort(ctx, p, opts); ok {
			devices = append(devices, dev)
		}
	}
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func vidpid(p *enumerator.PortDetails) string {
	if !p.IsUSB || p.VID == "" || p.PID == "" {
		return ""
	}
	return strings.ToUpper(p.VID + ":" + p.PID)
}

func isLikelyController(p *enumerator.PortDetails) bool {
	if slices.Contains(knownBridges, vidpid(p)) {
		return true
	}
	product := strings.ToLower(p.Product)
	for _, k := range productKeywords {
		if strings.Contains(product, k) {
			return true
		}
	}
	return false
}

func (d *detector) processPort(ctx context.Context, p *enumerator.PortDetails, opts *detection.Options) (detection.DeviceInfo, bool) {
	vp := vidpid(p)
	if vp != "" && detection.IsBlocked(vp, opts.Blocklist) {
		return detection.DeviceInfo{}, false
	}
	if detection.IsPathIgnored(p.Name, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}
	likely := isLikelyController(p)

	dev := detection.DeviceInfo{
		Backend:    nci.BackendUART,
		Path:       p.Name,
		Name:       p.Product,
		Confidence: detection.Medium,
		Metadata:   make(map[string]string),
	}
	if vp != "" {
		dev.Metadata["vidpid"] = vp
	}
	if p.SerialNumber != "" {
		dev.Metadata["serial"] = p.SerialNumber
	}

	if opts.Mode == detection.Passive {
		return dev, likely
	}
	// Built-in UARTs are only opened when something marks them as ours.
	if !p.IsUSB && !likely {
		return detection.DeviceInfo{}, false
	}
	// One attempt only: the port may belong to something that is not an
	// NFC controller.
	v, err := d.probe(ctx, p.Name, opts.ProbeTimeout)
	if err != nil {
		nci.Debugf("uart detect: %s: %v", p.Name, err)
		return detection.DeviceInfo{}, false
	}
	dev.Confidence = detection.High
	dev.Version = v
	return dev, true
}

func probePort(ctx context.Context, path string, timeout time.Duration) (nci.Version, error) {
	return detection.ProbeHAL(ctx, uart.New(path), timeout)
}
