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

// Package chardev finds controllers exposed by a kernel driver as a device
// node. Importing it registers the detector.
package chardev

import (
	"context"
	"io/fs"
	"os"
	"time"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/detection"
	"github.com/ZaparooProject/go-nci/transport/chardev"
)

// Nodes are the device nodes created by the NXP and mainline drivers.
var Nodes = []string{
	chardev.DefaultPath,
	"/dev/nxpnfc",
	"/dev/pn553",
	"/dev/pn544",
	"/dev/nfc0",
}

type detector struct {
	stat  func(name string) (fs.FileInfo, error)
	probe func(ctx context.Context, path string, timeout time.Duration) (nci.Version, error)
	nodes []string
}

// New returns the device node detector.
func New() detection.Detector {
	return &detector{stat: os.Stat, probe: probeNode, nodes: Nodes}
}

func init() {
	detection.RegisterDetector(New())
}

func (*detector) Backend() nci.Backend {
	return nci.BackendCharDev
}

// Detect reports the character devices in Nodes that exist. A node only
// exists when a driver bound to a controller, so those start at medium
// confidence.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	var devices []detection.DeviceInfo
	for _, node := range d.nodes {
		if ctx.Err() != nil {
			break
		}
		if detection.IsPathIgnored(node, opts.IgnorePaths) {
			continue
		}
		fi, err := d.stat(node)
		if err != nil || fi.Mode()&fs.ModeCharDevice == 0 {
			continue
		}
		dev := detection.DeviceInfo{
			Backend:    nci.BackendCharDev,
			Path:       node,
			Name:       fi.Name(),
			Confidence: detection.Medium,
		}
		if opts.Mode == detection.Probe {
			v, err := d.probe(ctx, node, opts.ProbeTimeout)
			if err != nil {
				// The node is there but busy, usually held by the NFC
				// service. Keep it so the operator can stop the service.
				nci.Debugf("chardev detect: %s: %v", node, err)
			} else {
				dev.Confidence = detection.High
				dev.Version = v
			}
		}
		devices = append(devices, dev)
	}
	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func probeNode(ctx context.Context, path string, timeout time.Duration) (nci.Version, error) {
	return detection.ProbeHAL(ctx, chardev.New(path), timeout)
}
