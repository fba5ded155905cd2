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

// Package bench holds the plumbing the harness binaries share: building a
// HAL from the configuration, finding a controller when no path is given
// and writing crash reports for failed cases.
package bench

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/detection"
	_ "github.com/ZaparooProject/go-nci/detection/chardev"
	_ "github.com/ZaparooProject/go-nci/detection/i2c"
	_ "github.com/ZaparooProject/go-nci/detection/spi"
	_ "github.com/ZaparooProject/go-nci/detection/uart"
	virt "github.com/ZaparooProject/go-nci/internal/testing"
	"github.com/ZaparooProject/go-nci/platform"
	"github.com/ZaparooProject/go-nci/transport/chardev"
	"github.com/ZaparooProject/go-nci/transport/i2c"
	"github.com/ZaparooProject/go-nci/transport/spi"
	"github.com/ZaparooProject/go-nci/transport/uart"
)

// AutoPath asks for detection instead of a fixed device path.
const AutoPath = "auto"

// NewHAL builds the backend named in cfg and wraps it for open retries.
// Hardware backends get the binder vendor extension when r is not nil; the
// virtual controller brings its own.
func NewHAL(cfg *nci.Config, r platform.Runner) (nci.HAL, error) {
	var h nci.HAL
	switch nci.Backend(cfg.HAL.Backend) {
	case nci.BackendUART:
		opts := []uart.Option{uart.WithBaudRate(cfg.HAL.Baud)}
		h = uart.New(cfg.HAL.Path, opts...)
	case nci.BackendI2C:
		opts := []i2c.Option{i2c.WithAddress(cfg.HAL.Address)}
		if cfg.HAL.IRQPin != "" {
			opts = append(opts, i2c.WithIRQ(cfg.HAL.IRQPin))
		}
		if cfg.HAL.VENPin != "" {
			opts = append(opts, i2c.WithVEN(cfg.HAL.VENPin))
		}
		h = i2c.New(cfg.HAL.Path, opts...)
	case nci.BackendSPI:
		var opts []spi.Option
		if cfg.HAL.IRQPin != "" {
			opts = append(opts, spi.WithIRQ(cfg.HAL.IRQPin))
		}
		if cfg.HAL.VENPin != "" {
			opts = append(opts, spi.WithVEN(cfg.HAL.VENPin))
		}
		h = spi.New(cfg.HAL.Path, opts...)
	case nci.BackendCharDev:
		path := cfg.HAL.Path
		if path == "" {
			path = chardev.DefaultPath
		}
		h = chardev.New(path)
	case nci.BackendVirtual:
		return virt.NewVirtualController(), nil
	default:
		return nil, fmt.Errorf("hal.backend %q: %w", cfg.HAL.Backend, nci.ErrInvalidParameter)
	}

	h = nci.NewRetryingHAL(h, cfg.RetryConfig())
	if r != nil {
		h = platform.NewBinderVendor(h, r)
	}
	return h, nil
}

// Resolve fills in cfg.HAL when the path is AutoPath: it runs detection for
// the configured backend, or for every backend if none was chosen, and
// takes the most confident controller.
func Resolve(ctx context.Context, cfg *nci.Config, opts detection.Options) (*detection.DeviceInfo, error) {
	if cfg.HAL.Path != AutoPath {
		return nil, nil
	}
	if b := nci.Backend(cfg.HAL.Backend); b != "" && b != nci.BackendVirtual {
		opts.Backends = []nci.Backend{b}
	}
	devs, err := detection.DetectAll(ctx, &opts)
	if err != nil {
		return nil, fmt.Errorf("detect controller: %w", err)
	}
	best := Best(devs)
	if best == nil {
		return nil, detection.ErrNoDevicesFound
	}
	cfg.HAL.Backend = string(best.Backend)
	cfg.HAL.Path = best.Path
	nci.Debugf("using %s", best)
	return best, nil
}

// Best returns the most confident device, preferring earlier ones on ties.
func Best(devs []detection.DeviceInfo) *detection.DeviceInfo {
	var best *detection.DeviceInfo
	for i := range devs {
		if best == nil || devs[i].Confidence > best.Confidence {
			best = &devs[i]
		}
	}
	return best
}

// Exit codes shared by the binaries.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ExitCode maps a run error to a process exit code. Errors that carry their
// own code, such as an interrupt, keep it.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var coded interface{ ExitCode() int }
	if errors.As(err, &coded) {
		return coded.ExitCode()
	}
	if errors.Is(err, context.Canceled) {
		return ExitOK
	}
	if errors.Is(err, nci.ErrInvalidParameter) {
		return ExitUsage
	}
	return ExitFailure
}
