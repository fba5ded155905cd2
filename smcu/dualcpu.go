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

// Package smcu switches ownership of the embedded secure element between
// the Android NFC stack and a secure MCU on dual-CPU hardware.
//
// The operator picks a mode from a menu; each switch is a vendor HAL call.
// If the operator interrupts the program, the eSE is handed back to Android
// and the NFC service is re-enabled before the process exits.
package smcu

import (
	"context"
	"errors"
	"fmt"
)

// DualCPUProperty is set to 1 on hardware where a secure MCU shares the
// controller.
const DualCPUProperty = "persist.vendor.nxp.i2cms.enabled"

// Hardware configuration errors
var (
	ErrSingleCPU     = errors.New("hardware is configured as a single CPU")
	ErrInvalidConfig = errors.New("invalid dual CPU configuration")
)

// PropertyReader reads integer system properties.
type PropertyReader interface {
	Int(ctx context.Context, name string) (int, error)
}

// CheckDualCPU refuses to run on single-CPU or misconfigured hardware.
func CheckDualCPU(ctx context.Context, props PropertyReader) error {
	v, err := props.Int(ctx, DualCPUProperty)
	if err != nil {
		return fmt.Errorf("read %s: %w", DualCPUProperty, err)
	}
	switch v {
	case 1:
		return nil
	case 0:
		return ErrSingleCPU
	default:
		return fmt.Errorf("%w: %s=%d", ErrInvalidConfig, DualCPUProperty, v)
	}
}
