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

package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"

	"github.com/ZaparooProject/go-nci"
)

// IRQPin is a controller's interrupt output. It is high while a frame is
// waiting to be read.
type IRQPin interface {
	Read() gpio.Level
	WaitForEdge(timeout time.Duration) bool
}

// VENPin drives a controller's enable input.
type VENPin interface {
	Out(l gpio.Level) error
}

// OpenGPIO looks up the IRQ and VEN lines by their gpioreg names. An empty
// name leaves that line nil. VEN is driven high so the controller boots.
func OpenGPIO(irqName, venName string) (IRQPin, VENPin, error) {
	var irq IRQPin
	var ven VENPin
	if irqName != "" {
		pin := gpioreg.ByName(irqName)
		if pin == nil {
			return nil, nil, fmt.Errorf("%w: irq gpio %s", nci.ErrDeviceNotFound, irqName)
		}
		if err := pin.In(gpio.PullDown, gpio.RisingEdge); err != nil {
			return nil, nil, fmt.Errorf("configure irq gpio %s: %w", irqName, err)
		}
		irq = pin
	}
	if venName != "" {
		pin := gpioreg.ByName(venName)
		if pin == nil {
			return nil, nil, fmt.Errorf("%w: ven gpio %s", nci.ErrDeviceNotFound, venName)
		}
		if err := pin.Out(gpio.High); err != nil {
			return nil, nil, fmt.Errorf("drive ven gpio %s: %w", venName, err)
		}
		ven = pin
	}
	return irq, ven, nil
}

// AwaitIRQ reports whether the controller has data, waiting up to
// nci.BackendReadTimeout for IRQ to rise.
func AwaitIRQ(irq IRQPin) bool {
	if irq.Read() == gpio.High {
		return true
	}
	return irq.WaitForEdge(nci.BackendReadTimeout) && irq.Read() == gpio.High
}

// ToggleVEN holds VEN low for nci.PowerCycleLowTime and then waits
// nci.PowerCycleBootTime for the controller to boot.
func ToggleVEN(ctx context.Context, ven VENPin, port string) error {
	if ven == nil {
		return fmt.Errorf("%w: %s has no VEN line", nci.ErrDeviceNotSupported, port)
	}
	if err := ven.Out(gpio.Low); err != nil {
		return fmt.Errorf("drive VEN low: %w", err)
	}
	if err := Sleep(ctx, nci.PowerCycleLowTime); err != nil {
		return errors.Join(err, ven.Out(gpio.High))
	}
	if err := ven.Out(gpio.High); err != nil {
		return fmt.Errorf("drive VEN high: %w", err)
	}
	return Sleep(ctx, nci.PowerCycleBootTime)
}
