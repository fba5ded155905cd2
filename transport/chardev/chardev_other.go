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

//go:build !linux

package chardev

import (
	"context"
	"fmt"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/transport"
)

// DefaultPath is the device node of the NXP nq-nci driver.
const DefaultPath = "/dev/nq-nci"

// New returns a HAL whose Open always fails: kernel NFC drivers are Linux only.
func New(path string) *transport.HAL {
	return transport.NewHAL(nci.BackendCharDev, path, func(context.Context) (transport.Link, error) {
		return nil, fmt.Errorf("%w: character device backend on this OS", nci.ErrDeviceNotSupported)
	})
}
