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

//go:build linux

package platform

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

type kernelModules struct{}

func (kernelModules) deleteModule(name string) error {
	err := unix.DeleteModule(name, unix.O_NONBLOCK)
	if errors.Is(err, unix.ENOENT) {
		return os.ErrNotExist
	}
	return err
}

func (kernelModules) finitModule(f *os.File, params string) error {
	return unix.FinitModule(int(f.Fd()), params, 0)
}
