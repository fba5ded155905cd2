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

package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZaparooProject/go-nci"
)

// Defaults for the NXP I2C driver module.
const (
	DefaultModuleDir   = "/vendor/lib/modules"
	I2CDriverModule    = "nxpnfc_i2c"
	I2CSwitchParameter = "i2c_sw_param"
)

// I2CMode selects how the driver talks to the controller.
type I2CMode int

// Driver modes
const (
	// I2CHostInterface is the plain I2C host interface (I2C-HIF).
	I2CHostInterface I2CMode = 0
	// I2CMaster lets the secure MCU share the bus (I2C-M).
	I2CMaster I2CMode = 1
)

func (m I2CMode) String() string {
	switch m {
	case I2CHostInterface:
		return "I2C-HIF"
	case I2CMaster:
		return "I2C-M"
	default:
		return fmt.Sprintf("I2CMode(%d)", int(m))
	}
}

// Jumper tells the operator what to do with the J55 header before the
// driver is reloaded in mode m.
func (m I2CMode) Jumper() string {
	if m == I2CMaster {
		return "Short circuit the J55 connector and press Enter to continue"
	}
	return "Remove the J55 jumper and press Enter to continue"
}

// moduleSys is the kernel module interface; tests replace it.
type moduleSys interface {
	deleteModule(name string) error
	finitModule(f *os.File, params string) error
}

// Modules loads and unloads kernel modules from a directory.
type Modules struct {
	sys moduleSys
	Dir string
}

// NewModules uses the running kernel.
func NewModules(dir string) *Modules {
	return &Modules{Dir: dir, sys: kernelModules{}}
}

// moduleName strips a path and ".ko" suffix.
func moduleName(name string) string {
	return strings.TrimSuffix(filepath.Base(name), ".ko")
}

// Unload removes a loaded module. A module that is not loaded is not an
// error.
func (m *Modules) Unload(name string) error {
	name = moduleName(name)
	if err := m.sys.deleteModule(name); err != nil {
		if os.IsNotExist(err) {
			nci.Debugf("module %s not loaded", name)
			return nil
		}
		return fmt.Errorf("unload %s: %w", name, err)
	}
	nci.Debugf("module %s unloaded", name)
	return nil
}

// Load inserts Dir/name.ko with the given parameters ("key=value ...").
func (m *Modules) Load(name, params string) error {
	path := filepath.Join(m.Dir, moduleName(name)+".ko")
	f, err := os.Open(path) //nolint:gosec // module path from flags
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	defer func() { _ = f.Close() }()
	if err := m.sys.finitModule(f, params); err != nil {
		return fmt.Errorf("load %s %s: %w", path, params, err)
	}
	nci.Debugf("module %s loaded with %q", path, params)
	return nil
}

// Reload unloads and loads name.
func (m *Modules) Reload(name, params string) error {
	if err := m.Unload(name); err != nil {
		return err
	}
	return m.Load(name, params)
}

// SwitchI2CMode reloads the NXP I2C driver in mode.
func (m *Modules) SwitchI2CMode(mode I2CMode) error {
	if mode != I2CHostInterface && mode != I2CMaster {
		return fmt.Errorf("i2c mode %d: %w", int(mode), nci.ErrInvalidParameter)
	}
	return m.Reload(I2CDriverModule, fmt.Sprintf("%s=%d", I2CSwitchParameter, int(mode)))
}
