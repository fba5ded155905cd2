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

// Command i2c-mode reloads the NXP I2C driver in host interface or master
// mode, walking the operator through the J55 jumper change.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/internal/bench"
	"github.com/ZaparooProject/go-nci/platform"
)

// driverSwitcher is satisfied by *platform.Modules.
type driverSwitcher interface {
	SwitchI2CMode(mode platform.I2CMode) error
}

type config struct {
	runner  platform.Runner
	modules driverSwitcher
	prompt  *platform.Prompter
	mode    int
}

var (
	flagMode      int
	flagModuleDir string
	flagDebug     bool
)

func init() {
	flag.IntVar(&flagMode, "i", -1, "I2C mode: 0 for I2C-HIF, 1 for I2C-M")
	flag.StringVar(&flagModuleDir, "module-dir", platform.DefaultModuleDir, "Directory holding the driver module")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
}

func parseConfig() *config {
	if flagDebug {
		nci.SetDebugEnabled(true)
	}
	return &config{
		runner:  platform.ExecRunner{},
		modules: platform.NewModules(flagModuleDir),
		prompt:  platform.NewPrompter(os.Stdin, os.Stdout),
		mode:    flagMode,
	}
}

func run(ctx context.Context, cfg *config) error {
	mode := platform.I2CMode(cfg.mode)
	if mode != platform.I2CHostInterface && mode != platform.I2CMaster {
		return fmt.Errorf("-i %d: want 0 (I2C-HIF) or 1 (I2C-M): %w", cfg.mode, nci.ErrInvalidParameter)
	}

	if err := platform.AdapterCall(ctx, cfg.runner, platform.AdapterDisable); err != nil {
		return err
	}
	if err := cfg.prompt.Wait(mode.Jumper()); err != nil {
		return fmt.Errorf("wait for jumper: %w", err)
	}

	// The adapter comes back even if the reload failed.
	switchErr := cfg.modules.SwitchI2CMode(mode)
	enableErr := platform.AdapterCall(context.WithoutCancel(ctx), cfg.runner, platform.AdapterEnable)
	if err := errors.Join(switchErr, enableErr); err != nil {
		return err
	}
	cfg.prompt.Println("Driver reloaded in", mode, "mode")
	return nil
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	if err := run(context.Background(), parseConfig()); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return bench.ExitCode(err)
	}
	return bench.ExitOK
}
