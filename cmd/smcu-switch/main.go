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

// Command smcu-switch hands the embedded secure element between Android and
// the secure MCU on dual-CPU hardware.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/detection"
	"github.com/ZaparooProject/go-nci/internal/bench"
	"github.com/ZaparooProject/go-nci/platform"
	"github.com/ZaparooProject/go-nci/smcu"
)

type config struct {
	nci           *nci.Config
	in            io.Reader
	out           io.Writer
	runner        platform.Runner
	newHAL        func(*nci.Config, platform.Runner) (nci.HAL, error)
	sigs          <-chan os.Signal
	disableSettle time.Duration
}

var (
	flagConfig  string
	flagBackend string
	flagDevice  string
	flagDebug   bool
)

func init() {
	flag.StringVar(&flagConfig, "config", "", "YAML configuration file")
	flag.StringVar(&flagBackend, "backend", "", "HAL backend: uart, i2c, spi or chardev")
	flag.StringVar(&flagDevice, "device", "", "Device path, bus name, or \"auto\" to detect")
	flag.BoolVar(&flagDebug, "debug", false, "Enable debug output")
}

func parseConfig() (*config, error) {
	base := nci.DefaultConfig()
	if flagConfig != "" {
		var err error
		if base, err = nci.LoadConfig(flagConfig); err != nil {
			return nil, err
		}
	}
	if flagBackend != "" {
		base.HAL.Backend = flagBackend
	}
	if flagDevice != "" {
		base.HAL.Path = flagDevice
	}
	if flagDebug || base.Debug {
		nci.SetDebugEnabled(true)
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	return &config{
		nci:           base,
		in:            os.Stdin,
		out:           os.Stdout,
		runner:        platform.ExecRunner{},
		newHAL:        bench.NewHAL,
		disableSettle: nci.ModeSwitchDisableSettle,
	}, nil
}

// openSession builds and opens the controller session with the NFC service
// already stopped.
func openSession(ctx context.Context, cfg *config) (*nci.Session, error) {
	if _, err := bench.Resolve(ctx, cfg.nci, detection.DefaultOptions()); err != nil {
		return nil, err
	}
	h, err := cfg.newHAL(cfg.nci, cfg.runner)
	if err != nil {
		return nil, err
	}
	s := nci.NewSession(h, cfg.nci.SessionOptions()...)
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func run(ctx context.Context, cfg *config) (*smcu.Result, error) {
	if err := smcu.CheckDualCPU(ctx, platform.NewPropertyReader(cfg.runner)); err != nil {
		return nil, err
	}

	svc := platform.NewServiceController(cfg.runner)
	svc.DisableSettle = cfg.disableSettle
	svc.EnableSettle = cfg.nci.Service.EnableSettle
	if err := svc.Disable(ctx); err != nil {
		return nil, err
	}
	enable := func() {
		if err := svc.Enable(context.WithoutCancel(ctx)); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to restart the NFC service: %v\n", err)
		}
	}

	s, err := openSession(ctx, cfg)
	if err != nil {
		enable()
		return nil, err
	}
	sw, err := smcu.NewSwitcher(s, platform.NewPrompter(cfg.in, cfg.out), svc)
	if err != nil {
		_ = s.Close(context.WithoutCancel(ctx), nci.CloseDisable)
		enable()
		return nil, err
	}

	res, err := sw.Run(ctx, cfg.sigs)
	var ie *smcu.InterruptedError
	if errors.As(err, &ie) || res.Restarted {
		// The guard or the firmware download path already cleaned up.
		return res, err
	}
	if s.IsOpen() {
		if cerr := s.Close(context.WithoutCancel(ctx), sw.CloseType); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}
	enable()
	return res, err
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	cfg, err := parseConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return bench.ExitUsage
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, smcu.InterruptSignals...)
	defer signal.Stop(sigs)
	cfg.sigs = sigs

	res, err := run(context.Background(), cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return bench.ExitCode(err)
	}
	for _, f := range res.Failures {
		_, _ = fmt.Fprintf(os.Stderr, "FAILED %s\n", f)
	}
	if len(res.Failures) > 0 {
		return bench.ExitFailure
	}
	_, _ = fmt.Printf("eSE owner: %s after %d switches\n", res.Final, res.Switches)
	return bench.ExitOK
}
