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

// Command nci-cockpit replays a PN72xx EEPROM and RF register dump into the
// controller and checks that every write is accepted.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/cockpit"
	"github.com/ZaparooProject/go-nci/internal/bench"
	"github.com/ZaparooProject/go-nci/platform"
)

type config struct {
	nci      *nci.Config
	out      io.Writer
	runner   platform.Runner
	newHAL   func(*nci.Config, platform.Runner) (nci.HAL, error)
	dump     string
	crashDir string
}

var (
	flagConfig   string
	flagDump     string
	flagBackend  string
	flagDevice   string
	flagResults  string
	flagCrashDir string
	flagService  bool
	flagDebug    bool
)

func init() {
	flag.StringVar(&flagConfig, "config", "", "YAML configuration file")
	flag.StringVar(&flagDump, "dump", cockpit.DefaultDumpPath, "Configuration dump to replay")
	flag.StringVar(&flagBackend, "backend", "", "HAL backend: uart, i2c, spi, chardev or virtual")
	flag.StringVar(&flagDevice, "device", "", "Device path, bus name, or \"auto\" to detect")
	flag.StringVar(&flagResults, "results", "", "Store the report in this bbolt database")
	flag.StringVar(&flagCrashDir, "crash-dir", "", "Write a crash report on failure into this directory")
	flag.BoolVar(&flagService, "manage-service", false, "Stop the NFC service for the run and restart it afterwards")
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
	if flagResults != "" {
		base.Results.Path = flagResults
	}
	base.Service.Manage = base.Service.Manage || flagService
	if flagDebug || base.Debug {
		nci.SetDebugEnabled(true)
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	return &config{
		nci:      base,
		out:      os.Stdout,
		runner:   platform.ExecRunner{},
		newHAL:   bench.NewHAL,
		dump:     flagDump,
		crashDir: flagCrashDir,
	}, nil
}

func run(ctx context.Context, cfg *config) (int, error) {
	d, err := cockpit.Load(cfg.dump)
	if err != nil {
		return 0, err
	}
	su, err := cockpit.Suite(d)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", cfg.dump, err)
	}
	_, _ = fmt.Fprintf(cfg.out, "Replaying %s\n", cfg.dump)

	rep, err := bench.RunSuite(ctx, su, bench.RunOptions{
		Config:   cfg.nci,
		Out:      cfg.out,
		Runner:   cfg.runner,
		NewHAL:   cfg.newHAL,
		CrashDir: cfg.crashDir,
	})
	if rep == nil {
		return 0, err
	}
	return rep.ExitCode(), err
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	code, err := run(ctx, cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code == 0 {
			return bench.ExitCode(err)
		}
	}
	return code
}
