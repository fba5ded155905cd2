// go-nci
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-nci.
//
// go-nci is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-nci is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-nci; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Command nci-selftest runs a controller self-test suite and exits with the
// number of failed cases.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/internal/bench"
	"github.com/ZaparooProject/go-nci/platform"
	"github.com/ZaparooProject/go-nci/selftest"
)

type config struct {
	nci       *nci.Config
	out       io.Writer
	runner    platform.Runner
	newHAL    func(*nci.Config, platform.Runner) (nci.HAL, error)
	crashDir  string
	logDir    string
	suiteOpts []selftest.Option
	list      bool
}

// Package-level flag variables
var (
	flagConfig   string
	flagSuite    string
	flagBackend  string
	flagDevice   string
	flagFilter   string
	flagResults  string
	flagCrashDir string
	flagLogDir   string
	flagRepeat   int
	flagLoops    int
	flagDisabled bool
	flagService  bool
	flagList     bool
	flagDebug    bool
)

func init() {
	flag.StringVar(&flagConfig, "config", "", "YAML configuration file")
	flag.StringVar(&flagSuite, "suite", "", "Suite to run (see -list)")
	flag.StringVar(&flagBackend, "backend", "", "HAL backend: uart, i2c, spi, chardev or virtual")
	flag.StringVar(&flagDevice, "device", "", "Device path, bus name, or \"auto\" to detect")
	flag.StringVar(&flagFilter, "filter", "", "Run only cases matching this pattern")
	flag.StringVar(&flagResults, "results", "", "Store the report in this bbolt database")
	flag.StringVar(&flagCrashDir, "crash-dir", "", "Write a crash report per failed case into this directory")
	flag.StringVar(&flagLogDir, "log-dir", "", "Write a session log into this directory")
	flag.IntVar(&flagRepeat, "repeat", 0, "Run the suite this many times")
	flag.IntVar(&flagLoops, "loops", 0, "Loopback packet count")
	flag.BoolVar(&flagDisabled, "disabled", false, "Also run cases that are disabled by default")
	flag.BoolVar(&flagService, "manage-service", false, "Stop the NFC service for the run and restart it afterwards")
	flag.BoolVar(&flagList, "list", false, "List the suites and exit")
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
	if flagSuite != "" {
		base.Suite.Name = flagSuite
	}
	if flagBackend != "" {
		base.HAL.Backend = flagBackend
	}
	if flagDevice != "" {
		base.HAL.Path = flagDevice
	}
	if flagFilter != "" {
		base.Suite.Filter = flagFilter
	}
	if flagResults != "" {
		base.Results.Path = flagResults
	}
	if flagRepeat > 0 {
		base.Suite.Repeat = flagRepeat
	}
	if flagLoops > 0 {
		base.Suite.LoopbackIterations = flagLoops
	}
	base.Suite.IncludeDisabled = base.Suite.IncludeDisabled || flagDisabled
	base.Service.Manage = base.Service.Manage || flagService
	base.Debug = base.Debug || flagDebug
	if err := base.Validate(); err != nil {
		return nil, err
	}

	if base.Debug {
		nci.SetDebugEnabled(true)
	}
	return &config{
		nci:      base,
		out:      os.Stdout,
		runner:   platform.ExecRunner{},
		newHAL:   bench.NewHAL,
		crashDir: flagCrashDir,
		logDir:   flagLogDir,
		list:     flagList,
	}, nil
}

func (c *config) suiteOptions() []selftest.Option {
	opts := append([]selftest.Option(nil), c.suiteOpts...)
	if n := c.nci.Suite.LoopbackIterations; n > 0 {
		opts = append(opts, selftest.WithLoops(n))
	}
	return opts
}

func run(ctx context.Context, cfg *config) (int, error) {
	if cfg.list {
		for _, name := range selftest.Names() {
			_, _ = fmt.Fprintln(cfg.out, name)
		}
		return bench.ExitOK, nil
	}
	if cfg.nci.Suite.Name == "" {
		return 0, fmt.Errorf("%w: no suite given, pick one of %v", nci.ErrInvalidParameter, selftest.Names())
	}
	su, err := selftest.Lookup(cfg.nci.Suite.Name, cfg.suiteOptions()...)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", nci.ErrInvalidParameter, err)
	}

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
	if cfg.logDir != "" {
		path, err := nci.InitSessionLog(cfg.logDir)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return bench.ExitUsage
		}
		defer func() { _ = nci.CloseSessionLog() }()
		_, _ = fmt.Printf("Session log: %s\n", path)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		_, _ = fmt.Print("\nStopping after the current case...\n")
		cancel()
	}()

	code, err := run(ctx, cfg)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return code
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if code == 0 {
			return bench.ExitCode(err)
		}
	}
	return code
}
