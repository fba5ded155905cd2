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

// Package selftest holds the controller self-test suites: PRBS, RF field
// switching, CTS signal configuration, protocol loading, vendor API checks
// and the data loopback stress test.
//
// Suites are plain nci.Suite tables. Look one up by name and hand it to an
// nci.Runner:
//
//	su, err := selftest.Lookup("aidl-prbs")
//	if err != nil {
//		return err
//	}
//	report := nci.NewRunner(session).Run(ctx, su)
package selftest

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/ZaparooProject/go-nci"
)

// ErrUnknownSuite is returned by Lookup for a name nothing is registered under.
var ErrUnknownSuite = errors.New("unknown self-test suite")

// Options tunes suites. The defaults are the bench values; simulations
// shorten the settle delays.
type Options struct {
	// RFSettle is the pause after a case leaves the RF field in a new state.
	RFSettle time.Duration
	// CTSSettle is the pause after a CTS signal configuration case.
	CTSSettle time.Duration
	// CTSNotifications is how many notifications RF_DISCOVER produces in
	// CTS mode.
	CTSNotifications int
	// Loops is the number of loopback data packets.
	Loops int
}

// Option configures Options.
type Option func(*Options)

// WithSettle overrides the RF and CTS settle delays.
func WithSettle(rf, cts time.Duration) Option {
	return func(o *Options) {
		o.RFSettle = rf
		o.CTSSettle = cts
	}
}

// WithLoops sets the loopback packet count.
func WithLoops(n int) Option {
	return func(o *Options) { o.Loops = n }
}

// WithCTSNotifications sets how many discovery notifications the CTS cases
// wait for.
func WithCTSNotifications(n int) Option {
	return func(o *Options) { o.CTSNotifications = n }
}

func defaultOptions() Options {
	return Options{
		RFSettle:         nci.RFSettleDelay,
		CTSSettle:        nci.CTSSettleDelay,
		CTSNotifications: DefaultCTSNotifications,
		Loops:            DefaultLoops,
	}
}

type builder func(Options) nci.Suite

var registry = map[string]builder{
	"aidl-prbs": aidlPRBS,
	"hidl-v1.0": hidlV10,
	"hidl-v1.2": hidlV12,
	"pn7160":    pn7160,
	"transit":   transit,
	"loopback":  loopback,
}

// Names lists the registered suites in sorted order.
func Names() []string {
	return slices.Sorted(maps.Keys(registry))
}

// Lookup builds the suite registered under name.
func Lookup(name string, opts ...Option) (nci.Suite, error) {
	build, ok := registry[name]
	if !ok {
		return nci.Suite{}, fmt.Errorf("%w: %q (have %v)", ErrUnknownSuite, name, Names())
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return build(o), nil
}

// propOK is the 4-byte STATUS_OK response to a proprietary command.
func propOK(oid byte) nci.Expectation {
	return nci.ResponseExact(nci.NewResponse(nci.GIDProprietary, oid, byte(nci.StatusOK))...)
}

// powerCycle resets the controller through the HAL and expects a fresh
// OPEN_CPLT.
func powerCycle(ctx context.Context, s *nci.Session, rec *nci.Recorder) {
	rec.SetStep("POWER_CYCLE")
	if err := s.PowerCycle(ctx); err != nil {
		rec.Fail(nci.FailureTimeout, "no OPEN_CPLT after power cycle: %v", err)
	}
}
