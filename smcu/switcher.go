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

package smcu

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/platform"
)

// Menu is the mode menu, indexed by EseUpdateState.
var Menu = []string{
	"1. Switch to EMVCo Mode (Host: SMCU)",
	"2. Switch to NFC Mode  (Host: Android)",
	"3. Switch to Secure FW Dnld  (Host: SMCU)",
}

// Result summarises a switcher run.
type Result struct {
	Failures []nci.Failure
	Final    nci.EseUpdateState
	Switches int
	// Restarted is set when the firmware download path closed the session
	// and re-enabled the NFC service itself.
	Restarted bool
}

// Switcher runs the interactive mode menu over an open session.
type Switcher struct {
	session   *nci.Session
	vendor    nci.VendorExtension
	prompt    *platform.Prompter
	service   Service
	state     *ModeState
	rec       *nci.Recorder
	CloseType nci.CloseType
	restarted bool
}

// NewSwitcher needs an open session whose HAL has the vendor extension.
func NewSwitcher(s *nci.Session, prompt *platform.Prompter, service Service) (*Switcher, error) {
	vendor, ok := s.Vendor()
	if !ok {
		return nil, fmt.Errorf("smcu switch over %s: %w", s.HAL().Backend(), nci.ErrNoVendorExtension)
	}
	return &Switcher{
		session:   s,
		vendor:    vendor,
		prompt:    prompt,
		service:   service,
		state:     NewModeState(),
		rec:       nci.NewRecorder("NxpNfc_DualCpu_modeSwitch"),
		CloseType: nci.CloseDisable,
	}, nil
}

// Guard returns the interrupt guard for this switcher's session.
func (sw *Switcher) Guard() *Guard {
	return &Guard{
		Session:   sw.session,
		Vendor:    sw.vendor,
		Service:   sw.service,
		Out:       sw.prompt.Writer(),
		CloseType: sw.CloseType,
	}
}

type answer struct {
	err    error
	choice int
}

// readAnswers shows the menu each time the loop asks for a choice, until
// ctx ends or input fails.
func (sw *Switcher) readAnswers(ctx context.Context, ask <-chan struct{}, out chan<- answer) {
	for {
		select {
		case <-ask:
		case <-ctx.Done():
			return
		}
		n, err := sw.prompt.Choose(Menu...)
		select {
		case out <- answer{choice: n, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil && !errors.Is(err, platform.ErrInvalidChoice) {
			return
		}
	}
}

// Run shows the menu until the operator leaves NFC mode for good, picks the
// firmware download, or sends one of the signals on sigs. An interrupt
// restores NFC mode and returns an *InterruptedError.
func (sw *Switcher) Run(ctx context.Context, sigs <-chan os.Signal) (*Result, error) {
	g, gctx := errgroup.WithContext(ctx)
	watchCtx, stopWatch := context.WithCancel(gctx)
	defer stopWatch()

	ask := make(chan struct{})
	answers := make(chan answer)
	go sw.readAnswers(watchCtx, ask, answers)

	guard := sw.Guard()
	g.Go(func() error {
		defer stopWatch()
		return sw.loop(watchCtx, ask, answers)
	})
	g.Go(func() error {
		return guard.Watch(watchCtx, sigs)
	})
	err := g.Wait()

	var ie *InterruptedError
	if errors.As(err, &ie) && ie.Err == nil {
		sw.state.Current = nci.EseUpdateNFC
	}
	return &Result{
		Failures:  sw.rec.Failures(),
		Final:     sw.state.Current,
		Switches:  sw.state.Switches,
		Restarted: sw.restarted,
	}, err
}

func (sw *Switcher) loop(ctx context.Context, ask chan<- struct{}, answers <-chan answer) error {
	for sw.state.Phase != PhaseDone {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ask <- struct{}{}:
		}
		var a answer
		select {
		case <-ctx.Done():
			return ctx.Err()
		case a = <-answers:
		}
		if a.err != nil && !errors.Is(a.err, platform.ErrInvalidChoice) {
			return fmt.Errorf("read selection: %w", a.err)
		}
		if err := sw.handle(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (sw *Switcher) handle(ctx context.Context, a answer) error {
	action := ActionRetry
	if a.err == nil {
		action = sw.state.Decide(a.choice)
	}
	switch action {
	case ActionRetry:
		sw.prompt.Println("ERROR : Invalid Selection. Retry...")
		return nil
	case ActionAlready:
		sw.prompt.Println("ERROR : Already in this mode. No action needed....")
		return nil
	case ActionExit:
		sw.prompt.Println("\n **** Restarting the NFC stack **** ")
		sw.state.TransitionToDone()
		return nil
	}

	mode := nci.EseUpdateState(a.choice)
	if action == ActionDownload {
		sw.prompt.Println(" **** Switch to SMCU Host for FW DNLD. Wait for Download to be Completed **** ")
	}
	sw.state.TransitionToSwitching(mode)
	sw.rec.SetStep("SET_ESE_UPDATE_STATE " + mode.String())
	ok, err := sw.vendor.SetEseUpdateState(ctx, mode)
	if err != nil {
		sw.rec.Fail(nci.FailureMismatch, "set ese update state: %v", err)
	} else {
		sw.rec.ExpectTrue(ok, "switch to %s rejected", mode)
	}

	switch action {
	case ActionSwitchAndExit:
		sw.prompt.Println("\n **** Restarting the NFC stack **** ")
		sw.state.TransitionToDone()
	case ActionDownload:
		sw.state.TransitionToDone()
		if err != nil || !ok {
			sw.prompt.Println(" **** ERROR : FW DNLD Wait timer expired**** ")
			return nil
		}
		sw.prompt.Println(" **** FW DNLD Completed. Restarting the NFC stack **** ")
		return sw.restart(ctx)
	default:
		sw.state.TransitionToAwaiting()
	}
	return nil
}

// restart closes the session and brings the NFC service back after a
// firmware download, leaving nothing for the caller to clean up.
func (sw *Switcher) restart(ctx context.Context) error {
	if err := sw.session.Close(ctx, sw.CloseType); err != nil {
		return fmt.Errorf("close after firmware download: %w", err)
	}
	if sw.service != nil {
		if err := sw.service.Enable(ctx); err != nil {
			return err
		}
	}
	sw.restarted = true
	return nil
}
