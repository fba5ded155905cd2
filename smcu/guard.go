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
	"io"
	"os"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-nci"
)

// ErrRestoreRejected is returned when the vendor HAL refuses to hand the eSE
// back to Android.
var ErrRestoreRejected = errors.New("restoring nfc mode rejected")

// restoreTimeout bounds the clean-up after an interrupt.
const restoreTimeout = 30 * time.Second

// Service re-enables the platform NFC service.
type Service interface {
	Enable(ctx context.Context) error
}

// InterruptedError reports that the operator stopped the switcher.
type InterruptedError struct {
	Signal os.Signal
	// Err is the restore failure, if any.
	Err error
}

func (e *InterruptedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("interrupted by %v, restore failed: %v", e.Signal, e.Err)
	}
	return fmt.Sprintf("interrupted by %v", e.Signal)
}

func (e *InterruptedError) Unwrap() error {
	return e.Err
}

// ExitCode is the signal number, matching what the shell expects of a
// program that stopped on a signal it handled.
func (e *InterruptedError) ExitCode() int {
	if s, ok := e.Signal.(syscall.Signal); ok {
		return int(s)
	}
	return 1
}

// Guard restores NFC mode when the operator interrupts a mode switch. It
// holds the session it cleans up rather than reaching for process globals.
type Guard struct {
	Session   *nci.Session
	Vendor    nci.VendorExtension
	Service   Service
	Out       io.Writer
	CloseType nci.CloseType
}

// Restore hands the eSE back to Android, closes the session and re-enables
// the NFC service. Every step is attempted; their errors are joined.
func (g *Guard) Restore(ctx context.Context) error {
	var errs []error
	ok, err := g.Vendor.SetEseUpdateState(ctx, nci.EseUpdateNFC)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("restore nfc mode: %w", err))
	case !ok:
		errs = append(errs, ErrRestoreRejected)
	}
	if g.Session.IsOpen() {
		if err := g.Session.Close(ctx, g.CloseType); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
	}
	if g.Service != nil {
		if err := g.Service.Enable(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Watch waits for a signal on sigs and restores. It returns nil if ctx ends
// first, or an *InterruptedError.
func (g *Guard) Watch(ctx context.Context, sigs <-chan os.Signal) error {
	select {
	case <-ctx.Done():
		return nil
	case sig := <-sigs:
		if g.Out != nil {
			_, _ = fmt.Fprintf(g.Out, "SMCU switch abort requested, signal: %v\n", sig)
		}
		nci.Debugf("smcu: %v received, restoring nfc mode", sig)
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
		defer cancel()
		return &InterruptedError{Signal: sig, Err: g.Restore(rctx)}
	}
}
