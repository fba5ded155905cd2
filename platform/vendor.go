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
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"

	"github.com/ZaparooProject/go-nci"
)

// DefaultTransitConfigPath is where the vendor HAL reads the transit
// configuration from.
const DefaultTransitConfigPath = "/data/vendor/nfc/libnfc-nxpTransit.conf"

// TransitConfigFile stores the transit configuration. An empty
// configuration removes the file, restoring the built-in one.
type TransitConfigFile struct {
	Path string
}

// Set writes or clears the configuration.
func (t TransitConfigFile) Set(config string) error {
	if config == "" {
		if err := os.Remove(t.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("clear transit config: %w", err)
		}
		return nil
	}
	if err := os.WriteFile(t.Path, []byte(config), 0o600); err != nil {
		return fmt.Errorf("write transit config: %w", err)
	}
	return nil
}

// DefaultVendorService is the vendor HAL's service manager name.
const DefaultVendorService = "vendor.nxp.nxpnfc"

// setEseUpdateStateCode is the vendor service transaction for
// SetEseUpdateState.
const setEseUpdateStateCode = 2

// BinderVendor adds the vendor extension to a HAL whose NCI channel has no
// way to reach it. Transit configuration is written to the file the vendor
// HAL reads; eSE ownership changes go through a service call.
type BinderVendor struct {
	nci.HAL
	runner  Runner
	Transit TransitConfigFile
	Service string
}

// NewBinderVendor wraps h.
func NewBinderVendor(h nci.HAL, r Runner) *BinderVendor {
	return &BinderVendor{
		HAL:     h,
		runner:  r,
		Transit: TransitConfigFile{Path: DefaultTransitConfigPath},
		Service: DefaultVendorService,
	}
}

// Unwrap returns the wrapped HAL.
func (b *BinderVendor) Unwrap() nci.HAL {
	return b.HAL
}

// SetTransitConfig implements nci.VendorExtension.
func (b *BinderVendor) SetTransitConfig(_ context.Context, config string) (bool, error) {
	if err := b.Transit.Set(config); err != nil {
		return false, err
	}
	return true, nil
}

// SetEseUpdateState implements nci.VendorExtension.
func (b *BinderVendor) SetEseUpdateState(ctx context.Context, state nci.EseUpdateState) (bool, error) {
	if !state.Valid() {
		return false, fmt.Errorf("ese state %d: %w", int(state), nci.ErrInvalidParameter)
	}
	out, err := b.runner.Run(ctx, "service", "call", b.Service,
		strconv.Itoa(setEseUpdateStateCode), "i32", strconv.Itoa(int(state)))
	if err != nil {
		return false, fmt.Errorf("set ese update state %s: %w", state, err)
	}
	words, err := parseParcel(out)
	if err != nil {
		return false, fmt.Errorf("set ese update state %s: %w", state, err)
	}
	if len(words) < 2 {
		return false, fmt.Errorf("set ese update state %s: %w: no return value", state, ErrBadParcel)
	}
	return words[1] != 0, nil
}

var (
	parcelRe     = regexp.MustCompile(`Result: Parcel\(((?:\s*[0-9a-fA-F]{8})+)`)
	parcelWordRe = regexp.MustCompile(`[0-9a-fA-F]{8}`)
)

// parseParcel reads the 32-bit words of a "service call" reply. The first
// word is the exception code and must be zero.
func parseParcel(out []byte) ([]uint32, error) {
	m := parcelRe.FindSubmatch(out)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrBadParcel, out)
	}
	var words []uint32
	for _, w := range parcelWordRe.FindAll(m[1], -1) {
		v, err := strconv.ParseUint(string(w), 16, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrBadParcel, w)
		}
		words = append(words, uint32(v))
	}
	if words[0] != 0 {
		return words, fmt.Errorf("%w: exception code 0x%08x", ErrBadParcel, words[0])
	}
	return words, nil
}
