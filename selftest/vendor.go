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

package selftest

import (
	"context"

	"github.com/ZaparooProject/go-nci"
)

// transitCase checks that the vendor HAL accepts an empty transit
// configuration, which clears any stored one.
func transitCase() nci.TestCase {
	return nci.TestCase{
		Name: "INxpNfcApi_SetTransitConfig",
		Run: func(ctx context.Context, s *nci.Session, rec *nci.Recorder) {
			rec.SetStep("SET_TRANSIT_CONFIG")
			vendor, ok := s.Vendor()
			if !rec.ExpectTrue(ok, "backend %s has no vendor extension", s.HAL().Backend()) {
				return
			}
			accepted, err := vendor.SetTransitConfig(ctx, "")
			if err != nil {
				rec.Fail(nci.FailureMismatch, "set transit config: %v", err)
				return
			}
			rec.ExpectTrue(accepted, "empty transit config rejected")
		},
	}
}

func transit(Options) nci.Suite {
	return nci.Suite{
		Name:        "transit",
		Description: "vendor transit configuration API",
		Cases:       []nci.TestCase{transitCase()},
		CloseType:   nci.CloseDisable,
	}
}
