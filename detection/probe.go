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

package detection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-nci"
)

// Probe errors
var (
	ErrNoResponse = errors.New("no response to CORE_RESET")
	ErrNotNCI     = errors.New("reply is not an NCI CORE_RESET response")
)

// ProbeHAL opens h, sends CORE_RESET keeping the configuration and closes
// it again. It returns the NCI version the controller reports.
func ProbeHAL(ctx context.Context, h nci.HAL, timeout time.Duration) (nci.Version, error) {
	s := nci.NewSession(h, nci.WithCallbackTimeout(timeout), nci.WithEventTimeout(timeout))
	if err := s.Open(ctx); err != nil {
		return 0, fmt.Errorf("open: %w", err)
	}
	defer func() {
		_ = s.Close(context.WithoutCancel(ctx), nci.CloseDisable)
	}()

	cmd := nci.CoreReset(false)
	if _, err := s.Send(ctx, cmd); err != nil {
		return 0, fmt.Errorf("write: %w", err)
	}
	arrived, rsp := s.AwaitMatch(ctx, timeout, nci.MatchResponse())
	if !arrived {
		return 0, ErrNoResponse
	}
	if !rsp.IsResponseTo(cmd) || !rsp.OK() {
		return 0, fmt.Errorf("%w: %s", ErrNotNCI, rsp)
	}

	// NCI 1.x puts the version in a 6-byte response, NCI 2.x in the
	// notification that follows.
	const nci1xResetRspLen = 6
	if rsp.Len() == nci1xResetRspLen {
		return nci.Version(rsp[4]), nil
	}
	arrived, ntf := s.AwaitMatch(ctx, timeout, nci.MatchNotification(nci.GIDCore, nci.OIDCoreReset))
	if arrived && ntf.Len() > 5 && nci.Version(ntf[5]).Is2x() {
		return nci.Version(ntf[5]), nil
	}
	return nci.Version20, nil
}
