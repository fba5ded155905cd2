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

package nci

import "context"

// CoreResetStep is CORE_RESET followed by its response and notification:
// a 4-byte response with STATUS_OK, then a notification of at least 8 bytes
// whose reason is "triggered by command" and whose configuration status is
// kept or reset.
func CoreResetStep(resetConfig bool) Step {
	return NewStep("CORE_RESET", CoreReset(resetConfig),
		ResponseOK(4),
		Notification(GIDCore, OIDCoreReset,
			MinLength(8),
			ByteAt(3, ResetReasonCommand),
			ByteAtMost(4, ResetConfigReset),
		),
	)
}

// CoreInitStep is CORE_INIT for v. The response length varies with the
// controller's feature set, so only its self-consistency and status are checked.
func CoreInitStep(v Version) Step {
	return NewStep("CORE_INIT", CoreInit(v),
		Response(MinLength(4), LengthByteConsistent(), StatusIsOK()),
	)
}

// CoreReset resets the controller with configuration reset.
func (s *Session) CoreReset(ctx context.Context, rec *Recorder) []Frame {
	return s.Transact(ctx, rec, CoreResetStep(true))
}

// CoreInit initialises an NCI 2.0 controller.
func (s *Session) CoreInit(ctx context.Context, rec *Recorder) []Frame {
	return s.Transact(ctx, rec, CoreInitStep(Version20))
}

// ResetAndInit is the preamble of most self-test cases.
func (s *Session) ResetAndInit(ctx context.Context, rec *Recorder) {
	s.CoreReset(ctx, rec)
	s.CoreInit(ctx, rec)
}

// ProbeVersion sends CORE_RESET (keep configuration) and works out the NCI
// version from the reply. An NCI 1.x controller answers with a 6-byte
// response carrying the version in byte 4. An NCI 2.x controller answers
// with a 4-byte response and reports its version in the reset notification,
// which is consumed here.
func (s *Session) ProbeVersion(ctx context.Context, rec *Recorder) (Version, bool) {
	rec.SetStep("PROBE_VERSION")
	cmd := CoreReset(false)
	n, err := s.Send(ctx, cmd)
	if err != nil {
		rec.Fail(FailureWriteSize, "write [%s]: %v", cmd, err)
		return 0, false
	}
	rec.ExpectWritten(n, cmd.Len())

	timeout := s.Timeout(1)
	arrived, rsp := s.AwaitMatch(ctx, timeout, MatchResponseTo(cmd))
	if !rec.ExpectArrived(arrived, "CORE_RESET response") {
		return 0, false
	}

	const nci1xResetRspLen = 6
	if rsp.Len() == nci1xResetRspLen {
		rec.ExpectFrame(rsp, StatusIsOK())
		v := Version(rsp[4])
		s.setVersion(v)
		Debugf("controller speaks NCI %s", v)
		return v, true
	}

	if !rec.ExpectFrame(rsp, Length(4), StatusIsOK()) {
		return 0, false
	}
	v := Version20
	arrived, ntf := s.AwaitMatch(ctx, timeout, MatchNotification(GIDCore, OIDCoreReset))
	if rec.ExpectArrived(arrived, "CORE_RESET notification") && ntf.Len() > 5 && Version(ntf[5]).Is2x() {
		v = Version(ntf[5])
	}
	s.setVersion(v)
	Debugf("controller speaks NCI %s", v)
	return v, true
}
