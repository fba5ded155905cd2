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
	"fmt"

	"github.com/ZaparooProject/go-nci"
)

const (
	// DefaultLoops is the number of data packets echoed by the loopback case.
	DefaultLoops = 3922
	// maxLoopbackFailures stops the loop once the link is clearly broken.
	maxLoopbackFailures = 10
	// loopbackProgressEvery controls how often progress is logged.
	loopbackProgressEvery = 500
	// connCreateRspLen is status, max payload size, initial credits and
	// connection ID.
	connCreateRspLen = 7
)

// loopbackPayload varies with the sequence number so a stale echo does not
// match a later packet.
func loopbackPayload(seq int) []byte {
	return []byte{byte(seq >> 8), byte(seq), 0xA5, 0x5A}
}

// runLoopback opens a loopback connection and pushes packets through it one
// at a time. Each packet must come back unchanged together with a
// CORE_CONN_CREDITS notification returning the credit; the two can arrive in
// either order.
func runLoopback(loops int) nci.CaseFunc {
	return func(ctx context.Context, s *nci.Session, rec *nci.Recorder) {
		s.ResetAndInit(ctx, rec)

		got := s.Transact(ctx, rec, nci.NewStep("CORE_CONN_CREATE",
			nci.CoreConnCreate(nci.DestLoopback),
			nci.Response(nci.Length(connCreateRspLen), nci.StatusIsOK()),
		))
		if len(got) == 0 || !got[0].OK() || got[0].Len() < connCreateRspLen {
			return
		}
		connID := got[0][6]
		nci.Debugf("loopback connection %d open, %d credits", connID, got[0][5])

		for seq := range loops {
			if ctx.Err() != nil {
				rec.Fail(nci.FailureTimeout, "stopped after %d of %d packets: %v", seq, loops, ctx.Err())
				return
			}
			pkt := nci.NewData(connID, loopbackPayload(seq)...)
			s.Transact(ctx, rec, nci.Step{
				Name:    fmt.Sprintf("LOOPBACK %d", seq),
				Command: pkt,
				Expect: []nci.Expectation{
					{Match: nci.MatchData(connID), Label: "echo", Checks: []nci.Check{nci.Exact(pkt...)}},
					nci.Notification(nci.GIDCore, nci.OIDCoreConnCredits),
				},
			})
			if rec.Count() >= maxLoopbackFailures {
				rec.Fail(nci.FailureMismatch, "giving up after %d of %d packets", seq+1, loops)
				return
			}
			if (seq+1)%loopbackProgressEvery == 0 {
				nci.Debugf("loopback: %d/%d packets echoed", seq+1, loops)
			}
		}

		s.Transact(ctx, rec, nci.NewStep("CORE_CONN_CLOSE",
			nci.CoreConnClose(connID), nci.ResponseOK(4)))
	}
}

func loopback(o Options) nci.Suite {
	return nci.Suite{
		Name:        "loopback",
		Description: fmt.Sprintf("%d data packets through a loopback connection", o.Loops),
		Cases:       []nci.TestCase{{Name: "DataLoopback", Run: runLoopback(o.Loops)}},
		CloseType:   nci.CloseDisable,
	}
}
