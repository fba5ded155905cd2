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

import "time"

// Expectation describes one frame a step waits for.
type Expectation struct {
	// Match picks the frame out of the callback queue. Nil takes the next
	// frame in arrival order.
	Match Matcher
	// Label names the frame in failure messages.
	Label string
	// Checks run against the frame once it arrives.
	Checks []Check
	// Timeout overrides the session's callback timeout when positive.
	Timeout time.Duration
	// Factor multiplies the timeout; values below 1 count as 1.
	Factor int
	// Prolong applies the session's prolonged-wait factor instead of Factor.
	Prolong bool
	// DontCare only requires that a frame arrives.
	DontCare bool
	// Reply narrows Match to the response carrying the step command's
	// opcode when the command is a control command.
	Reply bool
}

// Prolonged returns e with the session's prolonged-wait factor applied,
// ProlongedWaitFactor unless configured otherwise.
func (e Expectation) Prolonged() Expectation {
	e.Prolong = true
	return e
}

// Within returns e with an explicit timeout.
func (e Expectation) Within(d time.Duration) Expectation {
	e.Timeout = d
	return e
}

// Response expects the response to the step's command.
func Response(checks ...Check) Expectation {
	return Expectation{Match: MatchResponse(), Label: "response", Checks: checks, Reply: true}
}

// matcherFor returns the matcher e uses within a step sending cmd.
func (e Expectation) matcherFor(cmd Frame) Matcher {
	if e.Reply && cmd.MT() == MTCommand {
		return MatchResponseTo(cmd)
	}
	return e.Match
}

// ResponseExact expects a response equal to want.
func ResponseExact(want ...byte) Expectation {
	return Response(Exact(want...))
}

// ResponseOK expects an n-byte response with STATUS_OK.
func ResponseOK(n int) Expectation {
	return Response(Length(n), StatusIsOK())
}

// Notification expects a notification with the given opcode.
func Notification(gid, oid byte, checks ...Check) Expectation {
	return Expectation{
		Match:  MatchNotification(gid, oid),
		Label:  "notification " + opcodeName(gid, oid),
		Checks: checks,
	}
}

// Next expects the next frame in arrival order, whatever it is.
func Next(checks ...Check) Expectation {
	return Expectation{Label: "callback", Checks: checks}
}

// DontCare returns n expectations that only require some frame to arrive.
func DontCare(n int) []Expectation {
	out := make([]Expectation, n)
	for i := range out {
		out[i] = Expectation{Label: "callback", DontCare: true}
	}
	return out
}

// Step is one command and the frames it must produce.
type Step struct {
	Name    string
	Command Frame
	Expect  []Expectation
	// Sleep pauses after the step, letting the RF front end settle.
	Sleep time.Duration
}

// NewStep builds a step from a command and its expectations.
func NewStep(name string, cmd Frame, expect ...Expectation) Step {
	return Step{Name: name, Command: cmd, Expect: expect}
}

// Then appends expectations.
func (s Step) Then(expect ...Expectation) Step {
	s.Expect = append(append([]Expectation(nil), s.Expect...), expect...)
	return s
}

// AndSleep returns s with a pause after it.
func (s Step) AndSleep(d time.Duration) Step {
	s.Sleep = d
	return s
}
