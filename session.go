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

package nci

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-nci/internal/syncutil"
)

// SessionOption configures a Session.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	port            string
	callbackTimeout time.Duration
	eventTimeout    time.Duration
	queueCapacity   int
	traceSize       int
	prolongFactor   int
}

// WithCallbackTimeout sets the default wait for each expected frame.
func WithCallbackTimeout(d time.Duration) SessionOption {
	return func(o *sessionOptions) { o.callbackTimeout = d }
}

// WithEventTimeout sets the wait for OPEN_CPLT and CLOSE_CPLT.
func WithEventTimeout(d time.Duration) SessionOption {
	return func(o *sessionOptions) { o.eventTimeout = d }
}

// WithProlongFactor sets the multiplier used by prolonged expectations.
func WithProlongFactor(n int) SessionOption {
	return func(o *sessionOptions) { o.prolongFactor = n }
}

// WithQueueCapacity sets how many unclaimed frames are kept.
func WithQueueCapacity(n int) SessionOption {
	return func(o *sessionOptions) { o.queueCapacity = n }
}

// WithTrace names the device in wire traces and sets how many entries are kept.
func WithTrace(port string, size int) SessionOption {
	return func(o *sessionOptions) {
		o.port = port
		o.traceSize = size
	}
}

type halEvent struct {
	event  Event
	status EventStatus
}

// Session is one HAL connection plus the correlator that pairs its callbacks
// with the steps waiting for them. Steps run on one goroutine at a time; the
// HAL delivers on its own.
type Session struct {
	hal     HAL
	corr    *Correlator
	events  chan halEvent
	trace   *TraceBuffer
	opts    sessionOptions
	mu      syncutil.Mutex
	version Version
	open    bool
}

const eventQueueSize = 8

// NewSession creates a closed session over h.
func NewSession(h HAL, opts ...SessionOption) *Session {
	o := sessionOptions{
		callbackTimeout: DefaultCallbackTimeout,
		eventTimeout:    DefaultEventTimeout,
		queueCapacity:   DefaultQueueCapacity,
		traceSize:       DefaultTraceSize,
		prolongFactor:   ProlongedWaitFactor,
	}
	for _, opt := range opts {
		opt(&o)
	}
	corr := NewCorrelator(o.queueCapacity)
	corr.SetDefaultTimeout(o.callbackTimeout)
	return &Session{
		hal:    h,
		corr:   corr,
		events: make(chan halEvent, eventQueueSize),
		trace:  NewTraceBuffer(string(h.Backend()), o.port, o.traceSize),
		opts:   o,
	}
}

// HAL returns the underlying HAL.
func (s *Session) HAL() HAL {
	return s.hal
}

// Vendor returns the HAL's vendor extension, if it has one.
func (s *Session) Vendor() (VendorExtension, bool) {
	return VendorOf(s.hal)
}

// Trace returns the session's wire trace.
func (s *Session) Trace() *TraceBuffer {
	return s.trace
}

func (s *Session) callbacks() Callbacks {
	return Callbacks{OnEvent: s.onEvent, OnData: s.onData}
}

func (s *Session) onData(data []byte) {
	s.trace.RecordRX(data, "")
	logFrame(TraceRX, data)
	s.corr.Deliver(data)
}

func (s *Session) onEvent(e Event, status EventStatus) {
	Debugf("HAL event %s status %s", e, status)
	s.trace.RecordRX(nil, fmt.Sprintf("event %s %s", e, status))
	ev := halEvent{event: e, status: status}
	for {
		select {
		case s.events <- ev:
			return
		default:
		}
		// Drop the oldest event rather than block the HAL thread.
		select {
		case old := <-s.events:
			Debugf("dropping stale HAL event %s", old.event)
		default:
		}
	}
}

func (s *Session) awaitEvent(ctx context.Context, want Event) error {
	timer := time.NewTimer(s.opts.eventTimeout)
	defer timer.Stop()
	for {
		select {
		case ev := <-s.events:
			if ev.event != want {
				Debugf("ignoring HAL event %s while waiting for %s", ev.event, want)
				continue
			}
			if ev.status != EventStatusOK {
				return fmt.Errorf("%w: %s %s", ErrEventFailed, want, ev.status)
			}
			return nil
		case <-timer.C:
			s.trace.RecordTimeout(want.String())
			return s.trace.WrapError(fmt.Errorf("%w: %s", ErrEventTimeout, want))
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", want, ctx.Err())
		}
	}
}

// Open opens the HAL and waits for OPEN_CPLT with status OK.
func (s *Session) Open(ctx context.Context) error {
	s.drainEvents()
	if err := s.hal.Open(ctx, s.callbacks()); err != nil {
		return s.trace.WrapError(fmt.Errorf("open %s: %w", s.hal.Backend(), err))
	}
	if err := s.awaitEvent(ctx, EventOpenComplete); err != nil {
		return err
	}
	s.setOpen(true)
	return nil
}

// Close closes the HAL and waits for CLOSE_CPLT. Unclaimed frames are dropped.
func (s *Session) Close(ctx context.Context, ct CloseType) error {
	s.drainEvents()
	if err := s.hal.Close(ctx, ct); err != nil {
		return s.trace.WrapError(fmt.Errorf("close %s: %w", ct, err))
	}
	err := s.awaitEvent(ctx, EventCloseComplete)
	s.setOpen(false)
	if n := s.corr.Flush(); n > 0 {
		Debugf("discarded %d unclaimed frames on close", n)
	}
	return err
}

// PowerCycle resets the controller and waits for the new OPEN_CPLT. Frames
// queued before the reset are dropped.
func (s *Session) PowerCycle(ctx context.Context) error {
	s.drainEvents()
	s.corr.Flush()
	if err := s.hal.PowerCycle(ctx); err != nil {
		return s.trace.WrapError(fmt.Errorf("power cycle: %w", err))
	}
	return s.awaitEvent(ctx, EventOpenComplete)
}

func (s *Session) drainEvents() {
	for {
		select {
		case <-s.events:
		default:
			return
		}
	}
}

func (s *Session) setOpen(open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = open
}

// IsOpen reports whether the last Open succeeded and no Close followed.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Send writes one frame and returns the number of bytes the HAL accepted.
func (s *Session) Send(ctx context.Context, f Frame) (int, error) {
	s.trace.RecordTX(f, "")
	logFrame(TraceTX, f)
	n, err := s.hal.Write(ctx, f)
	if err != nil {
		return n, s.trace.WrapError(err)
	}
	return n, nil
}

// AwaitCallback waits for the next frame in arrival order. It returns false
// if nothing arrives within timeout.
func (s *Session) AwaitCallback(ctx context.Context, timeout time.Duration) (bool, Frame) {
	return s.AwaitMatch(ctx, timeout, nil)
}

// AwaitMatch waits for the first frame accepted by match; frames it rejects
// stay queued.
func (s *Session) AwaitMatch(ctx context.Context, timeout time.Duration, match Matcher) (bool, Frame) {
	f, ok := s.corr.AwaitMatch(ctx, timeout, match)
	if !ok {
		s.trace.RecordTimeout(fmt.Sprintf("after %s", timeout))
	}
	return ok, f
}

// Drain consumes up to n frames without checking them.
func (s *Session) Drain(ctx context.Context, n int, timeout time.Duration) int {
	return s.corr.Drain(ctx, n, timeout)
}

// ProlongedTimeout is the wait used for slow proprietary commands.
func (s *Session) ProlongedTimeout() time.Duration {
	return s.Timeout(s.opts.prolongFactor)
}

// Timeout returns the callback timeout multiplied by factor.
func (s *Session) Timeout(factor int) time.Duration {
	if factor < 1 {
		factor = 1
	}
	return s.opts.callbackTimeout * time.Duration(factor)
}

func (s *Session) timeoutFor(e Expectation) time.Duration {
	base := s.opts.callbackTimeout
	if e.Timeout > 0 {
		base = e.Timeout
	}
	factor := e.Factor
	if e.Prolong {
		factor = s.opts.prolongFactor
	}
	if factor > 1 {
		base *= time.Duration(factor)
	}
	return base
}

// Overflow returns how many frames were evicted unclaimed.
func (s *Session) Overflow() int {
	return s.corr.Overflow()
}

// Pending returns the number of queued, unclaimed frames.
func (s *Session) Pending() int {
	return s.corr.Pending()
}

// Version returns the NCI version found by ProbeVersion, or zero.
func (s *Session) Version() Version {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

func (s *Session) setVersion(v Version) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.version = v
}

// Transact runs one step: it sends the command, then waits for each expected
// frame in turn, each with its own timeout. A response expectation only
// claims the response to the step's command; other frames stay queued. Every failure is recorded on rec
// and the step always runs to the end. The frames that arrived are returned
// in expectation order.
func (s *Session) Transact(ctx context.Context, rec *Recorder, step Step) []Frame {
	rec.SetStep(step.Name)

	if step.Command != nil {
		n, err := s.Send(ctx, step.Command)
		if err != nil {
			rec.Fail(FailureWriteSize, "write [%s]: %v", step.Command, err)
		} else {
			rec.ExpectWritten(n, step.Command.Len())
		}
	}

	got := make([]Frame, 0, len(step.Expect))
	for _, e := range step.Expect {
		if ctx.Err() != nil {
			rec.Fail(FailureTimeout, "%s not awaited: %v", e.Label, ctx.Err())
			continue
		}
		timeout := s.timeoutFor(e)
		arrived, f := s.AwaitMatch(ctx, timeout, e.matcherFor(step.Command))
		if !arrived {
			rec.Fail(FailureTimeout, "no %s within %s%s", labelOf(e), timeout, s.unclaimedSummary())
			continue
		}
		got = append(got, f)
		if !e.DontCare {
			rec.ExpectFrame(f, e.Checks...)
		}
	}

	if step.Sleep > 0 {
		_ = sleepCtx(ctx, step.Sleep)
	}
	return got
}

// Run runs steps in order.
func (s *Session) Run(ctx context.Context, rec *Recorder, steps ...Step) {
	for _, st := range steps {
		s.Transact(ctx, rec, st)
	}
}

func labelOf(e Expectation) string {
	if e.Label != "" {
		return e.Label
	}
	return "callback"
}

func (s *Session) unclaimedSummary() string {
	queued := s.corr.Snapshot()
	if len(queued) == 0 {
		return ""
	}
	parts := make([]string, len(queued))
	for i, f := range queued {
		parts[i] = "[" + f.String() + "]"
	}
	return fmt.Sprintf(" (unclaimed: %s)", strings.Join(parts, " "))
}
