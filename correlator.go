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

import (
	"context"
	"time"

	"github.com/ZaparooProject/go-nci/internal/syncutil"
)

// Matcher selects the frame a waiter is interested in.
type Matcher func(Frame) bool

// MatchAny accepts the next frame in arrival order.
func MatchAny() Matcher {
	return func(Frame) bool { return true }
}

// MatchResponse accepts any control response. NCI allows one outstanding
// command, so the first response after a command belongs to it.
func MatchResponse() Matcher {
	return func(f Frame) bool { return f.MT() == MTResponse }
}

// MatchResponseTo accepts only the response with cmd's opcode.
func MatchResponseTo(cmd Frame) Matcher {
	return func(f Frame) bool { return f.IsResponseTo(cmd) }
}

// MatchNotification accepts a notification with the given opcode.
func MatchNotification(gid, oid byte) Matcher {
	return func(f Frame) bool {
		return f.MT() == MTNotification && f.GID() == gid && f.OID() == oid
	}
}

// MatchData accepts a data packet on connID.
func MatchData(connID byte) Matcher {
	return func(f Frame) bool { return f.MT() == MTData && f.GID() == connID }
}

// Correlator pairs frames delivered by the HAL with the steps waiting for
// them. Frames nobody is waiting for are held in a bounded queue; when it is
// full the oldest frame is evicted and counted as overflow. Waiters are
// futures: each one claims at most one frame, either straight from Deliver or
// from the queue at registration time.
type Correlator struct {
	done      chan struct{}
	queue     []Frame
	waiters   []*Future
	capacity  int
	overflow  int
	delivered int
	fallback  time.Duration
	mu        syncutil.Mutex
	closed    bool
}

// NewCorrelator creates a correlator holding up to capacity unclaimed frames.
func NewCorrelator(capacity int) *Correlator {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &Correlator{
		capacity: capacity,
		queue:    make([]Frame, 0, capacity),
		done:     make(chan struct{}),
		fallback: DefaultCallbackTimeout,
	}
}

// SetDefaultTimeout sets the wait used when a caller passes a timeout of
// zero or less. Non-positive values are ignored.
func (c *Correlator) SetDefaultTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fallback = d
}

func (c *Correlator) defaultTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fallback
}

// Deliver is the HAL data callback. The bytes are copied.
func (c *Correlator) Deliver(raw []byte) {
	f := NewFrame(raw)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.delivered++

	for i, w := range c.waiters {
		if w.match(f) {
			c.waiters = append(c.waiters[:i:i], c.waiters[i+1:]...)
			w.ch <- f
			return
		}
	}

	if len(c.queue) >= c.capacity {
		Debugf("callback queue full, evicting %s", c.queue[0].Describe())
		c.queue = append(c.queue[:0], c.queue[1:]...)
		c.overflow++
	}
	c.queue = append(c.queue, f)
}

// Expect registers interest in the first frame accepted by match. A queued
// frame that matches is claimed immediately. A nil match accepts anything.
func (c *Correlator) Expect(match Matcher) *Future {
	if match == nil {
		match = MatchAny()
	}
	fut := &Future{c: c, match: match, ch: make(chan Frame, 1)}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, f := range c.queue {
		if match(f) {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			fut.ch <- f
			return fut
		}
	}
	if !c.closed {
		c.waiters = append(c.waiters, fut)
	}
	return fut
}

// Await waits for the next frame in arrival order.
func (c *Correlator) Await(ctx context.Context, timeout time.Duration) (Frame, bool) {
	return c.Expect(nil).Wait(ctx, timeout)
}

// AwaitMatch waits for the first frame accepted by match, leaving frames it
// rejects queued for later steps.
func (c *Correlator) AwaitMatch(ctx context.Context, timeout time.Duration, match Matcher) (Frame, bool) {
	return c.Expect(match).Wait(ctx, timeout)
}

// Drain consumes up to n frames without looking at them, waiting at most
// timeout for each, and returns how many arrived.
func (c *Correlator) Drain(ctx context.Context, n int, timeout time.Duration) int {
	got := 0
	for range n {
		if _, ok := c.Await(ctx, timeout); !ok {
			break
		}
		got++
	}
	return got
}

// Pending returns the number of queued, unclaimed frames.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Snapshot returns the queued frames, oldest first.
func (c *Correlator) Snapshot() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.queue...)
}

// Overflow returns how many frames were evicted unclaimed.
func (c *Correlator) Overflow() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overflow
}

// Delivered returns the number of frames accepted since creation.
func (c *Correlator) Delivered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delivered
}

// Flush drops queued frames, for example after a power cycle where anything
// left over belongs to the previous boot.
func (c *Correlator) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.queue)
	c.queue = c.queue[:0]
	return n
}

// Close wakes every waiter with no frame and ignores later deliveries.
func (c *Correlator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.waiters = nil
	close(c.done)
}

// Future is one pending expectation.
type Future struct {
	c     *Correlator
	match Matcher
	ch    chan Frame
}

// Wait blocks until the frame arrives, timeout elapses, ctx ends or the
// correlator closes. A timeout of zero or less falls back to the
// correlator's default, DefaultCallbackTimeout unless set otherwise.
func (f *Future) Wait(ctx context.Context, timeout time.Duration) (Frame, bool) {
	if timeout <= 0 {
		timeout = f.c.defaultTimeout()
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case fr := <-f.ch:
		return fr, true
	case <-timer.C:
	case <-ctx.Done():
	case <-f.c.done:
	}
	return f.Cancel()
}

// Cancel withdraws the expectation. If a frame was handed over in the
// meantime it is returned rather than lost.
func (f *Future) Cancel() (Frame, bool) {
	f.c.mu.Lock()
	for i, w := range f.c.waiters {
		if w == f {
			f.c.waiters = append(f.c.waiters[:i:i], f.c.waiters[i+1:]...)
			break
		}
	}
	f.c.mu.Unlock()

	select {
	case fr := <-f.ch:
		return fr, true
	default:
		return nil, false
	}
}
