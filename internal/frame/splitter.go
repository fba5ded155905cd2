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
package frame

// Splitter reassembles NCI frames from a byte stream that may arrive in
// arbitrary fragments. NCI carries no start marker, so a lost byte shifts
// every following frame; callers resynchronise with Reset after a power cycle.
//
// A Splitter is not safe for concurrent use.
type Splitter struct {
	buf []byte
}

// NewSplitter returns an empty splitter.
func NewSplitter() *Splitter {
	return &Splitter{buf: make([]byte, 0, MaxFrameSize)}
}

// Feed appends chunk and returns every frame completed by it, in order.
// Each returned slice is a fresh copy owned by the caller.
func (s *Splitter) Feed(chunk []byte) [][]byte {
	s.buf = append(s.buf, chunk...)

	var frames [][]byte
	for len(s.buf) >= HeaderSize {
		total := HeaderSize + int(s.buf[2])
		if len(s.buf) < total {
			break
		}
		out := make([]byte, total)
		copy(out, s.buf[:total])
		frames = append(frames, out)
		s.buf = s.buf[total:]
	}

	// Compact so the backing array does not grow without bound.
	if len(s.buf) == 0 {
		s.buf = s.buf[:0:cap(s.buf)]
	} else if cap(s.buf) > 4*MaxFrameSize {
		rest := make([]byte, len(s.buf), MaxFrameSize)
		copy(rest, s.buf)
		s.buf = rest
	}
	return frames
}

// Pending reports how many bytes of an incomplete frame are buffered.
func (s *Splitter) Pending() int {
	return len(s.buf)
}

// Reset discards any partial frame.
func (s *Splitter) Reset() {
	s.buf = s.buf[:0]
}
