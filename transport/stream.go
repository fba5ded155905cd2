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

package transport

import (
	"io"

	"github.com/ZaparooProject/go-nci/internal/frame"
)

// StreamLink frames a raw byte stream such as a UART or a character device
// that returns whatever bytes are available. Reads must time out rather than
// block forever, otherwise Close cannot stop the read loop.
//
// ReadFrame is only called from the HAL read goroutine and ResetFraming only
// while that goroutine is stopped, so StreamLink itself is not locked.
type StreamLink struct {
	rw       io.ReadWriteCloser
	splitter *frame.Splitter
	pending  [][]byte
}

// NewStreamLink wraps rw.
func NewStreamLink(rw io.ReadWriteCloser) *StreamLink {
	return &StreamLink{rw: rw, splitter: frame.NewSplitter()}
}

// ReadFrame returns a buffered frame if one is complete, otherwise performs
// one read on the stream.
func (s *StreamLink) ReadFrame() ([]byte, error) {
	if f := s.pop(); f != nil {
		return f, nil
	}

	buf := frame.GetReadBuffer()
	defer frame.PutBuffer(buf)

	n, err := s.rw.Read(buf)
	if n > 0 {
		s.pending = append(s.pending, s.splitter.Feed(buf[:n])...)
	}
	if f := s.pop(); f != nil {
		// A failing stream reports the error again on the next read.
		return f, nil
	}
	return nil, err
}

func (s *StreamLink) pop() []byte {
	if len(s.pending) == 0 {
		return nil
	}
	f := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	return f
}

// Write passes p through unchanged.
func (s *StreamLink) Write(p []byte) (int, error) {
	return s.rw.Write(p)
}

// Close closes the stream.
func (s *StreamLink) Close() error {
	return s.rw.Close()
}

// ResetFraming drops partial and undelivered frames. Called after the
// controller was reset, since NCI has no start marker to resync on.
func (s *StreamLink) ResetFraming() {
	s.splitter.Reset()
	s.pending = nil
}

// Pending reports how many bytes of an incomplete frame are buffered.
func (s *StreamLink) Pending() int {
	return s.splitter.Pending()
}
