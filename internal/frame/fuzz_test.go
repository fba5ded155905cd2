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

import "testing"

// Controllers on a noisy bus can emit anything; the splitter must never
// panic and must never hand out a frame whose length byte disagrees with it.
//
// Run with: go test -fuzz=FuzzSplitter -fuzztime=30s ./internal/frame/
func FuzzSplitter(f *testing.F) {
	f.Add([]byte{0x40, 0x00, 0x01, 0x00}, 1)
	f.Add([]byte{0x60, 0x00, 0x09, 0x02, 0x00, 0x20, 0x04, 0x04, 0x51, 0x12, 0x01, 0x90}, 3)
	f.Add([]byte{}, 0)
	f.Add([]byte{0xFF, 0xFF, 0xFF}, 2)
	f.Add([]byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00}, 1)

	f.Fuzz(func(t *testing.T, stream []byte, step int) {
		if step <= 0 {
			step = 1
		}
		s := NewSplitter()
		for i := 0; i < len(stream); i += step {
			end := min(i+step, len(stream))
			for _, fr := range s.Feed(stream[i:end]) {
				if err := ValidateLength(fr); err != nil {
					t.Fatalf("splitter produced invalid frame % X: %v", fr, err)
				}
			}
		}
		if s.Pending() > MaxFrameSize {
			t.Fatalf("pending %d exceeds one frame", s.Pending())
		}
	})
}

func FuzzParseHeader(f *testing.F) {
	f.Add([]byte{0x20, 0x00, 0x01})
	f.Add([]byte{0x01})
	f.Add([]byte{})

	f.Fuzz(func(_ *testing.T, buf []byte) {
		h, err := ParseHeader(buf)
		if err != nil {
			return
		}
		out := make([]byte, HeaderSize)
		h.Encode(out)
	})
}
