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

import "sync"

// Pool sizes
const (
	SmallBufferSize = 16           // headers and short responses
	FrameBufferSize = MaxFrameSize // one complete control or data frame
	ReadBufferSize  = 1024         // raw reads that may carry several frames
)

// BufferPool hands out read buffers for the transport read loops so a busy
// controller does not allocate on every poll.
type BufferPool struct {
	small sync.Pool
	frame sync.Pool
	read  sync.Pool
}

var defaultPool = NewBufferPool()

func newSized(n int) sync.Pool {
	return sync.Pool{New: func() any {
		buf := make([]byte, n)
		return &buf
	}}
}

// NewBufferPool creates an empty pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		small: newSized(SmallBufferSize),
		frame: newSized(FrameBufferSize),
		read:  newSized(ReadBufferSize),
	}
}

// GetBuffer returns a slice of length size. Oversized requests bypass the pool.
func (p *BufferPool) GetBuffer(size int) []byte {
	var pool *sync.Pool
	switch {
	case size <= SmallBufferSize:
		pool = &p.small
	case size <= FrameBufferSize:
		pool = &p.frame
	case size <= ReadBufferSize:
		pool = &p.read
	default:
		return make([]byte, size)
	}
	bufPtr, ok := pool.Get().(*[]byte)
	if !ok {
		return make([]byte, size)
	}
	return (*bufPtr)[:size]
}

// PutBuffer zeroes buf and returns it to the pool it came from.
func (p *BufferPool) PutBuffer(buf []byte) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	clear(full)
	switch cap(buf) {
	case SmallBufferSize:
		p.small.Put(&full)
	case FrameBufferSize:
		p.frame.Put(&full)
	case ReadBufferSize:
		p.read.Put(&full)
	}
}

// GetBuffer acquires a buffer from the default pool.
func GetBuffer(size int) []byte {
	return defaultPool.GetBuffer(size)
}

// PutBuffer returns a buffer to the default pool.
func PutBuffer(buf []byte) {
	defaultPool.PutBuffer(buf)
}

// GetReadBuffer gets a raw read buffer from the default pool.
func GetReadBuffer() []byte {
	return defaultPool.GetBuffer(ReadBufferSize)
}
