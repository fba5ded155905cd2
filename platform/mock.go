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

package platform

import (
	"context"

	"github.com/ZaparooProject/go-nci/internal/syncutil"
)

type mockReply struct {
	err error
	out []byte
}

// MockRunner records commands and plays back scripted output. Commands with
// no script succeed with empty output.
type MockRunner struct {
	replies  map[string][]mockReply
	commands []string
	mu       syncutil.RWMutex
}

// NewMockRunner creates an empty MockRunner.
func NewMockRunner() *MockRunner {
	return &MockRunner{replies: make(map[string][]mockReply)}
}

// Run implements Runner.
func (m *MockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	line := commandLine(name, args...)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands = append(m.commands, line)
	queue := m.replies[line]
	if len(queue) == 0 {
		return nil, nil
	}
	r := queue[0]
	// The last reply sticks.
	if len(queue) > 1 {
		m.replies[line] = queue[1:]
	}
	return r.out, r.err
}

// SetOutput scripts the output of a command line such as "getprop foo".
// Several calls queue replies in order.
func (m *MockRunner) SetOutput(line, out string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[line] = append(m.replies[line], mockReply{out: []byte(out)})
}

// SetError scripts a failure of a command line.
func (m *MockRunner) SetError(line string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies[line] = append(m.replies[line], mockReply{err: err})
}

// Commands returns the command lines run so far.
func (m *MockRunner) Commands() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.commands...)
}

// Count returns how often line was run.
func (m *MockRunner) Count(line string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, c := range m.commands {
		if c == line {
			n++
		}
	}
	return n
}
