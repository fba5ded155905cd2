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
//go:build deadlock

package syncutil

import (
	"time"

	deadlock "github.com/sasha-s/go-deadlock"
)

// A callback wait can legitimately hold no lock for 30s (three times the
// default timeout), but no lock in this module is held across a wait.
func init() {
	deadlock.Opts.DeadlockTimeout = 15 * time.Second
}

// Mutex reports lock-order inversions and long holds.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex reports lock-order inversions and long holds.
type RWMutex struct {
	deadlock.RWMutex
}
