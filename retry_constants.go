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

// Callback wait constants.
const (
	// DefaultCallbackTimeout is how long a step waits for each expected frame.
	DefaultCallbackTimeout = 10 * time.Second
	// ProlongedWaitFactor multiplies the timeout for steps the controller is
	// slow to answer: proprietary activation, standby and PRBS start.
	ProlongedWaitFactor = 3
	// DefaultEventTimeout bounds the wait for OPEN_CPLT and CLOSE_CPLT.
	DefaultEventTimeout = 10 * time.Second
	// DefaultQueueCapacity is the number of undelivered frames kept before
	// the oldest is evicted.
	DefaultQueueCapacity = 16
)

// HAL open retry constants.
const (
	// DefaultOpenRetries is the number of attempts to open a backend.
	DefaultOpenRetries = 3
	// OpenInitialBackoff is the first delay between attempts.
	OpenInitialBackoff = 100 * time.Millisecond
	// OpenMaxBackoff caps the delay between attempts.
	OpenMaxBackoff = 500 * time.Millisecond
	// OpenBackoffMultiplier grows the delay.
	OpenBackoffMultiplier = 2.0
	// OpenJitter is the random jitter fraction.
	OpenJitter = 0.1
	// OpenRetryTimeout bounds all attempts together.
	OpenRetryTimeout = 10 * time.Second
)

// Settle delays around toggling the platform NFC service.
const (
	// ServiceDisableSettle lets the stack release the controller.
	ServiceDisableSettle = 300 * time.Millisecond
	// ServiceEnableSettle lets the stack come back before the binary exits.
	ServiceEnableSettle = 2 * time.Second
	// ModeSwitchDisableSettle is used before the dual-CPU mode switch, which
	// needs the stack fully torn down.
	ModeSwitchDisableSettle = 2 * time.Second
)

// Pauses between self-test cases, giving the RF front end time to settle.
const (
	RFSettleDelay  = 1 * time.Second
	CTSSettleDelay = 2 * time.Second
)

// Backend timing.
const (
	// PowerCycleLowTime is how long VEN (or DTR) is held low.
	PowerCycleLowTime = 10 * time.Millisecond
	// PowerCycleBootTime is how long the controller needs after VEN rises.
	PowerCycleBootTime = 20 * time.Millisecond
	// ReadPollInterval is how often polled backends check for data.
	ReadPollInterval = 5 * time.Millisecond
	// BackendReadTimeout is the per-read timeout of blocking backends, which
	// bounds how long Close waits for the read loop.
	BackendReadTimeout = 50 * time.Millisecond
)
