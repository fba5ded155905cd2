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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryConfig_DefaultRetryConfig(t *testing.T) {
	t.Parallel()

	config := DefaultRetryConfig()

	assert.Equal(t, DefaultOpenRetries, config.MaxAttempts)
	assert.Greater(t, config.MaxBackoff, config.InitialBackoff)
	assert.Greater(t, config.BackoffMultiplier, 1.0)
	assert.GreaterOrEqual(t, config.Jitter, 0.0)
	assert.LessOrEqual(t, config.Jitter, 1.0)
	assert.Positive(t, config.RetryTimeout)
}

func TestCalculateNextBackoff(t *testing.T) {
	t.Parallel()

	config := &RetryConfig{BackoffMultiplier: 2.0, MaxBackoff: 500 * time.Millisecond}
	tests := []struct {
		name    string
		current time.Duration
		want    time.Duration
	}{
		{name: "doubles", current: 100 * time.Millisecond, want: 200 * time.Millisecond},
		{name: "capped", current: 400 * time.Millisecond, want: 500 * time.Millisecond},
		{name: "stays at cap", current: 500 * time.Millisecond, want: 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, calculateNextBackoff(tt.current, config))
		})
	}
}

func TestCalculateJitteredSleep(t *testing.T) {
	t.Parallel()

	base := 100 * time.Millisecond
	assert.Equal(t, base, calculateJitteredSleep(base, 0))
	for range 20 {
		got := calculateJitteredSleep(base, 0.5)
		assert.GreaterOrEqual(t, got, base)
		assert.LessOrEqual(t, got, 150*time.Millisecond)
	}
}

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2.0,
		RetryTimeout:      time.Second,
	}
}

func TestRetryWithConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr   error
		errs      []error
		name      string
		attempts  int
		wantCalls int
	}{
		{name: "first try succeeds", attempts: 3, errs: []error{nil}, wantCalls: 1},
		{
			name:      "retryable then success",
			attempts:  3,
			errs:      []error{ErrHALTimeout, ErrHALRead, nil},
			wantCalls: 3,
		},
		{
			name:      "permanent error stops at once",
			attempts:  3,
			errs:      []error{ErrDeviceNotFound},
			wantErr:   ErrDeviceNotFound,
			wantCalls: 1,
		},
		{
			name:      "attempts exhausted returns last error",
			attempts:  2,
			errs:      []error{ErrHALTimeout, ErrHALOpenFailed},
			wantErr:   ErrHALOpenFailed,
			wantCalls: 2,
		},
		{
			name:      "zero attempts runs once",
			attempts:  0,
			errs:      []error{ErrHALTimeout},
			wantErr:   ErrHALTimeout,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			calls := 0
			err := RetryWithConfig(context.Background(), fastRetry(tt.attempts), func() error {
				e := tt.errs[min(calls, len(tt.errs)-1)]
				calls++
				return e
			})
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}

func TestRetryWithConfig_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := RetryWithConfig(ctx, fastRetry(3), func() error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestSleepCtx(t *testing.T) {
	t.Parallel()

	require.NoError(t, sleepCtx(context.Background(), 0))
	require.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := sleepCtx(ctx, time.Hour)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRetryingHAL_RetriesOpen(t *testing.T) {
	t.Parallel()

	m := NewMockHAL()
	m.SetError(MockOpOpen, NewTimeoutError("Open", "mock"))
	h := NewRetryingHAL(m, fastRetry(3))

	err := h.Open(context.Background(), Callbacks{})
	require.ErrorIs(t, err, ErrHALTimeout)
	assert.Equal(t, 3, m.OpenCount())

	m.ClearError(MockOpOpen)
	require.NoError(t, h.Open(context.Background(), Callbacks{}))
	assert.Same(t, HAL(m), h.Unwrap())
}
