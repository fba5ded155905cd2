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

// Package platform wraps the device-side plumbing around a test run: the
// NFC system service, system properties, the kernel driver module, operator
// prompts and the vendor HAL calls that are made through the service
// manager rather than the NCI channel.
//
// Every shell command goes through a Runner so the harness binaries can be
// tested without a device.
package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ZaparooProject/go-nci"
)

// Platform errors
var (
	ErrCommandFailed = errors.New("platform command failed")
	ErrPropertyUnset = errors.New("system property not set")
	ErrInvalidChoice = errors.New("invalid selection")
	ErrUnsupported   = errors.New("not supported on this platform")
	ErrBadParcel     = errors.New("unexpected service call reply")
)

// Runner executes a command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner.
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	nci.Debugf("exec: %s %s -> %q", name, strings.Join(args, " "), bytes.TrimSpace(out))
	if err != nil {
		if ctx.Err() != nil {
			return out, fmt.Errorf("%s: %w", name, ctx.Err())
		}
		return out, fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, name, strings.Join(args, " "), err)
	}
	return out, nil
}

// commandLine joins a command for logs and mock keys.
func commandLine(name string, args ...string) string {
	return strings.TrimSpace(name + " " + strings.Join(args, " "))
}
