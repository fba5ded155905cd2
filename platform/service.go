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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/transport"
)

// ServiceController turns the platform NFC service off while a harness owns
// the controller and back on afterwards.
type ServiceController struct {
	runner        Runner
	retry         *nci.RetryConfig
	DisableSettle time.Duration
	EnableSettle  time.Duration
}

// NewServiceController uses the default settle delays.
func NewServiceController(r Runner) *ServiceController {
	return &ServiceController{
		runner:        r,
		retry:         nci.DefaultRetryConfig(),
		DisableSettle: nci.ServiceDisableSettle,
		EnableSettle:  nci.ServiceEnableSettle,
	}
}

// WithRetry replaces the retry policy for the svc command.
func (c *ServiceController) WithRetry(rc *nci.RetryConfig) *ServiceController {
	c.retry = rc
	return c
}

// Disable runs "svc nfc disable" and waits for the stack to let go.
func (c *ServiceController) Disable(ctx context.Context) error {
	return c.toggle(ctx, "disable", c.DisableSettle)
}

// Enable runs "svc nfc enable" and waits for the stack to come back.
func (c *ServiceController) Enable(ctx context.Context) error {
	return c.toggle(ctx, "enable", c.EnableSettle)
}

func (c *ServiceController) toggle(ctx context.Context, verb string, settle time.Duration) error {
	op := "svc nfc " + verb
	err := nci.RetryWithConfig(ctx, c.retry, func() error {
		if _, err := c.runner.Run(ctx, "svc", "nfc", verb); err != nil {
			// svc fails while the service manager is still starting.
			return nci.NewHALError(op, "nfc", err, nci.ErrorTypeTransient)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	nci.Debugf("%s, settling %v", op, settle)
	if settle > 0 {
		return transport.Sleep(ctx, settle)
	}
	return nil
}

// PropertyReader reads Android system properties with getprop.
type PropertyReader struct {
	runner Runner
}

// NewPropertyReader creates a PropertyReader.
func NewPropertyReader(r Runner) *PropertyReader {
	return &PropertyReader{runner: r}
}

// Get returns the property value. An empty value is ErrPropertyUnset.
func (p *PropertyReader) Get(ctx context.Context, name string) (string, error) {
	out, err := p.runner.Run(ctx, "getprop", name)
	if err != nil {
		return "", fmt.Errorf("getprop %s: %w", name, err)
	}
	v := strings.TrimSpace(string(out))
	if v == "" {
		return "", fmt.Errorf("%s: %w", name, ErrPropertyUnset)
	}
	return v, nil
}

// Int parses the property as a decimal integer.
func (p *PropertyReader) Int(ctx context.Context, name string) (int, error) {
	v, err := p.Get(ctx, name)
	if err != nil {
		return 0, err
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", name, v, nci.ErrInvalidFormat)
	}
	return n, nil
}

// AdapterCode is a transaction on the framework NFC adapter service.
type AdapterCode int

// Adapter transactions used around a driver reload.
const (
	AdapterDisable AdapterCode = 7
	AdapterEnable  AdapterCode = 8
)

// AdapterCall runs "service call nfc <code>".
func AdapterCall(ctx context.Context, r Runner, code AdapterCode) error {
	out, err := r.Run(ctx, "service", "call", "nfc", strconv.Itoa(int(code)))
	if err != nil {
		return fmt.Errorf("service call nfc %d: %w", code, err)
	}
	if _, err := parseParcel(out); err != nil {
		return fmt.Errorf("service call nfc %d: %w", code, err)
	}
	return nil
}
