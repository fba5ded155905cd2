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
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the optional YAML file shared by the harness binaries. Command
// line flags override whatever it sets.
type Config struct {
	HAL struct {
		Backend string `yaml:"backend"` // uart, i2c, spi, chardev, virtual
		Path    string `yaml:"path"`    // device node, serial port or bus name
		Address uint16 `yaml:"address"` // I2C address
		VENPin  string `yaml:"ven_pin"` // GPIO used to power cycle
		IRQPin  string `yaml:"irq_pin"` // GPIO raised when data is ready
		Baud    int    `yaml:"baud"`
		Retries int    `yaml:"retries"`
	} `yaml:"hal"`
	Timeouts struct {
		Callback      time.Duration `yaml:"callback"`
		Event         time.Duration `yaml:"event"`
		ProlongFactor int           `yaml:"prolong_factor"`
	} `yaml:"timeouts"`
	Service struct {
		Manage        bool          `yaml:"manage"`
		DisableSettle time.Duration `yaml:"disable_settle"`
		EnableSettle  time.Duration `yaml:"enable_settle"`
	} `yaml:"service"`
	Results struct {
		Path string `yaml:"path"`
	} `yaml:"results"`
	Suite struct {
		Name               string `yaml:"name"`
		Filter             string `yaml:"filter"`
		IncludeDisabled    bool   `yaml:"include_disabled"`
		Repeat             int    `yaml:"repeat"`
		LoopbackIterations int    `yaml:"loopback_iterations"`
	} `yaml:"suite"`
	QueueCapacity int  `yaml:"queue_capacity"`
	Debug         bool `yaml:"debug"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.HAL.Backend == "" {
		c.HAL.Backend = string(BackendCharDev)
	}
	if c.HAL.Baud == 0 {
		c.HAL.Baud = 115200
	}
	if c.HAL.Address == 0 {
		c.HAL.Address = 0x28
	}
	if c.HAL.Retries == 0 {
		c.HAL.Retries = DefaultOpenRetries
	}
	if c.Timeouts.Callback == 0 {
		c.Timeouts.Callback = DefaultCallbackTimeout
	}
	if c.Timeouts.Event == 0 {
		c.Timeouts.Event = DefaultEventTimeout
	}
	if c.Timeouts.ProlongFactor == 0 {
		c.Timeouts.ProlongFactor = ProlongedWaitFactor
	}
	if c.Service.DisableSettle == 0 {
		c.Service.DisableSettle = ServiceDisableSettle
	}
	if c.Service.EnableSettle == 0 {
		c.Service.EnableSettle = ServiceEnableSettle
	}
	if c.Suite.Repeat == 0 {
		c.Suite.Repeat = 1
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
}

// LoadConfig reads path, fills in defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML, fills in defaults and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no run can work with.
func (c *Config) Validate() error {
	var errs []error
	switch Backend(c.HAL.Backend) {
	case BackendUART, BackendI2C, BackendSPI, BackendCharDev, BackendVirtual:
	default:
		errs = append(errs, fmt.Errorf("hal.backend %q: %w", c.HAL.Backend, ErrInvalidParameter))
	}
	if Backend(c.HAL.Backend) != BackendVirtual && c.HAL.Path == "" && Backend(c.HAL.Backend) != BackendCharDev {
		errs = append(errs, fmt.Errorf("hal.path is required for %s: %w", c.HAL.Backend, ErrInvalidParameter))
	}
	if c.HAL.Address > 0x7F {
		errs = append(errs, fmt.Errorf("hal.address 0x%X is not a 7-bit address: %w", c.HAL.Address, ErrInvalidParameter))
	}
	if c.Timeouts.Callback < 0 || c.Timeouts.Event < 0 {
		errs = append(errs, fmt.Errorf("timeouts must not be negative: %w", ErrInvalidParameter))
	}
	if c.Timeouts.ProlongFactor < 1 {
		errs = append(errs, fmt.Errorf("timeouts.prolong_factor must be at least 1: %w", ErrInvalidParameter))
	}
	if c.QueueCapacity < 1 {
		errs = append(errs, fmt.Errorf("queue_capacity must be at least 1: %w", ErrInvalidParameter))
	}
	if c.Suite.LoopbackIterations < 0 {
		errs = append(errs, fmt.Errorf("suite.loopback_iterations must not be negative: %w", ErrInvalidParameter))
	}
	return errors.Join(errs...)
}

// SessionOptions turns the timeout and queue settings into session options.
func (c *Config) SessionOptions() []SessionOption {
	return []SessionOption{
		WithCallbackTimeout(c.Timeouts.Callback),
		WithEventTimeout(c.Timeouts.Event),
		WithQueueCapacity(c.QueueCapacity),
		WithProlongFactor(c.Timeouts.ProlongFactor),
		WithTrace(c.HAL.Path, DefaultTraceSize),
	}
}

// RetryConfig returns the open-retry policy for the configured backend.
func (c *Config) RetryConfig() *RetryConfig {
	rc := DefaultRetryConfig()
	rc.MaxAttempts = c.HAL.Retries
	return rc
}
