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

// Package detection finds NCI controllers attached to the host. Backends
// register a Detector from their init function; DetectAll runs every
// registered detector in parallel.
package detection

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/internal/syncutil"
)

// Mode sets how far a detector goes to confirm a controller.
type Mode int

const (
	// Passive only looks at device nodes and descriptors.
	Passive Mode = iota
	// Probe opens each candidate and sends CORE_RESET.
	Probe
)

// Confidence is how sure a detector is that a path leads to an NCI
// controller.
type Confidence int

const (
	// Low means the bus exists; something may answer at the usual address.
	Low Confidence = iota
	// Medium means a node or descriptor matches a known controller.
	Medium
	// High means the controller answered CORE_RESET.
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// DeviceInfo describes one candidate controller. Path is what the backend's
// New function takes.
type DeviceInfo struct {
	// Metadata holds descriptor details, e.g. "vidpid" for USB bridges.
	Metadata   map[string]string
	Backend    nci.Backend
	Path       string
	Name       string
	Version    nci.Version
	Confidence Confidence
}

func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s controller at %s (confidence: %s)", d.Backend, d.Path, d.Confidence)
}

// Options configures detection.
type Options struct {
	// USB VID:PID pairs to skip, e.g. "1A86:7523".
	Blocklist []string
	// Device paths never to report or open.
	IgnorePaths []string
	// Backends to run; empty runs them all.
	Backends []nci.Backend
	CacheTTL time.Duration
	// Timeout bounds the whole detection run.
	Timeout time.Duration
	// ProbeTimeout bounds each CORE_RESET probe.
	ProbeTimeout time.Duration
	Mode         Mode
	EnableCache  bool
}

// DefaultOptions probes candidates and caches results for 30 seconds.
func DefaultOptions() Options {
	return Options{
		Mode:         Probe,
		Timeout:      10 * time.Second,
		ProbeTimeout: 2 * time.Second,
		Blocklist:    DefaultBlocklist(),
		EnableCache:  true,
		CacheTTL:     30 * time.Second,
	}
}

// Detector finds controllers on one backend.
type Detector interface {
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	Backend() nci.Backend
}

// Errors
var (
	ErrNoDevicesFound      = errors.New("no NCI controllers found")
	ErrNoDetectors         = errors.New("no detectors for the requested backends")
	ErrDetectionTimeout    = errors.New("detection timeout")
	ErrUnsupportedPlatform = errors.New("platform not supported")
)

// Registry holds detectors and the cache they share.
type Registry struct {
	cache     *Cache
	detectors []Detector
	mu        syncutil.RWMutex
}

// NewRegistry returns an empty registry using cache, which may be nil.
func NewRegistry(cache *Cache) *Registry {
	return &Registry{cache: cache}
}

// Register adds d. A second detector for the same backend replaces the first.
func (r *Registry) Register(d Detector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detectors = slices.DeleteFunc(r.detectors, func(old Detector) bool {
		return old.Backend() == d.Backend()
	})
	r.detectors = append(r.detectors, d)
}

// Detectors returns the detectors for backends, or all of them.
func (r *Registry) Detectors(backends ...nci.Backend) []Detector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(backends) == 0 {
		return slices.Clone(r.detectors)
	}
	var out []Detector
	for _, d := range r.detectors {
		if slices.Contains(backends, d.Backend()) {
			out = append(out, d)
		}
	}
	return out
}

// DetectAll runs the selected detectors in parallel. It returns whatever was
// found even if some detectors failed; with nothing found it returns the
// first detector error, ErrDetectionTimeout or ErrNoDevicesFound.
func (r *Registry) DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	detectors := r.Detectors(opts.Backends...)
	if len(detectors) == 0 {
		return nil, ErrNoDetectors
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	found := make([][]DeviceInfo, len(detectors))
	errs := make([]error, len(detectors))
	var g errgroup.Group
	for i, d := range detectors {
		g.Go(func() error {
			found[i], errs[i] = r.detectOne(ctx, d, opts)
			return nil
		})
	}
	_ = g.Wait()

	var all []DeviceInfo
	for _, devs := range found {
		all = append(all, devs...)
	}
	if len(all) > 0 {
		return all, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, ErrDetectionTimeout
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return nil, ErrNoDevicesFound
}

func (r *Registry) detectOne(ctx context.Context, d Detector, opts *Options) ([]DeviceInfo, error) {
	useCache := opts.EnableCache && r.cache != nil
	if useCache {
		if cached, ok := r.cache.Get(d.Backend(), opts.CacheTTL); ok {
			// Cached entries skipped Detect, so filter them here.
			return filterDevices(cached, opts), nil
		}
	}

	devices, err := d.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		nci.Debugf("detection: %s: %v", d.Backend(), err)
		return nil, fmt.Errorf("%s: %w", d.Backend(), err)
	}
	if useCache {
		if len(devices) > 0 {
			r.cache.Set(d.Backend(), devices)
		} else {
			// A controller that went away must not linger until the TTL.
			r.cache.Clear(d.Backend())
		}
	}
	return devices, nil
}

func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}
	var out []DeviceInfo
	for _, d := range devices {
		if IsPathIgnored(d.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := d.Metadata["vidpid"]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		out = append(out, d)
	}
	return out
}

var defaultRegistry = NewRegistry(NewCache())

// RegisterDetector adds d to the default registry.
func RegisterDetector(d Detector) {
	defaultRegistry.Register(d)
}

// DetectAll runs the default registry.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	return defaultRegistry.DetectAll(ctx, opts)
}

// ClearDetectionCache forgets every cached result of the default registry.
func ClearDetectionCache() {
	defaultRegistry.cache.Clear()
}
