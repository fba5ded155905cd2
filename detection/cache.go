// go-nci
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-nci.
//
// go-nci is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-nci is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-nci; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package detection

import (
	"slices"
	"time"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/internal/syncutil"
)

type cacheEntry struct {
	stored  time.Time
	devices []DeviceInfo
}

// Cache keeps the last detection result per backend.
type Cache struct {
	now     func() time.Time
	entries map[nci.Backend]cacheEntry
	mu      syncutil.RWMutex
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{now: time.Now, entries: make(map[nci.Backend]cacheEntry)}
}

// Get returns a copy of the devices cached for b if they are younger than ttl.
func (c *Cache) Get(b nci.Backend, ttl time.Duration) ([]DeviceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[b]
	if !ok || c.now().Sub(e.stored) > ttl {
		return nil, false
	}
	return slices.Clone(e.devices), true
}

// Set replaces the entry for b.
func (c *Cache) Set(b nci.Backend, devices []DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[b] = cacheEntry{stored: c.now(), devices: slices.Clone(devices)}
}

// Clear drops the entries for backends, or all entries.
func (c *Cache) Clear(backends ...nci.Backend) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(backends) == 0 {
		c.entries = make(map[nci.Backend]cacheEntry)
		return
	}
	for _, b := range backends {
		delete(c.entries, b)
	}
}
