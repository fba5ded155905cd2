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

package detection

import (
	"path/filepath"
	"strings"
)

// DefaultBlocklist lists USB bridges that must not be opened. Reset
// commands at 115200 baud reboot some GPS modules on CH340 bridges.
func DefaultBlocklist() []string {
	return nil
}

// NormalizeVIDPID turns "vid:1a86 pid:7523", "1a86:7523" and
// "vendor=1a86 product=7523" into "1A86:7523". Anything else yields "".
func NormalizeVIDPID(descriptor string) string {
	d := strings.ToUpper(descriptor)
	vid := hexAfter(d, "VID:", "VID=", "VENDOR=")
	pid := hexAfter(d, "PID:", "PID=", "PRODUCT=")
	if vid != "" && pid != "" {
		return vid + ":" + pid
	}
	v, p, ok := strings.Cut(strings.TrimSpace(d), ":")
	if ok && isHex(v) && isHex(p) {
		return v + ":" + p
	}
	return ""
}

func hexAfter(s string, keys ...string) string {
	for _, k := range keys {
		if i := strings.Index(s, k); i >= 0 {
			rest := s[i+len(k):]
			end := strings.IndexFunc(rest, func(r rune) bool { return !isHexRune(r) })
			if end < 0 {
				end = len(rest)
			}
			return rest[:end]
		}
	}
	return ""
}

func isHexRune(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') || (r >= 'a' && r <= 'f')
}

func isHex(s string) bool {
	return s != "" && strings.IndexFunc(s, func(r rune) bool { return !isHexRune(r) }) < 0
}

// IsBlocked reports whether vidpid is on blocklist, ignoring case and format.
func IsBlocked(vidpid string, blocklist []string) bool {
	want := NormalizeVIDPID(vidpid)
	if want == "" {
		return false
	}
	for _, b := range blocklist {
		if NormalizeVIDPID(b) == want {
			return true
		}
	}
	return false
}

// IsPathIgnored reports whether devicePath is in ignorePaths after cleaning.
// The comparison ignores case so COM ports match however they are typed.
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	dev := normalizedPath(devicePath)
	for _, p := range ignorePaths {
		if p != "" && normalizedPath(p) == dev {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
