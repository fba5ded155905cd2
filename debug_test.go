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
	"bytes"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureSessionLog points the session log at a buffer for the test's
// duration. Tests that use it must not run in parallel.
func captureSessionLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	origEnabled := debugEnabled
	sessionLogMu.Lock()
	origWriter := sessionLogWriter
	var buf bytes.Buffer
	sessionLogWriter = &buf
	sessionLogMu.Unlock()
	debugEnabled = false

	t.Cleanup(func() {
		debugEnabled = origEnabled
		sessionLogMu.Lock()
		sessionLogWriter = origWriter
		sessionLogMu.Unlock()
	})
	return &buf
}

func TestDebugf_WritesToSessionLog(t *testing.T) {
	buf := captureSessionLog(t)

	Debugf("test message %d", 42)

	content := buf.String()
	assert.Contains(t, content, "DEBUG: test message 42")
	matched, err := regexp.MatchString(`^\d{2}:\d{2}:\d{2}\.\d{3} DEBUG:`, content)
	require.NoError(t, err)
	assert.True(t, matched, "want HH:MM:SS.mmm prefix, got: %s", content)
}

func TestDebugln_TrimsNewline(t *testing.T) {
	buf := captureSessionLog(t)

	Debugln("reset", 2, "done")

	assert.True(t, strings.HasSuffix(buf.String(), "DEBUG: reset 2 done\n"), buf.String())
}

func TestLogFrame_Directions(t *testing.T) {
	buf := captureSessionLog(t)

	logFrame(TraceTX, []byte{0x20, 0x00, 0x01, 0x01})
	logFrame(TraceRX, []byte{0x40, 0x00, 0x01, 0x00})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "TX: 20 00 01 01")
	assert.Contains(t, lines[1], "RX: 40 00 01 00")
}

func TestDebugf_ConsoleGate(t *testing.T) {
	captureSessionLog(t)

	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w
	t.Cleanup(func() { os.Stdout = orig })

	SetDebugEnabled(false)
	Debugf("hidden")
	SetDebugEnabled(true)
	assert.True(t, DebugEnabled())
	Debugf("shown")
	require.NoError(t, w.Close())

	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "DEBUG: shown\n", string(out))
}

func TestSessionLog_Lifecycle(t *testing.T) {
	captureSessionLog(t)
	dir := t.TempDir()

	path, err := InitSessionLog(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.Regexp(t, `nci_\d{8}_\d{6}\.log$`, path)
	assert.Equal(t, path, GetSessionLogPath())

	Debugf("CORE_RESET sent")
	require.NoError(t, CloseSessionLog())
	assert.Empty(t, GetSessionLogPath())

	content, err := os.ReadFile(path) //nolint:gosec // test temp dir
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "=== NCI Conformance Session Log ===")
	assert.Contains(t, text, "DEBUG: CORE_RESET sent")
	assert.Contains(t, text, "=== Session ended ===")

	// A second close is a no-op.
	require.NoError(t, CloseSessionLog())
}

func TestInitSessionLog_BadDirectory(t *testing.T) {
	captureSessionLog(t)

	_, err := InitSessionLog(filepath.Join(t.TempDir(), "missing", "deeper"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create session log")
}
