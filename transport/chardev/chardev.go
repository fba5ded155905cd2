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

//go:build linux

// Package chardev provides the NCI HAL backend for controllers exposed by a
// Linux kernel driver as a character device, such as /dev/nq-nci or
// /dev/pn544. The driver performs the bus transfers; each read returns as
// many bytes as requested once the controller has raised IRQ.
package chardev

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/ZaparooProject/go-nci"
	"github.com/ZaparooProject/go-nci/internal/frame"
	"github.com/ZaparooProject/go-nci/transport"
)

// DefaultPath is the device node of the NXP nq-nci driver.
const DefaultPath = "/dev/nq-nci"

// Power modes of the driver's SET_PWR ioctl.
const (
	PowerOff      = 0
	PowerOn       = 1
	PowerFirmware = 2
)

// setPowerIoctl is _IOW(0xE9, 0x01, long).
var setPowerIoctl = uint(1<<30 | (strconv.IntSize/8)<<16 | 0xE9<<8 | 0x01)

func ioctlSetPower(fd, mode int) error {
	return unix.IoctlSetInt(fd, setPowerIoctl, mode)
}

// New returns a closed HAL for the device node at path.
func New(path string) *transport.HAL {
	return transport.NewHAL(nci.BackendCharDev, path, func(_ context.Context) (transport.Link, error) {
		fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
		if err != nil {
			if errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ENODEV) {
				return nil, fmt.Errorf("%w: %s: %w", nci.ErrDeviceNotFound, path, err)
			}
			return nil, fmt.Errorf("open %s: %w", path, err)
		}
		return newLink(fd, path, ioctlSetPower), nil
	})
}

type link struct {
	setPower func(fd, mode int) error
	name     string
	fd       int
}

func newLink(fd int, name string, setPower func(fd, mode int) error) *link {
	return &link{fd: fd, name: name, setPower: setPower}
}

// poll waits up to nci.BackendReadTimeout for the node to become readable.
func (l *link) poll() (bool, error) {
	fds := []unix.PollFd{{Fd: int32(l.fd), Events: unix.POLLIN}}
	n, err := unix.Poll(fds, int(nci.BackendReadTimeout.Milliseconds()))
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return false, nil
		}
		return false, fmt.Errorf("%w: poll: %w", nci.ErrHALRead, err)
	}
	if n == 0 {
		return false, nil
	}
	if fds[0].Revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 && fds[0].Revents&unix.POLLIN == 0 {
		return false, fmt.Errorf("%w: %s hung up", nci.ErrDeviceNotFound, l.name)
	}
	return true, nil
}

// readFull reads len(dst) bytes. The driver returns a header or payload in
// one read; the loop only covers drivers that split it.
func (l *link) readFull(dst []byte) error {
	for off := 0; off < len(dst); {
		n, err := unix.Read(l.fd, dst[off:])
		switch {
		case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			if _, perr := l.poll(); perr != nil {
				return perr
			}
			continue
		case err != nil:
			return err
		case n == 0:
			return fmt.Errorf("%w: %s", nci.ErrDeviceNotFound, l.name)
		}
		off += n
	}
	return nil
}

func (l *link) ReadFrame() ([]byte, error) {
	ready, err := l.poll()
	if err != nil || !ready {
		return nil, err
	}

	var hdr [frame.HeaderSize]byte
	n, err := unix.Read(l.fd, hdr[:])
	if errors.Is(err, unix.EAGAIN) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", nci.ErrDeviceNotFound, l.name)
	}
	if n < frame.HeaderSize {
		if err := l.readFull(hdr[n:]); err != nil {
			return nil, err
		}
	}

	h, err := frame.ParseHeader(hdr[:])
	if err != nil {
		return nil, err
	}
	out := make([]byte, h.FrameLen())
	copy(out, hdr[:])
	if err := l.readFull(out[frame.HeaderSize:]); err != nil {
		return nil, fmt.Errorf("%w: payload: %w", nci.ErrFrameCorrupted, err)
	}
	return out, nil
}

func (l *link) Write(p []byte) (int, error) {
	n, err := unix.Write(l.fd, p)
	if n < 0 {
		n = 0
	}
	return n, err
}

func (l *link) Close() error {
	return unix.Close(l.fd)
}

// PowerCycle switches the controller off and on through the driver.
func (l *link) PowerCycle(ctx context.Context) error {
	if err := l.setPower(l.fd, PowerOff); err != nil {
		return fmt.Errorf("%s power off: %w", l.name, err)
	}
	if err := transport.Sleep(ctx, nci.PowerCycleLowTime); err != nil {
		return errors.Join(err, l.setPower(l.fd, PowerOn))
	}
	if err := l.setPower(l.fd, PowerOn); err != nil {
		return fmt.Errorf("%s power on: %w", l.name, err)
	}
	return transport.Sleep(ctx, nci.PowerCycleBootTime)
}
