// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2024 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package mmio implements efuse.RegisterMap over a memory mapping of
// the eFuse controller register window, normally taken from /dev/mem
// on the target device.
package mmio

import (
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/canonical/go-efuse"
)

const pollInterval = time.Microsecond

// RegisterMap is an efuse.RegisterMap backed by a shared memory
// mapping of the controller register window. Register accesses go
// straight to the mapped device memory, so a RegisterMap must not be
// used after Close.
type RegisterMap struct {
	f    *os.File
	mem  []byte
	off  uint32
	size uint32
}

// Open maps size bytes of the register window at physical address base
// within path. path is normally /dev/mem and base the controller
// address from the device tree, which must be 32-bit aligned. The
// mapping is page granular, so the window may map slightly more of the
// device than requested; accesses are confined to the requested size.
func Open(path string, base uint64, size uint32) (*RegisterMap, error) {
	if base%4 != 0 {
		return nil, xerrors.Errorf("cannot map unaligned base address %#x: %w", base, efuse.ErrInvalidParam)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return nil, xerrors.Errorf("cannot open register window: %w", err)
	}

	pageSize := uint64(unix.Getpagesize())
	mapBase := base &^ (pageSize - 1)
	mapLen := (base - mapBase + uint64(size) + pageSize - 1) &^ (pageSize - 1)

	mem, err := unix.Mmap(int(f.Fd()), int64(mapBase), int(mapLen), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, xerrors.Errorf("cannot map register window: %w", err)
	}

	return &RegisterMap{f: f, mem: mem, off: uint32(base - mapBase), size: size}, nil
}

// Close drops the mapping and releases the underlying file.
func (m *RegisterMap) Close() error {
	if err := unix.Munmap(m.mem); err != nil {
		m.f.Close()
		return xerrors.Errorf("cannot unmap register window: %w", err)
	}
	m.mem = nil
	return m.f.Close()
}

func (m *RegisterMap) reg(offset uint32) *uint32 {
	if offset%4 != 0 || offset+4 > m.size {
		panic("register offset outside the mapped window")
	}
	return (*uint32)(unsafe.Pointer(&m.mem[m.off+offset]))
}

// Read32 implements efuse.RegisterMap.
func (m *RegisterMap) Read32(offset uint32) uint32 {
	return atomic.LoadUint32(m.reg(offset))
}

// Write32 implements efuse.RegisterMap.
func (m *RegisterMap) Write32(offset uint32, value uint32) {
	atomic.StoreUint32(m.reg(offset), value)
}

// WaitForEvents implements efuse.RegisterMap by polling the register.
func (m *RegisterMap) WaitForEvents(offset, mask, events uint32, timeout time.Duration) (uint32, error) {
	deadline := time.Now().Add(timeout)
	for {
		v := m.Read32(offset) & mask
		if v&events != 0 {
			return v, nil
		}
		if time.Now().After(deadline) {
			return v, efuse.ErrWaitTimeout
		}
		time.Sleep(pollInterval)
	}
}
