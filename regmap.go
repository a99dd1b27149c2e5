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

package efuse

import (
	"errors"
	"time"
)

// ErrWaitTimeout is returned from RegisterMap.WaitForEvents when the
// timeout expires before any of the requested events is observed.
var ErrWaitTimeout = errors.New("timeout whilst waiting for register events")

// RegisterMap provides 32-bit access to the eFuse controller and cache
// register banks. Offsets are relative to the start of the device
// window: the controller bank begins at CtrlBaseOffset and the cache
// bank at CacheBaseOffset.
//
// Implementations are provided by the mmio package for real hardware
// and by the simulator package for testing.
type RegisterMap interface {
	// Read32 returns the current value of the register at offset.
	Read32(offset uint32) uint32

	// Write32 writes value to the register at offset.
	Write32(offset uint32, value uint32)

	// WaitForEvents polls the register at offset until the value,
	// masked with mask, has any of the bits in events set, and then
	// returns the masked value. It returns ErrWaitTimeout if the
	// timeout expires first.
	WaitForEvents(offset, mask, events uint32, timeout time.Duration) (uint32, error)
}
