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

/*
Package simulator provides a software model of the eFuse controller
and its one-time-programmable array, implementing efuse.RegisterMap.
It reproduces the register protocol that the efuse package drives: the
write lock passcode, program and read completion events, write-once
array bits, the mirrored cache bank and the key CRC engines. It is
used by the efuse tests and by efusectl for dry runs.

The model is deterministic: an operation either completes during the
register write that starts it or never completes at all, so
WaitForEvents returns without sleeping.
*/
package simulator

import (
	"time"

	"github.com/canonical/go-efuse"
)

// Controller is a simulated eFuse controller with a blank fuse array.
// The exported fields record activity for assertions and inject
// faults; they must not be touched whilst an operation on the bound
// efuse.Device is in flight.
//
// Controller implements efuse.RegisterMap.
type Controller struct {
	// ProgramPulses counts every program pulse issued through
	// RegPgmAddr, including pulses that the controller rejected.
	ProgramPulses int

	// ProgramLog records the fuse addressed by each pulse, in order.
	ProgramLog []efuse.FuseAddress

	// UnlockCount and LockCount count writes to the write lock
	// register with and without the passcode.
	UnlockCount int
	LockCount   int

	// FailUnlock keeps the write lock engaged when the passcode is
	// written. FailLock keeps it released when it should engage.
	FailUnlock bool
	FailLock   bool

	// HangProgram, HangRead, HangCacheLoad and HangCrc suppress the
	// completion event of the respective operation, which the efuse
	// package observes as a timeout.
	HangProgram   bool
	HangRead      bool
	HangCacheLoad bool
	HangCrc       bool

	// FailProgramAt makes the pulse with this 1-based ordinal report a
	// program error instead of burning the fuse. Zero disables it.
	FailProgramAt int

	// InvalidTbits clears the status T-bit pattern, making controller
	// setup fail.
	InvalidTbits bool

	// CacheParityOnLoad flags a parity error on every cache load
	// started through the register interface.
	CacheParityOnLoad bool

	pages  [3][efuse.RowsPerPage]uint32
	cache  [efuse.CacheWordCount]uint32
	regs   map[uint32]uint32
	isr    uint32
	crcSts uint32
	rdData uint32
	locked bool

	weak map[efuse.FuseAddress]bool

	// uncached rows of page 0, by row number
	uncached map[uint32]bool
}

// NewController returns a locked simulated controller with every fuse
// blank and the cache image in sync with the array.
func NewController() *Controller {
	c := &Controller{
		regs:     make(map[uint32]uint32),
		locked:   true,
		weak:     make(map[efuse.FuseAddress]bool),
		uncached: make(map[uint32]bool),
	}

	// Key and UDS rows are never mirrored into the cache.
	for _, keyType := range []efuse.KeyType{efuse.KeyTypeAes, efuse.KeyTypeUser0, efuse.KeyTypeUser1} {
		for _, r := range efuse.KeyRanges(keyType) {
			c.maskRows(r)
		}
	}
	for _, r := range efuse.UdsRanges() {
		c.maskRows(r)
	}
	return c
}

func (c *Controller) maskRows(r efuse.FieldRange) {
	for row := r.StartRow; row < r.StartRow+r.NumRows; row++ {
		c.uncached[row] = true
	}
}

// SetFuse burns a fuse directly, bypassing the register protocol, for
// seeding programmed state. The cache is not updated; call SyncCache
// to make the bit visible there.
func (c *Controller) SetFuse(page efuse.Page, row, col uint32) {
	c.pages[page][row] |= 1 << col
}

// FuseBit reports whether the addressed fuse is burned.
func (c *Controller) FuseBit(page efuse.Page, row, col uint32) bool {
	return c.pages[page][row]&(1<<col) != 0
}

// ArrayWord returns a whole row of the fuse array.
func (c *Controller) ArrayWord(page efuse.Page, row uint32) uint32 {
	return c.pages[page][row]
}

// CacheWord returns the cached image word at the given cache bank
// offset.
func (c *Controller) CacheWord(offset uint32) uint32 {
	return c.cache[(offset-efuse.CacheBaseOffset)/4]
}

// Locked reports whether the controller write lock is engaged.
func (c *Controller) Locked() bool {
	return c.locked
}

// AddWeakBit marks a fuse as marginal: once burned, it senses as set
// under a normal read but as clear under margin read 2, so the
// verification pass of a programming session rejects it.
func (c *Controller) AddWeakBit(page efuse.Page, row, col uint32) {
	c.weak[efuse.FuseAddress{Page: page, Row: row, Column: col}] = true
}

// SyncCache mirrors the array into the cache image the way a power on
// load would, leaving the key and UDS rows zero. No completion events
// are raised.
func (c *Controller) SyncCache() {
	for row := uint32(0); row < efuse.RowsPerPage; row++ {
		w := c.pages[efuse.Page0][row]
		if c.uncached[row] {
			w = 0
		}
		c.cache[row] = w
		c.cache[efuse.RowsPerPage+row] = c.pages[efuse.Page1][row]
	}
}

func (c *Controller) margin() efuse.MarginRead {
	return efuse.MarginRead(c.regs[efuse.RegCfg] & efuse.CfgMarginRdMask >> efuse.CfgMarginRdShift)
}

func (c *Controller) pgmEnabled() bool {
	return c.regs[efuse.RegCfg]&efuse.CfgEnablePgmMask != 0
}

func (c *Controller) senseWord(page efuse.Page, row uint32) uint32 {
	w := c.pages[page][row]
	if c.margin() != efuse.MarginRead2 {
		return w
	}
	for col := uint32(0); col < efuse.ColsPerRow; col++ {
		if c.weak[efuse.FuseAddress{Page: page, Row: row, Column: col}] {
			w &^= 1 << col
		}
	}
	return w
}

func (c *Controller) programPulse(addr uint32) {
	if c.HangProgram {
		return
	}

	c.ProgramPulses++

	page := efuse.Page(addr >> efuse.AddrPageShift & efuse.AddrPageMask)
	row := addr >> efuse.AddrRowShift & efuse.AddrRowMask
	col := addr >> efuse.AddrColumnShift & efuse.AddrColumnMask
	c.ProgramLog = append(c.ProgramLog, efuse.FuseAddress{Page: page, Row: row, Column: col})

	if !c.pgmEnabled() || page > efuse.Page2 {
		c.isr |= efuse.IsrPgmErrorMask
		return
	}
	if c.ProgramPulses == c.FailProgramAt {
		c.isr |= efuse.IsrPgmErrorMask
		return
	}

	c.pages[page][row] |= 1 << col
	c.isr |= efuse.IsrPgmDoneMask
}

func (c *Controller) readPulse(addr uint32) {
	if c.HangRead {
		return
	}

	page := efuse.Page(addr >> efuse.AddrPageShift & efuse.AddrPageMask)
	row := addr >> efuse.AddrRowShift & efuse.AddrRowMask
	c.rdData = c.senseWord(page, row)
	c.isr |= efuse.IsrRdDoneMask
}

func (c *Controller) cacheLoad() {
	if c.HangCacheLoad {
		return
	}

	c.SyncCache()
	c.isr |= efuse.IsrCacheDoneMask
	if c.CacheParityOnLoad {
		c.isr |= efuse.IsrCacheErrorMask
	}
}

// SetCacheParityError flags the cache image as corrupt the way a
// parity failure during the power on load would.
func (c *Controller) SetCacheParityError() {
	c.isr |= efuse.IsrCacheErrorMask
}

// fieldWords reassembles the data words of a fuse field from the
// array, traversing its ranges the same way the programming walk
// consumes them.
func (c *Controller) fieldWords(ranges []efuse.FieldRange) []uint32 {
	var words []uint32
	var word uint32
	bits := 0
	for _, r := range ranges {
		for row := r.StartRow; row < r.StartRow+r.NumRows; row++ {
			for col := r.ColStart; col <= r.ColEnd; col++ {
				if c.pages[r.Page][row]&(1<<col) != 0 {
					word |= 1 << bits
				}
				bits++
				if bits == 32 {
					words = append(words, word)
					word = 0
					bits = 0
				}
			}
		}
	}
	return words
}

func (c *Controller) checkKeyCrc(keyType efuse.KeyType, doneMask, passMask, crc uint32) {
	c.crcSts &^= doneMask | passMask
	if c.HangCrc {
		return
	}

	var key efuse.AesKey
	copy(key[:], c.fieldWords(efuse.KeyRanges(keyType)))

	c.crcSts |= doneMask
	if crc == efuse.AesKeyCrc(&key) {
		c.crcSts |= passMask
	}
}

func (c *Controller) checkUdsCrc(crc uint32) {
	c.crcSts &^= efuse.StatusUdsCrcDoneMask | efuse.StatusUdsCrcPassMask
	if c.HangCrc {
		return
	}

	var uds efuse.Uds
	copy(uds[:], c.fieldWords(efuse.UdsRanges()))

	c.crcSts |= efuse.StatusUdsCrcDoneMask
	if crc == efuse.UdsCrc(&uds) {
		c.crcSts |= efuse.StatusUdsCrcPassMask
	}
}

// Read32 implements efuse.RegisterMap.
func (c *Controller) Read32(offset uint32) uint32 {
	if offset >= efuse.CacheBaseOffset && offset < efuse.CacheEndOffset {
		return c.cache[(offset-efuse.CacheBaseOffset)/4]
	}

	switch offset {
	case efuse.RegWrLock:
		if c.locked {
			return 1
		}
		return 0
	case efuse.RegStatus:
		sts := c.crcSts
		if !c.InvalidTbits {
			sts |= efuse.StatusTbitPattern
		}
		return sts
	case efuse.RegIsr:
		return c.isr
	case efuse.RegRdData:
		return c.rdData
	default:
		return c.regs[offset]
	}
}

// Write32 implements efuse.RegisterMap. The write lock gates every
// register except the lock itself, the event register and the CRC
// check registers; gated writes are silently dropped whilst locked,
// so an operation attempted on a locked controller never completes.
func (c *Controller) Write32(offset uint32, value uint32) {
	switch offset {
	case efuse.RegWrLock:
		if value == efuse.WrUnlockPasscode {
			c.UnlockCount++
			if !c.FailUnlock {
				c.locked = false
			}
			return
		}
		c.LockCount++
		if !c.FailLock {
			c.locked = true
		}
		return
	case efuse.RegIsr:
		c.isr &^= value
		return
	case efuse.RegAesCrc:
		c.checkKeyCrc(efuse.KeyTypeAes, efuse.StatusAesCrcDoneMask, efuse.StatusAesCrcPassMask, value)
		return
	case efuse.RegAesUsrKey0Crc:
		c.checkKeyCrc(efuse.KeyTypeUser0, efuse.StatusUsrKey0CrcDoneMask, efuse.StatusUsrKey0CrcPassMask, value)
		return
	case efuse.RegAesUsrKey1Crc:
		c.checkKeyCrc(efuse.KeyTypeUser1, efuse.StatusUsrKey1CrcDoneMask, efuse.StatusUsrKey1CrcPassMask, value)
		return
	case efuse.RegUdsCrc:
		c.checkUdsCrc(value)
		return
	}

	if c.locked {
		return
	}

	switch offset {
	case efuse.RegPgmAddr:
		c.programPulse(value)
	case efuse.RegRdAddr:
		c.readPulse(value)
	case efuse.RegCacheLoad:
		if value&efuse.CacheLoadStartMask != 0 {
			c.cacheLoad()
		}
	default:
		c.regs[offset] = value
	}
}

// WaitForEvents implements efuse.RegisterMap. The model is
// deterministic, so an event that is not pending now will never
// arrive and the timeout is reported immediately.
func (c *Controller) WaitForEvents(offset, mask, events uint32, timeout time.Duration) (uint32, error) {
	v := c.Read32(offset) & mask
	if v&events != 0 {
		return v, nil
	}
	return 0, efuse.ErrWaitTimeout
}
