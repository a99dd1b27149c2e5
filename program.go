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
	"golang.org/x/xerrors"
)

// programAndVerifyRange burns the set bits of data into the fuse range
// r. The walk visits rows from r.StartRow and columns across the
// inclusive window r.ColStart..r.ColEnd. The data words are consumed
// bit 0 first by a cursor that advances to the next word after 32 bits
// regardless of the column window, so a field whose window is narrower
// than a word keeps consuming the same word across row boundaries.
// Bits that are clear in data are skipped without touching the
// hardware.
//
// The row cursor is checked against the expected end of the walk
// before returning, as a tripwire for glitched control flow.
func (d *Device) programAndVerifyRange(r FieldRange, data []uint32, skipVerify bool) error {
	switch r.Page {
	case Page0, Page1, Page2:
	default:
		return xerrors.Errorf("cannot program fuse range: %w", ErrInvalidParam)
	}
	if len(data) == 0 || r.NumRows == 0 {
		return xerrors.Errorf("cannot program fuse range: %w", ErrInvalidParam)
	}
	if r.ColStart > r.ColEnd || r.ColEnd >= ColsPerRow || r.StartRow+r.NumRows > RowsPerPage {
		return xerrors.Errorf("cannot program fuse range: %w", ErrInvalidParam)
	}

	endRow := r.StartRow + r.NumRows

	var (
		word uint32
		bits uint32
		next int
	)

	row := r.StartRow
	for ; row < endRow; row++ {
		for col := r.ColStart; col <= r.ColEnd; col++ {
			if bits == 0 {
				if next >= len(data) {
					return xerrors.Errorf("cannot program fuse range: %w", ErrInvalidParam)
				}
				word = data[next]
				next++
				bits = 32
			}
			if word&1 != 0 {
				if err := d.programAndVerifyBit(r.Page, row, col, skipVerify); err != nil {
					return err
				}
			}
			word >>= 1
			bits--
		}
	}

	if row != endRow {
		return xerrors.Errorf("cannot program fuse range: %w", ErrGlitchDetected)
	}
	return nil
}

// computeProgrammableBits diffs the requested fuse words against the
// cached fuse image starting at cacheOffset and returns the bits that
// still need to be programmed. Bits that are already burned are
// dropped from the request, and bits requested as zero are never
// programmed regardless of the cache contents, which keeps all writes
// monotonic. The cache parity flag is checked first because a corrupt
// image would make the diff unsafe.
func (d *Device) computeProgrammableBits(cacheOffset uint32, req []uint32) ([]uint32, error) {
	if len(req) == 0 {
		return nil, xerrors.Errorf("cannot compute programmable bits: %w", ErrInvalidParam)
	}
	if d.regs.Read32(RegIsr)&IsrCacheErrorMask != 0 {
		return nil, xerrors.Errorf("cannot compute programmable bits: %w", ErrCacheParity)
	}

	prgm := make([]uint32, len(req))
	for i := range req {
		cached := d.regs.Read32(cacheOffset + uint32(i)*4)
		prgm[i] = ^cached & req[i]
	}
	return prgm, nil
}

// readCacheWords reads count words of the mirrored fuse image starting
// at the given cache bank offset.
func (d *Device) readCacheWords(offset uint32, count uint32) ([]uint32, error) {
	if offset < CacheBaseOffset || offset%4 != 0 || count == 0 ||
		offset+count*4 > CacheEndOffset {
		return nil, xerrors.Errorf("cannot read fuse cache: %w", ErrInvalidParam)
	}

	data := make([]uint32, count)
	for i := range data {
		data[i] = d.regs.Read32(offset + uint32(i)*4)
	}
	return data, nil
}

// checkCacheZeros returns ErrAlreadyProgrammed if any of the count
// cached words starting at offset has a bit set.
func (d *Device) checkCacheZeros(offset uint32, count uint32) error {
	data, err := d.readCacheWords(offset, count)
	if err != nil {
		return err
	}
	for _, w := range data {
		if w != 0 {
			return ErrAlreadyProgrammed
		}
	}
	return nil
}
