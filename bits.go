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

// programBit burns a single fuse bit. The controller must be unlocked
// and in programming mode. The program done and error events are
// cleared again on every path so that a failure cannot leave a stale
// event behind for the next operation.
func (d *Device) programBit(page Page, row, col uint32) error {
	d.regs.Write32(RegPgmAddr, pgmAddr(page, row, col))
	defer d.regs.Write32(RegIsr, IsrPgmDoneMask|IsrPgmErrorMask)

	events, err := d.regs.WaitForEvents(RegIsr, IsrPgmDoneMask|IsrPgmErrorMask,
		IsrPgmDoneMask|IsrPgmErrorMask, programTimeout)
	switch {
	case err != nil:
		return xerrors.Errorf("cannot program bit at page %d row %d column %d: %w", page, row, col, ErrProgramTimeout)
	case events&IsrPgmErrorMask != 0:
		return xerrors.Errorf("cannot program bit at page %d row %d column %d: %w", page, row, col, ErrProgramFailed)
	}
	return nil
}

// verifyBit reads back the row containing a freshly programmed bit and
// checks that the bit senses as set. Reads address whole rows, so the
// column only selects the bit to test.
func (d *Device) verifyBit(page Page, row, col uint32) error {
	d.regs.Write32(RegRdAddr, rdAddr(page, row))
	defer d.regs.Write32(RegIsr, IsrRdDoneMask)

	if _, err := d.regs.WaitForEvents(RegIsr, IsrRdDoneMask, IsrRdDoneMask, readTimeout); err != nil {
		return xerrors.Errorf("cannot verify bit at page %d row %d column %d: %w", page, row, col, ErrReadTimeout)
	}
	if d.regs.Read32(RegRdData)&(1<<col) == 0 {
		return xerrors.Errorf("cannot verify bit at page %d row %d column %d: %w", page, row, col, ErrVerifyFailed)
	}
	return nil
}

func (d *Device) programAndVerifyBit(page Page, row, col uint32, skipVerify bool) error {
	if err := d.programBit(page, row, col); err != nil {
		return err
	}
	if skipVerify {
		return nil
	}
	return d.verifyBit(page, row, col)
}
