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

// checkPufHelperDataEmpty confirms that none of the helper data fuses
// have been touched. Helper data from two registrations cannot be
// merged, so any programmed chash, aux or syndrome bit rejects the
// write. The RO swap row is not checked, matching the controller
// documentation which treats it as tuning rather than helper data.
func (d *Device) checkPufHelperDataEmpty() error {
	chash, err := d.readCacheWords(cachePufChashOffset, 1)
	if err != nil {
		return fieldErr(FieldPufChash, -1, StagePreconditions, err)
	}
	if chash[0] != 0 {
		return fieldErr(FieldPufChash, -1, StagePreconditions, ErrAlreadyProgrammed)
	}

	ecc, err := d.readCacheWords(cachePufEccPufCtrlOffset, 1)
	if err != nil {
		return fieldErr(FieldPufAux, -1, StagePreconditions, err)
	}
	if ecc[0]&PufEccCtrlEccMask != 0 {
		return fieldErr(FieldPufAux, -1, StagePreconditions, ErrAlreadyProgrammed)
	}

	if err := d.checkCacheZeros(cachePufSynPage0Offset, pufSynPage0NumRows); err != nil {
		return fieldErr(FieldPufSynData, -1, StagePreconditions, err)
	}
	if err := d.checkCacheZeros(cachePufSynPage1Offset, pufSynPage1NumRows); err != nil {
		return fieldErr(FieldPufSynData, -1, StagePreconditions, err)
	}
	return nil
}

func (d *Device) programPufHelperData(hd *PufHelperData) error {
	r := FieldRange{Page0, pufSynPage0Row, pufSynPage0NumRows, 0, ColsPerRow - 1}
	if err := d.programAndVerifyRange(r, hd.SynData[:pufSynPage0NumRows], false); err != nil {
		return fieldErr(FieldPufSynData, -1, StageProgramming, err)
	}
	r = FieldRange{Page1, pufSynPage1Row, pufSynPage1NumRows, 0, ColsPerRow - 1}
	if err := d.programAndVerifyRange(r, hd.SynData[pufSynPage0NumRows:], false); err != nil {
		return fieldErr(FieldPufSynData, -1, StageProgramming, err)
	}

	if err := d.programAndVerifyRange(fullRow(pufChashRow), []uint32{hd.Chash}, false); err != nil {
		return fieldErr(FieldPufChash, -1, StageProgramming, err)
	}

	r = FieldRange{Page0, pufEccPufCtrlRow, 1, pufAuxColStart, pufAuxColEnd}
	if err := d.programAndVerifyRange(r, []uint32{hd.Aux & PufEccCtrlEccMask}, false); err != nil {
		return fieldErr(FieldPufAux, -1, StageProgramming, err)
	}

	if err := d.programAndVerifyRange(fullRow(pufRoSwapRow), []uint32{hd.RoSwap}, false); err != nil {
		return fieldErr(FieldPufRoSwap, -1, StageProgramming, err)
	}
	return nil
}

func (d *Device) programPufSecCtrl(bits uint32) error {
	cols := []struct {
		mask uint32
		col  uint32
	}{
		{PufRegisDisMask, pufEccCtrlRegisDisCol},
		{PufHdInvalidMask, pufEccCtrlHdInvalidCol},
		{PufRegenDisMask, pufEccCtrlRegenDisCol},
	}
	for _, c := range cols {
		if bits&c.mask == 0 {
			continue
		}
		if err := d.programAndVerifyBit(Page0, pufEccPufCtrlRow, c.col, false); err != nil {
			return fieldErr(FieldPufSecCtrl, -1, StageProgramming, err)
		}
	}
	return nil
}

// WritePuf programs the PUF helper data produced by a registration:
// the formatted syndrome data, its chash and aux ECC values and the
// ring oscillator swap map, followed by any PUF control fuses
// requested in SecCtrlBits. When ProgramHelperData is unset only the
// control fuses are touched.
//
// The write is refused whilst the PUF is disabled or the syndrome
// fuses are write locked, and helper data is only programmed onto
// blank fuses.
//
// The controller is returned to its locked state on every path.
func (d *Device) WritePuf(hd *PufHelperData) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	if hd == nil {
		return xerrors.Errorf("cannot write PUF helper data without data: %w", ErrInvalidParam)
	}
	if unknown := hd.SecCtrlBits &^ (PufRegisDisMask | PufHdInvalidMask | PufRegenDisMask); unknown != 0 {
		return xerrors.Errorf("cannot program unknown PUF control bits %#x: %w", unknown, ErrInvalidParam)
	}

	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}

	ecc, err := d.readCacheWords(cachePufEccPufCtrlOffset, 1)
	if err != nil {
		return fieldErr(FieldPuf, -1, StagePreconditions, err)
	}
	if ecc[0]&(PufEccCtrlPufDisMask|PufEccCtrlSynLkMask) != 0 {
		return fieldErr(FieldPuf, -1, StagePreconditions, ErrFuseProtected)
	}

	if err := d.checkEnvMonitor(hd.EnvMonitorDisable); err != nil {
		return err
	}

	if hd.ProgramHelperData {
		if err := d.checkPufHelperDataEmpty(); err != nil {
			return err
		}
		if err := d.programPufHelperData(hd); err != nil {
			return err
		}
	}

	return d.programPufSecCtrl(hd.SecCtrlBits)
}
