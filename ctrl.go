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

func fullRow(row uint32) FieldRange {
	return FieldRange{Page0, row, 1, 0, ColsPerRow - 1}
}

// programCtrlRow merges the requested bits with one cached control row
// and burns whatever is still missing. Bits that are already set are
// left alone, so repeating a request is harmless and costs no program
// pulses.
func (d *Device) programCtrlRow(field Field, cacheOffset uint32, r FieldRange, bits uint32) error {
	prgm, err := d.computeProgrammableBits(cacheOffset, []uint32{bits})
	if err != nil {
		return fieldErr(field, -1, StagePreconditions, err)
	}
	if err := d.programAndVerifyRange(r, prgm, false); err != nil {
		return fieldErr(field, -1, StageProgramming, err)
	}
	return nil
}

// WriteSecCtrlBits programs the requested security control fuses, such
// as the JTAG disable and the per key write and CRC locks. Bits
// already programmed are skipped.
//
// The controller is returned to its locked state on every path.
func (d *Device) WriteSecCtrlBits(envDisable bool, bits uint32) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	if err := d.checkEnvMonitor(envDisable); err != nil {
		return err
	}
	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}
	return d.programCtrlRow(FieldSecurityControl, CacheSecurityControlOffset, fullRow(securityControlRow), bits)
}

// WriteMiscCtrlBits programs the requested miscellaneous control
// fuses. Bits already programmed are skipped.
//
// The controller is returned to its locked state on every path.
func (d *Device) WriteMiscCtrlBits(envDisable bool, bits uint32) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	if err := d.checkEnvMonitor(envDisable); err != nil {
		return err
	}
	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}
	return d.programCtrlRow(FieldMiscControl, CacheMiscControlOffset, fullRow(miscControlRow), bits)
}

// WriteMisc1Bits programs the requested fuses of the second
// miscellaneous control row. Bits already programmed are skipped.
//
// The controller is returned to its locked state on every path.
func (d *Device) WriteMisc1Bits(envDisable bool, bits uint32) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	if err := d.checkEnvMonitor(envDisable); err != nil {
		return err
	}
	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}
	return d.programCtrlRow(FieldSecurityMisc1, CacheSecurityMisc1Offset, fullRow(securityMisc1Row), bits)
}

// WriteBootEnvCtrlBits programs the requested boot environment control
// fuses, which pin the temperature and voltage limits enforced during
// boot. Bits already programmed are skipped.
//
// The controller is returned to its locked state on every path.
func (d *Device) WriteBootEnvCtrlBits(envDisable bool, bits uint32) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	if err := d.checkEnvMonitor(envDisable); err != nil {
		return err
	}
	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}
	return d.programCtrlRow(FieldBootEnvControl, CacheBootEnvControlOffset, fullRow(bootEnvControlRow), bits)
}

// WriteGlitchConfigBits programs the voltage glitch detector
// configuration. The low 31 bits of config hold the detector trim
// value and GlitchConfigWrLkMask requests the fuse that write-locks
// the row. The lock bit is burned last so that a failure part way
// through never leaves the row locked with the trim value incomplete.
//
// The controller is returned to its locked state on every path.
func (d *Device) WriteGlitchConfigBits(envDisable bool, config uint32) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	if err := d.checkEnvMonitor(envDisable); err != nil {
		return err
	}
	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}

	prgm, err := d.computeProgrammableBits(CacheAnlgTrim3Offset, []uint32{config})
	if err != nil {
		return fieldErr(FieldGlitchConfig, -1, StagePreconditions, err)
	}

	r := FieldRange{Page0, anlgTrim3Row, 1, glitchConfigColStart, glitchConfigColEnd}
	if err := d.programAndVerifyRange(r, []uint32{prgm[0] & GlitchConfigDataMask}, false); err != nil {
		return fieldErr(FieldGlitchConfig, -1, StageProgramming, err)
	}

	if prgm[0]&GlitchConfigWrLkMask != 0 {
		if err := d.programAndVerifyBit(Page0, anlgTrim3Row, glitchWrLkCol, false); err != nil {
			return fieldErr(FieldGlitchWrLock, -1, StageProgramming, err)
		}
	}
	return nil
}

// validateDecOnlyReq confirms that the fuses decrypt only boot depends
// on are in place. Booting unencrypted images is refused once the
// decrypt only fuses are burned, so committing them with no AES key or
// no black IV would brick the device.
func (d *Device) validateDecOnlyReq() error {
	err := d.checkCrc(RegAesCrc, StatusAesCrcDoneMask, StatusAesCrcPassMask, AesCrcZeros)
	switch {
	case err == nil:
		return xerrors.Errorf("AES key fuses are blank: %w", ErrMissingPrerequisite)
	case !xerrors.Is(err, ErrCrcMismatch):
		return err
	}

	iv, err := d.readCacheWords(CacheBlackIvOffset, ivNumRows)
	if err != nil {
		return err
	}
	for _, w := range iv {
		if w != 0 {
			return nil
		}
	}
	return xerrors.Errorf("black IV fuses are blank: %w", ErrMissingPrerequisite)
}

// WriteDecOnly programs the fuses that force every boot image to be
// encrypted with the AES key eFuse. The write is refused whilst the
// AES key or the black IV fuses are still blank.
//
// The controller is returned to its locked state on every path.
func (d *Device) WriteDecOnly(envDisable bool) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	if err := d.checkEnvMonitor(envDisable); err != nil {
		return err
	}
	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}

	if err := d.validateDecOnlyReq(); err != nil {
		return fieldErr(FieldDecOnly, -1, StagePreconditions, err)
	}

	r := FieldRange{Page0, securityMisc0Row, 1, decOnlyColStart, decOnlyColEnd}
	if err := d.programAndVerifyRange(r, []uint32{SecurityMisc0DecOnlyMask}, false); err != nil {
		return fieldErr(FieldDecOnly, -1, StageProgramming, err)
	}
	return nil
}

// WriteBootModeDisable programs fuses that permanently disable the
// given boot modes, one bit per mode.
//
// The controller is returned to its locked state on every path.
func (d *Device) WriteBootModeDisable(envDisable bool, modes uint32) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	if modes&^BootModeDisableMask != 0 {
		return xerrors.Errorf("cannot disable unknown boot modes %#x: %w", modes&^BootModeDisableMask, ErrInvalidParam)
	}

	if err := d.checkEnvMonitor(envDisable); err != nil {
		return err
	}
	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}

	r := FieldRange{Page0, bootModeDisableRow, 1, bootModeDisableColStart, bootModeDisableColEnd}
	if err := d.programAndVerifyRange(r, []uint32{modes}, false); err != nil {
		return fieldErr(FieldBootModeDisable, -1, StageProgramming, err)
	}
	return nil
}

// WriteDisableInplacePlmUpdate programs the fuse that disables in
// place updates of the platform loader and manager.
//
// The controller is returned to its locked state on every path.
func (d *Device) WriteDisableInplacePlmUpdate(envDisable bool) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	if err := d.checkEnvMonitor(envDisable); err != nil {
		return err
	}
	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}

	if err := d.programAndVerifyBit(Page0, plmUpdateRow, plmUpdateCol, false); err != nil {
		return fieldErr(FieldPlmUpdate, -1, StageProgramming, err)
	}
	return nil
}
