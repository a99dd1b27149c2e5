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

const (
	maxFipsMode    uint32 = 0xff
	maxFipsVersion uint32 = 7
)

// validateFipsInfo rejects the write when either half of the FIPS
// record has been touched before. The mode and version fuses describe
// one certification together, so there is no merging of a second
// record into the first.
func (d *Device) validateFipsInfo() error {
	dmeFips, err := d.readCacheWords(CacheDmeFipsOffset, 1)
	if err != nil {
		return err
	}
	if dmeFips[0]&DmeFipsFipsModeMask != 0 {
		return ErrAlreadyProgrammed
	}

	ipDisable, err := d.readCacheWords(CacheIpDisableOffset, 1)
	if err != nil {
		return err
	}
	if ipDisable[0]&IpDisableFipsVersionMask != 0 {
		return ErrAlreadyProgrammed
	}
	return nil
}

func (d *Device) programFipsInfo(mode, version uint32) error {
	r := FieldRange{Page0, dmeFipsRow, 1, fipsModeColStart, fipsModeColEnd}
	if err := d.programAndVerifyRange(r, []uint32{mode}, false); err != nil {
		return fieldErr(FieldFipsInfo, -1, StageProgramming, err)
	}

	for i := uint32(0); i < 3; i++ {
		if version&(1<<i) == 0 {
			continue
		}
		if err := d.programAndVerifyBit(Page0, ipDisableRow, fipsVersionCol0+i, false); err != nil {
			return fieldErr(FieldFipsInfo, -1, StageProgramming, err)
		}
	}
	return nil
}

// WriteFipsInfo programs the FIPS 140-3 certification record: an 8-bit
// mode and a 3-bit version. The two halves live on different rows but
// are only ever written together, and only onto blank fuses.
//
// The controller is returned to its locked state on every path.
func (d *Device) WriteFipsInfo(envDisable bool, mode, version uint32) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	if version > maxFipsVersion {
		return xerrors.Errorf("cannot write out of range FIPS version %d: %w", version, ErrInvalidParam)
	}
	if mode > maxFipsMode {
		return xerrors.Errorf("cannot write out of range FIPS mode %#x: %w", mode, ErrInvalidParam)
	}

	if err := d.checkEnvMonitor(envDisable); err != nil {
		return err
	}
	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}

	if err := d.validateFipsInfo(); err != nil {
		return fieldErr(FieldFipsInfo, -1, StagePreconditions, err)
	}

	return d.programFipsInfo(mode, version)
}
