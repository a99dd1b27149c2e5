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

func dmeRevokeAddr(revoke DmeRevoke) (row, col0, col1 uint32) {
	switch revoke {
	case DmeRevoke0:
		return dmeRevoke01Row, 0, 1
	case DmeRevoke1:
		return dmeRevoke01Row, 2, 3
	case DmeRevoke2:
		return dmeRevoke23Row, 0, 1
	default:
		return dmeRevoke23Row, 2, 3
	}
}

// WriteDmeUserKey programs one of the four DME user keys used to
// authenticate device metadata exchange requests. The keys become
// fixed once any DME mode fuse is burned, so the write is refused
// whilst a mode is set.
//
// The controller is returned to its locked state on every path.
func (d *Device) WriteDmeUserKey(keyType DmeKeyType, key *DmeKey) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	switch keyType {
	case DmeUserKey0, DmeUserKey1, DmeUserKey2, DmeUserKey3:
	default:
		return xerrors.Errorf("cannot write DME user key of unknown type %d: %w", keyType, ErrInvalidParam)
	}
	if key == nil {
		return xerrors.Errorf("cannot write %v without key material: %w", keyType, ErrInvalidParam)
	}

	dmeFips, err := d.readCacheWords(CacheDmeFipsOffset, 1)
	if err != nil {
		return fieldErr(FieldDmeKey, int(keyType), StagePreconditions, err)
	}
	if dmeFips[0]&DmeFipsDmeModeMask != 0 {
		return fieldErr(FieldDmeKey, int(keyType), StagePreconditions, ErrDmeModeSet)
	}

	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}

	if err := d.programAndVerifyRange(dmeKeyRange(keyType), key[:], false); err != nil {
		return fieldErr(FieldDmeKey, int(keyType), StageProgramming, err)
	}
	return nil
}

// WriteDmeRevoke burns the fuse pair revoking the DME key with the
// given index. Both fuses carry the same meaning and are burned
// individually so that a single stuck fuse cannot hold the key valid.
//
// The controller is returned to its locked state on every path.
func (d *Device) WriteDmeRevoke(envDisable bool, revoke DmeRevoke) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	switch revoke {
	case DmeRevoke0, DmeRevoke1, DmeRevoke2, DmeRevoke3:
	default:
		return xerrors.Errorf("cannot write unknown DME revocation %d: %w", revoke, ErrInvalidParam)
	}

	if err := d.checkEnvMonitor(envDisable); err != nil {
		return err
	}
	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}

	row, col0, col1 := dmeRevokeAddr(revoke)
	if err := d.programAndVerifyBit(Page0, row, col0, false); err != nil {
		return fieldErr(FieldDmeRevoke, int(revoke), StageProgramming, err)
	}
	if err := d.programAndVerifyBit(Page0, row, col1, false); err != nil {
		return fieldErr(FieldDmeRevoke, int(revoke), StageProgramming, err)
	}
	return nil
}

// WriteDmeMode programs the requested DME mode fuses. Programming any
// mode fuse permanently freezes the DME user keys.
//
// The controller is returned to its locked state on every path.
func (d *Device) WriteDmeMode(envDisable bool, mode uint32) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	if mode&^DmeFipsDmeModeMask != 0 {
		return xerrors.Errorf("cannot write invalid DME mode %#x: %w", mode, ErrInvalidParam)
	}

	if err := d.checkEnvMonitor(envDisable); err != nil {
		return err
	}
	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}

	r := FieldRange{Page0, dmeFipsRow, 1, dmeModeColStart, dmeModeColEnd}
	if err := d.programAndVerifyRange(r, []uint32{mode}, false); err != nil {
		return fieldErr(FieldDmeMode, -1, StageProgramming, err)
	}
	return nil
}
