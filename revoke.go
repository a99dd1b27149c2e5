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

// revocationIDAddr maps a 1-based revocation ID to its fuse location.
// The 256 fuses are split between two banks of rows, with IDs 1 to 128
// in the low bank and the rest in the high bank.
func revocationIDAddr(id uint32) (row, col uint32) {
	base := revokeIDLowBaseRow
	if id > MaxRevocationIDs/2 {
		id -= MaxRevocationIDs / 2
		base = revokeIDHighBaseRow
	}
	return base + (id-1)/revokeIDsPerRow, (id - 1) % revokeIDsPerRow
}

func offChipRevokeIDAddr(id uint32) (row, col uint32) {
	return offChipRevokeRow + (id-1)/offChipRevokePerRow, (id - 1) % offChipRevokePerRow
}

// WriteRevocationID burns the fuse revoking the secondary public key
// with the given ID, in the range 1 to 256. Revoking an ID that is
// already revoked succeeds and changes nothing.
//
// The controller is returned to its locked state on every path.
func (d *Device) WriteRevocationID(envDisable bool, id uint32) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	if id == 0 || id > MaxRevocationIDs {
		return xerrors.Errorf("cannot revoke out of range ID %d: %w", id, ErrInvalidParam)
	}

	if err := d.checkEnvMonitor(envDisable); err != nil {
		return err
	}
	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}

	row, col := revocationIDAddr(id)
	if err := d.programAndVerifyBit(Page0, row, col, false); err != nil {
		return fieldErr(FieldRevocationID, int(id), StageProgramming, err)
	}
	return nil
}

// WriteOffChipRevokeID burns the fuse recording that the off chip
// content with the given ID, in the range 1 to 256, has been revoked.
// Revoking an ID that is already revoked succeeds and changes nothing.
//
// The controller is returned to its locked state on every path.
func (d *Device) WriteOffChipRevokeID(envDisable bool, id uint32) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	if id == 0 || id > MaxRevocationIDs {
		return xerrors.Errorf("cannot revoke out of range ID %d: %w", id, ErrInvalidParam)
	}

	if err := d.checkEnvMonitor(envDisable); err != nil {
		return err
	}
	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}

	row, col := offChipRevokeIDAddr(id)
	if err := d.programAndVerifyBit(Page0, row, col, false); err != nil {
		return fieldErr(FieldOffChipRevokeID, int(id), StageProgramming, err)
	}
	return nil
}
