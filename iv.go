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

// validateIvWriteReq checks that the requested IV is reachable from
// the fuses already burned. Bits can only move from 0 to 1, so a
// cached bit that the request wants clear makes the write impossible.
func (d *Device) validateIvWriteReq(ivType IvType, iv *Iv) error {
	cached, err := d.readCacheWords(ivCacheOffset(ivType), ivNumRows)
	if err != nil {
		return err
	}
	for i, w := range cached {
		if w&^iv[i] != 0 {
			return ErrAlreadyProgrammed
		}
	}
	return nil
}

// WriteIv programs one of the 96-bit initialization vector fields.
// IVs are versioned by incrementing, so unlike key or hash fields a
// write on top of programmed fuses is allowed provided the request
// keeps every bit that is already set. Only the missing bits receive
// program pulses.
//
// The controller is returned to its locked state on every path.
func (d *Device) WriteIv(ivType IvType, iv *Iv) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	switch ivType {
	case MetaHeaderIv, BlackIv, PlmIv, DataPartitionIv:
	default:
		return xerrors.Errorf("cannot write IV of unknown type %d: %w", ivType, ErrInvalidParam)
	}
	if iv == nil {
		return xerrors.Errorf("cannot write %v without IV data: %w", ivType, ErrInvalidParam)
	}

	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}

	if err := d.validateIvWriteReq(ivType, iv); err != nil {
		return fieldErr(FieldIv, int(ivType), StagePreconditions, err)
	}

	prgm, err := d.computeProgrammableBits(ivCacheOffset(ivType), iv[:])
	if err != nil {
		return fieldErr(FieldIv, int(ivType), StagePreconditions, err)
	}

	if err := d.programAndVerifyRange(ivRange(ivType), prgm, false); err != nil {
		return fieldErr(FieldIv, int(ivType), StageProgramming, err)
	}
	return nil
}
