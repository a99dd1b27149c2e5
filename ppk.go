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

// WritePpkHash programs the 256-bit hash of one of the primary public
// keys used for boot image authentication. The hash fuses must be
// completely blank. Unlike the control rows there is no merging with
// already programmed bits, as a partially programmed hash has no
// meaningful interpretation.
//
// The controller is returned to its locked state on every path.
func (d *Device) WritePpkHash(ppkType PpkType, hash *PpkHash) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	switch ppkType {
	case Ppk0, Ppk1, Ppk2:
	default:
		return xerrors.Errorf("cannot write PPK hash of unknown type %d: %w", ppkType, ErrInvalidParam)
	}
	if hash == nil {
		return xerrors.Errorf("cannot write %v without hash data: %w", ppkType, ErrInvalidParam)
	}

	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}

	if err := d.checkCacheZeros(ppkCacheOffset(ppkType), ppkHashNumRows); err != nil {
		return fieldErr(FieldPpkHash, int(ppkType), StagePreconditions, err)
	}

	if err := d.programAndVerifyRange(ppkRange(ppkType), hash[:], false); err != nil {
		return fieldErr(FieldPpkHash, int(ppkType), StageProgramming, err)
	}
	return nil
}
