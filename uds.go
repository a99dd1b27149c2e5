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

// WriteUds programs the 384-bit unique device secret that seeds the
// DICE identity derivation. The UDS rows cannot be sensed through the
// read path, so per bit verification is skipped and the write is
// confirmed by reloading the cache and running the controller CRC
// engine over the freshly burned fuses.
//
// The controller is returned to its locked state on every path.
func (d *Device) WriteUds(envDisable bool, uds *Uds) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	if uds == nil {
		return xerrors.Errorf("cannot write UDS without key material: %w", ErrInvalidParam)
	}

	if err := d.checkEnvMonitor(envDisable); err != nil {
		return err
	}
	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}

	secCtrl, err := d.readCacheWords(CacheSecurityControlOffset, 1)
	if err != nil {
		return fieldErr(FieldUds, -1, StagePreconditions, err)
	}
	if secCtrl[0]&SecurityControlUdsWrLkMask != 0 {
		return fieldErr(FieldUds, -1, StagePreconditions, ErrFuseProtected)
	}

	words := uds[:]
	for _, r := range UdsRanges() {
		n := r.Bits() / 32
		if err := d.programAndVerifyRange(r, words[:n], true); err != nil {
			return fieldErr(FieldUds, -1, StageProgramming, err)
		}
		words = words[n:]
	}

	if err := d.reloadCache(); err != nil {
		return fieldErr(FieldUds, -1, StagePostVerification, err)
	}

	if err := d.checkCrc(RegUdsCrc, StatusUdsCrcDoneMask, StatusUdsCrcPassMask, UdsCrc(uds)); err != nil {
		return fieldErr(FieldUds, -1, StagePostVerification, err)
	}
	return nil
}

// CheckUdsCrc verifies the programmed UDS against the supplied CRC,
// computed away from the device with UdsCrc. Checking against
// UdsCrcZeros tells whether the UDS is still blank.
func (d *Device) CheckUdsCrc(crc uint32) error {
	return d.checkCrc(RegUdsCrc, StatusUdsCrcDoneMask, StatusUdsCrcPassMask, crc)
}
