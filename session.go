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

type controllerMode uint32

const (
	modeRead controllerMode = iota
	modeProgram
)

// setupController takes the controller from its idle locked state to
// an operating one: write lock released, macro powered up, programming
// enabled where requested, read margin applied and the timing
// registers loaded. The status T-bits are checked last as evidence
// that the array senses correctly in the selected mode.
func (d *Device) setupController(mode controllerMode, margin MarginRead) error {
	if err := d.unlockController(); err != nil {
		return err
	}

	d.regs.Write32(RegPwrDown, 0)

	cfg := d.regs.Read32(RegCfg)
	if mode == modeProgram {
		cfg |= CfgEnablePgmMask
	}
	cfg = cfg&^CfgMarginRdMask | uint32(margin)<<CfgMarginRdShift
	d.regs.Write32(RegCfg, cfg)
	if d.regs.Read32(RegCfg) != cfg {
		return xerrors.Errorf("cannot set up the controller: configuration readback mismatch")
	}

	d.regs.Write32(RegTpgm, tpgmValue)
	d.regs.Write32(RegTrd, trdValue)
	d.regs.Write32(RegTsuHPs, tsuHPsValue)
	d.regs.Write32(RegTsuHPsCs, tsuHPsCsValue)
	d.regs.Write32(RegTsuHCs, tsuHCsValue)

	d.regs.Write32(RegTestCtrl, 0)

	if d.regs.Read32(RegStatus)&StatusTbitPattern != StatusTbitPattern {
		return xerrors.Errorf("cannot set up the controller: %w", ErrInvalidTbitPattern)
	}
	return nil
}

// closeController returns the controller to its idle locked state:
// read margin back to normal, programming disabled and the write lock
// engaged, halting on the first failure.
func (d *Device) closeController() error {
	if err := d.resetReadMode(); err != nil {
		return err
	}
	if err := d.disableProgramming(); err != nil {
		return err
	}
	return d.lockController()
}

// closeAndResolve runs the controller close sequence and resolves the
// final status of a write: an error from the write path wins, with the
// close path error surfaced only when the write path succeeded. The
// field write functions arrange for this to run exactly once on every
// path, including parameter validation failures.
func (d *Device) closeAndResolve(err error) error {
	closeErr := d.closeController()
	if err != nil {
		return err
	}
	return closeErr
}

func (d *Device) unlockController() error {
	d.regs.Write32(RegWrLock, WrUnlockPasscode)
	if d.regs.Read32(RegWrLock) != 0 {
		return xerrors.Errorf("cannot unlock the controller: %w", ErrUnlockFailed)
	}
	return nil
}

func (d *Device) lockController() error {
	d.regs.Write32(RegWrLock, 0)
	if d.regs.Read32(RegWrLock) == 0 {
		return xerrors.Errorf("cannot lock the controller: %w", ErrLockFailed)
	}
	return nil
}

func (d *Device) resetReadMode() error {
	cfg := d.regs.Read32(RegCfg) &^ CfgMarginRdMask
	d.regs.Write32(RegCfg, cfg)
	if d.regs.Read32(RegCfg)&CfgMarginRdMask != 0 {
		return xerrors.Errorf("cannot reset the controller read mode: configuration readback mismatch")
	}
	return nil
}

func (d *Device) disableProgramming() error {
	cfg := d.regs.Read32(RegCfg) &^ CfgEnablePgmMask
	d.regs.Write32(RegCfg, cfg)
	if d.regs.Read32(RegCfg)&CfgEnablePgmMask != 0 {
		return xerrors.Errorf("cannot disable programming: configuration readback mismatch")
	}
	return nil
}

// reloadCache repopulates the mirrored fuse image from the array.
// Reading the array wears it, so this only runs where a write has
// made the image stale. The cache error flag is left set on a parity
// failure so that later image consumers refuse to trust it.
func (d *Device) reloadCache() error {
	d.regs.Write32(RegIsr, IsrCacheDoneMask|IsrCacheErrorMask)
	d.regs.Write32(RegCacheLoad, CacheLoadStartMask)

	if _, err := d.regs.WaitForEvents(RegIsr, IsrCacheDoneMask, IsrCacheDoneMask, cacheLoadTimeout); err != nil {
		return xerrors.Errorf("cannot reload the fuse cache: %w", ErrCacheLoadTimeout)
	}
	if d.regs.Read32(RegIsr)&IsrCacheErrorMask != 0 {
		return xerrors.Errorf("cannot reload the fuse cache: %w", ErrCacheParity)
	}
	d.regs.Write32(RegIsr, IsrCacheDoneMask)
	return nil
}

// checkCrc feeds a caller computed CRC to one of the controller CRC
// registers and waits for the hardware comparison against the
// programmed fuses to finish.
func (d *Device) checkCrc(crcReg, doneMask, passMask, crc uint32) error {
	d.regs.Write32(crcReg, crc)

	if _, err := d.regs.WaitForEvents(RegStatus, doneMask, doneMask, crcTimeout); err != nil {
		return xerrors.Errorf("cannot check key CRC: %w", ErrCrcTimeout)
	}
	if d.regs.Read32(RegStatus)&passMask == 0 {
		return xerrors.Errorf("cannot check key CRC: %w", ErrCrcMismatch)
	}
	return nil
}

func keyCrcRegs(keyType KeyType) (reg, doneMask, passMask uint32) {
	switch keyType {
	case KeyTypeAes:
		return RegAesCrc, StatusAesCrcDoneMask, StatusAesCrcPassMask
	case KeyTypeUser0:
		return RegAesUsrKey0Crc, StatusUsrKey0CrcDoneMask, StatusUsrKey0CrcPassMask
	default:
		return RegAesUsrKey1Crc, StatusUsrKey1CrcDoneMask, StatusUsrKey1CrcPassMask
	}
}
