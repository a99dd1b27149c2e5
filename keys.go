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

func keyField(keyType KeyType) Field {
	switch keyType {
	case KeyTypeUser0:
		return FieldUserKey0
	case KeyTypeUser1:
		return FieldUserKey1
	default:
		return FieldAesKey
	}
}

// validateKeyWriteReq rejects a key write when control bits burned
// earlier disable the key or lock it against writes or CRC checks. A
// key whose CRC check is locked could never be post-verified.
func (d *Device) validateKeyWriteReq(keyType KeyType) error {
	secCtrl, err := d.readCacheWords(CacheSecurityControlOffset, 1)
	if err != nil {
		return err
	}

	var locks uint32
	switch keyType {
	case KeyTypeAes:
		locks = SecurityControlAesDisMask | SecurityControlAesCrcLkMask | SecurityControlAesWrLkMask
	case KeyTypeUser0:
		locks = SecurityControlUsrKey0CrcLkMask | SecurityControlUsrKey0WrLkMask
	case KeyTypeUser1:
		locks = SecurityControlUsrKey1CrcLkMask | SecurityControlUsrKey1WrLkMask
	}
	if secCtrl[0]&locks != 0 {
		return ErrFuseProtected
	}
	return nil
}

// programKey burns the key over its program windows and then has the
// controller CRC engine confirm the whole key. The key rows cannot be
// sensed through the read path, so per bit verification is skipped and
// correctness rests on the CRC check against the freshly reloaded
// cache.
func (d *Device) programKey(keyType KeyType, key *AesKey) error {
	field := keyField(keyType)

	words := key[:]
	for _, r := range KeyRanges(keyType) {
		n := r.Bits() / 32
		if err := d.programAndVerifyRange(r, words[:n], true); err != nil {
			return fieldErr(field, -1, StageProgramming, err)
		}
		words = words[n:]
	}

	if err := d.reloadCache(); err != nil {
		return fieldErr(field, -1, StagePostVerification, err)
	}

	reg, doneMask, passMask := keyCrcRegs(keyType)
	if err := d.checkCrc(reg, doneMask, passMask, AesKeyCrc(key)); err != nil {
		return fieldErr(field, -1, StagePostVerification, err)
	}
	return nil
}

// WriteAesKey programs one of the symmetric key eFuses with the given
// 256-bit key. The write refuses to run whilst the key is disabled or
// locked by previously programmed security control bits. After
// programming, the fuse cache is reloaded and the key is verified
// through the controller CRC engine, which guards against systematic
// addressing faults that individual bit checks cannot see.
//
// The controller is returned to its locked state on every path. Errors
// occurring after the controller is set up are wrapped in a
// *FieldError identifying the key and the stage that failed.
func (d *Device) WriteAesKey(keyType KeyType, key *AesKey) (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	switch keyType {
	case KeyTypeAes, KeyTypeUser0, KeyTypeUser1:
	default:
		return xerrors.Errorf("cannot write key of unknown type %d: %w", keyType, ErrInvalidParam)
	}
	if key == nil {
		return xerrors.Errorf("cannot write %v without key material: %w", keyField(keyType), ErrInvalidParam)
	}

	if err := d.setupController(modeProgram, MarginRead2); err != nil {
		return err
	}

	if err := d.validateKeyWriteReq(keyType); err != nil {
		return fieldErr(keyField(keyType), -1, StagePreconditions, err)
	}

	return d.programKey(keyType, key)
}

// CheckAesKeyCrc verifies a programmed key against the supplied CRC,
// computed away from the device with AesKeyCrc. The key rows never
// appear in the fuse cache, so this is the only way to confirm key
// material after the programming session has ended. Checking against
// AesCrcZeros tells whether the key is still blank.
func (d *Device) CheckAesKeyCrc(keyType KeyType, crc uint32) error {
	switch keyType {
	case KeyTypeAes, KeyTypeUser0, KeyTypeUser1:
	default:
		return xerrors.Errorf("cannot check key of unknown type %d: %w", keyType, ErrInvalidParam)
	}

	reg, doneMask, passMask := keyCrcRegs(keyType)
	return d.checkCrc(reg, doneMask, passMask, crc)
}
