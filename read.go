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

// The read functions return the fuse state as mirrored into the cache
// bank, which is loaded from the array at power on. A field programmed
// in the current power cycle only becomes visible here after a cache
// reload or a reset. None of them require a programming session, and
// rows holding symmetric key or UDS material always read as zero; use
// the CRC checks for those.

// ReadCacheRange reads count words of the fuse cache starting at the
// given byte offset, for diagnostic and audit use. The offset must be
// word aligned and inside the cache bank.
func (d *Device) ReadCacheRange(offset, count uint32) ([]uint32, error) {
	return d.readCacheWords(offset, count)
}

// ReadIv returns the given initialization vector.
func (d *Device) ReadIv(ivType IvType) (*Iv, error) {
	switch ivType {
	case MetaHeaderIv, BlackIv, PlmIv, DataPartitionIv:
	default:
		return nil, xerrors.Errorf("cannot read IV of unknown type %d: %w", ivType, ErrInvalidParam)
	}

	words, err := d.readCacheWords(ivCacheOffset(ivType), ivNumRows)
	if err != nil {
		return nil, err
	}
	var iv Iv
	copy(iv[:], words)
	return &iv, nil
}

// ReadPpkHash returns the given primary public key hash.
func (d *Device) ReadPpkHash(ppkType PpkType) (*PpkHash, error) {
	switch ppkType {
	case Ppk0, Ppk1, Ppk2:
	default:
		return nil, xerrors.Errorf("cannot read PPK hash of unknown type %d: %w", ppkType, ErrInvalidParam)
	}

	words, err := d.readCacheWords(ppkCacheOffset(ppkType), ppkHashNumRows)
	if err != nil {
		return nil, err
	}
	var hash PpkHash
	copy(hash[:], words)
	return &hash, nil
}

// IsRevoked reports whether the secondary public key with the given
// ID, in the range 1 to 256, has been revoked.
func (d *Device) IsRevoked(id uint32) (bool, error) {
	if id == 0 || id > MaxRevocationIDs {
		return false, xerrors.Errorf("cannot read out of range ID %d: %w", id, ErrInvalidParam)
	}

	row, col := revocationIDAddr(id)
	words, err := d.readCacheWords(CachePage0Offset+4*row, 1)
	if err != nil {
		return false, err
	}
	return words[0]&(1<<col) != 0, nil
}

// IsOffChipRevoked reports whether the off chip content with the given
// ID, in the range 1 to 256, has been revoked.
func (d *Device) IsOffChipRevoked(id uint32) (bool, error) {
	if id == 0 || id > MaxRevocationIDs {
		return false, xerrors.Errorf("cannot read out of range ID %d: %w", id, ErrInvalidParam)
	}

	row, col := offChipRevokeIDAddr(id)
	words, err := d.readCacheWords(CachePage0Offset+4*row, 1)
	if err != nil {
		return false, err
	}
	return words[0]&(1<<col) != 0, nil
}

func (d *Device) readCacheWord(offset uint32) (uint32, error) {
	words, err := d.readCacheWords(offset, 1)
	if err != nil {
		return 0, err
	}
	return words[0], nil
}

// ReadSecCtrlBits returns the security control row.
func (d *Device) ReadSecCtrlBits() (uint32, error) {
	return d.readCacheWord(CacheSecurityControlOffset)
}

// ReadMiscCtrlBits returns the miscellaneous control row.
func (d *Device) ReadMiscCtrlBits() (uint32, error) {
	return d.readCacheWord(CacheMiscControlOffset)
}

// ReadMisc1Bits returns the second miscellaneous control row.
func (d *Device) ReadMisc1Bits() (uint32, error) {
	return d.readCacheWord(CacheSecurityMisc1Offset)
}

// ReadBootEnvCtrlBits returns the boot environment control row.
func (d *Device) ReadBootEnvCtrlBits() (uint32, error) {
	return d.readCacheWord(CacheBootEnvControlOffset)
}

// ReadGlitchConfigBits returns the glitch detector configuration row,
// including the write lock bit.
func (d *Device) ReadGlitchConfigBits() (uint32, error) {
	return d.readCacheWord(CacheAnlgTrim3Offset)
}

// ReadDecOnly returns the decrypt only fuses. A fully programmed field
// reads as SecurityMisc0DecOnlyMask.
func (d *Device) ReadDecOnly() (uint32, error) {
	w, err := d.readCacheWord(CacheSecurityMisc0Offset)
	if err != nil {
		return 0, err
	}
	return w & SecurityMisc0DecOnlyMask, nil
}

// ReadBootModeDisable returns the boot mode disable fuses, one bit per
// disabled mode.
func (d *Device) ReadBootModeDisable() (uint32, error) {
	w, err := d.readCacheWord(CacheBootModeDisableOffset)
	if err != nil {
		return 0, err
	}
	return w & BootModeDisableMask, nil
}

// ReadDmeMode returns the DME mode fuses.
func (d *Device) ReadDmeMode() (uint32, error) {
	w, err := d.readCacheWord(CacheDmeFipsOffset)
	if err != nil {
		return 0, err
	}
	return w & DmeFipsDmeModeMask, nil
}

// ReadFipsInfo returns the programmed FIPS mode and version.
func (d *Device) ReadFipsInfo() (mode, version uint32, err error) {
	dmeFips, err := d.readCacheWord(CacheDmeFipsOffset)
	if err != nil {
		return 0, 0, err
	}
	ipDisable, err := d.readCacheWord(CacheIpDisableOffset)
	if err != nil {
		return 0, 0, err
	}
	mode = (dmeFips & DmeFipsFipsModeMask) >> fipsModeColStart
	version = (ipDisable & IpDisableFipsVersionMask) >> fipsVersionCol0
	return mode, version, nil
}
