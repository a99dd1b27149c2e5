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
	"fmt"
)

// KeyType identifies one of the symmetric key eFuses whose integrity
// is verified through the controller CRC registers.
type KeyType uint32

const (
	KeyTypeAes KeyType = iota
	KeyTypeUser0
	KeyTypeUser1
)

// String implements fmt.Stringer.
func (t KeyType) String() string {
	switch t {
	case KeyTypeAes:
		return "AES key"
	case KeyTypeUser0:
		return "user key 0"
	case KeyTypeUser1:
		return "user key 1"
	default:
		return "invalid key type"
	}
}

// PpkType identifies one of the PPK hash eFuses.
type PpkType uint32

const (
	Ppk0 PpkType = iota
	Ppk1
	Ppk2
)

// String implements fmt.Stringer.
func (t PpkType) String() string {
	switch t {
	case Ppk0:
		return "PPK0 hash"
	case Ppk1:
		return "PPK1 hash"
	case Ppk2:
		return "PPK2 hash"
	default:
		return "invalid PPK type"
	}
}

// IvType identifies one of the IV eFuses.
type IvType uint32

const (
	MetaHeaderIv IvType = iota
	BlackIv
	PlmIv
	DataPartitionIv
)

// String implements fmt.Stringer.
func (t IvType) String() string {
	switch t {
	case MetaHeaderIv:
		return "meta header IV"
	case BlackIv:
		return "black IV"
	case PlmIv:
		return "PLM IV"
	case DataPartitionIv:
		return "data partition IV"
	default:
		return "invalid IV type"
	}
}

// DmeKeyType identifies one of the DME user key eFuses.
type DmeKeyType uint32

const (
	DmeUserKey0 DmeKeyType = iota
	DmeUserKey1
	DmeUserKey2
	DmeUserKey3
)

// String implements fmt.Stringer.
func (t DmeKeyType) String() string {
	switch t {
	case DmeUserKey0, DmeUserKey1, DmeUserKey2, DmeUserKey3:
		return fmt.Sprintf("DME user key %d", uint32(t))
	default:
		return "invalid DME key type"
	}
}

// DmeRevoke identifies one of the DME revocation eFuses.
type DmeRevoke uint32

const (
	DmeRevoke0 DmeRevoke = iota
	DmeRevoke1
	DmeRevoke2
	DmeRevoke3
)

// String implements fmt.Stringer.
func (r DmeRevoke) String() string {
	switch r {
	case DmeRevoke0, DmeRevoke1, DmeRevoke2, DmeRevoke3:
		return fmt.Sprintf("DME revocation %d", uint32(r))
	default:
		return "invalid DME revocation"
	}
}

// MarginRead selects the sense margin applied to fuse array reads.
// Programming sessions verify freshly burned bits with MarginRead2;
// NormalRead is restored when the controller is closed.
type MarginRead uint32

const (
	NormalRead MarginRead = iota
	MarginRead1
	MarginRead2
)

// AesKey is the 256-bit value of an AES or user key eFuse, least
// significant word first.
type AesKey [8]uint32

// PpkHash is the 256-bit value of a PPK hash eFuse, least significant
// word first.
type PpkHash [8]uint32

// Iv is the 96-bit value of an IV eFuse, least significant word first.
type Iv [3]uint32

// Uds is the 384-bit device unique secret, least significant word
// first.
type Uds [12]uint32

// DmeKey is the 384-bit value of a DME user key eFuse, least
// significant word first.
type DmeKey [12]uint32

// PufSynDataWords is the number of formatted PUF syndrome data words.
const PufSynDataWords = 127

// PufHelperData.SecCtrlBits bits.
const (
	PufRegisDisMask  uint32 = 1 << 0
	PufHdInvalidMask uint32 = 1 << 1
	PufRegenDisMask  uint32 = 1 << 2
)

// PufHelperData carries the PUF helper data programmed by WritePuf.
type PufHelperData struct {
	// EnvMonitorDisable skips the temperature and voltage checks
	// before programming.
	EnvMonitorDisable bool

	// ProgramHelperData requests programming of SynData, Chash, Aux
	// and RoSwap. When unset only the control fuses requested in
	// SecCtrlBits are touched.
	ProgramHelperData bool

	// SynData is the formatted syndrome data.
	SynData [PufSynDataWords]uint32

	// Chash is the helper data hash.
	Chash uint32

	// Aux is the auxiliary syndrome ECC value. Only the low 24 bits
	// are programmable.
	Aux uint32

	// RoSwap is the ring oscillator swap map.
	RoSwap uint32

	// SecCtrlBits requests PUF control fuses to be programmed after
	// the helper data: PufRegisDisMask disables further PUF
	// registration, PufHdInvalidMask invalidates the programmed
	// helper data and PufRegenDisMask disables PUF regeneration.
	SecCtrlBits uint32
}

// FuseAddress identifies a single fuse bit in the array.
type FuseAddress struct {
	Page   Page
	Row    uint32
	Column uint32
}
