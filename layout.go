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
	"time"
)

// Page identifies one of the physical eFuse array pages.
type Page uint32

const (
	Page0 Page = iota
	Page1
	Page2
)

// Geometry of the fuse array.
const (
	NumPages    = 3
	RowsPerPage = 256
	ColsPerRow  = 32
)

// PgmAddr and RdAddr registers carry a packed fuse address: the column
// in bits 0..4, the row in bits 5..12 and the page in bits 13..14.
// RdAddr addresses a whole row and carries no column.
const (
	AddrColumnShift = 0
	AddrColumnMask  = 0x1f
	AddrRowShift    = 5
	AddrRowMask     = 0xff
	AddrPageShift   = 13
	AddrPageMask    = 0x3
)

// Controller register offsets.
const (
	CtrlBaseOffset uint32 = 0x0000

	RegWrLock        = CtrlBaseOffset + 0x00
	RegCfg           = CtrlBaseOffset + 0x04
	RegStatus        = CtrlBaseOffset + 0x08
	RegPgmAddr       = CtrlBaseOffset + 0x0c
	RegRdAddr        = CtrlBaseOffset + 0x10
	RegRdData        = CtrlBaseOffset + 0x14
	RegTpgm          = CtrlBaseOffset + 0x18
	RegTrd           = CtrlBaseOffset + 0x1c
	RegTsuHPs        = CtrlBaseOffset + 0x20
	RegTsuHPsCs      = CtrlBaseOffset + 0x24
	RegTsuHCs        = CtrlBaseOffset + 0x28
	RegIsr           = CtrlBaseOffset + 0x2c
	RegCacheLoad     = CtrlBaseOffset + 0x30
	RegPwrDown       = CtrlBaseOffset + 0x34
	RegAesCrc        = CtrlBaseOffset + 0x38
	RegAesUsrKey0Crc = CtrlBaseOffset + 0x3c
	RegAesUsrKey1Crc = CtrlBaseOffset + 0x40
	RegUdsCrc        = CtrlBaseOffset + 0x44
	RegTestCtrl      = CtrlBaseOffset + 0x48
)

// WrLock register. The controller ignores all programming related
// register writes whilst locked. Writing the passcode unlocks it,
// writing any other value locks it again. The register reads back
// non-zero whilst locked.
const (
	WrUnlockPasscode uint32 = 0xdf0d
)

// Cfg register bits.
const (
	CfgEnablePgmMask  uint32 = 1 << 0
	CfgMarginRdShift         = 2
	CfgMarginRdMask   uint32 = 0x3 << CfgMarginRdShift
)

// Status register bits. The T-bit pattern reads as all set on a
// functional, readable array.
const (
	StatusTbit0Mask          uint32 = 1 << 0
	StatusTbit1Mask          uint32 = 1 << 1
	StatusTbit2Mask          uint32 = 1 << 2
	StatusTbitPattern               = StatusTbit0Mask | StatusTbit1Mask | StatusTbit2Mask
	StatusAesCrcDoneMask     uint32 = 1 << 3
	StatusAesCrcPassMask     uint32 = 1 << 4
	StatusUsrKey0CrcDoneMask uint32 = 1 << 5
	StatusUsrKey0CrcPassMask uint32 = 1 << 6
	StatusUsrKey1CrcDoneMask uint32 = 1 << 7
	StatusUsrKey1CrcPassMask uint32 = 1 << 8
	StatusUdsCrcDoneMask     uint32 = 1 << 9
	StatusUdsCrcPassMask     uint32 = 1 << 10
)

// Isr register bits, all write-one-to-clear.
const (
	IsrPgmDoneMask    uint32 = 1 << 0
	IsrPgmErrorMask   uint32 = 1 << 1
	IsrRdDoneMask     uint32 = 1 << 2
	IsrCacheDoneMask  uint32 = 1 << 3
	IsrCacheErrorMask uint32 = 1 << 4
)

// CacheLoad register bits.
const (
	CacheLoadStartMask uint32 = 1 << 0
)

// The cache bank mirrors the fuse array one word per row: page 0 rows
// at CachePage0Offset and page 1 rows at CachePage1Offset. Page 2 is
// not cached. Rows holding symmetric key or UDS material are never
// mirrored and read as zero; their integrity is checked through the
// controller CRC registers instead.
const (
	CacheBaseOffset  uint32 = 0x1000
	CachePage0Offset        = CacheBaseOffset
	CachePage1Offset        = CacheBaseOffset + 4*RowsPerPage
	CacheWordCount   uint32 = 2 * RowsPerPage
	CacheEndOffset          = CacheBaseOffset + 4*CacheWordCount
)

// Page 0 row allocation.
const (
	anlgTrim3Row        uint32 = 1
	securityControlRow  uint32 = 2
	miscControlRow      uint32 = 3
	securityMisc0Row    uint32 = 4
	securityMisc1Row    uint32 = 5
	bootEnvControlRow   uint32 = 6
	dmeFipsRow          uint32 = 7
	ipDisableRow        uint32 = 8
	plmUpdateRow        uint32 = 9
	bootModeDisableRow  uint32 = 10
	dmeRevoke01Row      uint32 = 11
	metaHeaderIvRow     uint32 = 12
	blackIvRow          uint32 = 15
	plmIvRow            uint32 = 18
	dataPartitionIvRow  uint32 = 21
	revokeIDLowBaseRow  uint32 = 24
	revokeIDHighBaseRow uint32 = 40
	offChipRevokeRow    uint32 = 56
	aesKeyStartRow      uint32 = 64
	userKey0StartRow    uint32 = 96
	userKey1StartRow    uint32 = 112
	dmeKey01StartRow    uint32 = 128
	dmeKey23StartRow    uint32 = 152
	pufSynPage0Row      uint32 = 176
	pufChashRow         uint32 = 240
	pufEccPufCtrlRow    uint32 = 241
	pufRoSwapRow        uint32 = 242
	udsLowStartRow      uint32 = 243
	udsHighStartRow     uint32 = 251
	dmeRevoke23Row      uint32 = 255
)

// Page 1 row allocation.
const (
	pufSynPage1Row   uint32 = 0
	ppk0HashStartRow uint32 = 64
	ppk1HashStartRow uint32 = 72
	ppk2HashStartRow uint32 = 80
)

// Column windows and sizes of the page 0 fields.
const (
	glitchConfigColStart uint32 = 0
	glitchConfigColEnd   uint32 = 30
	glitchWrLkCol        uint32 = 31

	decOnlyColStart uint32 = 0
	decOnlyColEnd   uint32 = 15

	dmeModeColStart  uint32 = 0
	dmeModeColEnd    uint32 = 3
	fipsModeColStart uint32 = 16
	fipsModeColEnd   uint32 = 23

	fipsVersionCol0 uint32 = 8
	fipsVersionCol1 uint32 = 9
	fipsVersionCol2 uint32 = 10

	plmUpdateCol uint32 = 0

	bootModeDisableColStart uint32 = 0
	bootModeDisableColEnd   uint32 = 15

	ivNumRows uint32 = 3

	revokeIDsPerRow     uint32 = 8
	offChipRevokePerRow uint32 = 32

	ppkHashNumRows uint32 = 8

	pufSynPage0NumRows uint32 = 64
	pufSynPage1NumRows uint32 = 63

	pufAuxColStart uint32 = 0
	pufAuxColEnd   uint32 = 23
)

// MaxRevocationIDs is the number of revocation ID fuses in each of the
// on chip and off chip banks. Revocation IDs are 1-based, so valid IDs
// run from 1 to MaxRevocationIDs.
const MaxRevocationIDs uint32 = 256

// AnlgTrim3 row: the glitch detector configuration occupies bits 0..30
// and bit 31 write-locks it.
const (
	GlitchConfigDataMask uint32 = 0x7fffffff
	GlitchConfigWrLkMask uint32 = 0x80000000
)

// SecurityControl row bits, as mirrored at CacheSecurityControlOffset.
const (
	SecurityControlAesDisMask        uint32 = 1 << 0
	SecurityControlJtagErrOutDisMask uint32 = 1 << 1
	SecurityControlJtagDisMask       uint32 = 1 << 2
	SecurityControlAesCrcLkMask      uint32 = 0x3 << 5
	SecurityControlAesWrLkMask       uint32 = 1 << 7
	SecurityControlUsrKey0CrcLkMask  uint32 = 1 << 8
	SecurityControlUsrKey0WrLkMask   uint32 = 1 << 9
	SecurityControlUsrKey1CrcLkMask  uint32 = 1 << 10
	SecurityControlUsrKey1WrLkMask   uint32 = 1 << 11
	SecurityControlUdsWrLkMask       uint32 = 1 << 12
	SecurityControlPpk0WrLkMask      uint32 = 1 << 13
	SecurityControlPpk1WrLkMask      uint32 = 1 << 14
	SecurityControlPpk2WrLkMask      uint32 = 1 << 15
)

// SecurityMisc0 row bits.
const (
	SecurityMisc0DecOnlyMask uint32 = 0x0000ffff
)

// DmeFips row bits.
const (
	DmeFipsDmeModeMask  uint32 = 0x0000000f
	DmeFipsFipsModeMask uint32 = 0x00ff0000
)

// IpDisable row bits.
const (
	IpDisableFipsVersionMask uint32 = 0x7 << fipsVersionCol0
)

// BootModeDisable row bits.
const (
	BootModeDisableMask uint32 = 0x0000ffff
)

// PufEccPufCtrl row bits: the syndrome ECC value occupies bits 0..23,
// the rest are PUF control fuses.
const (
	PufEccCtrlEccMask       uint32 = 0x00ffffff
	PufEccCtrlRegisDisMask  uint32 = 1 << 24
	PufEccCtrlHdInvalidMask uint32 = 1 << 25
	PufEccCtrlRegenDisMask  uint32 = 1 << 26
	PufEccCtrlSynLkMask     uint32 = 1 << 27
	PufEccCtrlPufDisMask    uint32 = 1 << 28

	pufEccCtrlRegisDisCol  uint32 = 24
	pufEccCtrlHdInvalidCol uint32 = 25
	pufEccCtrlRegenDisCol  uint32 = 26
)

// Cache offsets of the fields exposed through the read API.
const (
	CacheAnlgTrim3Offset       = CachePage0Offset + 4*anlgTrim3Row
	CacheSecurityControlOffset = CachePage0Offset + 4*securityControlRow
	CacheMiscControlOffset     = CachePage0Offset + 4*miscControlRow
	CacheSecurityMisc0Offset   = CachePage0Offset + 4*securityMisc0Row
	CacheSecurityMisc1Offset   = CachePage0Offset + 4*securityMisc1Row
	CacheBootEnvControlOffset  = CachePage0Offset + 4*bootEnvControlRow
	CacheDmeFipsOffset         = CachePage0Offset + 4*dmeFipsRow
	CacheIpDisableOffset       = CachePage0Offset + 4*ipDisableRow
	CachePlmUpdateOffset       = CachePage0Offset + 4*plmUpdateRow
	CacheBootModeDisableOffset = CachePage0Offset + 4*bootModeDisableRow
	CacheMetaHeaderIvOffset    = CachePage0Offset + 4*metaHeaderIvRow
	CacheBlackIvOffset         = CachePage0Offset + 4*blackIvRow
	CachePlmIvOffset           = CachePage0Offset + 4*plmIvRow
	CacheDataPartitionIvOffset = CachePage0Offset + 4*dataPartitionIvRow
	CachePpk0HashOffset        = CachePage1Offset + 4*ppk0HashStartRow
	CachePpk1HashOffset        = CachePage1Offset + 4*ppk1HashStartRow
	CachePpk2HashOffset        = CachePage1Offset + 4*ppk2HashStartRow

	cachePufSynPage0Offset   = CachePage0Offset + 4*pufSynPage0Row
	cachePufSynPage1Offset   = CachePage1Offset + 4*pufSynPage1Row
	cachePufChashOffset      = CachePage0Offset + 4*pufChashRow
	cachePufEccPufCtrlOffset = CachePage0Offset + 4*pufEccPufCtrlRow
)

// Timing register values for the reference PS clock. Deriving them
// from the live clock tree is out of scope here.
const (
	tpgmValue     uint32 = 0x36
	trdValue      uint32 = 0x1b
	tsuHPsValue   uint32 = 0x0a
	tsuHPsCsValue uint32 = 0x0c
	tsuHCsValue   uint32 = 0x10
)

// Completion timeouts for the controller state machines.
const (
	programTimeout   = 10 * time.Millisecond
	readTimeout      = 10 * time.Millisecond
	crcTimeout       = 10 * time.Millisecond
	cacheLoadTimeout = 500 * time.Millisecond
)

// FieldRange describes one contiguous program window of a fuse field:
// a run of rows on one page with an inclusive column window. Fields
// wider than their column window span multiple ranges, with the data
// words consumed across the ranges in order, bit 0 of word 0 first.
type FieldRange struct {
	Page     Page
	StartRow uint32
	NumRows  uint32
	ColStart uint32
	ColEnd   uint32
}

// Bits returns the number of fuse bits covered by the range.
func (r FieldRange) Bits() uint32 {
	return r.NumRows * (r.ColEnd - r.ColStart + 1)
}

// KeyRanges returns the program windows of the given symmetric key
// eFuse in data order. Key rows are not mirrored into the cache;
// key integrity is checked through the controller CRC registers.
func KeyRanges(keyType KeyType) []FieldRange {
	switch keyType {
	case KeyTypeAes:
		return []FieldRange{
			{Page0, aesKeyStartRow, 32, 0, 3},
			{Page0, aesKeyStartRow, 32, 4, 7},
		}
	case KeyTypeUser0:
		return []FieldRange{
			{Page0, userKey0StartRow, 16, 0, 3},
			{Page0, userKey0StartRow, 16, 4, 11},
			{Page0, userKey0StartRow, 16, 12, 15},
		}
	case KeyTypeUser1:
		return []FieldRange{
			{Page0, userKey1StartRow, 16, 0, 3},
			{Page0, userKey1StartRow, 16, 4, 7},
			{Page0, userKey1StartRow, 16, 8, 15},
		}
	}
	return nil
}

// UdsRanges returns the program windows of the UDS eFuse in data
// order. Like the key rows, the UDS rows are not mirrored into the
// cache.
func UdsRanges() []FieldRange {
	return []FieldRange{
		{Page0, udsLowStartRow, 8, 0, 7},
		{Page0, udsLowStartRow, 8, 8, 23},
		{Page0, udsLowStartRow, 8, 24, 31},
		{Page0, udsHighStartRow, 4, 0, 31},
	}
}

func dmeKeyRange(keyType DmeKeyType) FieldRange {
	switch keyType {
	case DmeUserKey0:
		return FieldRange{Page0, dmeKey01StartRow, 24, 0, 15}
	case DmeUserKey1:
		return FieldRange{Page0, dmeKey01StartRow, 24, 16, 31}
	case DmeUserKey2:
		return FieldRange{Page0, dmeKey23StartRow, 24, 0, 15}
	default:
		return FieldRange{Page0, dmeKey23StartRow, 24, 16, 31}
	}
}

// PPK hashes live on page 1, eight full rows each.
func ppkRange(ppkType PpkType) FieldRange {
	row := ppk0HashStartRow
	switch ppkType {
	case Ppk1:
		row = ppk1HashStartRow
	case Ppk2:
		row = ppk2HashStartRow
	}
	return FieldRange{Page1, row, ppkHashNumRows, 0, ColsPerRow - 1}
}

func ppkCacheOffset(ppkType PpkType) uint32 {
	switch ppkType {
	case Ppk1:
		return CachePpk1HashOffset
	case Ppk2:
		return CachePpk2HashOffset
	default:
		return CachePpk0HashOffset
	}
}

// IVs occupy three consecutive full rows on page 0.
func ivRange(ivType IvType) FieldRange {
	row := metaHeaderIvRow
	switch ivType {
	case BlackIv:
		row = blackIvRow
	case PlmIv:
		row = plmIvRow
	case DataPartitionIv:
		row = dataPartitionIvRow
	}
	return FieldRange{Page0, row, ivNumRows, 0, ColsPerRow - 1}
}

func ivCacheOffset(ivType IvType) uint32 {
	switch ivType {
	case BlackIv:
		return CacheBlackIvOffset
	case PlmIv:
		return CachePlmIvOffset
	case DataPartitionIv:
		return CacheDataPartitionIvOffset
	default:
		return CacheMetaHeaderIvOffset
	}
}

func pgmAddr(page Page, row, col uint32) uint32 {
	return uint32(page)<<AddrPageShift | row<<AddrRowShift | col<<AddrColumnShift
}

func rdAddr(page Page, row uint32) uint32 {
	return uint32(page)<<AddrPageShift | row<<AddrRowShift
}
