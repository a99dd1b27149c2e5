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

// Export constants for testing
const (
	AnlgTrim3Row        = anlgTrim3Row
	SecurityControlRow  = securityControlRow
	MiscControlRow      = miscControlRow
	SecurityMisc0Row    = securityMisc0Row
	SecurityMisc1Row    = securityMisc1Row
	BootEnvControlRow   = bootEnvControlRow
	DmeFipsRow          = dmeFipsRow
	IpDisableRow        = ipDisableRow
	PlmUpdateRow        = plmUpdateRow
	BootModeDisableRow  = bootModeDisableRow
	DmeRevoke01Row      = dmeRevoke01Row
	DmeRevoke23Row      = dmeRevoke23Row
	MetaHeaderIvRow     = metaHeaderIvRow
	BlackIvRow          = blackIvRow
	RevokeIDLowBaseRow  = revokeIDLowBaseRow
	RevokeIDHighBaseRow = revokeIDHighBaseRow
	OffChipRevokeRow    = offChipRevokeRow
	AesKeyStartRow      = aesKeyStartRow
	DmeKey01StartRow    = dmeKey01StartRow
	DmeKey23StartRow    = dmeKey23StartRow
	UdsLowStartRow      = udsLowStartRow
	UdsHighStartRow     = udsHighStartRow
	PufSynPage0Row      = pufSynPage0Row
	PufSynPage1Row      = pufSynPage1Row
	PufChashRow         = pufChashRow
	PufEccPufCtrlRow    = pufEccPufCtrlRow
	PufRoSwapRow        = pufRoSwapRow
	Ppk0HashStartRow    = ppk0HashStartRow
	Ppk2HashStartRow    = ppk2HashStartRow

	GlitchWrLkCol          = glitchWrLkCol
	PlmUpdateCol           = plmUpdateCol
	FipsModeColStart       = fipsModeColStart
	FipsVersionCol0        = fipsVersionCol0
	PufEccCtrlRegisDisCol  = pufEccCtrlRegisDisCol
	PufEccCtrlHdInvalidCol = pufEccCtrlHdInvalidCol
	PufEccCtrlRegenDisCol  = pufEccCtrlRegenDisCol

	PpkHashNumRows     = ppkHashNumRows
	IvNumRows          = ivNumRows
	PufSynPage0NumRows = pufSynPage0NumRows
	PufSynPage1NumRows = pufSynPage1NumRows
)

// Export variables and unexported functions for testing
var (
	RevocationIDAddr    = revocationIDAddr
	OffChipRevokeIDAddr = offChipRevokeIDAddr
	DmeRevokeAddr       = dmeRevokeAddr
	PgmAddr             = pgmAddr
	RdAddr              = rdAddr
	IvRangeOf           = ivRange
	PpkRangeOf          = ppkRange
)

func (d *Device) ProgramAndVerifyRange(r FieldRange, data []uint32, skipVerify bool) error {
	return d.programAndVerifyRange(r, data, skipVerify)
}

func (d *Device) ComputeProgrammableBits(cacheOffset uint32, req []uint32) ([]uint32, error) {
	return d.computeProgrammableBits(cacheOffset, req)
}

func (d *Device) OpenProgrammingSession() error {
	return d.setupController(modeProgram, MarginRead2)
}

func (d *Device) CloseController() error {
	return d.closeController()
}
