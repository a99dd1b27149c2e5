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

package efuse_test

import (
	. "gopkg.in/check.v1"

	. "github.com/canonical/go-efuse"
	"github.com/canonical/go-efuse/internal/testutil"
)

type pufSuite struct {
	deviceTestBase
}

var _ = Suite(&pufSuite{})

func (s *pufSuite) TestWritePuf(c *C) {
	hd := &PufHelperData{
		ProgramHelperData: true,
		Chash:             0xdeadbeef,
		Aux:               0x00123456,
		RoSwap:            0x55aa55aa,
		SecCtrlBits:       PufRegisDisMask,
	}
	for i := range hd.SynData {
		hd.SynData[i] = uint32(i)
	}
	c.Assert(s.dev.WritePuf(hd), IsNil)

	expected := popcount(hd.SynData[:]) + popcount([]uint32{hd.Chash, hd.Aux, hd.RoSwap}) + 1
	c.Check(s.sim.ProgramPulses, Equals, expected)

	// The syndrome data spills from the end of page 0 into page 1.
	c.Check(s.sim.ArrayWord(Page0, PufSynPage0Row), Equals, hd.SynData[0])
	c.Check(s.sim.ArrayWord(Page0, PufSynPage0Row+PufSynPage0NumRows-1), Equals, hd.SynData[PufSynPage0NumRows-1])
	c.Check(s.sim.ArrayWord(Page1, PufSynPage1Row), Equals, hd.SynData[PufSynPage0NumRows])
	c.Check(s.sim.ArrayWord(Page1, PufSynPage1Row+PufSynPage1NumRows-1), Equals, hd.SynData[PufSynDataWords-1])

	c.Check(s.sim.ArrayWord(Page0, PufChashRow), Equals, hd.Chash)
	c.Check(s.sim.ArrayWord(Page0, PufEccPufCtrlRow), Equals, hd.Aux|PufEccCtrlRegisDisMask)
	c.Check(s.sim.ArrayWord(Page0, PufRoSwapRow), Equals, hd.RoSwap)

	c.Check(s.sim.Locked(), Equals, true)
}

func (s *pufSuite) TestWritePufAuxMasked(c *C) {
	// Only the low 24 aux bits are fuses. The rest of the register
	// value is dropped rather than burned into the control columns.
	hd := &PufHelperData{
		ProgramHelperData: true,
		Aux:               0xff123456,
	}
	c.Assert(s.dev.WritePuf(hd), IsNil)

	c.Check(s.sim.ArrayWord(Page0, PufEccPufCtrlRow), Equals, uint32(0x123456))
	c.Check(s.sim.ProgramPulses, Equals, popcount([]uint32{0x123456}))
}

func (s *pufSuite) TestWritePufSecCtrlOnly(c *C) {
	hd := &PufHelperData{SecCtrlBits: PufRegenDisMask}
	c.Assert(s.dev.WritePuf(hd), IsNil)

	c.Check(s.sim.ProgramLog, DeepEquals, []FuseAddress{
		{Page: Page0, Row: PufEccPufCtrlRow, Column: PufEccCtrlRegenDisCol},
	})
	c.Check(s.sim.ArrayWord(Page0, PufSynPage0Row), Equals, uint32(0))
}

func (s *pufSuite) TestWritePufSecCtrlAll(c *C) {
	hd := &PufHelperData{SecCtrlBits: PufRegisDisMask | PufHdInvalidMask | PufRegenDisMask}
	c.Assert(s.dev.WritePuf(hd), IsNil)

	c.Check(s.sim.ProgramLog, DeepEquals, []FuseAddress{
		{Page: Page0, Row: PufEccPufCtrlRow, Column: PufEccCtrlRegisDisCol},
		{Page: Page0, Row: PufEccPufCtrlRow, Column: PufEccCtrlHdInvalidCol},
		{Page: Page0, Row: PufEccPufCtrlRow, Column: PufEccCtrlRegenDisCol},
	})
}

func (s *pufSuite) TestWritePufSecCtrlOnlySkipsHelperChecks(c *C) {
	// Control fuses can still be programmed once helper data exists.
	s.sim.SetFuse(Page0, PufChashRow, 5)
	s.sim.SyncCache()

	hd := &PufHelperData{SecCtrlBits: PufHdInvalidMask}
	c.Assert(s.dev.WritePuf(hd), IsNil)
}

func (s *pufSuite) TestWritePufUnknownSecCtrlBits(c *C) {
	hd := &PufHelperData{SecCtrlBits: PufRegisDisMask | 1<<3}
	err := s.dev.WritePuf(hd)
	c.Check(err, testutil.ErrorIs, ErrInvalidParam)
	c.Check(err, ErrorMatches, "cannot program unknown PUF control bits 0x8: invalid parameter")
	c.Check(s.sim.UnlockCount, Equals, 0)
}

func (s *pufSuite) TestWritePufNil(c *C) {
	err := s.dev.WritePuf(nil)
	c.Check(err, testutil.ErrorIs, ErrInvalidParam)
	c.Check(err, ErrorMatches, "cannot write PUF helper data without data: invalid parameter")
	c.Check(s.sim.UnlockCount, Equals, 0)
}

func (s *pufSuite) TestWritePufDisabled(c *C) {
	s.sim.SetFuse(Page0, PufEccPufCtrlRow, 28)
	s.sim.SyncCache()

	hd := &PufHelperData{SecCtrlBits: PufRegenDisMask}
	err := s.dev.WritePuf(hd)
	checkFieldError(c, err, FieldPuf, -1, StagePreconditions, ErrFuseProtected)
	c.Check(err, ErrorMatches, "cannot write PUF helper data \\(preconditions\\): the fuse is write protected")

	c.Check(s.sim.ProgramPulses, Equals, 0)
	c.Check(s.sim.UnlockCount, Equals, 1)
	c.Check(s.sim.LockCount, Equals, 1)
}

func (s *pufSuite) TestWritePufSyndromeLocked(c *C) {
	s.sim.SetFuse(Page0, PufEccPufCtrlRow, 27)
	s.sim.SyncCache()

	hd := &PufHelperData{ProgramHelperData: true}
	err := s.dev.WritePuf(hd)
	checkFieldError(c, err, FieldPuf, -1, StagePreconditions, ErrFuseProtected)
}

func (s *pufSuite) TestWritePufChashProgrammed(c *C) {
	s.sim.SetFuse(Page0, PufChashRow, 5)
	s.sim.SyncCache()

	hd := &PufHelperData{ProgramHelperData: true}
	err := s.dev.WritePuf(hd)
	checkFieldError(c, err, FieldPufChash, -1, StagePreconditions, ErrAlreadyProgrammed)
	c.Check(s.sim.ProgramPulses, Equals, 0)
}

func (s *pufSuite) TestWritePufAuxProgrammed(c *C) {
	s.sim.SetFuse(Page0, PufEccPufCtrlRow, 0)
	s.sim.SyncCache()

	hd := &PufHelperData{ProgramHelperData: true}
	err := s.dev.WritePuf(hd)
	checkFieldError(c, err, FieldPufAux, -1, StagePreconditions, ErrAlreadyProgrammed)
}

func (s *pufSuite) TestWritePufSynProgrammedPage0(c *C) {
	s.sim.SetFuse(Page0, PufSynPage0Row+24, 3)
	s.sim.SyncCache()

	hd := &PufHelperData{ProgramHelperData: true}
	err := s.dev.WritePuf(hd)
	checkFieldError(c, err, FieldPufSynData, -1, StagePreconditions, ErrAlreadyProgrammed)
}

func (s *pufSuite) TestWritePufSynProgrammedPage1(c *C) {
	s.sim.SetFuse(Page1, PufSynPage1Row+30, 3)
	s.sim.SyncCache()

	hd := &PufHelperData{ProgramHelperData: true}
	err := s.dev.WritePuf(hd)
	checkFieldError(c, err, FieldPufSynData, -1, StagePreconditions, ErrAlreadyProgrammed)
}

func (s *pufSuite) TestWritePufRoSwapProgrammedDoesNotBlock(c *C) {
	// The RO swap row is tuning rather than helper data and a previous
	// value does not reject a registration.
	s.sim.SetFuse(Page0, PufRoSwapRow, 1)
	s.sim.SyncCache()

	hd := &PufHelperData{
		ProgramHelperData: true,
		RoSwap:            0x2,
	}
	c.Assert(s.dev.WritePuf(hd), IsNil)
	c.Check(s.sim.ArrayWord(Page0, PufRoSwapRow), Equals, uint32(0x2))
}
