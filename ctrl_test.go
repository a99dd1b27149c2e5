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

type ctrlSuite struct {
	deviceTestBase
}

var _ = Suite(&ctrlSuite{})

func (s *ctrlSuite) TestWriteSecCtrlBits(c *C) {
	bits := SecurityControlJtagDisMask | SecurityControlAesDisMask
	c.Assert(s.dev.WriteSecCtrlBits(true, bits), IsNil)

	c.Check(s.sim.ProgramPulses, Equals, 2)
	c.Check(s.sim.ArrayWord(Page0, SecurityControlRow), Equals, bits)
	c.Check(s.sim.Locked(), Equals, true)

	// The cache is not reloaded by control row writes.
	read, err := s.dev.ReadSecCtrlBits()
	c.Assert(err, IsNil)
	c.Check(read, Equals, uint32(0))

	s.sim.SyncCache()

	read, err = s.dev.ReadSecCtrlBits()
	c.Assert(err, IsNil)
	c.Check(read, Equals, bits)
}

func (s *ctrlSuite) TestWriteSecCtrlBitsIdempotentWhenCached(c *C) {
	bits := SecurityControlJtagDisMask
	c.Assert(s.dev.WriteSecCtrlBits(false, bits), IsNil)
	pulses := s.sim.ProgramPulses

	s.sim.SyncCache()

	c.Assert(s.dev.WriteSecCtrlBits(false, bits), IsNil)
	c.Check(s.sim.ProgramPulses, Equals, pulses)
}

func (s *ctrlSuite) TestWriteSecCtrlBitsStaleCacheRepulses(c *C) {
	// The merge diffs against the cache, not the array, so a repeat
	// before the cache catches up pulses the same fuses again. The
	// array does not change.
	bits := SecurityControlJtagDisMask
	c.Assert(s.dev.WriteSecCtrlBits(false, bits), IsNil)
	c.Assert(s.dev.WriteSecCtrlBits(false, bits), IsNil)

	c.Check(s.sim.ProgramPulses, Equals, 2)
	c.Check(s.sim.ArrayWord(Page0, SecurityControlRow), Equals, bits)
}

func (s *ctrlSuite) TestWriteMiscCtrlBits(c *C) {
	c.Assert(s.dev.WriteMiscCtrlBits(false, 1<<19), IsNil)

	c.Check(s.sim.ProgramLog, DeepEquals, []FuseAddress{
		{Page: Page0, Row: MiscControlRow, Column: 19},
	})
}

func (s *ctrlSuite) TestWriteMisc1Bits(c *C) {
	c.Assert(s.dev.WriteMisc1Bits(false, 1<<6), IsNil)

	c.Check(s.sim.ProgramLog, DeepEquals, []FuseAddress{
		{Page: Page0, Row: SecurityMisc1Row, Column: 6},
	})
}

func (s *ctrlSuite) TestWriteBootEnvCtrlBits(c *C) {
	c.Assert(s.dev.WriteBootEnvCtrlBits(false, 1<<11), IsNil)

	c.Check(s.sim.ProgramLog, DeepEquals, []FuseAddress{
		{Page: Page0, Row: BootEnvControlRow, Column: 11},
	})

	s.sim.SyncCache()

	read, err := s.dev.ReadBootEnvCtrlBits()
	c.Assert(err, IsNil)
	c.Check(read, Equals, uint32(1<<11))
}

func (s *ctrlSuite) TestWriteGlitchConfig(c *C) {
	config := uint32(0x0ead5aa5)
	c.Assert(s.dev.WriteGlitchConfigBits(false, config), IsNil)

	c.Check(s.sim.ProgramPulses, Equals, popcount([]uint32{config}))
	c.Check(s.sim.ArrayWord(Page0, AnlgTrim3Row), Equals, config)
	c.Check(s.sim.FuseBit(Page0, AnlgTrim3Row, GlitchWrLkCol), Equals, false)
}

func (s *ctrlSuite) TestWriteGlitchConfigWithLock(c *C) {
	config := uint32(0x0ead5aa5) | GlitchConfigWrLkMask
	c.Assert(s.dev.WriteGlitchConfigBits(false, config), IsNil)

	c.Check(s.sim.ArrayWord(Page0, AnlgTrim3Row), Equals, config)

	// The lock fuse is burned last, after the trim value is complete.
	log := s.sim.ProgramLog
	c.Assert(len(log) > 0, testutil.IsTrue)
	c.Check(log[len(log)-1], Equals, FuseAddress{Page: Page0, Row: AnlgTrim3Row, Column: GlitchWrLkCol})
}

func (s *ctrlSuite) TestWriteGlitchConfigLockFailure(c *C) {
	// Trim bits 0 and 1, then the lock fuse as the third pulse.
	s.sim.FailProgramAt = 3

	err := s.dev.WriteGlitchConfigBits(false, 0x3|GlitchConfigWrLkMask)
	checkFieldError(c, err, FieldGlitchWrLock, -1, StageProgramming, ErrProgramFailed)
	c.Check(s.sim.FuseBit(Page0, AnlgTrim3Row, GlitchWrLkCol), Equals, false)
}

func (s *ctrlSuite) TestWriteDecOnlyBlankAesKey(c *C) {
	err := s.dev.WriteDecOnly(false)
	checkFieldError(c, err, FieldDecOnly, -1, StagePreconditions, ErrMissingPrerequisite)
	c.Check(err, ErrorMatches, "cannot write decrypt only \\(preconditions\\): AES key fuses are blank: a prerequisite fuse field is not programmed")
	c.Check(s.sim.ProgramPulses, Equals, 0)
}

func (s *ctrlSuite) TestWriteDecOnlyBlankBlackIv(c *C) {
	key := AesKey{1, 2, 3, 4, 5, 6, 7, 8}
	c.Assert(s.dev.WriteAesKey(KeyTypeAes, &key), IsNil)

	// The black IV was programmed but the cache has not picked it up,
	// and the prerequisite check trusts the cache.
	iv := Iv{1, 2, 3}
	c.Assert(s.dev.WriteIv(BlackIv, &iv), IsNil)

	err := s.dev.WriteDecOnly(false)
	checkFieldError(c, err, FieldDecOnly, -1, StagePreconditions, ErrMissingPrerequisite)
	c.Check(err, ErrorMatches, "cannot write decrypt only \\(preconditions\\): black IV fuses are blank: a prerequisite fuse field is not programmed")
}

func (s *ctrlSuite) TestWriteDecOnly(c *C) {
	key := AesKey{1, 2, 3, 4, 5, 6, 7, 8}
	c.Assert(s.dev.WriteAesKey(KeyTypeAes, &key), IsNil)

	iv := Iv{1, 2, 3}
	c.Assert(s.dev.WriteIv(BlackIv, &iv), IsNil)
	s.sim.SyncCache()

	c.Assert(s.dev.WriteDecOnly(false), IsNil)

	c.Check(s.sim.ArrayWord(Page0, SecurityMisc0Row), Equals, SecurityMisc0DecOnlyMask)

	s.sim.SyncCache()

	read, err := s.dev.ReadDecOnly()
	c.Assert(err, IsNil)
	c.Check(read, Equals, SecurityMisc0DecOnlyMask)
}

func (s *ctrlSuite) TestWriteBootModeDisable(c *C) {
	c.Assert(s.dev.WriteBootModeDisable(false, 0x8001), IsNil)

	c.Check(s.sim.ProgramLog, DeepEquals, []FuseAddress{
		{Page: Page0, Row: BootModeDisableRow, Column: 0},
		{Page: Page0, Row: BootModeDisableRow, Column: 15},
	})

	s.sim.SyncCache()

	read, err := s.dev.ReadBootModeDisable()
	c.Assert(err, IsNil)
	c.Check(read, Equals, uint32(0x8001))
}

func (s *ctrlSuite) TestWriteBootModeDisableOutOfRange(c *C) {
	err := s.dev.WriteBootModeDisable(false, 0x10001)
	c.Check(err, testutil.ErrorIs, ErrInvalidParam)
	c.Check(err, ErrorMatches, "cannot disable unknown boot modes 0x10000: invalid parameter")
	c.Check(s.sim.UnlockCount, Equals, 0)
}

func (s *ctrlSuite) TestWriteDisableInplacePlmUpdate(c *C) {
	c.Assert(s.dev.WriteDisableInplacePlmUpdate(false), IsNil)

	c.Check(s.sim.ProgramLog, DeepEquals, []FuseAddress{
		{Page: Page0, Row: PlmUpdateRow, Column: PlmUpdateCol},
	})

	// Burning the same fuse again is harmless.
	c.Assert(s.dev.WriteDisableInplacePlmUpdate(false), IsNil)
	c.Check(s.sim.FuseBit(Page0, PlmUpdateRow, PlmUpdateCol), Equals, true)
}
