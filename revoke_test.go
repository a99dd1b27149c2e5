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

type revokeSuite struct {
	deviceTestBase
}

var _ = Suite(&revokeSuite{})

func (s *revokeSuite) TestRevocationIDAddr(c *C) {
	for _, t := range []struct {
		id  uint32
		row uint32
		col uint32
	}{
		{1, RevokeIDLowBaseRow, 0},
		{8, RevokeIDLowBaseRow, 7},
		{9, RevokeIDLowBaseRow + 1, 0},
		{128, RevokeIDLowBaseRow + 15, 7},
		{129, RevokeIDHighBaseRow, 0},
		{256, RevokeIDHighBaseRow + 15, 7},
	} {
		row, col := RevocationIDAddr(t.id)
		c.Check(row, Equals, t.row, Commentf("id %d", t.id))
		c.Check(col, Equals, t.col, Commentf("id %d", t.id))
	}
}

func (s *revokeSuite) TestOffChipRevokeIDAddr(c *C) {
	for _, t := range []struct {
		id  uint32
		row uint32
		col uint32
	}{
		{1, OffChipRevokeRow, 0},
		{32, OffChipRevokeRow, 31},
		{33, OffChipRevokeRow + 1, 0},
		{256, OffChipRevokeRow + 7, 31},
	} {
		row, col := OffChipRevokeIDAddr(t.id)
		c.Check(row, Equals, t.row, Commentf("id %d", t.id))
		c.Check(col, Equals, t.col, Commentf("id %d", t.id))
	}
}

func (s *revokeSuite) TestWriteRevocationID(c *C) {
	c.Assert(s.dev.WriteRevocationID(false, 5), IsNil)

	c.Check(s.sim.ProgramLog, DeepEquals, []FuseAddress{
		{Page: Page0, Row: RevokeIDLowBaseRow, Column: 4},
	})
	c.Check(s.sim.Locked(), Equals, true)

	revoked, err := s.dev.IsRevoked(5)
	c.Assert(err, IsNil)
	c.Check(revoked, Equals, false)

	s.sim.SyncCache()

	revoked, err = s.dev.IsRevoked(5)
	c.Assert(err, IsNil)
	c.Check(revoked, Equals, true)

	revoked, err = s.dev.IsRevoked(6)
	c.Assert(err, IsNil)
	c.Check(revoked, Equals, false)
}

func (s *revokeSuite) TestWriteRevocationIDHighBank(c *C) {
	c.Assert(s.dev.WriteRevocationID(false, 200), IsNil)

	c.Check(s.sim.ProgramLog, DeepEquals, []FuseAddress{
		{Page: Page0, Row: RevokeIDHighBaseRow + 8, Column: 7},
	})
}

func (s *revokeSuite) TestWriteRevocationIDAgain(c *C) {
	c.Assert(s.dev.WriteRevocationID(false, 17), IsNil)
	c.Assert(s.dev.WriteRevocationID(false, 17), IsNil)

	row, col := RevocationIDAddr(17)
	c.Check(s.sim.FuseBit(Page0, row, col), Equals, true)
}

func (s *revokeSuite) TestWriteRevocationIDOutOfRange(c *C) {
	for _, id := range []uint32{0, MaxRevocationIDs + 1} {
		err := s.dev.WriteRevocationID(false, id)
		c.Check(err, testutil.ErrorIs, ErrInvalidParam, Commentf("id %d", id))
	}
	c.Check(s.dev.WriteRevocationID(false, 257), ErrorMatches, "cannot revoke out of range ID 257: invalid parameter")
	c.Check(s.sim.UnlockCount, Equals, 0)
}

func (s *revokeSuite) TestWriteRevocationIDProgramFailure(c *C) {
	s.sim.FailProgramAt = 1

	err := s.dev.WriteRevocationID(false, 42)
	checkFieldError(c, err, FieldRevocationID, 42, StageProgramming, ErrProgramFailed)
	c.Check(s.sim.Locked(), Equals, true)
}

func (s *revokeSuite) TestWriteOffChipRevokeID(c *C) {
	c.Assert(s.dev.WriteOffChipRevokeID(false, 33), IsNil)

	c.Check(s.sim.ProgramLog, DeepEquals, []FuseAddress{
		{Page: Page0, Row: OffChipRevokeRow + 1, Column: 0},
	})

	revoked, err := s.dev.IsOffChipRevoked(33)
	c.Assert(err, IsNil)
	c.Check(revoked, Equals, false)

	s.sim.SyncCache()

	revoked, err = s.dev.IsOffChipRevoked(33)
	c.Assert(err, IsNil)
	c.Check(revoked, Equals, true)
}

func (s *revokeSuite) TestWriteOffChipRevokeIDProgramFailure(c *C) {
	s.sim.FailProgramAt = 1

	err := s.dev.WriteOffChipRevokeID(false, 9)
	checkFieldError(c, err, FieldOffChipRevokeID, 9, StageProgramming, ErrProgramFailed)
}

func (s *revokeSuite) TestWriteOffChipRevokeIDOutOfRange(c *C) {
	for _, id := range []uint32{0, MaxRevocationIDs + 1} {
		err := s.dev.WriteOffChipRevokeID(false, id)
		c.Check(err, testutil.ErrorIs, ErrInvalidParam, Commentf("id %d", id))
	}
	c.Check(s.sim.UnlockCount, Equals, 0)
}

func (s *revokeSuite) TestIsRevokedOutOfRange(c *C) {
	_, err := s.dev.IsRevoked(0)
	c.Check(err, ErrorMatches, "cannot read out of range ID 0: invalid parameter")

	_, err = s.dev.IsOffChipRevoked(MaxRevocationIDs + 1)
	c.Check(err, testutil.ErrorIs, ErrInvalidParam)
}
