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
)

type layoutSuite struct{}

var _ = Suite(&layoutSuite{})

func (s *layoutSuite) TestFieldRangeBits(c *C) {
	c.Check(FieldRange{Page0, 0, 1, 0, 31}.Bits(), Equals, uint32(32))
	c.Check(FieldRange{Page0, 0, 2, 0, 15}.Bits(), Equals, uint32(32))
	c.Check(FieldRange{Page0, 64, 32, 4, 7}.Bits(), Equals, uint32(128))
	c.Check(FieldRange{Page1, 10, 1, 5, 5}.Bits(), Equals, uint32(1))
}

func (s *layoutSuite) TestKeyRangesBits(c *C) {
	for _, keyType := range []KeyType{KeyTypeAes, KeyTypeUser0, KeyTypeUser1} {
		var total uint32
		for _, r := range KeyRanges(keyType) {
			c.Check(r.Page, Equals, Page0)
			total += r.Bits()
		}
		c.Check(total, Equals, uint32(256), Commentf("key type %v", keyType))
	}

	c.Check(KeyRanges(KeyType(99)), IsNil)
}

func (s *layoutSuite) TestKeyRangesRows(c *C) {
	c.Check(KeyRanges(KeyTypeAes)[0].StartRow, Equals, AesKeyStartRow)
	c.Check(KeyRanges(KeyTypeUser0)[0].StartRow, Equals, uint32(96))
	c.Check(KeyRanges(KeyTypeUser1)[0].StartRow, Equals, uint32(112))
}

func (s *layoutSuite) TestUdsRangesBits(c *C) {
	var total uint32
	for _, r := range UdsRanges() {
		c.Check(r.Page, Equals, Page0)
		total += r.Bits()
	}
	c.Check(total, Equals, uint32(384))
}

func (s *layoutSuite) TestIvRanges(c *C) {
	for _, t := range []struct {
		ivType IvType
		row    uint32
	}{
		{MetaHeaderIv, MetaHeaderIvRow},
		{BlackIv, BlackIvRow},
		{PlmIv, 18},
		{DataPartitionIv, 21},
	} {
		r := IvRangeOf(t.ivType)
		c.Check(r, DeepEquals, FieldRange{Page0, t.row, IvNumRows, 0, 31})
		c.Check(r.Bits(), Equals, uint32(96))
	}
}

func (s *layoutSuite) TestPpkRanges(c *C) {
	for _, t := range []struct {
		ppkType PpkType
		row     uint32
	}{
		{Ppk0, Ppk0HashStartRow},
		{Ppk1, 72},
		{Ppk2, Ppk2HashStartRow},
	} {
		r := PpkRangeOf(t.ppkType)
		c.Check(r, DeepEquals, FieldRange{Page1, t.row, PpkHashNumRows, 0, 31})
		c.Check(r.Bits(), Equals, uint32(256))
	}
}

func (s *layoutSuite) TestPgmAddrPacking(c *C) {
	c.Check(PgmAddr(Page0, 0, 0), Equals, uint32(0))
	c.Check(PgmAddr(Page0, 0, 31), Equals, uint32(0x1f))
	c.Check(PgmAddr(Page0, 255, 0), Equals, uint32(255<<5))
	c.Check(PgmAddr(Page2, 255, 31), Equals, uint32(0x5fff))
	c.Check(PgmAddr(Page1, 1, 1), Equals, uint32(1<<13|1<<5|1))
}

func (s *layoutSuite) TestRdAddrPacking(c *C) {
	c.Check(RdAddr(Page0, 0), Equals, uint32(0))
	c.Check(RdAddr(Page1, 128), Equals, uint32(1<<13|128<<5))
	c.Check(RdAddr(Page2, 255), Equals, uint32(2<<13|255<<5))
}
