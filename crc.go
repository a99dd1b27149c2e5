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

// The controller CRC engine uses the reversed CRC-32C polynomial.
const reversePolynomial uint32 = 0x82f63b78

// CRCs of unprogrammed key fuses. A CRC check against these passes
// whilst the corresponding key has not been programmed.
const (
	AesCrcZeros uint32 = 0x6858a3d5
	UdsCrcZeros uint32 = 0x89bf7319
)

func crcFold(crc, value uint32, nbits int) uint32 {
	for i := 0; i < nbits; i++ {
		if (value^crc)&1 != 0 {
			crc = crc>>1 ^ reversePolynomial
		} else {
			crc >>= 1
		}
		value >>= 1
	}
	return crc
}

// keyCrc computes the CRC the controller CRC engine expects for a key
// made of the given words. The engine folds the words most significant
// word first, following the 32 data bits of each word with 5 bits of
// the word's one-based index, which ties every word to its position in
// the key.
func keyCrc(words []uint32) uint32 {
	var crc uint32
	n := uint32(len(words))
	for i := uint32(0); i < n; i++ {
		crc = crcFold(crc, words[n-1-i], 32)
		crc = crcFold(crc, n-i, 5)
	}
	return crc
}

// AesKeyCrc returns the CRC of an AES or user key as expected by the
// controller CRC check registers. It can be computed away from the
// device and fed to Device.CheckAesKeyCrc to verify a programmed key
// without exposing the key rows.
func AesKeyCrc(key *AesKey) uint32 {
	return keyCrc(key[:])
}

// UdsCrc returns the CRC of the UDS as expected by the controller UDS
// CRC check register.
func UdsCrc(uds *Uds) uint32 {
	return keyCrc(uds[:])
}
