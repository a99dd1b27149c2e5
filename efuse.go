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

/*
Package efuse provides a controller for the one-time-programmable eFuse
array of a secure boot SoC subsystem.

Fuse bits are write-once: programming drives an irreversible transition
of a bit from 0 to 1, and nothing in this package (or the underlying
hardware) can reverse it. The package exposes typed writers for the
individual fuse fields (AES and user keys, PPK hashes, IVs, revocation
IDs, DME configuration, UDS, PUF helper data and the various control
words), each of which brackets its hardware access in an unlock,
configure, program, verify and relock sequence.

All register access goes through the narrow RegisterMap interface. The
mmio subpackage implements it over a /dev/mem mapping of the controller
for use on real hardware, and the simulator subpackage implements it
over a software fuse array with write-once semantics for testing. A
Device is bound to one RegisterMap and carries no other state; it is
not safe for concurrent use.
*/
package efuse

// Device provides access to an eFuse controller through the register
// map it was created with.
type Device struct {
	regs RegisterMap
}

// NewDevice returns a Device that accesses the eFuse controller and
// cache register banks through the supplied register map.
func NewDevice(regs RegisterMap) *Device {
	return &Device{regs: regs}
}

// checkEnvMonitor is the integration point for pre-programming
// environmental checks. Temperature and voltage monitoring is SoC
// specific and not wired up here, so programming proceeds regardless
// of the supplied flag. The flag is accepted so that integrations
// which do monitor the environment keep a stable API.
func (d *Device) checkEnvMonitor(disable bool) error {
	// TODO: hook up sysmon temperature and voltage supervision.
	return nil
}

// CacheReloadAndProtect repopulates the mirrored fuse image from the
// array, making fuses programmed in the current power cycle visible to
// the read functions and to the cached precondition checks of the
// writers. Reloading senses every fuse and so carries bit wear; it is
// not meant to be called routinely. The protection fuse programming
// that row zero reserves is not implemented here.
//
// The controller is returned to its locked state on every path.
func (d *Device) CacheReloadAndProtect() (err error) {
	defer func() { err = d.closeAndResolve(err) }()

	if err := d.setupController(modeRead, NormalRead); err != nil {
		return err
	}
	return d.reloadCache()
}
