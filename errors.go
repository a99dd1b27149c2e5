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
	"errors"
	"fmt"
)

var (
	// ErrInvalidParam is returned from any function that is called with
	// an argument that is out of range for the addressed fuses. It is
	// returned before any fuse is touched.
	ErrInvalidParam = errors.New("invalid parameter")

	// ErrProgramTimeout is returned when the controller does not signal
	// completion of a fuse program operation in time.
	ErrProgramTimeout = errors.New("timeout whilst waiting for a fuse program operation")

	// ErrProgramFailed is returned when the controller reports that a
	// fuse program operation failed.
	ErrProgramFailed = errors.New("the controller reported a fuse program failure")

	// ErrReadTimeout is returned when the controller does not signal
	// completion of a fuse row read in time.
	ErrReadTimeout = errors.New("timeout whilst waiting for a fuse read operation")

	// ErrVerifyFailed is returned when a freshly programmed fuse bit
	// does not read back as set.
	ErrVerifyFailed = errors.New("a programmed fuse bit did not read back as set")

	// ErrCrcTimeout is returned when the controller does not complete a
	// key CRC check in time.
	ErrCrcTimeout = errors.New("timeout whilst waiting for a key CRC check")

	// ErrCrcMismatch is returned when a programmed key fails the
	// post-programming CRC check.
	ErrCrcMismatch = errors.New("the programmed key failed the CRC check")

	// ErrCacheParity indicates a parity error in the fuse cache. The
	// cache image cannot be trusted, so operations that consult it
	// refuse to run.
	ErrCacheParity = errors.New("the fuse cache has a parity error")

	// ErrCacheLoadTimeout is returned when a cache reload does not
	// complete in time.
	ErrCacheLoadTimeout = errors.New("timeout whilst waiting for the fuse cache to reload")

	// ErrGlitchDetected is returned when the programming walk ends in an
	// unexpected state, which indicates that the control flow was
	// glitched.
	ErrGlitchDetected = errors.New("program flow glitch detected whilst programming")

	// ErrFuseProtected is returned when the requested fuses are disabled
	// or write protected by previously programmed control bits.
	ErrFuseProtected = errors.New("the fuse is write protected")

	// ErrAlreadyProgrammed is returned when the requested fuses must be
	// blank but are not.
	ErrAlreadyProgrammed = errors.New("the fuse is already programmed")

	// ErrDmeModeSet is returned from Device.WriteDmeUserKey when the DME
	// mode fuses have been programmed, which forbids further DME key
	// writes.
	ErrDmeModeSet = errors.New("DME mode fuses are already programmed")

	// ErrMissingPrerequisite is returned when a write requires other
	// fuses to be programmed first, such as forcing decrypt only boot
	// whilst the AES key or black IV fuses are still blank.
	ErrMissingPrerequisite = errors.New("a prerequisite fuse field is not programmed")

	// ErrUnlockFailed is returned when the controller write lock does
	// not release after writing the unlock passcode.
	ErrUnlockFailed = errors.New("the controller write lock did not release")

	// ErrLockFailed is returned when the controller write lock does not
	// engage again whilst closing the controller.
	ErrLockFailed = errors.New("the controller write lock did not engage")

	// ErrInvalidTbitPattern is returned when the anchor bits in the
	// controller status register read back wrong, meaning the array
	// cannot be sensed reliably.
	ErrInvalidTbitPattern = errors.New("the controller status T-bits are invalid")
)

// Stage identifies the phase of a fuse write at which an error
// occurred.
type Stage uint32

const (
	// StagePreconditions covers the checks performed against the cached
	// fuse image after the controller is set up but before any bit is
	// programmed.
	StagePreconditions Stage = iota

	// StageProgramming covers the program and verify walk itself.
	StageProgramming

	// StagePostVerification covers the cache reload and CRC checks
	// performed after all bits are programmed.
	StagePostVerification
)

// String implements fmt.Stringer.
func (s Stage) String() string {
	switch s {
	case StagePreconditions:
		return "preconditions"
	case StageProgramming:
		return "programming"
	case StagePostVerification:
		return "post verification"
	default:
		return "invalid stage"
	}
}

// Field identifies the logical fuse field addressed by a failed
// operation.
type Field uint32

const (
	FieldNone Field = iota
	FieldAesKey
	FieldUserKey0
	FieldUserKey1
	FieldPpkHash
	FieldIv
	FieldGlitchConfig
	FieldGlitchWrLock
	FieldDecOnly
	FieldRevocationID
	FieldOffChipRevokeID
	FieldSecurityControl
	FieldMiscControl
	FieldSecurityMisc1
	FieldBootEnvControl
	FieldFipsInfo
	FieldUds
	FieldDmeKey
	FieldDmeRevoke
	FieldPlmUpdate
	FieldBootModeDisable
	FieldDmeMode
	FieldPuf
	FieldPufSynData
	FieldPufChash
	FieldPufAux
	FieldPufRoSwap
	FieldPufSecCtrl
)

// String implements fmt.Stringer.
func (f Field) String() string {
	switch f {
	case FieldAesKey:
		return "AES key"
	case FieldUserKey0:
		return "user key 0"
	case FieldUserKey1:
		return "user key 1"
	case FieldPpkHash:
		return "PPK hash"
	case FieldIv:
		return "IV"
	case FieldGlitchConfig:
		return "glitch detector configuration"
	case FieldGlitchWrLock:
		return "glitch detector write lock"
	case FieldDecOnly:
		return "decrypt only"
	case FieldRevocationID:
		return "revocation ID"
	case FieldOffChipRevokeID:
		return "off chip revocation ID"
	case FieldSecurityControl:
		return "security control bits"
	case FieldMiscControl:
		return "misc control bits"
	case FieldSecurityMisc1:
		return "security misc 1 bits"
	case FieldBootEnvControl:
		return "boot environment control bits"
	case FieldFipsInfo:
		return "FIPS info"
	case FieldUds:
		return "UDS"
	case FieldDmeKey:
		return "DME user key"
	case FieldDmeRevoke:
		return "DME revocation"
	case FieldPlmUpdate:
		return "PLM update disable"
	case FieldBootModeDisable:
		return "boot mode disable"
	case FieldDmeMode:
		return "DME mode"
	case FieldPuf:
		return "PUF helper data"
	case FieldPufSynData:
		return "PUF syndrome data"
	case FieldPufChash:
		return "PUF chash"
	case FieldPufAux:
		return "PUF aux"
	case FieldPufRoSwap:
		return "PUF RO swap"
	case FieldPufSecCtrl:
		return "PUF security control bits"
	default:
		return "invalid field"
	}
}

// FieldError is returned from the field write functions on Device when
// an operation fails after parameter validation. It identifies the
// logical field, a sub-index within the field family where one applies
// (the PPK number, IV type, revocation ID, DME key or revocation slot)
// and the stage at which the write failed, and wraps the causing
// error, so that callers can match the cause with errors.Is whilst
// still being able to tell which fuses were involved.
type FieldError struct {
	Field Field
	Index int // sub-index within the field family, -1 when not applicable
	Stage Stage
	err   error
}

func (e *FieldError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("cannot write %v %d (%v): %v", e.Field, e.Index, e.Stage, e.err)
	}
	return fmt.Sprintf("cannot write %v (%v): %v", e.Field, e.Stage, e.err)
}

func (e *FieldError) Unwrap() error {
	return e.err
}

func fieldErr(field Field, index int, stage Stage, err error) *FieldError {
	return &FieldError{Field: field, Index: index, Stage: stage, err: err}
}
