// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xye

import (
	"errors"
	"fmt"
)

// FrameErrorKind classifies why a response frame was rejected.
type FrameErrorKind int

const (
	// FrameMalformed covers wrong length, bad start/end markers, and bad
	// header bytes.
	FrameMalformed FrameErrorKind = iota
	// FrameChecksumMismatch means byte 30 does not match the computed checksum.
	FrameChecksumMismatch
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameMalformed:
		return "malformed"
	case FrameChecksumMismatch:
		return "checksum mismatch"
	default:
		return "unknown"
	}
}

// Sentinel errors, matched with errors.Is.
var (
	ErrMalformed        = errors.New("xye: malformed frame")
	ErrChecksumMismatch = errors.New("xye: checksum mismatch")
	ErrLinkTimeout      = errors.New("xye: response timeout")
	ErrInvalidIntent    = errors.New("xye: invalid command intent")
	ErrShortWrite       = errors.New("xye: short write")
)

// FrameError describes a rejected response frame.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
}

// Error implements the error interface
func (e *FrameError) Error() string {
	return fmt.Sprintf("xye: %s: %s", e.Kind, e.Msg)
}

// Is reports whether target is the sentinel for this error's kind.
func (e *FrameError) Is(target error) bool {
	switch e.Kind {
	case FrameMalformed:
		return target == ErrMalformed
	case FrameChecksumMismatch:
		return target == ErrChecksumMismatch
	}
	return false
}

func malformed(format string, args ...interface{}) *FrameError {
	return &FrameError{Kind: FrameMalformed, Msg: fmt.Sprintf(format, args...)}
}
