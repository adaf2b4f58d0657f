// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package xye implements the XYE serial protocol spoken by Midea-compatible
// air handlers: 16-byte command frames from the master, 32-byte response
// frames from the unit, exchanged half-duplex at 4800 baud 8N1.
//
// The package provides frame encoding/decoding, checksum validation, a
// single-slot debounced command queue, and a tick-driven link state machine
// that serializes commands and status polls onto an abstract byte channel.
package xye

import "time"

// Protocol framing bytes
const (
	StartByte = 0xAA
	EndByte   = 0x55
)

// Frame sizes
const (
	CommandLen  = 16
	ResponseLen = 32
)

// Link parameters
const (
	DefaultBaud = 4800
	bitsPerByte = 10 // 8N1: start + 8 data + stop
)

// Command types (byte 1 of a command frame)
const (
	CmdQuery  = 0xC0
	CmdSet    = 0xC3
	CmdLock   = 0xCC
	CmdUnlock = 0xCD
)

// Response type (byte 1 of a response frame)
const RespType = 0xC0

// Command frame offsets
const (
	sendCmdType  = 1
	sendUnitID   = 4
	sendFan      = 7
	sendTemp     = 8
	sendTimer1   = 9
	sendTimer2   = 10
	sendMode     = 11
	sendCtrl     = 13
	sendChecksum = 14
	sendEnd      = 15
)

// unitMarker is the unit ID / direction byte of every command frame.
const unitMarker = 0x80

// Response frame offsets
const (
	recType       = 1
	recDirection  = 2
	recDestStart  = 3 // 3..5, accepted permissively
	recUnknown6   = 6
	recCaps       = 7
	recMode       = 8
	recFan        = 9
	recTemp       = 10
	recInlet      = 11 // T1
	recCoilA      = 12 // T2A
	recCoilB      = 13 // T2B
	recOutside    = 14 // T3
	recCurrent    = 15
	recUnknown16  = 16
	recTimerStart = 17
	recTimerStop  = 18
	recUnknown19  = 19
	recModeFlags  = 20
	recOpFlags    = 21
	recErrLow     = 22
	recErrHigh    = 23
	recProtLow    = 24
	recProtHigh   = 25
	recCCMErr     = 26
	recReserved   = 27 // 27..29
	recChecksum   = 30
	recEnd        = 31
)

// responseDirection is the expected byte 2 of a response frame.
const responseDirection = 0x80

// CurrentAbsent is the current-draw byte reported when the unit has no
// current sensor.
const CurrentAbsent = 0xFF

// Link timing defaults
const (
	DefaultTickPeriod      = 10 * time.Millisecond
	DefaultResponseTimeout = 250 * time.Millisecond
	DefaultPollInterval    = time.Second
	DefaultDebounce        = 300 * time.Millisecond
)

// FrameDuration returns the time needed to clock n bytes onto an 8N1 line
// at the given baud rate.
func FrameDuration(n, baud int) time.Duration {
	if baud <= 0 {
		return 0
	}
	return time.Duration(n*bitsPerByte) * time.Second / time.Duration(baud)
}
