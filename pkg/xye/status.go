// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xye

// Status is the unit state decoded from one validated response frame.
// A new Status replaces the previous one wholesale.
type Status struct {
	Mode     Mode
	ModeByte byte // raw byte 8, kept for unit-specific values
	Fan      FanSpeed
	FanByte  byte // raw byte 9
	Setpoint uint8

	// Sensor bytes as reported by the unit
	InletTemp   uint8 // T1
	CoilATemp   uint8 // T2A
	CoilBTemp   uint8 // T2B
	OutsideTemp uint8 // T3
	Current     uint8 // CurrentAbsent when no sensor

	TimerStart uint8
	TimerStop  uint8

	// Flag bytes are kept raw next to their decoded form so bits outside
	// the named masks survive a re-encode
	ModeFlags     ModeFlags
	ModeFlagsByte byte // raw byte 20
	OpFlags       OpFlags
	OpFlagsByte   byte // raw byte 21
	Fault         FaultCode
	Capabilities  Capabilities
	CapsByte      byte // raw byte 7

	// Destination bytes 3..5
	Destination [3]byte
	// Undocumented bytes 6, 16, 19, 27, 28, 29 in that order
	Reserved [6]byte
}

// SetModeFlags replaces the mode flags and their raw byte.
func (s *Status) SetModeFlags(f ModeFlags) {
	s.ModeFlags = f
	s.ModeFlagsByte = f.Byte()
}

// SetOpFlags replaces the operation flags and their raw byte.
func (s *Status) SetOpFlags(f OpFlags) {
	s.OpFlags = f
	s.OpFlagsByte = f.Byte()
}

// SetCapabilities replaces the capabilities and their raw byte.
func (s *Status) SetCapabilities(c Capabilities) {
	s.Capabilities = c
	s.CapsByte = c.Byte()
}

// CurrentDraw returns the current measurement, or ok=false when the unit
// reports the sensor as absent.
func (s Status) CurrentDraw() (value uint8, ok bool) {
	if s.Current == CurrentAbsent {
		return 0, false
	}
	return s.Current, true
}

// FaultCode combines the error, protection, and CCM flag bytes of a
// response (bytes 22..26).
type FaultCode struct {
	ErrorLow  byte
	ErrorHigh byte
	ProtLow   byte
	ProtHigh  byte
	CCMError  byte
}

// Errors returns the 16-bit error flag word.
func (f FaultCode) Errors() uint16 {
	return uint16(f.ErrorHigh)<<8 | uint16(f.ErrorLow)
}

// Protection returns the 16-bit protection flag word.
func (f FaultCode) Protection() uint16 {
	return uint16(f.ProtHigh)<<8 | uint16(f.ProtLow)
}

// Code packs all five bytes into one value: errors in bits 24..39,
// protection in bits 8..23, CCM error in bits 0..7.
func (f FaultCode) Code() uint64 {
	return uint64(f.Errors())<<24 | uint64(f.Protection())<<8 | uint64(f.CCMError)
}

// Active reports whether any error, protection, or CCM bit is set.
func (f FaultCode) Active() bool {
	return f.Code() != 0
}
