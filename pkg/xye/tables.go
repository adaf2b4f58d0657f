// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xye

import "strings"

// Mode is an operating mode of the air handler.
type Mode int

// Operating modes
const (
	ModeUnknown Mode = iota
	ModeOff
	ModeAuto
	ModeCool
	ModeDry
	ModeHeat
	ModeFanOnly
)

// Mode wire bytes
const (
	ModeByteOff     = 0x00
	ModeByteAuto    = 0x91
	ModeByteAutoAlt = 0x80 // some units report Auto as 0x80
	ModeByteCool    = 0x88
	ModeByteDry     = 0x82
	ModeByteHeat    = 0x84
	ModeByteFanOnly = 0x81
)

var modeBytes = map[Mode]byte{
	ModeOff:     ModeByteOff,
	ModeAuto:    ModeByteAuto,
	ModeCool:    ModeByteCool,
	ModeDry:     ModeByteDry,
	ModeHeat:    ModeByteHeat,
	ModeFanOnly: ModeByteFanOnly,
}

var modeNames = map[Mode]string{
	ModeUnknown: "Unknown",
	ModeOff:     "Off",
	ModeAuto:    "Auto",
	ModeCool:    "Cool",
	ModeDry:     "Dry",
	ModeHeat:    "Heat",
	ModeFanOnly: "Fan Only",
}

// DecodeMode maps a wire byte to a Mode. Unrecognized bytes decode to
// ModeUnknown.
func DecodeMode(b byte) Mode {
	switch b {
	case ModeByteOff:
		return ModeOff
	case ModeByteAuto, ModeByteAutoAlt:
		return ModeAuto
	case ModeByteCool:
		return ModeCool
	case ModeByteDry:
		return ModeDry
	case ModeByteHeat:
		return ModeHeat
	case ModeByteFanOnly:
		return ModeFanOnly
	default:
		return ModeUnknown
	}
}

// Byte returns the wire encoding for the mode. ok is false for ModeUnknown.
func (m Mode) Byte() (b byte, ok bool) {
	b, ok = modeBytes[m]
	return b, ok
}

func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return "Unknown"
}

// ParseMode parses a mode name such as "cool" or "fan_only".
func ParseMode(s string) (Mode, bool) {
	switch normalizeName(s) {
	case "off":
		return ModeOff, true
	case "auto":
		return ModeAuto, true
	case "cool":
		return ModeCool, true
	case "dry":
		return ModeDry, true
	case "heat":
		return ModeHeat, true
	case "fanonly", "fan":
		return ModeFanOnly, true
	}
	return ModeUnknown, false
}

// FanSpeed is a fan speed setting.
type FanSpeed int

// Fan speeds
const (
	FanUnknown FanSpeed = iota
	FanAuto
	FanHigh
	FanMedium
	FanMediumLow
	FanLow
)

// Fan wire bytes. Low is 0x04; 0x03 is Medium-Low on units that have it.
const (
	FanByteAuto      = 0x80
	FanByteHigh      = 0x01
	FanByteMedium    = 0x02
	FanByteMediumLow = 0x03
	FanByteLow       = 0x04
)

var fanBytes = map[FanSpeed]byte{
	FanAuto:      FanByteAuto,
	FanHigh:      FanByteHigh,
	FanMedium:    FanByteMedium,
	FanMediumLow: FanByteMediumLow,
	FanLow:       FanByteLow,
}

var fanNames = map[FanSpeed]string{
	FanUnknown:   "Unknown",
	FanAuto:      "Auto",
	FanHigh:      "High",
	FanMedium:    "Medium",
	FanMediumLow: "Medium-Low",
	FanLow:       "Low",
}

// DecodeFanSpeed maps a wire byte to a FanSpeed. Unrecognized bytes decode
// to FanUnknown.
func DecodeFanSpeed(b byte) FanSpeed {
	switch b {
	case FanByteAuto:
		return FanAuto
	case FanByteHigh:
		return FanHigh
	case FanByteMedium:
		return FanMedium
	case FanByteMediumLow:
		return FanMediumLow
	case FanByteLow:
		return FanLow
	default:
		return FanUnknown
	}
}

// Byte returns the wire encoding for the fan speed. ok is false for
// FanUnknown.
func (f FanSpeed) Byte() (b byte, ok bool) {
	b, ok = fanBytes[f]
	return b, ok
}

func (f FanSpeed) String() string {
	if name, ok := fanNames[f]; ok {
		return name
	}
	return "Unknown"
}

// ParseFanSpeed parses a fan speed name such as "high" or "medium-low".
func ParseFanSpeed(s string) (FanSpeed, bool) {
	switch normalizeName(s) {
	case "auto":
		return FanAuto, true
	case "high":
		return FanHigh, true
	case "medium", "med":
		return FanMedium, true
	case "mediumlow", "medlow":
		return FanMediumLow, true
	case "low":
		return FanLow, true
	}
	return FanUnknown, false
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("_", "", "-", "", " ", "").Replace(s)
}

// Mode flag bits (response byte 20)
const (
	ModeFlagNorm    = 0x00
	ModeFlagEco     = 0x01
	ModeFlagAuxHeat = 0x02
	ModeFlagSwing   = 0x04
	ModeFlagVent    = 0x88
)

// Operation flag bits (response byte 21)
const (
	OpFlagWaterPump = 0x04
	OpFlagWaterLock = 0x80
)

// Capability bits (response byte 7)
const (
	CapExtTemp = 0x80
	CapSwing   = 0x10
)

// ModeFlags are the mode modifiers reported in response byte 20.
type ModeFlags struct {
	Eco     bool
	AuxHeat bool
	Swing   bool
	Vent    bool
}

// DecodeModeFlags tests each flag with a bitwise AND. Vent is a two-bit
// combination and requires both bits.
func DecodeModeFlags(b byte) ModeFlags {
	return ModeFlags{
		Eco:     b&ModeFlagEco != 0,
		AuxHeat: b&ModeFlagAuxHeat != 0,
		Swing:   b&ModeFlagSwing != 0,
		Vent:    b&ModeFlagVent == ModeFlagVent,
	}
}

// Byte packs the flags back into their wire representation.
func (f ModeFlags) Byte() byte {
	var b byte
	if f.Eco {
		b |= ModeFlagEco
	}
	if f.AuxHeat {
		b |= ModeFlagAuxHeat
	}
	if f.Swing {
		b |= ModeFlagSwing
	}
	if f.Vent {
		b |= ModeFlagVent
	}
	return b
}

// OpFlags are the operation flags reported in response byte 21.
type OpFlags struct {
	WaterPump bool
	WaterLock bool
}

// DecodeOpFlags decodes response byte 21.
func DecodeOpFlags(b byte) OpFlags {
	return OpFlags{
		WaterPump: b&OpFlagWaterPump != 0,
		WaterLock: b&OpFlagWaterLock != 0,
	}
}

// Byte packs the flags back into their wire representation.
func (f OpFlags) Byte() byte {
	var b byte
	if f.WaterPump {
		b |= OpFlagWaterPump
	}
	if f.WaterLock {
		b |= OpFlagWaterLock
	}
	return b
}

// Capabilities are the unit capabilities reported in response byte 7.
type Capabilities struct {
	ExtTempSensor  bool
	SwingSupported bool
}

// DecodeCapabilities decodes response byte 7.
func DecodeCapabilities(b byte) Capabilities {
	return Capabilities{
		ExtTempSensor:  b&CapExtTemp != 0,
		SwingSupported: b&CapSwing != 0,
	}
}

// Byte packs the capabilities back into their wire representation.
func (c Capabilities) Byte() byte {
	var b byte
	if c.ExtTempSensor {
		b |= CapExtTemp
	}
	if c.SwingSupported {
		b |= CapSwing
	}
	return b
}
