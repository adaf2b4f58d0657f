// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xye

import "fmt"

// CommandFrame is a complete 16-byte master-to-unit frame.
type CommandFrame [CommandLen]byte

// ResponseFrame is a complete 32-byte unit-to-master frame.
type ResponseFrame [ResponseLen]byte

// CommandIntent is a desired unit setting produced by the user.
type CommandIntent struct {
	Mode     Mode
	Fan      FanSpeed
	Setpoint uint8 // °F
	Timer1   byte
	Timer2   byte
}

// Validate reports whether the intent can be encoded.
func (c CommandIntent) Validate() error {
	if _, ok := c.Mode.Byte(); !ok {
		return fmt.Errorf("%w: mode %s has no wire encoding", ErrInvalidIntent, c.Mode)
	}
	if _, ok := c.Fan.Byte(); !ok {
		return fmt.Errorf("%w: fan %s has no wire encoding", ErrInvalidIntent, c.Fan)
	}
	return nil
}

// Bytes returns the frame as a slice.
func (f CommandFrame) Bytes() []byte {
	return f[:]
}

// CommandType returns byte 1 of the frame.
func (f CommandFrame) CommandType() byte {
	return f[sendCmdType]
}

// IsPoll reports whether the frame is a status query.
func (f CommandFrame) IsPoll() bool {
	return f[sendCmdType] == CmdQuery
}

// Bytes returns the frame as a slice.
func (f ResponseFrame) Bytes() []byte {
	return f[:]
}

// newCommandFrame fills the fixed header and trailer for a command type.
// Byte 13 carries the inverted command type.
func newCommandFrame(cmdType byte) CommandFrame {
	var f CommandFrame
	f[0] = StartByte
	f[sendCmdType] = cmdType
	f[sendUnitID] = unitMarker
	f[sendCtrl] = ^cmdType
	f[sendEnd] = EndByte
	return f
}

func (f *CommandFrame) seal() {
	f[sendChecksum] = Checksum(f[:])
}

// EncodeCommand builds a control frame (type 0xC3) carrying the intent.
func EncodeCommand(intent CommandIntent) (CommandFrame, error) {
	if err := intent.Validate(); err != nil {
		return CommandFrame{}, err
	}
	modeByte, _ := intent.Mode.Byte()
	fanByte, _ := intent.Fan.Byte()

	f := newCommandFrame(CmdSet)
	f[sendFan] = fanByte
	f[sendTemp] = intent.Setpoint
	f[sendTimer1] = intent.Timer1
	f[sendTimer2] = intent.Timer2
	f[sendMode] = modeByte
	f.seal()
	return f, nil
}

// EncodePoll builds a status query frame (type 0xC0). Query frames carry
// no intent fields.
func EncodePoll() CommandFrame {
	f := newCommandFrame(CmdQuery)
	f.seal()
	return f
}

// EncodeLock builds a keypad lock (0xCC) or unlock (0xCD) frame.
func EncodeLock(locked bool) CommandFrame {
	cmdType := byte(CmdUnlock)
	if locked {
		cmdType = CmdLock
	}
	f := newCommandFrame(cmdType)
	f.seal()
	return f
}

// EncodeFrame builds either a poll frame (isPoll) or a control frame from
// the intent.
func EncodeFrame(intent CommandIntent, isPoll bool) (CommandFrame, error) {
	if isPoll {
		return EncodePoll(), nil
	}
	return EncodeCommand(intent)
}

// EncodeResponse builds the 32-byte response a unit in state s would send.
// Every field DecodeResponse reads is written at the same offset.
func EncodeResponse(s Status) ResponseFrame {
	var f ResponseFrame
	f[0] = StartByte
	f[recType] = RespType
	f[recDirection] = responseDirection
	copy(f[recDestStart:recDestStart+3], s.Destination[:])
	f[recCaps] = s.CapsByte
	f[recMode] = s.ModeByte
	f[recFan] = s.FanByte
	f[recTemp] = s.Setpoint
	f[recInlet] = s.InletTemp
	f[recCoilA] = s.CoilATemp
	f[recCoilB] = s.CoilBTemp
	f[recOutside] = s.OutsideTemp
	f[recCurrent] = s.Current
	f[recTimerStart] = s.TimerStart
	f[recTimerStop] = s.TimerStop
	f[recModeFlags] = s.ModeFlagsByte
	f[recOpFlags] = s.OpFlagsByte
	f[recErrLow] = s.Fault.ErrorLow
	f[recErrHigh] = s.Fault.ErrorHigh
	f[recProtLow] = s.Fault.ProtLow
	f[recProtHigh] = s.Fault.ProtHigh
	f[recCCMErr] = s.Fault.CCMError

	f[recUnknown6] = s.Reserved[0]
	f[recUnknown16] = s.Reserved[1]
	f[recUnknown19] = s.Reserved[2]
	copy(f[recReserved:recReserved+3], s.Reserved[3:6])

	f[recEnd] = EndByte
	f[recChecksum] = Checksum(f[:])
	return f
}

// NewStatus returns a Status with mode and fan bytes set from their
// semantic values, for building responses.
func NewStatus(mode Mode, fan FanSpeed, setpoint uint8) Status {
	modeByte, _ := mode.Byte()
	fanByte, _ := fan.Byte()
	return Status{
		Mode:     DecodeMode(modeByte),
		ModeByte: modeByte,
		Fan:      DecodeFanSpeed(fanByte),
		FanByte:  fanByte,
		Setpoint: setpoint,
		Current:  CurrentAbsent,
	}
}
