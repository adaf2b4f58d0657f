// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xye

import "fmt"

// DecodeResponse validates a response frame and decodes it into a Status.
//
// Checks run in this order: length (ErrMalformed), checksum over bytes
// 0..29 (ErrChecksumMismatch), then start/end markers and header bytes 0..2
// (ErrMalformed). Destination bytes 3..5 are not checked. The input is not
// modified.
func DecodeResponse(data []byte) (Status, error) {
	if len(data) != ResponseLen {
		return Status{}, malformed("length %d, expected %d", len(data), ResponseLen)
	}

	if want := Checksum(data); data[recChecksum] != want {
		return Status{}, &FrameError{
			Kind: FrameChecksumMismatch,
			Msg:  fmt.Sprintf("expected 0x%02X, got 0x%02X", want, data[recChecksum]),
		}
	}

	if data[0] != StartByte {
		return Status{}, malformed("start byte 0x%02X", data[0])
	}
	if data[recEnd] != EndByte {
		return Status{}, malformed("end byte 0x%02X", data[recEnd])
	}
	if data[recType] != RespType {
		return Status{}, malformed("response type 0x%02X", data[recType])
	}
	if data[recDirection] != responseDirection {
		return Status{}, malformed("direction byte 0x%02X", data[recDirection])
	}

	s := Status{
		Mode:          DecodeMode(data[recMode]),
		ModeByte:      data[recMode],
		Fan:           DecodeFanSpeed(data[recFan]),
		FanByte:       data[recFan],
		Setpoint:      data[recTemp],
		InletTemp:     data[recInlet],
		CoilATemp:     data[recCoilA],
		CoilBTemp:     data[recCoilB],
		OutsideTemp:   data[recOutside],
		Current:       data[recCurrent],
		TimerStart:    data[recTimerStart],
		TimerStop:     data[recTimerStop],
		ModeFlags:     DecodeModeFlags(data[recModeFlags]),
		ModeFlagsByte: data[recModeFlags],
		OpFlags:       DecodeOpFlags(data[recOpFlags]),
		OpFlagsByte:   data[recOpFlags],
		Fault: FaultCode{
			ErrorLow:  data[recErrLow],
			ErrorHigh: data[recErrHigh],
			ProtLow:   data[recProtLow],
			ProtHigh:  data[recProtHigh],
			CCMError:  data[recCCMErr],
		},
		Capabilities: DecodeCapabilities(data[recCaps]),
		CapsByte:     data[recCaps],
	}
	copy(s.Destination[:], data[recDestStart:recDestStart+3])
	s.Reserved = [6]byte{
		data[recUnknown6],
		data[recUnknown16],
		data[recUnknown19],
		data[recReserved],
		data[recReserved+1],
		data[recReserved+2],
	}
	return s, nil
}

// ValidateCommandFrame checks the markers and checksum of a 16-byte
// command frame. The simulator uses it to ignore garbage on the bus.
func ValidateCommandFrame(data []byte) error {
	if len(data) != CommandLen {
		return malformed("length %d, expected %d", len(data), CommandLen)
	}
	if data[0] != StartByte || data[sendEnd] != EndByte {
		return malformed("bad markers 0x%02X/0x%02X", data[0], data[sendEnd])
	}
	if data[sendCtrl] != ^data[sendCmdType] {
		return malformed("control byte 0x%02X does not invert type 0x%02X", data[sendCtrl], data[sendCmdType])
	}
	if want := Checksum(data); data[sendChecksum] != want {
		return &FrameError{
			Kind: FrameChecksumMismatch,
			Msg:  fmt.Sprintf("expected 0x%02X, got 0x%02X", want, data[sendChecksum]),
		}
	}
	return nil
}

// DecodeCommandFrame extracts the intent carried by a control frame. Query
// and lock frames return ok=false.
func DecodeCommandFrame(data []byte) (intent CommandIntent, ok bool, err error) {
	if err := ValidateCommandFrame(data); err != nil {
		return CommandIntent{}, false, err
	}
	if data[sendCmdType] != CmdSet {
		return CommandIntent{}, false, nil
	}
	return CommandIntent{
		Mode:     DecodeMode(data[sendMode]),
		Fan:      DecodeFanSpeed(data[sendFan]),
		Setpoint: data[sendTemp],
		Timer1:   data[sendTimer1],
		Timer2:   data[sendTimer2],
	}, true, nil
}
