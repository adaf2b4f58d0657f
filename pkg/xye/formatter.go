// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xye

import (
	"fmt"
	"strings"
)

// FormatStatus formats a decoded status into a human-readable block
func FormatStatus(s Status) string {
	var b strings.Builder

	fmt.Fprintf(&b, "  Mode: %s (0x%02X)\n", s.Mode, s.ModeByte)
	fmt.Fprintf(&b, "  Fan: %s (0x%02X)\n", s.Fan, s.FanByte)
	fmt.Fprintf(&b, "  Setpoint: %d°F\n", s.Setpoint)
	fmt.Fprintf(&b, "  Temps: T1=%d T2A=%d T2B=%d T3=%d\n", s.InletTemp, s.CoilATemp, s.CoilBTemp, s.OutsideTemp)

	if current, ok := s.CurrentDraw(); ok {
		fmt.Fprintf(&b, "  Current: %d\n", current)
	} else {
		b.WriteString("  Current: n/a\n")
	}

	if s.TimerStart != 0 || s.TimerStop != 0 {
		fmt.Fprintf(&b, "  Timers: start=0x%02X stop=0x%02X\n", s.TimerStart, s.TimerStop)
	}

	if flags := FormatModeFlags(s.ModeFlags); flags != "" {
		fmt.Fprintf(&b, "  Flags: %s\n", flags)
	}
	if s.OpFlags.WaterPump || s.OpFlags.WaterLock {
		fmt.Fprintf(&b, "  Water: pump=%t lock=%t\n", s.OpFlags.WaterPump, s.OpFlags.WaterLock)
	}
	if s.Capabilities.ExtTempSensor || s.Capabilities.SwingSupported {
		fmt.Fprintf(&b, "  Capabilities: ext_temp=%t swing=%t\n", s.Capabilities.ExtTempSensor, s.Capabilities.SwingSupported)
	}
	if s.Fault.Active() {
		fmt.Fprintf(&b, "  Fault: %s\n", FormatFault(s.Fault))
	}

	return b.String()
}

// FormatStatusLine formats the key fields of a status on one line
func FormatStatusLine(s Status) string {
	line := fmt.Sprintf("mode=%s fan=%s setpoint=%d T1=%d", s.Mode, s.Fan, s.Setpoint, s.InletTemp)
	if flags := FormatModeFlags(s.ModeFlags); flags != "" {
		line += " flags=" + flags
	}
	if s.Fault.Active() {
		line += " fault=" + FormatFault(s.Fault)
	}
	return line
}

// FormatModeFlags returns the set mode flags joined with commas
func FormatModeFlags(f ModeFlags) string {
	var names []string
	if f.Eco {
		names = append(names, "eco")
	}
	if f.AuxHeat {
		names = append(names, "aux-heat")
	}
	if f.Swing {
		names = append(names, "swing")
	}
	if f.Vent {
		names = append(names, "vent")
	}
	return strings.Join(names, ",")
}

// FormatFault formats the error, protection and CCM words in hex
func FormatFault(f FaultCode) string {
	return fmt.Sprintf("E=0x%04X P=0x%04X CCM=0x%02X", f.Errors(), f.Protection(), f.CCMError)
}

// FormatCommandType returns the human-readable name for a command type
func FormatCommandType(cmdType byte) string {
	switch cmdType {
	case CmdQuery:
		return "QUERY"
	case CmdSet:
		return "SET"
	case CmdLock:
		return "LOCK"
	case CmdUnlock:
		return "UNLOCK"
	default:
		return fmt.Sprintf("UNKNOWN_0x%02X", cmdType)
	}
}

// FormatIntent formats a command intent on one line
func FormatIntent(c CommandIntent) string {
	return fmt.Sprintf("mode=%s fan=%s setpoint=%d timer1=0x%02X timer2=0x%02X",
		c.Mode, c.Fan, c.Setpoint, c.Timer1, c.Timer2)
}

// FormatFrame formats raw frame bytes as space-separated hex
func FormatFrame(data []byte) string {
	var b strings.Builder
	for i, v := range data {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%02X", v)
	}
	return b.String()
}
