// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xye

import "fmt"

// AnomalyType represents different kinds of suspicious values in a
// checksum-valid response
type AnomalyType int

const (
	AnomalyUnknownMode AnomalyType = iota
	AnomalyUnknownFan
	AnomalySetpointRange
	AnomalyFaultActive
)

// Plausible setpoint range in °F
const (
	MinSetpoint = 50
	MaxSetpoint = 95
)

// ValidationError represents one anomaly found in a decoded status
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateStatus reports anomalies in a decoded status. Anomalies never
// reject a frame; the status is still applied.
func ValidateStatus(s Status) []ValidationError {
	errors := []ValidationError{}

	if s.Mode == ModeUnknown {
		errors = append(errors, ValidationError{
			Type:    AnomalyUnknownMode,
			Message: fmt.Sprintf("Unknown mode byte 0x%02X", s.ModeByte),
			Details: map[string]interface{}{"mode_byte": s.ModeByte},
		})
	}

	if s.Fan == FanUnknown {
		errors = append(errors, ValidationError{
			Type:    AnomalyUnknownFan,
			Message: fmt.Sprintf("Unknown fan byte 0x%02X", s.FanByte),
			Details: map[string]interface{}{"fan_byte": s.FanByte},
		})
	}

	// Off units commonly report a zero setpoint
	if s.Mode != ModeOff && (s.Setpoint < MinSetpoint || s.Setpoint > MaxSetpoint) {
		errors = append(errors, ValidationError{
			Type:    AnomalySetpointRange,
			Message: fmt.Sprintf("Setpoint out of range (%d°F, valid: %d to %d°F)", s.Setpoint, MinSetpoint, MaxSetpoint),
			Details: map[string]interface{}{"value": s.Setpoint, "min": MinSetpoint, "max": MaxSetpoint},
		})
	}

	if s.Fault.Active() {
		errors = append(errors, ValidationError{
			Type:    AnomalyFaultActive,
			Message: fmt.Sprintf("Unit reports fault (%s)", FormatFault(s.Fault)),
			Details: map[string]interface{}{
				"errors":     s.Fault.Errors(),
				"protection": s.Fault.Protection(),
				"ccm":        s.Fault.CCMError,
			},
		})
	}

	return errors
}
