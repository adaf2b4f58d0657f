// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xye

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks link exchange counts and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Transmit counters
	PollsSent    uint64
	CommandsSent uint64
	LocksSent    uint64
	WriteErrors  uint64

	// Receive counters
	Responses       uint64
	ChecksumErrors  uint64
	MalformedFrames uint64
	Timeouts        uint64
	StaleBytes      uint64
	Anomalies       uint64

	// Rates (calculated)
	ExchangeRate float64 // exchanges/sec
	ErrorRate    float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics(now time.Time) *Statistics {
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// recordSent counts a transmitted frame
func (s *Statistics) recordSent(f CommandFrame, now time.Time) {
	switch f.CommandType() {
	case CmdQuery:
		s.PollsSent++
	case CmdSet:
		s.CommandsSent++
	case CmdLock, CmdUnlock:
		s.LocksSent++
	}
	s.LastUpdateTime = now
}

// recordReject counts a frame that failed validation
func (s *Statistics) recordReject(err error, now time.Time) {
	if errors.Is(err, ErrChecksumMismatch) {
		s.ChecksumErrors++
	} else {
		s.MalformedFrames++
	}
	s.LastUpdateTime = now
}

// Exchanges returns the number of completed or failed request cycles
func (s *Statistics) Exchanges() uint64 {
	return s.Responses + s.ChecksumErrors + s.MalformedFrames + s.Timeouts + s.WriteErrors
}

// Errors returns the number of failed request cycles
func (s *Statistics) Errors() uint64 {
	return s.ChecksumErrors + s.MalformedFrames + s.Timeouts + s.WriteErrors
}

// CalculateRates calculates exchange and error rates
func (s *Statistics) CalculateRates(now time.Time) {
	elapsed := now.Sub(s.StartTime).Seconds()
	if elapsed > 0 {
		s.ExchangeRate = float64(s.Exchanges()) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// SuccessPercent returns the share of exchanges that produced a valid response
func (s *Statistics) SuccessPercent() float64 {
	total := s.Exchanges()
	if total == 0 {
		return 0
	}
	return float64(s.Responses) * 100.0 / float64(total)
}

// Summary returns a formatted statistics summary, with rates computed at now
func (s *Statistics) Summary(now time.Time) string {
	s.CalculateRates(now)

	total := s.Exchanges()
	percent := func(n uint64) float64 {
		if total == 0 {
			return 0
		}
		return float64(n) * 100.0 / float64(total)
	}

	elapsed := now.Sub(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Polls Sent:      %8d\n", s.PollsSent)
	result += fmt.Sprintf("Commands Sent:   %8d\n", s.CommandsSent)
	if s.LocksSent > 0 {
		result += fmt.Sprintf("Lock Frames:     %8d\n", s.LocksSent)
	}
	result += fmt.Sprintf("Responses:       %8d (%.1f%%)\n", s.Responses, percent(s.Responses))

	if s.Timeouts > 0 {
		result += fmt.Sprintf("Timeouts:        %8d (%.1f%%)\n", s.Timeouts, percent(s.Timeouts))
	}
	if s.ChecksumErrors > 0 {
		result += fmt.Sprintf("Checksum Errors: %8d (%.1f%%)\n", s.ChecksumErrors, percent(s.ChecksumErrors))
	}
	if s.MalformedFrames > 0 {
		result += fmt.Sprintf("Malformed:       %8d (%.1f%%)\n", s.MalformedFrames, percent(s.MalformedFrames))
	}
	if s.WriteErrors > 0 {
		result += fmt.Sprintf("Write Errors:    %8d\n", s.WriteErrors)
	}
	if s.StaleBytes > 0 {
		result += fmt.Sprintf("Stale Bytes:     %8d\n", s.StaleBytes)
	}
	if s.Anomalies > 0 {
		result += fmt.Sprintf("Anomalies:       %8d\n", s.Anomalies)
	}

	result += fmt.Sprintf("Exchange Rate:   %8.1f /sec\n", s.ExchangeRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset(now time.Time) {
	*s = Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}
