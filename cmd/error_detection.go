// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"

	"github.com/Thermoquad/xyestat/pkg/xye"
)

// printExchangeError prints a failed exchange in highlighted format
func printExchangeError(ev LinkEvent) {
	timestamp := ev.Time.Format("15:04:05.000")

	switch {
	case errors.Is(ev.Err, xye.ErrChecksumMismatch):
		fmt.Printf("[%s] \033[1;31mCHECKSUM ERROR:\033[0m %v\n", timestamp, ev.Err)
	case errors.Is(ev.Err, xye.ErrMalformed):
		fmt.Printf("[%s] \033[1;31mMALFORMED FRAME:\033[0m %v\n", timestamp, ev.Err)
	case errors.Is(ev.Err, xye.ErrLinkTimeout):
		fmt.Printf("[%s] \033[1;33mTIMEOUT:\033[0m %v\n", timestamp, ev.Err)
	default:
		fmt.Printf("[%s] \033[1;31mWRITE ERROR:\033[0m %v\n", timestamp, ev.Err)
	}

	if ev.Sent.CommandType() == xye.CmdSet {
		fmt.Printf("  Command was not confirmed and will not be resent\n")
	}
	if ev.ConsecutiveTimeouts > 1 {
		fmt.Printf("  Consecutive failures: %d\n", ev.ConsecutiveTimeouts)
	}
	if ev.HasStatus {
		fmt.Printf("  Last known status is stale\n")
	}
	fmt.Println()
}

// printAnomalies prints suspicious values in an accepted response
func printAnomalies(ev LinkEvent) {
	timestamp := ev.Time.Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mANOMALY:\033[0m %s\n", timestamp, xye.FormatStatusLine(ev.Status))
	fmt.Printf("  Checksum: \033[1;32mOK\033[0m\n")

	for i, a := range ev.Anomalies {
		switch a.Type {
		case xye.AnomalyFaultActive:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, a.Message)
		case xye.AnomalySetpointRange:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, a.Message)
		default:
			fmt.Printf("  Issue %d: %s\n", i+1, a.Message)
		}
	}
	fmt.Printf("  Frame: %s\n\n", xye.FormatFrame(ev.Frame))
}

// printStatus prints an accepted response
func printStatus(ev LinkEvent) {
	timestamp := ev.Time.Format("15:04:05.000")
	fmt.Printf("[%s] STATUS\n", timestamp)
	fmt.Print(xye.FormatStatus(ev.Status))
}

// printSent prints a control or lock frame as it goes out
func printSent(ev LinkEvent) {
	timestamp := ev.Time.Format("15:04:05.000")
	cmdType := ev.Sent.CommandType()

	if cmdType == xye.CmdSet {
		intent, _, err := xye.DecodeCommandFrame(ev.Sent.Bytes())
		if err == nil {
			fmt.Printf("[%s] \033[1;36mSENT %s:\033[0m %s\n", timestamp, xye.FormatCommandType(cmdType), xye.FormatIntent(intent))
			return
		}
	}
	fmt.Printf("[%s] \033[1;36mSENT %s\033[0m\n", timestamp, xye.FormatCommandType(cmdType))
}
