// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/xyestat/pkg/xye"
	"github.com/spf13/cobra"
)

var (
	probeTimeout int
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Test the bus by polling until the unit answers",
	Long: `Poll the air handler until one valid response arrives or the timeout passes.

Damaged responses and timeouts are counted but do not end the probe; only a
complete, checksum-valid response counts as success.

Exit codes:
  0 - Valid response received before timeout
  1 - Timeout reached without a valid response
  2 - Connection error

Useful for testing RS-485 wiring, baud rate, and WebSocket bridges.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().IntVar(&probeTimeout, "timeout", 10, "Timeout in seconds to wait for a response")
}

// startRunner opens the transport and builds a Runner from cfg
func startRunner() (*Transport, *Runner, error) {
	tr, err := OpenTransport(cfg)
	if err != nil {
		return nil, nil, err
	}
	lc, err := cfg.LinkConfig()
	if err != nil {
		tr.Close()
		return nil, nil, err
	}
	runner, err := NewRunner(tr.Channel, lc, logger)
	if err != nil {
		tr.Close()
		return nil, nil, err
	}
	return tr, runner, nil
}

// awaitEvent reads events until match accepts one, the runner stops, or ctx ends
func awaitEvent(ctx context.Context, events <-chan LinkEvent, match func(LinkEvent) bool) (LinkEvent, error) {
	for {
		select {
		case <-ctx.Done():
			return LinkEvent{}, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return LinkEvent{}, ctx.Err()
				}
				return LinkEvent{}, ErrChannelClosed
			}
			if match(ev) {
				return ev, nil
			}
		}
	}
}

func isResponse(ev LinkEvent) bool {
	return ev.Outcome == xye.OutcomeResponse
}

// exitOnWaitError maps a wait failure to the probe exit codes
func exitOnWaitError(err error, what string, timeout time.Duration) {
	if errors.Is(err, ErrChannelClosed) {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	fmt.Fprintf(os.Stderr, "TIMEOUT: %s within %s\n", what, timeout)
	os.Exit(1)
}

func runProbe(cmd *cobra.Command, args []string) error {
	tr, runner, err := startRunner()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer tr.Close()

	timeout := time.Duration(probeTimeout) * time.Second

	fmt.Printf("xyestat - Probe\n")
	fmt.Printf("Connection: %s\n", tr.Description)
	fmt.Printf("Timeout: %d seconds\n", probeTimeout)
	fmt.Printf("Polling for a valid response...\n\n")

	ctx, cancel := waitTimeout(cmd.Context(), timeout)
	defer cancel()
	go runner.Run(ctx)

	failures := 0
	ev, err := awaitEvent(ctx, runner.Events(), func(ev LinkEvent) bool {
		if ev.Outcome.Failed() {
			failures++
		}
		return isResponse(ev)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "(%d failed exchanges)\n", failures)
		tr.Close()
		exitOnWaitError(err, "no valid response received", timeout)
	}

	if failures > 0 {
		fmt.Printf("(%d failed exchanges before first response)\n", failures)
	}
	fmt.Printf("SUCCESS: Received valid response\n")
	fmt.Print(xye.FormatStatus(ev.Status))
	fmt.Printf("  Frame: %s\n", xye.FormatFrame(ev.Frame))
	return nil
}
