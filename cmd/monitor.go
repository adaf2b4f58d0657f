// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Thermoquad/xyestat/pkg/xye"
	"github.com/spf13/cobra"
)

var (
	showAll       bool
	statsInterval int
	recordPath    string
	metricsAddr   string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Poll the unit and report status, timeouts, and damaged frames",
	Long: `Continuously poll the air handler and display its status.

This command drives the bus as master and reports:
  - Status changes (mode, fan, setpoint, temperatures, flags)
  - Timeouts and the number of consecutive failed exchanges
  - Checksum errors and malformed responses
  - Anomalous values in valid responses (unknown mode, active faults)
  - Statistics (exchange rate, error rate, success rate)

By default, a status is printed only when it changes. Use --show-all to print
every response.

Use --record to append CBOR snapshots of every response to a file for later
replay, and --metrics-addr to serve Prometheus metrics.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Print every response (not just changes)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().StringVar(&recordPath, "record", "", "Append CBOR snapshots to this file")
	monitorCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9310)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	tr, err := OpenTransport(cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	lc, err := cfg.LinkConfig()
	if err != nil {
		return err
	}
	runner, err := NewRunner(tr.Channel, lc, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var recorder *xye.SnapshotWriter
	if recordPath != "" {
		f, err := os.OpenFile(recordPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open record file: %w", err)
		}
		defer f.Close()
		recorder = xye.NewSnapshotWriter(f)
	}

	addr := metricsAddr
	if !cmd.Flags().Changed("metrics-addr") {
		addr = cfg.Metrics.ListenAddr
	}
	var metrics *linkMetrics
	if addr != "" {
		metrics = newLinkMetrics()
		go metrics.Serve(ctx, addr, logger)
	}

	fmt.Printf("xyestat - Monitor\n")
	fmt.Printf("Connection: %s\n", tr.Description)
	fmt.Printf("Poll interval: %s, response timeout: %s\n", lc.PollInterval, lc.ResponseTimeout)
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if recorder != nil {
		fmt.Printf("Recording to: %s\n", recordPath)
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	errCh := make(chan error, 1)
	go func() { errCh <- runner.Run(ctx) }()

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	var (
		last      xye.Statistics
		prev      xye.Status
		havePrev  bool
		connected bool
	)

	for {
		select {
		case ev, ok := <-runner.Events():
			if !ok {
				if recorder != nil {
					fmt.Printf("Recorded %d snapshots\n", recorder.Count())
				}
				return <-errCh
			}
			last = ev.Stats
			if metrics != nil {
				metrics.Update(ev)
			}

			switch {
			case ev.Outcome == xye.OutcomeCommandSent || ev.Outcome == xye.OutcomeLockSent:
				printSent(ev)

			case ev.Outcome == xye.OutcomeResponse:
				if !connected {
					connected = true
					fmt.Printf("[SYNC] Unit answered\n\n")
				}
				if recorder != nil {
					snap := xye.Snapshot{Time: ev.Time, Status: ev.Status, Frame: ev.Frame}
					if err := recorder.Write(snap); err != nil {
						logger.Error().Err(err).Msg("recording failed")
					}
				}
				switch {
				case len(ev.Anomalies) > 0:
					printAnomalies(ev)
				case showAll || !havePrev || ev.Status != prev:
					printStatus(ev)
					fmt.Println()
				}
				prev, havePrev = ev.Status, true

			case ev.Outcome.Failed():
				printExchangeError(ev)
			}

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(last.Summary(time.Now()))
			fmt.Println()
		}
	}
}

// waitTimeout returns a context that ends after d or on Ctrl+C
func waitTimeout(parent context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, d)
	return ctx, func() {
		cancel()
		stop()
	}
}
