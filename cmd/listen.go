// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/Thermoquad/xyestat/pkg/xye"
	"github.com/spf13/cobra"
)

var listenDuration int

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Print raw bus bytes without transmitting",
	Long: `Open the connection and print every received chunk as hex, without
sending any frame.

Useful for checking that a serial adapter or WebSocket bridge stays up, or for
watching traffic from another controller on the bus. Nothing is decoded.

Exit codes:
  0 - Listened for the full duration
  1 - Connection dropped while listening
  2 - Connection error`,
	RunE: runListen,
}

func init() {
	rootCmd.AddCommand(listenCmd)
	listenCmd.Flags().IntVar(&listenDuration, "duration", 30, "Listen duration in seconds")
}

func runListen(cmd *cobra.Command, args []string) error {
	tr, err := OpenTransport(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer tr.Close()

	duration := time.Duration(listenDuration) * time.Second
	fmt.Printf("xyestat - Listen\n")
	fmt.Printf("Connection: %s\n", tr.Description)
	fmt.Printf("Duration: %d seconds\n\n", listenDuration)

	ctx, cancel := waitTimeout(cmd.Context(), duration)
	defer cancel()

	var streamDone <-chan struct{}
	end, isStream := tr.Channel.(streamEnd)
	if isStream {
		streamDone = end.Done()
	}

	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()
	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	start := time.Now()
	chunks, total := 0, 0

	printResults := func(result string) {
		fmt.Printf("\n--- Listen Results ---\n")
		fmt.Printf("Duration: %s\n", time.Since(start).Truncate(time.Millisecond))
		fmt.Printf("Chunks received: %d\n", chunks)
		fmt.Printf("Bytes received: %d\n", total)
		fmt.Printf("Result: %s\n", result)
	}

	fmt.Printf("Listening for data...\n\n")
	for {
		select {
		case <-ctx.Done():
			printResults("PASSED (connection stable)")
			return nil

		case <-streamDone:
			fmt.Printf("\n[%s] Connection error: %v\n", time.Now().Format("15:04:05.000"), end.Err())
			printResults("FAILED (connection error)")
			os.Exit(1)

		case <-poll.C:
			if tr.Channel.BytesAvailable() == 0 {
				continue
			}
			data := tr.Channel.ReadAvailable()
			chunks++
			total += len(data)
			fmt.Printf("[%s] Received %d bytes: %s\n",
				time.Now().Format("15:04:05.000"), len(data), xye.FormatFrame(data))

		case <-heartbeat.C:
			fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
				time.Now().Format("15:04:05.000"), time.Until(start.Add(duration)).Seconds())
		}
	}
}
