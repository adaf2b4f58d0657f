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

var lockTimeout int

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lock the unit's keypad",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKeypadLock(cmd, true)
	},
}

var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Unlock the unit's keypad",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runKeypadLock(cmd, false)
	},
}

func init() {
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(unlockCmd)
	for _, c := range []*cobra.Command{lockCmd, unlockCmd} {
		c.Flags().IntVar(&lockTimeout, "timeout", 10, "Timeout in seconds")
	}
}

func runKeypadLock(cmd *cobra.Command, locked bool) error {
	tr, runner, err := startRunner()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer tr.Close()

	timeout := time.Duration(lockTimeout) * time.Second
	ctx, cancel := waitTimeout(cmd.Context(), timeout)
	defer cancel()
	go runner.Run(ctx)

	if err := runner.SetKeypadLock(locked); err != nil {
		return err
	}

	if _, err := awaitEvent(ctx, runner.Events(), func(ev LinkEvent) bool {
		return ev.Outcome == xye.OutcomeLockSent
	}); err != nil {
		tr.Close()
		exitOnWaitError(err, "lock frame not sent", timeout)
	}

	ev, err := awaitEvent(ctx, runner.Events(), func(ev LinkEvent) bool {
		return isResponse(ev) || ev.Outcome.Failed()
	})
	if err != nil {
		tr.Close()
		exitOnWaitError(err, "no response to lock frame", timeout)
	}
	if ev.Outcome.Failed() {
		fmt.Fprintf(os.Stderr, "FAILED: lock frame not acknowledged: %v\n", ev.Err)
		tr.Close()
		os.Exit(1)
	}

	if locked {
		fmt.Printf("Keypad locked\n")
	} else {
		fmt.Printf("Keypad unlocked\n")
	}
	return nil
}
