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

var (
	setMode    string
	setFan     string
	setTemp    int
	setTimer1  int
	setTimer2  int
	setTimeout int
)

var setCmd = &cobra.Command{
	Use:   "set",
	Short: "Send one control command and confirm it",
	Long: `Send a control frame with the given settings and wait for the unit's
next status to confirm it.

Settings that are not given are taken from the unit's current status, which is
polled first.

Examples:
  xyestat set --mode cool --fan auto --temp 72
  xyestat set --temp 68

Exit codes:
  0 - Command sent and a valid response received
  1 - Timeout (the command was not confirmed)
  2 - Connection error`,
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(setCmd)
	setCmd.Flags().StringVar(&setMode, "mode", "", "Mode (off, auto, cool, dry, heat, fan_only)")
	setCmd.Flags().StringVar(&setFan, "fan", "", "Fan speed (auto, high, medium, medium_low, low)")
	setCmd.Flags().IntVar(&setTemp, "temp", 0, "Setpoint in °F")
	setCmd.Flags().IntVar(&setTimer1, "timer1", 0, "Timer 1 byte")
	setCmd.Flags().IntVar(&setTimer2, "timer2", 0, "Timer 2 byte")
	setCmd.Flags().IntVar(&setTimeout, "timeout", 10, "Timeout in seconds")
}

// intentFlags holds the set flags; empty or unset values come from the base status
type intentFlags struct {
	mode, fan      string
	temp           int
	haveTemp       bool
	timer1, timer2 int
}

func (f intentFlags) needsBase() bool {
	return f.mode == "" || f.fan == "" || !f.haveTemp
}

// build resolves the flags against the unit's current status
func (f intentFlags) build(base xye.Status) (xye.CommandIntent, error) {
	intent := xye.CommandIntent{
		Mode:     base.Mode,
		Fan:      base.Fan,
		Setpoint: base.Setpoint,
	}

	if f.mode != "" {
		m, ok := xye.ParseMode(f.mode)
		if !ok {
			return xye.CommandIntent{}, fmt.Errorf("unknown mode %q", f.mode)
		}
		intent.Mode = m
	}
	if f.fan != "" {
		fan, ok := xye.ParseFanSpeed(f.fan)
		if !ok {
			return xye.CommandIntent{}, fmt.Errorf("unknown fan speed %q", f.fan)
		}
		intent.Fan = fan
	}
	if f.haveTemp {
		if f.temp < 0 || f.temp > 255 {
			return xye.CommandIntent{}, fmt.Errorf("setpoint %d out of range", f.temp)
		}
		intent.Setpoint = uint8(f.temp)
	}
	for _, t := range []int{f.timer1, f.timer2} {
		if t < 0 || t > 255 {
			return xye.CommandIntent{}, fmt.Errorf("timer value %d out of range", t)
		}
	}
	intent.Timer1 = byte(f.timer1)
	intent.Timer2 = byte(f.timer2)

	if err := intent.Validate(); err != nil {
		return xye.CommandIntent{}, err
	}
	return intent, nil
}

func runSet(cmd *cobra.Command, args []string) error {
	flags := intentFlags{
		mode:     setMode,
		fan:      setFan,
		temp:     setTemp,
		haveTemp: cmd.Flags().Changed("temp"),
		timer1:   setTimer1,
		timer2:   setTimer2,
	}
	if !flags.needsBase() {
		// Validate before touching the bus
		if _, err := flags.build(xye.Status{}); err != nil {
			return err
		}
	}

	tr, runner, err := startRunner()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer tr.Close()

	timeout := time.Duration(setTimeout) * time.Second
	ctx, cancel := waitTimeout(cmd.Context(), timeout)
	defer cancel()
	go runner.Run(ctx)

	fmt.Printf("xyestat - Set\n")
	fmt.Printf("Connection: %s\n\n", tr.Description)

	var base xye.Status
	if flags.needsBase() {
		ev, err := awaitEvent(ctx, runner.Events(), isResponse)
		if err != nil {
			tr.Close()
			exitOnWaitError(err, "no status received", timeout)
		}
		base = ev.Status
		fmt.Printf("Current: %s\n", xye.FormatStatusLine(base))
	}

	intent, err := flags.build(base)
	if err != nil {
		return err
	}
	if err := runner.SetCommand(intent); err != nil {
		return err
	}
	fmt.Printf("Sending: %s\n", xye.FormatIntent(intent))

	if _, err := awaitEvent(ctx, runner.Events(), func(ev LinkEvent) bool {
		return ev.Outcome == xye.OutcomeCommandSent
	}); err != nil {
		tr.Close()
		exitOnWaitError(err, "command not sent", timeout)
	}

	ev, err := awaitEvent(ctx, runner.Events(), func(ev LinkEvent) bool {
		return isResponse(ev) || ev.Outcome.Failed()
	})
	if err != nil {
		tr.Close()
		exitOnWaitError(err, "no response to command", timeout)
	}
	if ev.Outcome.Failed() {
		fmt.Fprintf(os.Stderr, "FAILED: command not confirmed: %v\n", ev.Err)
		tr.Close()
		os.Exit(1)
	}

	s := ev.Status
	fmt.Printf("Confirmed:\n")
	fmt.Print(xye.FormatStatus(s))
	if s.Mode != intent.Mode || s.Fan != intent.Fan || s.Setpoint != intent.Setpoint {
		logger.Warn().
			Str("mode", s.Mode.String()).
			Str("fan", s.Fan.String()).
			Uint8("setpoint", s.Setpoint).
			Msg("unit reports different settings than requested")
	}
	return nil
}
