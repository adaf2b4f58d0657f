// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// xyestat - Midea XYE air handler link
//
// A CLI tool for polling, monitoring, and controlling Midea air handlers over
// the RS-485 XYE bus.

package main

import (
	"os"

	"github.com/Thermoquad/xyestat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
