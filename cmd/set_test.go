// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"testing"

	"github.com/Thermoquad/xyestat/pkg/xye"
)

func TestIntentFlags_NeedsBase(t *testing.T) {
	tests := []struct {
		name  string
		flags intentFlags
		want  bool
	}{
		{"all given", intentFlags{mode: "cool", fan: "auto", temp: 72, haveTemp: true}, false},
		{"no mode", intentFlags{fan: "auto", temp: 72, haveTemp: true}, true},
		{"no fan", intentFlags{mode: "cool", temp: 72, haveTemp: true}, true},
		{"no temp", intentFlags{mode: "cool", fan: "auto"}, true},
	}

	for _, tt := range tests {
		if got := tt.flags.needsBase(); got != tt.want {
			t.Errorf("%s: needsBase() = %t, want %t", tt.name, got, tt.want)
		}
	}
}

func TestIntentFlags_Build(t *testing.T) {
	base := xye.NewStatus(xye.ModeHeat, xye.FanLow, 68)

	intent, err := intentFlags{temp: 74, haveTemp: true, timer1: 3}.build(base)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	want := xye.CommandIntent{Mode: xye.ModeHeat, Fan: xye.FanLow, Setpoint: 74, Timer1: 3}
	if intent != want {
		t.Errorf("got %s, want %s", xye.FormatIntent(intent), xye.FormatIntent(want))
	}

	intent, err = intentFlags{mode: "fan_only", fan: "Medium Low"}.build(base)
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if intent.Mode != xye.ModeFanOnly || intent.Fan != xye.FanMediumLow || intent.Setpoint != 68 {
		t.Errorf("got %s", xye.FormatIntent(intent))
	}
}

func TestIntentFlags_BuildErrors(t *testing.T) {
	base := xye.NewStatus(xye.ModeCool, xye.FanAuto, 72)

	tests := []struct {
		name  string
		flags intentFlags
	}{
		{"unknown mode", intentFlags{mode: "turbo"}},
		{"unknown fan", intentFlags{fan: "gale"}},
		{"setpoint too high", intentFlags{temp: 300, haveTemp: true}},
		{"negative setpoint", intentFlags{temp: -1, haveTemp: true}},
		{"timer too high", intentFlags{timer2: 256}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.flags.build(base); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestIntentFlags_BuildUnknownBase(t *testing.T) {
	// A unit reporting an unknown mode cannot be echoed back
	base := xye.NewStatus(xye.ModeCool, xye.FanAuto, 72)
	base.Mode = xye.ModeUnknown

	_, err := intentFlags{temp: 70, haveTemp: true}.build(base)
	if !errors.Is(err, xye.ErrInvalidIntent) {
		t.Errorf("got %v, want ErrInvalidIntent", err)
	}

	if _, err := (intentFlags{mode: "dry", temp: 70, haveTemp: true}).build(base); err != nil {
		t.Errorf("explicit mode should replace unknown base mode: %v", err)
	}
}
