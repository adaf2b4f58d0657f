// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/xyestat/pkg/xye"
	tea "github.com/charmbracelet/bubbletea"
)

type fakeController struct {
	intents []xye.CommandIntent
	locks   []bool
	err     error
}

func (f *fakeController) SetCommand(intent xye.CommandIntent) error {
	if f.err != nil {
		return f.err
	}
	f.intents = append(f.intents, intent)
	return nil
}

func (f *fakeController) SetKeypadLock(locked bool) error {
	if f.err != nil {
		return f.err
	}
	f.locks = append(f.locks, locked)
	return nil
}

func asControlModel(t *testing.T, tm tea.Model) controlModel {
	t.Helper()
	switch v := tm.(type) {
	case controlModel:
		return v
	case *controlModel:
		return *v
	}
	t.Fatalf("unexpected model type %T", tm)
	return controlModel{}
}

func sendMsg(t *testing.T, m controlModel, msg tea.Msg) controlModel {
	t.Helper()
	next, _ := m.Update(msg)
	return asControlModel(t, next)
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func responseBatch(s xye.Status) controlBatchMsg {
	frame := xye.EncodeResponse(s)
	return controlBatchMsg{events: []LinkEvent{{
		Time:      time.Now(),
		Outcome:   xye.OutcomeResponse,
		Status:    s,
		HasStatus: true,
		Frame:     frame.Bytes(),
		Stats:     xye.Statistics{Responses: 1},
	}}}
}

func seededModel(t *testing.T) (controlModel, *fakeController) {
	t.Helper()
	ctl := &fakeController{}
	m := initialControlModel(ctl, "Demo")
	m = sendMsg(t, m, responseBatch(xye.NewStatus(xye.ModeCool, xye.FanAuto, 72)))
	return m, ctl
}

func TestControlModel_SeedsIntentFromStatus(t *testing.T) {
	m, ctl := seededModel(t)

	if !m.hasStatus || !m.haveIntent {
		t.Fatal("status/intent not seeded from first response")
	}
	want := xye.CommandIntent{Mode: xye.ModeCool, Fan: xye.FanAuto, Setpoint: 72}
	if m.intent != want {
		t.Errorf("intent = %s, want %s", xye.FormatIntent(m.intent), xye.FormatIntent(want))
	}
	if len(ctl.intents) != 0 {
		t.Error("seeding must not send a command")
	}
	if item, ok := m.modeList.SelectedItem().(modeItem); !ok || item.mode != xye.ModeCool {
		t.Errorf("mode list cursor = %v, want Cool", m.modeList.SelectedItem())
	}
	if m.stats.Responses != 1 {
		t.Errorf("stats not taken from event")
	}
}

func TestControlModel_SetpointSteps(t *testing.T) {
	m, ctl := seededModel(t)

	m = sendMsg(t, m, runeKey('+'))
	m = sendMsg(t, m, runeKey('+'))
	m = sendMsg(t, m, runeKey('-'))

	if len(ctl.intents) != 3 {
		t.Fatalf("SetCommand called %d times, want 3", len(ctl.intents))
	}
	got := []uint8{ctl.intents[0].Setpoint, ctl.intents[1].Setpoint, ctl.intents[2].Setpoint}
	if got[0] != 73 || got[1] != 74 || got[2] != 73 {
		t.Errorf("setpoints = %v, want [73 74 73]", got)
	}
	if m.intent.Setpoint != 73 {
		t.Errorf("intent setpoint = %d, want 73", m.intent.Setpoint)
	}
}

func TestControlModel_SetpointClamp(t *testing.T) {
	ctl := &fakeController{}
	m := initialControlModel(ctl, "Demo")
	m = sendMsg(t, m, responseBatch(xye.NewStatus(xye.ModeHeat, xye.FanLow, xye.MaxSetpoint)))

	m = sendMsg(t, m, runeKey('+'))
	if len(ctl.intents) != 0 {
		t.Errorf("setpoint raised past %d°F", xye.MaxSetpoint)
	}
	if m.intent.Setpoint != xye.MaxSetpoint {
		t.Errorf("intent setpoint = %d", m.intent.Setpoint)
	}
}

func TestControlModel_NoStatusNoCommand(t *testing.T) {
	ctl := &fakeController{}
	m := initialControlModel(ctl, "Demo")

	m = sendMsg(t, m, runeKey('+'))
	m = sendMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if len(ctl.intents) != 0 {
		t.Error("command sent before the unit answered")
	}
}

func TestControlModel_EnterAppliesMode(t *testing.T) {
	m, ctl := seededModel(t)

	for i, md := range controlModes {
		if md == xye.ModeHeat {
			m.modeList.Select(i)
		}
	}
	m = sendMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(ctl.intents) != 1 {
		t.Fatalf("SetCommand called %d times, want 1", len(ctl.intents))
	}
	if ctl.intents[0].Mode != xye.ModeHeat || ctl.intents[0].Setpoint != 72 {
		t.Errorf("intent = %s", xye.FormatIntent(ctl.intents[0]))
	}
}

func TestControlModel_EnterAppliesFan(t *testing.T) {
	m, ctl := seededModel(t)

	m = sendMsg(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focusedField != focusFanList {
		t.Fatalf("focus = %d, want fan list", m.focusedField)
	}
	for i, f := range controlFans {
		if f == xye.FanHigh {
			m.fanList.Select(i)
		}
	}
	m = sendMsg(t, m, tea.KeyMsg{Type: tea.KeyEnter})

	if len(ctl.intents) != 1 || ctl.intents[0].Fan != xye.FanHigh {
		t.Errorf("intents = %v, want one with fan High", ctl.intents)
	}
}

func TestControlModel_FocusCycle(t *testing.T) {
	m, _ := seededModel(t)

	m = sendMsg(t, m, tea.KeyMsg{Type: tea.KeyShiftTab})
	if m.focusedField != focusSetpoint {
		t.Errorf("shift+tab from mode list = %d, want setpoint", m.focusedField)
	}
	m = sendMsg(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focusedField != focusModeList {
		t.Errorf("tab from setpoint = %d, want mode list", m.focusedField)
	}
}

func TestControlModel_ToggleLock(t *testing.T) {
	m, ctl := seededModel(t)

	m = sendMsg(t, m, runeKey('l'))
	m = sendMsg(t, m, runeKey('l'))

	if len(ctl.locks) != 2 || !ctl.locks[0] || ctl.locks[1] {
		t.Errorf("locks = %v, want [true false]", ctl.locks)
	}
	if m.locked {
		t.Error("model still locked after second toggle")
	}
}

func TestControlModel_ConnectionLost(t *testing.T) {
	m, ctl := seededModel(t)

	m = sendMsg(t, m, connectionLostMsg{err: ErrChannelClosed})
	m = sendMsg(t, m, runeKey('+'))
	if len(ctl.intents) != 0 {
		t.Error("command queued while connection lost")
	}
	if !strings.Contains(m.View(), "RECONNECTING") {
		t.Error("view does not show reconnecting")
	}

	m = sendMsg(t, m, reconnectedMsg{connInfo: "Serial: /dev/ttyUSB0 @ 4800 baud"})
	m = sendMsg(t, m, runeKey('+'))
	if len(ctl.intents) != 1 {
		t.Errorf("SetCommand called %d times after reconnect, want 1", len(ctl.intents))
	}
	if m.connInfo != "Serial: /dev/ttyUSB0 @ 4800 baud" {
		t.Errorf("connInfo = %q", m.connInfo)
	}
}

func TestControlModel_FailureEvents(t *testing.T) {
	m, _ := seededModel(t)

	set, err := xye.EncodeCommand(xye.CommandIntent{Mode: xye.ModeCool, Fan: xye.FanAuto, Setpoint: 70})
	if err != nil {
		t.Fatalf("EncodeCommand failed: %v", err)
	}
	m = sendMsg(t, m, controlBatchMsg{events: []LinkEvent{{
		Time:                time.Now(),
		Outcome:             xye.OutcomeTimeout,
		Sent:                set,
		Err:                 xye.ErrLinkTimeout,
		ConsecutiveTimeouts: 1,
		Status:              m.status,
		HasStatus:           true,
	}}})

	if m.consecutiveTimeouts != 1 {
		t.Errorf("consecutive timeouts = %d, want 1", m.consecutiveTimeouts)
	}
	last := m.errorLog[len(m.errorLog)-1]
	if !last.isError || !strings.Contains(last.message, "not confirmed") {
		t.Errorf("last log entry = %+v", last)
	}
	if m.status.Setpoint != 72 {
		t.Error("failed exchange changed the displayed status")
	}
}

func TestControlModel_CopyWithoutFrame(t *testing.T) {
	ctl := &fakeController{}
	m := initialControlModel(ctl, "Demo")

	m = sendMsg(t, m, runeKey('y'))
	last := m.errorLog[len(m.errorLog)-1]
	if !last.isError || !strings.Contains(last.message, "No response frame") {
		t.Errorf("last log entry = %+v", last)
	}
}

func TestControlModel_LogBounded(t *testing.T) {
	m := initialControlModel(&fakeController{}, "Demo")
	for i := 0; i < m.maxLogEntries+25; i++ {
		m.addLogEntry("entry", false)
	}
	if len(m.errorLog) != m.maxLogEntries {
		t.Errorf("log length = %d, want %d", len(m.errorLog), m.maxLogEntries)
	}
}

func TestControlModel_ViewShowsStatus(t *testing.T) {
	m, _ := seededModel(t)
	m = sendMsg(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	view := m.View()
	for _, want := range []string{"XYESTAT CONTROL", "Cool", "72°F", "Demo"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
