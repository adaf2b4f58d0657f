// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/Thermoquad/xyestat/pkg/xye"
	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

//////////////////////////////////////////////////////////////
// Constants
//////////////////////////////////////////////////////////////

// Focus states
const (
	focusModeList = iota
	focusFanList
	focusSetpoint
	focusCount
)

var (
	controlModes = []xye.Mode{xye.ModeOff, xye.ModeAuto, xye.ModeCool, xye.ModeDry, xye.ModeHeat, xye.ModeFanOnly}
	controlFans  = []xye.FanSpeed{xye.FanAuto, xye.FanHigh, xye.FanMedium, xye.FanMediumLow, xye.FanLow}
)

//////////////////////////////////////////////////////////////
// Types
//////////////////////////////////////////////////////////////

// controller is the part of the connection manager the TUI drives
type controller interface {
	SetCommand(intent xye.CommandIntent) error
	SetKeypadLock(locked bool) error
}

type errorLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool
}

type modeItem struct{ mode xye.Mode }

func (i modeItem) Title() string { return i.mode.String() }
func (i modeItem) Description() string {
	b, _ := i.mode.Byte()
	return fmt.Sprintf("0x%02X", b)
}
func (i modeItem) FilterValue() string { return i.mode.String() }

type fanItem struct{ fan xye.FanSpeed }

func (i fanItem) Title() string { return i.fan.String() }
func (i fanItem) Description() string {
	b, _ := i.fan.Byte()
	return fmt.Sprintf("0x%02X", b)
}
func (i fanItem) FilterValue() string { return i.fan.String() }

// controlModel is the Bubble Tea model for the control TUI
type controlModel struct {
	ctl      controller
	connInfo string

	modeList     list.Model
	fanList      list.Model
	focusedField int

	// Last validated status from the unit
	status    xye.Status
	hasStatus bool
	updatedAt time.Time
	lastFrame []byte

	// Settings the user wants; seeded from the first status
	intent     xye.CommandIntent
	haveIntent bool
	locked     bool

	stats               xye.Statistics
	consecutiveTimeouts int
	errorLog            []errorLogEntry
	maxLogEntries       int

	width          int
	height         int
	quitting       bool
	connectionLost bool
}

//////////////////////////////////////////////////////////////
// Messages
//////////////////////////////////////////////////////////////

type controlTickMsg time.Time

type controlBatchMsg struct {
	events []LinkEvent
}

type connectionLostMsg struct {
	err error
}

type reconnectedMsg struct {
	connInfo string
}

//////////////////////////////////////////////////////////////
// Model Initialization
//////////////////////////////////////////////////////////////

func newSettingList(title string, items []list.Item) list.Model {
	delegate := list.NewDefaultDelegate()
	delegate.ShowDescription = true
	delegate.SetHeight(2)
	l := list.New(items, delegate, 24, 14)
	l.Title = title
	l.SetShowStatusBar(false)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	return l
}

func initialControlModel(ctl controller, connInfo string) controlModel {
	modes := make([]list.Item, len(controlModes))
	for i, md := range controlModes {
		modes[i] = modeItem{md}
	}
	fans := make([]list.Item, len(controlFans))
	for i, f := range controlFans {
		fans[i] = fanItem{f}
	}

	return controlModel{
		ctl:           ctl,
		connInfo:      connInfo,
		modeList:      newSettingList("Mode", modes),
		fanList:       newSettingList("Fan", fans),
		focusedField:  focusModeList,
		errorLog:      make([]errorLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

//////////////////////////////////////////////////////////////
// Bubble Tea Interface
//////////////////////////////////////////////////////////////

func (m controlModel) Init() tea.Cmd {
	return controlTickCmd()
}

func controlTickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return controlTickMsg(t)
	})
}

func (m controlModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateListSize()

	case controlTickMsg:
		m.stats.CalculateRates(time.Time(msg))
		return m, controlTickCmd()

	case controlBatchMsg:
		for _, ev := range msg.events {
			m.processEvent(ev)
		}

	case connectionLostMsg:
		m.connectionLost = true
		if msg.err != nil {
			m.addLogEntry(fmt.Sprintf("Connection lost (%v) - reconnecting...", msg.err), true)
		} else {
			m.addLogEntry("Connection lost - reconnecting...", true)
		}

	case reconnectedMsg:
		m.connectionLost = false
		m.connInfo = msg.connInfo
		m.addLogEntry("Reconnected", false)
	}

	return m, nil
}

func (m *controlModel) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		m.focusedField = (m.focusedField + 1) % focusCount
		return m, nil

	case "shift+tab":
		m.focusedField = (m.focusedField + focusCount - 1) % focusCount
		return m, nil

	case "enter":
		return m.handleEnter()

	case "+", "=", "right":
		m.adjustSetpoint(1)
		return m, nil

	case "-", "_", "left":
		m.adjustSetpoint(-1)
		return m, nil

	case "l":
		m.toggleLock()
		return m, nil

	case "y":
		m.copyLastFrame()
		return m, nil
	}

	var cmd tea.Cmd
	switch m.focusedField {
	case focusModeList:
		m.modeList, cmd = m.modeList.Update(msg)
	case focusFanList:
		m.fanList, cmd = m.fanList.Update(msg)
	case focusSetpoint:
		switch msg.String() {
		case "up", "k":
			m.adjustSetpoint(1)
		case "down", "j":
			m.adjustSetpoint(-1)
		}
	}
	return m, cmd
}

func (m *controlModel) handleEnter() (tea.Model, tea.Cmd) {
	if !m.haveIntent {
		m.addLogEntry("No status from the unit yet", true)
		return m, nil
	}

	switch m.focusedField {
	case focusModeList:
		if item, ok := m.modeList.SelectedItem().(modeItem); ok {
			m.intent.Mode = item.mode
		}
	case focusFanList:
		if item, ok := m.fanList.SelectedItem().(fanItem); ok {
			m.intent.Fan = item.fan
		}
	}
	m.sendIntent()
	return m, nil
}

func (m controlModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	var s strings.Builder

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	statsLabelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	statsValueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	focusedBoxStyle := boxStyle.
		BorderForeground(lipgloss.Color("12"))

	// Header
	s.WriteString(titleStyle.Render("XYESTAT CONTROL"))
	s.WriteString(" ")
	connStatus := m.connInfo
	if m.connectionLost {
		connStatus = warningStyle.Render("RECONNECTING...")
	}
	s.WriteString(headerStyle.Render(fmt.Sprintf("| %s | q=quit Tab=switch +/-=setpoint l=lock y=copy", connStatus)))
	s.WriteString("\n\n")

	// Lists and setpoint side by side, status on the right
	modeStyle, fanStyle, spStyle := boxStyle, boxStyle, boxStyle
	switch m.focusedField {
	case focusModeList:
		modeStyle = focusedBoxStyle
	case focusFanList:
		fanStyle = focusedBoxStyle
	case focusSetpoint:
		spStyle = focusedBoxStyle
	}

	modePanel := modeStyle.Width(26).Render(m.modeList.View())
	fanPanel := fanStyle.Width(26).Render(m.fanList.View())
	spPanel := spStyle.Width(22).Render(m.renderSetpointPanel(statsLabelStyle, statsValueStyle, headerStyle))
	s.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, modePanel, " ", fanPanel, " ", spPanel))
	s.WriteString("\n")

	s.WriteString(m.renderStatusPanel(statsLabelStyle, statsValueStyle, errorStyle, headerStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle))
	s.WriteString("\n")
	s.WriteString(m.renderEventLog(statsLabelStyle, warningStyle, boxStyle))

	return s.String()
}

//////////////////////////////////////////////////////////////
// View Helpers
//////////////////////////////////////////////////////////////

func (m controlModel) renderSetpointPanel(statsLabelStyle, statsValueStyle, headerStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("Setpoint"))
	s.WriteString("\n\n")
	if !m.haveIntent {
		s.WriteString(headerStyle.Render("waiting for unit"))
		return s.String()
	}
	s.WriteString(fmt.Sprintf("  %s\n\n", statsValueStyle.Render(fmt.Sprintf("%d°F", m.intent.Setpoint))))
	s.WriteString(headerStyle.Render(fmt.Sprintf("range %d..%d", xye.MinSetpoint, xye.MaxSetpoint)))
	s.WriteString("\n\n")

	lock := "unlocked"
	if m.locked {
		lock = "LOCKED"
	}
	s.WriteString(fmt.Sprintf("%s %s", statsLabelStyle.Render("Keypad:"), statsValueStyle.Render(lock)))
	return s.String()
}

func (m controlModel) renderStatusPanel(statsLabelStyle, statsValueStyle, errorStyle, headerStyle, boxStyle lipgloss.Style) string {
	var content strings.Builder
	content.WriteString(statsLabelStyle.Render("UNIT"))
	content.WriteString(" | ")

	if !m.hasStatus {
		content.WriteString(headerStyle.Render("No response yet"))
		return boxStyle.Width(m.width - 4).Render(content.String())
	}

	st := m.status
	content.WriteString(fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Mode:"), statsValueStyle.Render(st.Mode.String()),
		statsLabelStyle.Render("Fan:"), statsValueStyle.Render(st.Fan.String()),
		statsLabelStyle.Render("Set:"), statsValueStyle.Render(fmt.Sprintf("%d°F", st.Setpoint)),
		statsLabelStyle.Render("T1:"), statsValueStyle.Render(fmt.Sprintf("%d", st.InletTemp)),
	))
	content.WriteString(fmt.Sprintf("  %s %s",
		statsLabelStyle.Render("T2A/T2B/T3:"),
		statsValueStyle.Render(fmt.Sprintf("%d/%d/%d", st.CoilATemp, st.CoilBTemp, st.OutsideTemp))))
	if flags := xye.FormatModeFlags(st.ModeFlags); flags != "" {
		content.WriteString(fmt.Sprintf("  %s %s", statsLabelStyle.Render("Flags:"), statsValueStyle.Render(flags)))
	}
	if st.Fault.Active() {
		content.WriteString("  ")
		content.WriteString(errorStyle.Render("FAULT " + xye.FormatFault(st.Fault)))
	}
	content.WriteString("  ")
	content.WriteString(headerStyle.Render(fmt.Sprintf("(%s ago)", time.Since(m.updatedAt).Truncate(100*time.Millisecond))))

	return boxStyle.Width(m.width - 4).Render(content.String())
}

func (m controlModel) renderStatisticsBar(statsLabelStyle, statsValueStyle, errorStyle, boxStyle lipgloss.Style) string {
	st := m.stats
	var errorPercent float64
	if total := st.Exchanges(); total > 0 {
		errorPercent = float64(st.Errors()) * 100.0 / float64(total)
	}

	errText := statsValueStyle.Render("0.0%")
	if errorPercent > 0 {
		errText = errorStyle.Render(fmt.Sprintf("%.1f%%", errorPercent))
	}
	timeouts := statsValueStyle.Render(fmt.Sprintf("%d", m.consecutiveTimeouts))
	if m.consecutiveTimeouts > 0 {
		timeouts = errorStyle.Render(fmt.Sprintf("%d", m.consecutiveTimeouts))
	}

	content := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s  %s %s",
		statsLabelStyle.Render("Exchanges:"), statsValueStyle.Render(fmt.Sprintf("%d", st.Exchanges())),
		statsLabelStyle.Render("Valid:"), statsValueStyle.Render(fmt.Sprintf("%.1f%%", st.SuccessPercent())),
		statsLabelStyle.Render("Errors:"), errText,
		statsLabelStyle.Render("Missed:"), timeouts,
		statsLabelStyle.Render("Rate:"), statsValueStyle.Render(fmt.Sprintf("%.1f/s", st.ExchangeRate)),
	)

	return boxStyle.Width(m.width - 4).Render(content)
}

func (m controlModel) renderEventLog(statsLabelStyle, warningStyle, boxStyle lipgloss.Style) string {
	var s strings.Builder
	s.WriteString(statsLabelStyle.Render("EVENTS"))
	s.WriteString("\n")

	headerStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyleLocal := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)

	logHeight := 8
	if len(m.errorLog) < logHeight {
		logHeight = len(m.errorLog)
	}
	startIdx := len(m.errorLog) - logHeight

	if len(m.errorLog) == 0 {
		s.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.errorLog); i++ {
			entry := m.errorLog[i]
			icon := "i"
			style := warningStyle
			if entry.isError {
				icon = "x"
				style = errorStyleLocal
			}
			s.WriteString(fmt.Sprintf("%s %s %s\n",
				headerStyle.Render(entry.timestamp.Format("15:04:05.000")),
				style.Render(icon),
				entry.message))
		}
	}

	return boxStyle.Width(m.width - 4).Render(s.String())
}

//////////////////////////////////////////////////////////////
// Event Processing
//////////////////////////////////////////////////////////////

func (m *controlModel) processEvent(ev LinkEvent) {
	m.stats = ev.Stats
	m.stats.CalculateRates(ev.Time)
	m.consecutiveTimeouts = ev.ConsecutiveTimeouts

	switch {
	case ev.Outcome == xye.OutcomeResponse:
		m.applyStatus(ev)

	case ev.Outcome == xye.OutcomeCommandSent, ev.Outcome == xye.OutcomeLockSent:
		m.addLogEntry(fmt.Sprintf("Sent %s: %s", xye.FormatCommandType(ev.Sent.CommandType()), xye.FormatFrame(ev.Sent.Bytes())), false)

	case ev.Outcome.Failed():
		msg := fmt.Sprintf("%s: %v", ev.Outcome, ev.Err)
		if ev.Sent.CommandType() == xye.CmdSet {
			msg += " (command not confirmed, press Enter to resend)"
		}
		m.addLogEntry(msg, true)
	}
}

func (m *controlModel) applyStatus(ev LinkEvent) {
	if !ev.HasStatus {
		return
	}
	prev, hadStatus := m.status, m.hasStatus

	m.status = ev.Status
	m.hasStatus = true
	m.updatedAt = ev.Time
	m.lastFrame = ev.Frame

	if !m.haveIntent {
		m.intent = xye.CommandIntent{
			Mode:     ev.Status.Mode,
			Fan:      ev.Status.Fan,
			Setpoint: ev.Status.Setpoint,
		}
		if m.intent.Validate() == nil {
			m.haveIntent = true
			m.selectIntent()
		}
		m.addLogEntry("Unit answered: "+xye.FormatStatusLine(ev.Status), false)
	} else if hadStatus && xye.FormatStatusLine(prev) != xye.FormatStatusLine(ev.Status) {
		m.addLogEntry(xye.FormatStatusLine(ev.Status), false)
	}

	for _, a := range ev.Anomalies {
		m.addLogEntry("ANOMALY: "+a.Message, true)
	}
}

//////////////////////////////////////////////////////////////
// Commands
//////////////////////////////////////////////////////////////

func (m *controlModel) adjustSetpoint(delta int) {
	if !m.haveIntent {
		return
	}
	sp := int(m.intent.Setpoint) + delta
	if sp < xye.MinSetpoint || sp > xye.MaxSetpoint {
		return
	}
	m.intent.Setpoint = uint8(sp)
	m.sendIntent()
}

// sendIntent queues the current intent; the link debounce collapses bursts
func (m *controlModel) sendIntent() {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return
	}
	if err := m.ctl.SetCommand(m.intent); err != nil {
		m.addLogEntry(fmt.Sprintf("Failed to queue command: %v", err), true)
		return
	}
	m.addLogEntry("Queued "+xye.FormatIntent(m.intent), false)
}

func (m *controlModel) toggleLock() {
	if m.connectionLost {
		m.addLogEntry("Cannot send command: connection lost", true)
		return
	}
	want := !m.locked
	if err := m.ctl.SetKeypadLock(want); err != nil {
		m.addLogEntry(fmt.Sprintf("Failed to queue lock: %v", err), true)
		return
	}
	m.locked = want
	if want {
		m.addLogEntry("Queued keypad LOCK", false)
	} else {
		m.addLogEntry("Queued keypad UNLOCK", false)
	}
}

func (m *controlModel) copyLastFrame() {
	if len(m.lastFrame) == 0 {
		m.addLogEntry("No response frame to copy", true)
		return
	}
	if err := clipboard.WriteAll(xye.FormatFrame(m.lastFrame)); err != nil {
		m.addLogEntry(fmt.Sprintf("Clipboard error: %v", err), true)
		return
	}
	m.addLogEntry("Last response frame copied to clipboard", false)
}

//////////////////////////////////////////////////////////////
// Helpers
//////////////////////////////////////////////////////////////

func (m *controlModel) addLogEntry(message string, isError bool) {
	entry := errorLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.errorLog = append(m.errorLog, entry)

	if len(m.errorLog) > m.maxLogEntries {
		m.errorLog = m.errorLog[len(m.errorLog)-m.maxLogEntries:]
	}
}

// selectIntent moves the list cursors to the intent's mode and fan
func (m *controlModel) selectIntent() {
	for i, md := range controlModes {
		if md == m.intent.Mode {
			m.modeList.Select(i)
		}
	}
	for i, f := range controlFans {
		if f == m.intent.Fan {
			m.fanList.Select(i)
		}
	}
}

func (m *controlModel) updateListSize() {
	listHeight := m.height / 3
	if listHeight < 8 {
		listHeight = 8
	}
	m.modeList.SetSize(24, listHeight)
	m.fanList.SetSize(24, listHeight)
}
