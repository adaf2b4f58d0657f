// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Thermoquad/xyestat/pkg/xye"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Interactive TUI for controlling the air handler",
	Long: `Control a Midea air handler via an interactive terminal UI.

The TUI polls the unit continuously and shows its latest status next to the
controls. Changes to mode, fan, and setpoint are sent as a single command once
editing pauses, so stepping the setpoint several degrees produces one frame.

Keys:
  Tab / Shift+Tab  switch between mode, fan, and setpoint
  Up / Down        move within a list
  Enter            apply the highlighted mode or fan speed
  + / -            raise or lower the setpoint
  l                toggle the keypad lock
  y                copy the last response frame as hex
  q                quit

The link reconnects automatically when a WebSocket or serial connection drops.`,
	RunE: runControl,
}

func init() {
	rootCmd.AddCommand(controlCmd)
}

// connectionManager owns the transport and runner across reconnects
type connectionManager struct {
	tr       *Transport
	runner   *Runner
	connInfo string
	mu       sync.RWMutex
	p        *tea.Program
	done     chan struct{}
	log      zerolog.Logger
}

func (cm *connectionManager) getRunner() *Runner {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.runner
}

func (cm *connectionManager) setSession(tr *Transport, runner *Runner) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.tr = tr
	cm.runner = runner
	if tr != nil {
		cm.connInfo = tr.Description
	}
}

func (cm *connectionManager) closeTransport() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.tr != nil {
		cm.tr.Close()
		cm.tr = nil
	}
	cm.runner = nil
}

// SetCommand forwards an intent to the current runner
func (cm *connectionManager) SetCommand(intent xye.CommandIntent) error {
	r := cm.getRunner()
	if r == nil {
		return ErrChannelClosed
	}
	return r.SetCommand(intent)
}

// SetKeypadLock forwards a lock request to the current runner
func (cm *connectionManager) SetKeypadLock(locked bool) error {
	r := cm.getRunner()
	if r == nil {
		return ErrChannelClosed
	}
	return r.SetKeypadLock(locked)
}

// openSession opens the transport and a runner over it. The runner logs
// nowhere so the TUI owns the terminal.
func (cm *connectionManager) openSession() error {
	tr, err := OpenTransport(cfg)
	if err != nil {
		return err
	}
	lc, err := cfg.LinkConfig()
	if err != nil {
		tr.Close()
		return err
	}
	runner, err := NewRunner(tr.Channel, lc, cm.log)
	if err != nil {
		tr.Close()
		return err
	}
	cm.setSession(tr, runner)
	return nil
}

func runControl(cmd *cobra.Command, args []string) error {
	cm := &connectionManager{
		done: make(chan struct{}),
		log:  zerolog.Nop(),
	}
	if err := cm.openSession(); err != nil {
		return err
	}

	m := initialControlModel(cm, cm.connInfo)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())
	cm.p = p

	go cm.sessionLoop()

	_, err := p.Run()
	close(cm.done)
	cm.closeTransport()
	if err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}

// sessionLoop runs the link and reconnects whenever the channel closes
func (cm *connectionManager) sessionLoop() {
	for {
		err := cm.runSession()

		select {
		case <-cm.done:
			return
		default:
		}

		cm.p.Send(connectionLostMsg{err: err})
		if !cm.reconnect() {
			return
		}
	}
}

// runSession drives the current runner until its channel closes or the
// TUI exits, forwarding events to the program in batches
func (cm *connectionManager) runSession() error {
	runner := cm.getRunner()
	if runner == nil {
		return ErrChannelClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-cm.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	runErr := make(chan error, 1)
	go func() {
		runErr <- runner.Run(ctx)
	}()

	events := runner.Events()
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var batch controlBatchMsg
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				if len(batch.events) > 0 {
					cm.p.Send(batch)
				}
				err := <-runErr
				if err == nil {
					err = ErrChannelClosed
				}
				return err
			}
			batch.events = append(batch.events, ev)

		case <-ticker.C:
			if len(batch.events) > 0 {
				cm.p.Send(batch)
				batch = controlBatchMsg{}
			}
		}
	}
}

// reconnect attempts to reconnect with exponential backoff
// Returns false if shutdown was requested during reconnection
func (cm *connectionManager) reconnect() bool {
	cm.closeTransport()

	backoff := 1 * time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-cm.done:
			return false
		case <-time.After(backoff):
		}

		err := cm.openSession()
		if err == nil {
			cm.p.Send(reconnectedMsg{connInfo: cm.connInfo})
			return true
		}
		if errors.Is(err, errNoTransport) {
			return false
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
