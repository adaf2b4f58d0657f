// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/Thermoquad/xyestat/pkg/xye"
	"github.com/rs/zerolog"
)

// LinkEvent reports one completed step of the link
type LinkEvent struct {
	Time                time.Time
	Outcome             xye.Outcome
	Status              xye.Status
	HasStatus           bool
	Frame               []byte // accepted response, on OutcomeResponse
	Sent                xye.CommandFrame
	Err                 error
	ConsecutiveTimeouts int
	Anomalies           []xye.ValidationError
	Stats               xye.Statistics
}

// ErrChannelClosed is returned by Run when the transport stops delivering bytes
var ErrChannelClosed = errors.New("bus channel closed")

// streamEnd is implemented by channels backed by a reader goroutine
type streamEnd interface {
	Done() <-chan struct{}
	Err() error
}

// Runner owns a Link and drives it from a single goroutine. Other
// goroutines reach the link only through the Runner's request methods.
type Runner struct {
	link   *xye.Link
	ch     xye.Channel
	period time.Duration
	log    zerolog.Logger

	commands chan xye.CommandIntent
	locks    chan bool
	events   chan LinkEvent
	done     chan struct{}

	dropped uint64
}

// NewRunner creates a Runner over ch
func NewRunner(ch xye.Channel, lc xye.LinkConfig, log zerolog.Logger) (*Runner, error) {
	lc.Logger = &log
	link, err := xye.NewLink(ch, lc)
	if err != nil {
		return nil, err
	}
	return &Runner{
		link:     link,
		ch:       ch,
		period:   link.Config().TickPeriod,
		log:      log,
		commands: make(chan xye.CommandIntent, 8),
		locks:    make(chan bool, 2),
		events:   make(chan LinkEvent, 64),
		done:     make(chan struct{}),
	}, nil
}

// Events delivers link events. It is closed when Run returns.
func (r *Runner) Events() <-chan LinkEvent {
	return r.events
}

// SetCommand hands an intent to the link goroutine
func (r *Runner) SetCommand(intent xye.CommandIntent) error {
	if err := intent.Validate(); err != nil {
		return err
	}
	if r.stopped() {
		return ErrChannelClosed
	}
	select {
	case r.commands <- intent:
		return nil
	case <-r.done:
		return ErrChannelClosed
	}
}

// SetKeypadLock hands a keypad lock request to the link goroutine
func (r *Runner) SetKeypadLock(locked bool) error {
	if r.stopped() {
		return ErrChannelClosed
	}
	select {
	case r.locks <- locked:
		return nil
	case <-r.done:
		return ErrChannelClosed
	}
}

func (r *Runner) stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Run ticks the link until ctx is cancelled or the channel closes
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.events)
	defer close(r.done)

	var streamDone <-chan struct{}
	end, isStream := r.ch.(streamEnd)
	if isStream {
		streamDone = end.Done()
	}

	ticker := time.NewTicker(r.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-streamDone:
			if err := end.Err(); err != nil {
				return errors.Join(ErrChannelClosed, err)
			}
			return ErrChannelClosed

		case intent := <-r.commands:
			if err := r.link.SetCommand(intent); err != nil {
				r.log.Error().Err(err).Msg("command rejected")
			}

		case locked := <-r.locks:
			r.link.SetKeypadLock(locked)

		case <-ticker.C:
			var sent xye.CommandFrame
			if f, ok := r.link.InFlight(); ok {
				sent = f
			}
			out := r.link.Tick()
			if out == xye.OutcomeNone {
				continue
			}
			if f, ok := r.link.InFlight(); ok {
				sent = f
			}
			r.publish(out, sent)
		}
	}
}

func (r *Runner) publish(out xye.Outcome, sent xye.CommandFrame) {
	status, ok := r.link.Status()
	ev := LinkEvent{
		Time:                time.Now(),
		Outcome:             out,
		Status:              status,
		HasStatus:           ok,
		Sent:                sent,
		ConsecutiveTimeouts: r.link.ConsecutiveTimeouts(),
		Stats:               r.link.Statistics(),
	}
	switch {
	case out == xye.OutcomeResponse:
		ev.Frame = r.link.LastResponse()
		ev.Anomalies = r.link.Anomalies()
	case out.Failed():
		ev.Err = r.link.LastError()
	}

	select {
	case r.events <- ev:
	default:
		r.dropped++
		if r.dropped%100 == 1 {
			r.log.Warn().Uint64("dropped", r.dropped).Msg("event consumer too slow")
		}
	}
}
