// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xye

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// LinkState is the state of the request/response cycle.
type LinkState int

// Link states. Sending, Validating and TimedOut are passed through within a
// single Tick; between ticks the Link rests in Idle or AwaitingResponse.
const (
	StateIdle LinkState = iota
	StateSending
	StateAwaitingResponse
	StateValidating
	StateTimedOut
)

func (s LinkState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateSending:
		return "SENDING"
	case StateAwaitingResponse:
		return "AWAITING_RESPONSE"
	case StateValidating:
		return "VALIDATING"
	case StateTimedOut:
		return "TIMED_OUT"
	default:
		return "UNKNOWN"
	}
}

// Outcome tells the caller what a Tick did.
type Outcome int

// Tick outcomes
const (
	OutcomeNone Outcome = iota
	OutcomePollSent
	OutcomeCommandSent
	OutcomeLockSent
	OutcomeResponse
	OutcomeTimeout
	OutcomeRejected
	OutcomeWriteFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomePollSent:
		return "poll sent"
	case OutcomeCommandSent:
		return "command sent"
	case OutcomeLockSent:
		return "lock sent"
	case OutcomeResponse:
		return "response"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeRejected:
		return "rejected"
	case OutcomeWriteFailed:
		return "write failed"
	default:
		return "unknown"
	}
}

// Failed reports whether the outcome ended an exchange without a valid
// response.
func (o Outcome) Failed() bool {
	return o == OutcomeTimeout || o == OutcomeRejected || o == OutcomeWriteFailed
}

// LinkConfig configures a Link. A zero Baud, TickPeriod or ResponseTimeout
// takes the package default. PollInterval and Debounce are used as given, so
// zero polls on every idle tick and sends commands without delay.
type LinkConfig struct {
	Baud            int
	TickPeriod      time.Duration
	ResponseTimeout time.Duration
	PollInterval    time.Duration
	Debounce        time.Duration

	// Clock returns the current time; defaults to time.Now.
	Clock func() time.Time
	// Logger receives link events; defaults to a disabled logger.
	Logger *zerolog.Logger
}

// DefaultLinkConfig returns the configuration used for a real 4800 baud
// link ticked every 10ms.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		Baud:            DefaultBaud,
		TickPeriod:      DefaultTickPeriod,
		ResponseTimeout: DefaultResponseTimeout,
		PollInterval:    DefaultPollInterval,
		Debounce:        DefaultDebounce,
	}
}

func (c LinkConfig) withDefaults() LinkConfig {
	if c.Baud == 0 {
		c.Baud = DefaultBaud
	}
	if c.TickPeriod == 0 {
		c.TickPeriod = DefaultTickPeriod
	}
	if c.ResponseTimeout == 0 {
		c.ResponseTimeout = DefaultResponseTimeout
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	return c
}

// Validate checks that the timing is usable. The response timeout must
// exceed the time a full response takes on the wire.
func (c LinkConfig) Validate() error {
	if c.Baud <= 0 {
		return fmt.Errorf("invalid baud rate %d", c.Baud)
	}
	if c.TickPeriod <= 0 {
		return fmt.Errorf("tick period must be positive, got %v", c.TickPeriod)
	}
	if frameTime := FrameDuration(ResponseLen, c.Baud); c.ResponseTimeout <= frameTime {
		return fmt.Errorf("response timeout %v must exceed frame time %v at %d baud", c.ResponseTimeout, frameTime, c.Baud)
	}
	if c.ResponseTimeout < c.TickPeriod {
		return fmt.Errorf("response timeout %v shorter than tick period %v", c.ResponseTimeout, c.TickPeriod)
	}
	if c.PollInterval < 0 || c.Debounce < 0 {
		return fmt.Errorf("poll interval and debounce must not be negative")
	}
	return nil
}

// session is the transient context of the current exchange.
type session struct {
	inFlight            CommandFrame
	lastSentWasCommand  bool
	elapsedWaitTicks    int
	consecutiveTimeouts int
	cycleStart          time.Time
	rx                  []byte
}

// Link drives the XYE request/response cycle over a Channel. It holds at
// most one request in flight and never blocks: each Tick either makes
// progress or returns immediately.
//
// Link is not safe for concurrent use. One goroutine owns it and calls
// Tick at a period of TickPeriod or faster.
type Link struct {
	ch           Channel
	cfg          LinkConfig
	log          zerolog.Logger
	timeoutTicks int

	state LinkState
	queue *CommandQueue
	sess  session

	lockPending bool
	lockValue   bool

	status       Status
	hasStatus    bool
	updatedAt    time.Time
	lastResponse []byte
	lastErr      error
	anomalies    []ValidationError

	stats *Statistics
}

// NewLink creates a Link over ch.
func NewLink(ch Channel, cfg LinkConfig) (*Link, error) {
	if ch == nil {
		return nil, fmt.Errorf("xye: nil channel")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("xye: %w", err)
	}

	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = cfg.Logger.With().Str("component", "xye-link").Logger()
	}

	ticks := int(cfg.ResponseTimeout / cfg.TickPeriod)
	if cfg.ResponseTimeout%cfg.TickPeriod != 0 {
		ticks++
	}

	return &Link{
		ch:           ch,
		cfg:          cfg,
		log:          logger,
		timeoutTicks: ticks,
		state:        StateIdle,
		queue:        NewCommandQueue(cfg.Debounce),
		sess:         session{rx: make([]byte, 0, ResponseLen*2)},
		stats:        NewStatistics(cfg.Clock()),
	}, nil
}

// SetCommand queues an intent, replacing any intent not yet sent.
func (l *Link) SetCommand(intent CommandIntent) error {
	if err := intent.Validate(); err != nil {
		return err
	}
	if _, pending := l.queue.Pending(); pending {
		l.log.Debug().Msg("pending command superseded")
	}
	l.queue.Enqueue(intent, l.cfg.Clock())
	return nil
}

// SetKeypadLock requests a keypad lock or unlock frame. A newer request
// replaces one not yet sent.
func (l *Link) SetKeypadLock(locked bool) {
	l.lockPending = true
	l.lockValue = locked
}

// Tick advances the state machine by one step.
func (l *Link) Tick() Outcome {
	now := l.cfg.Clock()

	switch l.state {
	case StateIdle:
		frame, ok := l.nextFrame(now)
		if !ok {
			return OutcomeNone
		}
		l.setState(StateSending)
		return l.send(frame, now)

	case StateAwaitingResponse:
		return l.await(now)

	default:
		// Transient states do not survive a Tick
		l.setState(StateIdle)
		return OutcomeNone
	}
}

// nextFrame picks a debounced command, then a lock request, then a poll
// once the poll interval has passed since the last exchange started.
func (l *Link) nextFrame(now time.Time) (CommandFrame, bool) {
	if intent, ok := l.queue.TakeReady(now); ok {
		frame, err := EncodeCommand(intent)
		if err == nil {
			return frame, true
		}
		l.log.Error().Err(err).Msg("dropping unencodable intent")
	}

	if l.lockPending {
		l.lockPending = false
		return EncodeLock(l.lockValue), true
	}

	if l.sess.cycleStart.IsZero() || now.Sub(l.sess.cycleStart) >= l.cfg.PollInterval {
		return EncodePoll(), true
	}
	return CommandFrame{}, false
}

func (l *Link) send(frame CommandFrame, now time.Time) Outcome {
	// Anything already buffered belongs to an earlier exchange
	if n := l.ch.BytesAvailable(); n > 0 {
		stale := l.ch.ReadAvailable()
		l.stats.StaleBytes += uint64(len(stale))
		l.log.Debug().Int("bytes", len(stale)).Msg("discarded stale bytes before send")
	}
	l.sess.rx = l.sess.rx[:0]
	l.sess.cycleStart = now
	l.sess.inFlight = frame
	l.sess.lastSentWasCommand = frame.CommandType() == CmdSet

	n, err := l.ch.Write(frame.Bytes())
	if err == nil && n != CommandLen {
		err = fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, CommandLen)
	}
	if err != nil {
		l.stats.WriteErrors++
		l.stats.LastUpdateTime = now
		return l.fail(err, OutcomeWriteFailed)
	}

	l.stats.recordSent(frame, now)
	l.sess.elapsedWaitTicks = 0
	l.log.Debug().
		Str("type", fmt.Sprintf("0x%02X", frame.CommandType())).
		Hex("frame", frame.Bytes()).
		Msg("frame sent")
	l.setState(StateAwaitingResponse)

	switch frame.CommandType() {
	case CmdSet:
		return OutcomeCommandSent
	case CmdLock, CmdUnlock:
		return OutcomeLockSent
	default:
		return OutcomePollSent
	}
}

func (l *Link) await(now time.Time) Outcome {
	l.sess.elapsedWaitTicks++

	if l.ch.BytesAvailable() > 0 {
		l.sess.rx = append(l.sess.rx, l.ch.ReadAvailable()...)
	}

	if len(l.sess.rx) >= ResponseLen {
		l.setState(StateValidating)
		return l.validate(now)
	}

	if l.sess.elapsedWaitTicks > l.timeoutTicks {
		l.stats.Timeouts++
		l.stats.LastUpdateTime = now
		err := fmt.Errorf("%w after %d ticks (%d bytes received)", ErrLinkTimeout, l.sess.elapsedWaitTicks, len(l.sess.rx))
		l.sess.rx = l.sess.rx[:0]
		return l.fail(err, OutcomeTimeout)
	}
	return OutcomeNone
}

func (l *Link) validate(now time.Time) Outcome {
	frame := l.sess.rx[:ResponseLen]
	if extra := len(l.sess.rx) - ResponseLen; extra > 0 {
		l.stats.StaleBytes += uint64(extra)
		l.log.Debug().Int("bytes", extra).Msg("discarded bytes past response frame")
	}

	s, err := DecodeResponse(frame)
	if err != nil {
		l.stats.recordReject(err, now)
		l.log.Debug().Hex("frame", frame).Msg("rejected frame")
		l.sess.rx = l.sess.rx[:0]
		return l.fail(err, OutcomeRejected)
	}

	l.status = s
	l.hasStatus = true
	l.updatedAt = now
	l.lastResponse = append(l.lastResponse[:0], frame...)
	l.lastErr = nil
	l.sess.consecutiveTimeouts = 0
	l.sess.rx = l.sess.rx[:0]

	l.anomalies = ValidateStatus(s)
	l.stats.Anomalies += uint64(len(l.anomalies))
	l.stats.Responses++
	l.stats.LastUpdateTime = now

	l.log.Debug().
		Str("mode", s.Mode.String()).
		Str("fan", s.Fan.String()).
		Uint8("setpoint", s.Setpoint).
		Msg("response accepted")
	l.setState(StateIdle)
	return OutcomeResponse
}

// fail ends the exchange through TimedOut. The decoded status is left as
// it was, and a command that was in flight is not re-queued.
func (l *Link) fail(err error, outcome Outcome) Outcome {
	l.setState(StateTimedOut)
	l.sess.consecutiveTimeouts++
	l.lastErr = err

	ev := l.log.Warn().
		Err(err).
		Int("consecutive", l.sess.consecutiveTimeouts).
		Str("outcome", outcome.String())
	if l.sess.lastSentWasCommand {
		ev = ev.Bool("command_lost", true)
	}
	ev.Msg("exchange failed")

	l.setState(StateIdle)
	return outcome
}

func (l *Link) setState(to LinkState) {
	if l.state == to {
		return
	}
	l.log.Trace().Str("from", l.state.String()).Str("to", to.String()).Msg("link state")
	l.state = to
}

// State returns the current state.
func (l *Link) State() LinkState {
	return l.state
}

// Status returns the last known good status. ok is false until the first
// valid response arrives. The status may be stale; see UpdatedAt.
func (l *Link) Status() (Status, bool) {
	return l.status, l.hasStatus
}

// UpdatedAt returns when the status was last replaced.
func (l *Link) UpdatedAt() time.Time {
	return l.updatedAt
}

// ConsecutiveTimeouts returns the number of failed exchanges since the last
// valid response.
func (l *Link) ConsecutiveTimeouts() int {
	return l.sess.consecutiveTimeouts
}

// LastError returns the error of the last failed exchange, or nil after a
// valid response.
func (l *Link) LastError() error {
	return l.lastErr
}

// LastResponse returns a copy of the last accepted response frame.
func (l *Link) LastResponse() []byte {
	if len(l.lastResponse) == 0 {
		return nil
	}
	out := make([]byte, len(l.lastResponse))
	copy(out, l.lastResponse)
	return out
}

// Anomalies returns the anomalies found in the last accepted response.
func (l *Link) Anomalies() []ValidationError {
	return l.anomalies
}

// PendingCommand returns the queued intent that has not been sent yet.
func (l *Link) PendingCommand() (CommandIntent, bool) {
	return l.queue.Pending()
}

// InFlight returns the frame awaiting a response.
func (l *Link) InFlight() (CommandFrame, bool) {
	if l.state != StateAwaitingResponse {
		return CommandFrame{}, false
	}
	return l.sess.inFlight, true
}

// TimeoutTicks returns how many ticks the Link waits for a response.
func (l *Link) TimeoutTicks() int {
	return l.timeoutTicks
}

// Statistics returns a snapshot of the link counters.
func (l *Link) Statistics() Statistics {
	return *l.stats
}

// Coalesced returns how many queued intents were replaced before they were
// sent.
func (l *Link) Coalesced() uint64 {
	return l.queue.Coalesced()
}

// Config returns the effective configuration.
func (l *Link) Config() LinkConfig {
	return l.cfg
}
