// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xye

import (
	"errors"
	"testing"
	"time"
)

// stubChannel records writes and hands out injected bytes
type stubChannel struct {
	rx       []byte
	tx       [][]byte
	writeErr error
	shortBy  int
}

func (c *stubChannel) Write(p []byte) (int, error) {
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	frame := make([]byte, len(p))
	copy(frame, p)
	c.tx = append(c.tx, frame)
	return len(p) - c.shortBy, nil
}

func (c *stubChannel) BytesAvailable() int { return len(c.rx) }

func (c *stubChannel) ReadAvailable() []byte {
	out := c.rx
	c.rx = nil
	return out
}

func (c *stubChannel) InjectRx(data []byte) {
	c.rx = append(c.rx, data...)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type linkHarness struct {
	t     *testing.T
	link  *Link
	clock *fakeClock
}

func newLinkHarness(t *testing.T, ch Channel) *linkHarness {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cfg := DefaultLinkConfig()
	cfg.Clock = clock.Now

	link, err := NewLink(ch, cfg)
	if err != nil {
		t.Fatalf("NewLink failed: %v", err)
	}
	return &linkHarness{t: t, link: link, clock: clock}
}

// tick runs one Tick and then advances the clock by one tick period
func (h *linkHarness) tick() Outcome {
	out := h.link.Tick()
	h.clock.Advance(h.link.Config().TickPeriod)
	return out
}

// runUntil ticks until the wanted outcome or fails after limit ticks
func (h *linkHarness) runUntil(want Outcome, limit int) {
	h.t.Helper()
	for i := 0; i < limit; i++ {
		if h.tick() == want {
			return
		}
	}
	h.t.Fatalf("no %s outcome within %d ticks (state %s)", want, limit, h.link.State())
}

// runFor ticks for the given span of simulated time
func (h *linkHarness) runFor(d time.Duration) []Outcome {
	var outcomes []Outcome
	end := h.clock.Now().Add(d)
	for h.clock.Now().Before(end) {
		outcomes = append(outcomes, h.tick())
	}
	return outcomes
}

func countType(frames [][]byte, cmdType byte) int {
	n := 0
	for _, f := range frames {
		if len(f) == CommandLen && f[sendCmdType] == cmdType {
			n++
		}
	}
	return n
}

func TestLink_FirstTickPolls(t *testing.T) {
	ch := &stubChannel{}
	h := newLinkHarness(t, ch)

	if out := h.tick(); out != OutcomePollSent {
		t.Fatalf("first tick = %s, want poll sent", out)
	}
	if len(ch.tx) != 1 || countType(ch.tx, CmdQuery) != 1 {
		t.Fatalf("expected one poll frame, got %d frames", len(ch.tx))
	}
	if h.link.State() != StateAwaitingResponse {
		t.Errorf("state = %s, want AWAITING_RESPONSE", h.link.State())
	}
	if _, ok := h.link.InFlight(); !ok {
		t.Error("InFlight() reported nothing in flight")
	}
	if _, ok := h.link.Status(); ok {
		t.Error("status must be unknown before the first response")
	}
}

func TestLink_ResponseUpdatesStatus(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorStatus())
	h := newLinkHarness(t, sim)

	h.runUntil(OutcomeResponse, 5)

	s, ok := h.link.Status()
	if !ok {
		t.Fatal("status not updated after response")
	}
	if s.Mode != ModeCool || s.Setpoint != 72 {
		t.Errorf("status = %s", FormatStatusLine(s))
	}
	if h.link.State() != StateIdle {
		t.Errorf("state = %s, want IDLE", h.link.State())
	}
	if len(h.link.LastResponse()) != ResponseLen {
		t.Errorf("LastResponse length = %d", len(h.link.LastResponse()))
	}
	if h.link.UpdatedAt().IsZero() {
		t.Error("UpdatedAt not set")
	}
	stats := h.link.Statistics()
	if stats.PollsSent != 1 || stats.Responses != 1 {
		t.Errorf("stats polls=%d responses=%d", stats.PollsSent, stats.Responses)
	}
}

func TestLink_TimeoutLeavesStatusUnchanged(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorStatus())
	h := newLinkHarness(t, sim)

	h.runUntil(OutcomeResponse, 5)
	before, _ := h.link.Status()
	beforeAt := h.link.UpdatedAt()

	sim.SetMute(true)
	h.runUntil(OutcomePollSent, 200)

	for i := 0; i < h.link.TimeoutTicks(); i++ {
		if out := h.tick(); out != OutcomeNone {
			t.Fatalf("tick %d after send = %s, want none", i+1, out)
		}
	}
	if out := h.tick(); out != OutcomeTimeout {
		t.Fatalf("expected timeout, got %s", out)
	}

	after, ok := h.link.Status()
	if !ok || after != before {
		t.Errorf("status changed on timeout:\n  before %s\n  after  %s", FormatStatusLine(before), FormatStatusLine(after))
	}
	if !h.link.UpdatedAt().Equal(beforeAt) {
		t.Error("UpdatedAt changed on timeout")
	}
	if got := h.link.ConsecutiveTimeouts(); got != 1 {
		t.Errorf("ConsecutiveTimeouts = %d, want 1", got)
	}
	if !errors.Is(h.link.LastError(), ErrLinkTimeout) {
		t.Errorf("LastError = %v, want ErrLinkTimeout", h.link.LastError())
	}
	if h.link.State() != StateIdle {
		t.Errorf("state = %s, want IDLE", h.link.State())
	}
}

func TestLink_ConsecutiveTimeoutsResetOnResponse(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorStatus())
	sim.SetMute(true)
	h := newLinkHarness(t, sim)

	h.runUntil(OutcomeTimeout, 100)
	h.runUntil(OutcomeTimeout, 200)
	if got := h.link.ConsecutiveTimeouts(); got != 2 {
		t.Fatalf("ConsecutiveTimeouts = %d, want 2", got)
	}

	sim.SetMute(false)
	h.runUntil(OutcomeResponse, 200)
	if got := h.link.ConsecutiveTimeouts(); got != 0 {
		t.Errorf("ConsecutiveTimeouts = %d after response, want 0", got)
	}
	if h.link.LastError() != nil {
		t.Errorf("LastError = %v after response, want nil", h.link.LastError())
	}
}

func TestLink_DebounceCoalescesIntents(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorStatus())
	h := newLinkHarness(t, sim)

	a := CommandIntent{Mode: ModeHeat, Fan: FanLow, Setpoint: 68}
	b := CommandIntent{Mode: ModeCool, Fan: FanHigh, Setpoint: 74}

	if err := h.link.SetCommand(a); err != nil {
		t.Fatalf("SetCommand(a): %v", err)
	}
	h.runFor(100 * time.Millisecond)
	if err := h.link.SetCommand(b); err != nil {
		t.Fatalf("SetCommand(b): %v", err)
	}
	h.runFor(2 * time.Second)

	tx := sim.TxLog()
	if n := countType(tx, CmdSet); n != 1 {
		t.Fatalf("expected 1 command frame, got %d", n)
	}
	for _, f := range tx {
		if f[sendCmdType] != CmdSet {
			continue
		}
		got, _, err := DecodeCommandFrame(f)
		if err != nil {
			t.Fatalf("command frame invalid: %v", err)
		}
		if got != b {
			t.Errorf("command carries %s, want %s", FormatIntent(got), FormatIntent(b))
		}
	}
	if h.link.Coalesced() != 1 {
		t.Errorf("Coalesced = %d, want 1", h.link.Coalesced())
	}

	s, _ := h.link.Status()
	if s.Mode != ModeCool || s.Fan != FanHigh || s.Setpoint != 74 {
		t.Errorf("unit did not apply command: %s", FormatStatusLine(s))
	}
}

func TestLink_CommandWaitsForDebounce(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorStatus())
	h := newLinkHarness(t, sim)
	h.runUntil(OutcomeResponse, 5)

	if err := h.link.SetCommand(CommandIntent{Mode: ModeDry, Fan: FanAuto, Setpoint: 70}); err != nil {
		t.Fatal(err)
	}
	h.runFor(h.link.Config().Debounce - 20*time.Millisecond)
	if n := countType(sim.TxLog(), CmdSet); n != 0 {
		t.Fatalf("command sent before debounce elapsed")
	}
	if _, ok := h.link.PendingCommand(); !ok {
		t.Fatal("command no longer pending")
	}
	h.runUntil(OutcomeCommandSent, 10)
}

func TestLink_ZeroDebounceSendsOnNextIdleTick(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorStatus())
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cfg := DefaultLinkConfig()
	cfg.Clock = clock.Now
	cfg.Debounce = 0

	link, err := NewLink(sim, cfg)
	if err != nil {
		t.Fatalf("NewLink failed: %v", err)
	}
	if got := link.Config().Debounce; got != 0 {
		t.Fatalf("debounce = %v, want 0", got)
	}
	h := &linkHarness{t: t, link: link, clock: clock}
	h.runUntil(OutcomeResponse, 5)

	if err := link.SetCommand(CommandIntent{Mode: ModeHeat, Fan: FanLow, Setpoint: 68}); err != nil {
		t.Fatal(err)
	}
	if out := h.tick(); out != OutcomeCommandSent {
		t.Errorf("tick after SetCommand = %s, want command sent", out)
	}
}

func TestLink_SetCommandRejectsInvalidIntent(t *testing.T) {
	h := newLinkHarness(t, &stubChannel{})

	err := h.link.SetCommand(CommandIntent{Mode: ModeUnknown, Fan: FanAuto})
	if !errors.Is(err, ErrInvalidIntent) {
		t.Fatalf("got %v, want ErrInvalidIntent", err)
	}
	if _, ok := h.link.PendingCommand(); ok {
		t.Error("invalid intent was queued")
	}
}

func TestLink_TimedOutCommandNotRequeued(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorStatus())
	sim.SetMute(true)
	h := newLinkHarness(t, sim)

	if err := h.link.SetCommand(CommandIntent{Mode: ModeHeat, Fan: FanMedium, Setpoint: 76}); err != nil {
		t.Fatal(err)
	}
	h.runUntil(OutcomeCommandSent, 100)
	h.runUntil(OutcomeTimeout, 100)
	h.runFor(3 * time.Second)

	if n := countType(sim.TxLog(), CmdSet); n != 1 {
		t.Errorf("command frames sent = %d, want 1", n)
	}
	if _, ok := h.link.PendingCommand(); ok {
		t.Error("timed out command is pending again")
	}
}

func TestLink_LockPriority(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorStatus())
	h := newLinkHarness(t, sim)
	h.runUntil(OutcomeResponse, 5)

	h.link.SetKeypadLock(true)
	if err := h.link.SetCommand(CommandIntent{Mode: ModeCool, Fan: FanLow, Setpoint: 70}); err != nil {
		t.Fatal(err)
	}
	h.runFor(h.link.Config().Debounce)

	h.runUntil(OutcomeResponse, 100)
	h.runFor(500 * time.Millisecond)

	var types []byte
	for _, f := range sim.TxLog() {
		types = append(types, f[sendCmdType])
	}

	// poll, then the lock frame while the command debounces, then the command
	want := []byte{CmdQuery, CmdLock, CmdSet}
	if len(types) < len(want) {
		t.Fatalf("frames = % X, want prefix % X", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("frames = % X, want prefix % X", types, want)
		}
	}
	if !sim.Locked() {
		t.Error("simulator keypad not locked")
	}
}

func TestLink_CommandBeforeLockWhenBothReady(t *testing.T) {
	ch := &stubChannel{}
	h := newLinkHarness(t, ch)

	if err := h.link.SetCommand(CommandIntent{Mode: ModeCool, Fan: FanLow, Setpoint: 70}); err != nil {
		t.Fatal(err)
	}
	h.link.SetKeypadLock(false)
	h.clock.Advance(time.Second)

	if out := h.tick(); out != OutcomeCommandSent {
		t.Fatalf("first frame = %s, want command", out)
	}
	ch.InjectRx(EncodeResponse(DefaultSimulatorStatus()).Bytes())
	h.runUntil(OutcomeResponse, 3)

	if out := h.tick(); out != OutcomeLockSent {
		t.Fatalf("second frame = %s, want lock", out)
	}
	if ch.tx[1][sendCmdType] != CmdUnlock {
		t.Errorf("lock frame type = 0x%02X, want unlock", ch.tx[1][sendCmdType])
	}
}

func TestLink_PollInterval(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorStatus())
	h := newLinkHarness(t, sim)

	h.runFor(5*time.Second - time.Millisecond)
	if n := countType(sim.TxLog(), CmdQuery); n != 5 {
		t.Errorf("polls in 5s = %d, want 5", n)
	}
}

func TestLink_StaleBytesDrainedBeforeSend(t *testing.T) {
	ch := &stubChannel{}
	ch.InjectRx([]byte{0x12, 0x34, 0x56})
	h := newLinkHarness(t, ch)

	h.tick()
	if got := h.link.Statistics().StaleBytes; got != 3 {
		t.Errorf("StaleBytes = %d, want 3", got)
	}
	if ch.BytesAvailable() != 0 {
		t.Error("stale bytes left in channel")
	}
}

func TestLink_LateResponseIsDiscarded(t *testing.T) {
	ch := &stubChannel{}
	h := newLinkHarness(t, ch)

	h.runUntil(OutcomeTimeout, 100)

	// The unit answers after the master gave up
	ch.InjectRx(EncodeResponse(DefaultSimulatorStatus()).Bytes())
	h.runUntil(OutcomePollSent, 200)

	if _, ok := h.link.Status(); ok {
		t.Error("late response was accepted")
	}
	if got := h.link.Statistics().StaleBytes; got != ResponseLen {
		t.Errorf("StaleBytes = %d, want %d", got, ResponseLen)
	}
}

func TestLink_CorruptResponseRejected(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorStatus())
	sim.CorruptNext()
	h := newLinkHarness(t, sim)

	h.runUntil(OutcomeRejected, 5)

	if _, ok := h.link.Status(); ok {
		t.Error("corrupt response updated status")
	}
	if !errors.Is(h.link.LastError(), ErrChecksumMismatch) {
		t.Errorf("LastError = %v, want ErrChecksumMismatch", h.link.LastError())
	}
	stats := h.link.Statistics()
	if stats.ChecksumErrors != 1 || h.link.ConsecutiveTimeouts() != 1 {
		t.Errorf("checksum errors=%d consecutive=%d", stats.ChecksumErrors, h.link.ConsecutiveTimeouts())
	}

	h.runUntil(OutcomeResponse, 200)
}

func TestLink_SplitResponse(t *testing.T) {
	sim := NewSimulator(DefaultSimulatorStatus())
	sim.SetChunk(5)
	sim.SetLatency(2)
	h := newLinkHarness(t, sim)

	h.runUntil(OutcomeResponse, h.link.TimeoutTicks())
	if _, ok := h.link.Status(); !ok {
		t.Error("split response not assembled")
	}
}

func TestLink_ExtraBytesAfterFrame(t *testing.T) {
	ch := &stubChannel{}
	h := newLinkHarness(t, ch)

	h.tick()
	ch.InjectRx(append(EncodeResponse(DefaultSimulatorStatus()).Bytes(), 0xEE, 0xEF))

	if out := h.tick(); out != OutcomeResponse {
		t.Fatalf("got %s, want response", out)
	}
	if got := h.link.Statistics().StaleBytes; got != 2 {
		t.Errorf("StaleBytes = %d, want 2", got)
	}
}

func TestLink_WriteFailure(t *testing.T) {
	tests := []struct {
		name string
		ch   *stubChannel
		want error
	}{
		{"write error", &stubChannel{writeErr: errors.New("port closed")}, nil},
		{"short write", &stubChannel{shortBy: 4}, ErrShortWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newLinkHarness(t, tt.ch)

			if out := h.tick(); out != OutcomeWriteFailed {
				t.Fatalf("got %s, want write failed", out)
			}
			if h.link.State() != StateIdle {
				t.Errorf("state = %s, want IDLE", h.link.State())
			}
			if h.link.ConsecutiveTimeouts() != 1 {
				t.Errorf("ConsecutiveTimeouts = %d, want 1", h.link.ConsecutiveTimeouts())
			}
			if h.link.Statistics().WriteErrors != 1 {
				t.Errorf("WriteErrors = %d, want 1", h.link.Statistics().WriteErrors)
			}
			if tt.want != nil && !errors.Is(h.link.LastError(), tt.want) {
				t.Errorf("LastError = %v, want %v", h.link.LastError(), tt.want)
			}
		})
	}
}

func TestLink_AnomaliesReported(t *testing.T) {
	unit := DefaultSimulatorStatus()
	unit.Fault = FaultCode{ErrorLow: 0x01}
	sim := NewSimulator(unit)
	h := newLinkHarness(t, sim)

	h.runUntil(OutcomeResponse, 5)

	anomalies := h.link.Anomalies()
	if len(anomalies) != 1 || anomalies[0].Type != AnomalyFaultActive {
		t.Errorf("anomalies = %+v", anomalies)
	}
	if h.link.Statistics().Anomalies != 1 {
		t.Errorf("Anomalies counter = %d", h.link.Statistics().Anomalies)
	}
}

func TestLinkConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*LinkConfig)
		wantErr bool
	}{
		{"defaults", func(c *LinkConfig) {}, false},
		{"timeout shorter than frame", func(c *LinkConfig) { c.ResponseTimeout = 50 * time.Millisecond }, true},
		{"timeout equal to frame", func(c *LinkConfig) { c.ResponseTimeout = FrameDuration(ResponseLen, c.Baud) }, true},
		{"fast baud short timeout", func(c *LinkConfig) {
			c.Baud = 115200
			c.ResponseTimeout = 20 * time.Millisecond
		}, false},
		{"zero tick", func(c *LinkConfig) { c.TickPeriod = 0 }, true},
		{"negative debounce", func(c *LinkConfig) { c.Debounce = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultLinkConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %t", err, tt.wantErr)
			}
		})
	}
}

func TestNewLink_Errors(t *testing.T) {
	if _, err := NewLink(nil, DefaultLinkConfig()); err == nil {
		t.Error("expected error for nil channel")
	}

	cfg := DefaultLinkConfig()
	cfg.ResponseTimeout = 10 * time.Millisecond
	if _, err := NewLink(&stubChannel{}, cfg); err == nil {
		t.Error("expected error for short response timeout")
	}
}

func TestNewLink_TimeoutTicks(t *testing.T) {
	tests := []struct {
		timeout time.Duration
		tick    time.Duration
		want    int
	}{
		{250 * time.Millisecond, 10 * time.Millisecond, 25},
		{255 * time.Millisecond, 10 * time.Millisecond, 26},
		{100 * time.Millisecond, 100 * time.Millisecond, 1},
	}

	for _, tt := range tests {
		cfg := DefaultLinkConfig()
		cfg.ResponseTimeout = tt.timeout
		cfg.TickPeriod = tt.tick
		link, err := NewLink(&stubChannel{}, cfg)
		if err != nil {
			t.Fatalf("NewLink: %v", err)
		}
		if got := link.TimeoutTicks(); got != tt.want {
			t.Errorf("timeout %v / tick %v = %d ticks, want %d", tt.timeout, tt.tick, got, tt.want)
		}
	}
}
