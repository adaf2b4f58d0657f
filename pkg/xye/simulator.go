// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xye

import "sync"

// Simulator is an in-memory air handler implementing Channel. It answers
// each valid command frame with a response built from its unit state, and
// applies control and lock frames to that state.
//
// Replies become readable after Latency calls to BytesAvailable, and are
// released Chunk bytes at a time when Chunk is positive.
type Simulator struct {
	mu sync.Mutex

	unit   Status
	locked bool

	latency int
	chunk   int

	mute        bool
	corruptNext bool

	reply []byte // scheduled, not yet readable
	wait  int
	rx    []byte // readable by the Link

	txLog    [][]byte
	received uint64
	rejected uint64
}

// DefaultSimulatorStatus is the unit state used by demo mode.
func DefaultSimulatorStatus() Status {
	s := NewStatus(ModeCool, FanAuto, 72)
	s.InletTemp = 78
	s.CoilATemp = 55
	s.CoilBTemp = 56
	s.OutsideTemp = 88
	s.SetCapabilities(Capabilities{ExtTempSensor: true, SwingSupported: true})
	return s
}

// NewSimulator creates a simulator in the given unit state.
func NewSimulator(initial Status) *Simulator {
	return &Simulator{unit: initial}
}

// SetLatency sets how many availability checks pass before a reply can be
// read.
func (s *Simulator) SetLatency(polls int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latency = polls
}

// SetChunk splits replies into pieces of n bytes per availability check.
// Zero releases the whole reply at once.
func (s *Simulator) SetChunk(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunk = n
}

// SetMute stops the simulator from answering while muted.
func (s *Simulator) SetMute(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mute = muted
}

// CorruptNext flips a payload bit in the next reply so it fails the
// checksum.
func (s *Simulator) CorruptNext() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corruptNext = true
}

// InjectRx makes raw bytes readable immediately, as line noise or a late
// reply would be.
func (s *Simulator) InjectRx(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rx = append(s.rx, data...)
}

// Write implements Channel. Frames that fail marker or checksum checks are
// ignored without a reply.
func (s *Simulator) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	frame := make([]byte, len(p))
	copy(frame, p)
	s.txLog = append(s.txLog, frame)

	if err := ValidateCommandFrame(frame); err != nil {
		s.rejected++
		return len(p), nil
	}
	s.received++

	switch frame[sendCmdType] {
	case CmdSet:
		intent, _, _ := DecodeCommandFrame(frame)
		s.apply(intent)
	case CmdLock:
		s.locked = true
	case CmdUnlock:
		s.locked = false
	}
	s.drift()

	if s.mute {
		return len(p), nil
	}

	resp := EncodeResponse(s.unit)
	if s.corruptNext {
		s.corruptNext = false
		resp[recTemp] ^= 0x01
	}
	s.reply = resp[:]
	s.wait = s.latency
	return len(p), nil
}

// apply copies a control intent into the unit state. Intents with values
// the unit does not know are ignored.
func (s *Simulator) apply(intent CommandIntent) {
	modeByte, ok := intent.Mode.Byte()
	if !ok {
		return
	}
	fanByte, ok := intent.Fan.Byte()
	if !ok {
		return
	}
	s.unit.ModeByte = modeByte
	s.unit.Mode = DecodeMode(modeByte)
	s.unit.FanByte = fanByte
	s.unit.Fan = DecodeFanSpeed(fanByte)
	s.unit.Setpoint = intent.Setpoint
	s.unit.TimerStart = intent.Timer1
	s.unit.TimerStop = intent.Timer2
}

// drift moves the inlet temperature one degree toward the setpoint while
// the unit is cooling or heating.
func (s *Simulator) drift() {
	switch {
	case s.unit.Mode == ModeCool && s.unit.InletTemp > s.unit.Setpoint:
		s.unit.InletTemp--
	case s.unit.Mode == ModeHeat && s.unit.InletTemp < s.unit.Setpoint:
		s.unit.InletTemp++
	}
}

// BytesAvailable implements Channel. Each call advances the reply latency.
func (s *Simulator) BytesAvailable() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.reply) > 0 {
		if s.wait > 0 {
			s.wait--
		} else {
			n := len(s.reply)
			if s.chunk > 0 && s.chunk < n {
				n = s.chunk
			}
			s.rx = append(s.rx, s.reply[:n]...)
			s.reply = s.reply[n:]
		}
	}
	return len(s.rx)
}

// ReadAvailable implements Channel.
func (s *Simulator) ReadAvailable() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rx) == 0 {
		return nil
	}
	out := s.rx
	s.rx = nil
	return out
}

// Unit returns the simulated unit state.
func (s *Simulator) Unit() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unit
}

// SetUnit replaces the simulated unit state.
func (s *Simulator) SetUnit(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unit = st
}

// Locked reports whether the keypad lock is engaged.
func (s *Simulator) Locked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locked
}

// TxLog returns a copy of every frame written to the simulator.
func (s *Simulator) TxLog() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.txLog))
	copy(out, s.txLog)
	return out
}

// Counts returns how many written frames were accepted and ignored.
func (s *Simulator) Counts() (received, rejected uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.received, s.rejected
}
