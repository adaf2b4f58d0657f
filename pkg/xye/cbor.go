// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xye

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// maxSnapshotSize bounds a single record when reading a snapshot stream
const maxSnapshotSize = 1024

// Snapshot is a timestamped status, as recorded by monitor and read back
// by replay.
type Snapshot struct {
	Time   time.Time
	Status Status
	Frame  []byte // raw response frame, if recorded
}

// snapshotRecord is the CBOR map written for a Snapshot. Integer keys keep
// records compact.
type snapshotRecord struct {
	Time        int64  `cbor:"1,keyasint"` // unix milliseconds
	Mode        uint8  `cbor:"2,keyasint"` // raw mode byte
	Fan         uint8  `cbor:"3,keyasint"` // raw fan byte
	Setpoint    uint8  `cbor:"4,keyasint"`
	InletTemp   uint8  `cbor:"5,keyasint"`
	CoilATemp   uint8  `cbor:"6,keyasint"`
	CoilBTemp   uint8  `cbor:"7,keyasint"`
	OutsideTemp uint8  `cbor:"8,keyasint"`
	Current     uint8  `cbor:"9,keyasint"`
	TimerStart  uint8  `cbor:"10,keyasint"`
	TimerStop   uint8  `cbor:"11,keyasint"`
	ModeFlags   uint8  `cbor:"12,keyasint"`
	OpFlags     uint8  `cbor:"13,keyasint"`
	Caps        uint8  `cbor:"14,keyasint"`
	Fault       []byte `cbor:"15,keyasint"`
	Destination []byte `cbor:"16,keyasint,omitempty"`
	Reserved    []byte `cbor:"17,keyasint,omitempty"`
	Frame       []byte `cbor:"18,keyasint,omitempty"`
}

// MarshalSnapshot encodes a snapshot as a CBOR map
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	st := s.Status
	rec := snapshotRecord{
		Time:        s.Time.UnixMilli(),
		Mode:        st.ModeByte,
		Fan:         st.FanByte,
		Setpoint:    st.Setpoint,
		InletTemp:   st.InletTemp,
		CoilATemp:   st.CoilATemp,
		CoilBTemp:   st.CoilBTemp,
		OutsideTemp: st.OutsideTemp,
		Current:     st.Current,
		TimerStart:  st.TimerStart,
		TimerStop:   st.TimerStop,
		ModeFlags:   st.ModeFlagsByte,
		OpFlags:     st.OpFlagsByte,
		Caps:        st.CapsByte,
		Fault: []byte{
			st.Fault.ErrorLow,
			st.Fault.ErrorHigh,
			st.Fault.ProtLow,
			st.Fault.ProtHigh,
			st.Fault.CCMError,
		},
		Destination: st.Destination[:],
		Reserved:    st.Reserved[:],
		Frame:       s.Frame,
	}

	data, err := cbor.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes a CBOR map produced by MarshalSnapshot
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	if len(data) == 0 {
		return Snapshot{}, fmt.Errorf("empty CBOR payload")
	}

	var rec snapshotRecord
	if err := cbor.Unmarshal(data, &rec); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode CBOR: %w", err)
	}
	if len(rec.Fault) != 5 {
		return Snapshot{}, fmt.Errorf("expected 5 fault bytes, got %d", len(rec.Fault))
	}

	st := Status{
		Mode:          DecodeMode(rec.Mode),
		ModeByte:      rec.Mode,
		Fan:           DecodeFanSpeed(rec.Fan),
		FanByte:       rec.Fan,
		Setpoint:      rec.Setpoint,
		InletTemp:     rec.InletTemp,
		CoilATemp:     rec.CoilATemp,
		CoilBTemp:     rec.CoilBTemp,
		OutsideTemp:   rec.OutsideTemp,
		Current:       rec.Current,
		TimerStart:    rec.TimerStart,
		TimerStop:     rec.TimerStop,
		ModeFlags:     DecodeModeFlags(rec.ModeFlags),
		ModeFlagsByte: rec.ModeFlags,
		OpFlags:       DecodeOpFlags(rec.OpFlags),
		OpFlagsByte:   rec.OpFlags,
		Fault: FaultCode{
			ErrorLow:  rec.Fault[0],
			ErrorHigh: rec.Fault[1],
			ProtLow:   rec.Fault[2],
			ProtHigh:  rec.Fault[3],
			CCMError:  rec.Fault[4],
		},
		Capabilities: DecodeCapabilities(rec.Caps),
		CapsByte:     rec.Caps,
	}
	copy(st.Destination[:], rec.Destination)
	copy(st.Reserved[:], rec.Reserved)

	return Snapshot{
		Time:   time.UnixMilli(rec.Time),
		Status: st,
		Frame:  rec.Frame,
	}, nil
}

// SnapshotWriter appends length-prefixed snapshot records to a stream.
// Each record is a uvarint byte count followed by the CBOR map.
type SnapshotWriter struct {
	w     io.Writer
	count int
}

// NewSnapshotWriter creates a writer on w
func NewSnapshotWriter(w io.Writer) *SnapshotWriter {
	return &SnapshotWriter{w: w}
}

// Write appends one snapshot
func (sw *SnapshotWriter) Write(s Snapshot) error {
	data, err := MarshalSnapshot(s)
	if err != nil {
		return err
	}

	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], uint64(len(data)))
	if _, err := sw.w.Write(prefix[:n]); err != nil {
		return fmt.Errorf("failed to write record header: %w", err)
	}
	if _, err := sw.w.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	sw.count++
	return nil
}

// Count returns the number of records written
func (sw *SnapshotWriter) Count() int {
	return sw.count
}

// SnapshotReader reads records written by SnapshotWriter
type SnapshotReader struct {
	r *bufio.Reader
}

// NewSnapshotReader creates a reader on r
func NewSnapshotReader(r io.Reader) *SnapshotReader {
	return &SnapshotReader{r: bufio.NewReader(r)}
}

// Next returns the next snapshot. It returns io.EOF at a clean end of
// stream and io.ErrUnexpectedEOF when a record is cut short.
func (sr *SnapshotReader) Next() (Snapshot, error) {
	size, err := binary.ReadUvarint(sr.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Snapshot{}, io.EOF
		}
		return Snapshot{}, fmt.Errorf("failed to read record header: %w", err)
	}
	if size == 0 || size > maxSnapshotSize {
		return Snapshot{}, fmt.Errorf("invalid record size %d", size)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(sr.r, data); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Snapshot{}, err
	}
	return UnmarshalSnapshot(data)
}
