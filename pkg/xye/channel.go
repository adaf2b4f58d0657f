// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xye

import (
	"io"
	"sync"
)

// Channel is the byte link the Link drives. Implementations must not block:
// Write hands bytes to the transmitter, BytesAvailable and ReadAvailable
// report and drain whatever has arrived since the last read. Frames may
// arrive split across reads.
type Channel interface {
	Write(p []byte) (int, error)
	BytesAvailable() int
	ReadAvailable() []byte
}

// maxStreamBuffer bounds the receive buffer of a StreamChannel. Older bytes
// are dropped once it fills.
const maxStreamBuffer = 4 * ResponseLen

// StreamChannel adapts a blocking io.ReadWriter, such as a serial port or a
// WebSocket bridge, to the non-blocking Channel contract. A single reader
// goroutine copies incoming bytes into a bounded buffer.
type StreamChannel struct {
	rw io.ReadWriter

	mu      sync.Mutex
	buf     []byte
	dropped uint64
	err     error
	done    chan struct{}
}

// NewStreamChannel starts reading from rw in the background. The reader
// exits when rw returns an error; Err reports it.
func NewStreamChannel(rw io.ReadWriter) *StreamChannel {
	c := &StreamChannel{
		rw:   rw,
		buf:  make([]byte, 0, maxStreamBuffer),
		done: make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *StreamChannel) readLoop() {
	defer close(c.done)
	chunk := make([]byte, 64)
	for {
		n, err := c.rw.Read(chunk)
		if n > 0 {
			c.mu.Lock()
			c.buf = append(c.buf, chunk[:n]...)
			if over := len(c.buf) - maxStreamBuffer; over > 0 {
				c.dropped += uint64(over)
				c.buf = append(c.buf[:0], c.buf[over:]...)
			}
			c.mu.Unlock()
		}
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}
	}
}

// Write implements Channel.
func (c *StreamChannel) Write(p []byte) (int, error) {
	return c.rw.Write(p)
}

// BytesAvailable implements Channel.
func (c *StreamChannel) BytesAvailable() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// ReadAvailable implements Channel.
func (c *StreamChannel) ReadAvailable() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) == 0 {
		return nil
	}
	out := make([]byte, len(c.buf))
	copy(out, c.buf)
	c.buf = c.buf[:0]
	return out
}

// Err returns the error that stopped the reader, if any.
func (c *StreamChannel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Dropped returns how many bytes were discarded because the buffer was full.
func (c *StreamChannel) Dropped() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Done is closed when the reader goroutine exits.
func (c *StreamChannel) Done() <-chan struct{} {
	return c.done
}
