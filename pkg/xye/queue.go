// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package xye

import "time"

// CommandQueue holds at most one pending CommandIntent. A newer intent
// overwrites the pending one, and an intent only becomes ready once no
// further edits have arrived for the debounce window.
//
// CommandQueue is not safe for concurrent use; it belongs to the Link.
type CommandQueue struct {
	debounce  time.Duration
	pending   CommandIntent
	hasIntent bool
	updatedAt time.Time
	coalesced uint64
}

// NewCommandQueue creates a queue with the given debounce window.
func NewCommandQueue(debounce time.Duration) *CommandQueue {
	if debounce < 0 {
		debounce = 0
	}
	return &CommandQueue{debounce: debounce}
}

// Enqueue replaces any pending intent and restarts the debounce window.
func (q *CommandQueue) Enqueue(intent CommandIntent, now time.Time) {
	if q.hasIntent {
		q.coalesced++
	}
	q.pending = intent
	q.hasIntent = true
	q.updatedAt = now
}

// Pending reports the pending intent without removing it.
func (q *CommandQueue) Pending() (CommandIntent, bool) {
	return q.pending, q.hasIntent
}

// Ready reports whether a pending intent has been quiet for the debounce
// window.
func (q *CommandQueue) Ready(now time.Time) bool {
	return q.hasIntent && now.Sub(q.updatedAt) >= q.debounce
}

// TakePending returns and clears the pending intent regardless of the
// debounce window.
func (q *CommandQueue) TakePending() (CommandIntent, bool) {
	if !q.hasIntent {
		return CommandIntent{}, false
	}
	intent := q.pending
	q.pending = CommandIntent{}
	q.hasIntent = false
	return intent, true
}

// TakeReady returns and clears the pending intent once it is ready.
func (q *CommandQueue) TakeReady(now time.Time) (CommandIntent, bool) {
	if !q.Ready(now) {
		return CommandIntent{}, false
	}
	return q.TakePending()
}

// Coalesced returns how many intents were overwritten before transmission.
func (q *CommandQueue) Coalesced() uint64 {
	return q.coalesced
}

// Debounce returns the configured debounce window.
func (q *CommandQueue) Debounce() time.Duration {
	return q.debounce
}
