// Package inputmon implements the Input Monitor + Confirmation Rendezvous
// (core spec §4.5): a background goroutine watches stdin for ESC while a
// turn is in flight, and a two-flag handshake lets a confirmation prompt
// borrow the terminal back from it without losing a keystroke.
package inputmon

import "sync"

// event is a level-triggered flag mirroring Python's asyncio.Event: Set
// and Clear flip the level, Wait blocks until the level is set, and every
// waiter parked before a Set is released by it. Broadcast is implemented
// the standard Go way — close a channel to wake every waiter, and swap in
// a fresh one on the next Clear.
type event struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{}
}

func newEvent(initiallySet bool) *event {
	e := &event{ch: make(chan struct{})}
	if initiallySet {
		close(e.ch)
		e.set = true
	}
	return e
}

func (e *event) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set {
		return
	}
	e.set = true
	close(e.ch)
}

func (e *event) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.set {
		return
	}
	e.set = false
	e.ch = make(chan struct{})
}

func (e *event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.set
}

// wait returns a channel that is closed once the event becomes set. The
// channel is snapshotted under the lock so a concurrent Clear/Set cannot
// race the caller's select.
func (e *event) wait() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ch
}
