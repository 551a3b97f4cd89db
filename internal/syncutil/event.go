// Package syncutil carries the small synchronization helpers shared by the
// pipeline internals.
package syncutil

import "sync"

// Event is a latching boolean flag that goroutines can wait on, in the style of
// Python's threading.Event.
type Event struct {
	mu    sync.Mutex
	ch    chan struct{}
	value bool
}

func NewEvent() *Event {
	return &Event{}
}

// IsSet reports the current state of the flag.
func (e *Event) IsSet() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// Set raises the flag, waking all waiters. Idempotent; reports whether the
// state changed.
func (e *Event) Set() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.value {
		return false
	}
	e.value = true
	close(e.channelLocked())
	return true
}

// Clear lowers the flag. Idempotent; reports whether the state changed.
func (e *Event) Clear() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.value {
		return false
	}
	e.value = false
	e.ch = nil
	return true
}

// Wait returns a channel that is closed while the flag is set. The returned
// channel may already be closed.
func (e *Event) Wait() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.channelLocked()
}

func (e *Event) channelLocked() chan struct{} {
	if e.ch == nil {
		e.ch = make(chan struct{})
	}
	return e.ch
}
