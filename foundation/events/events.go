// Package events supports the fan-out of node events to any subscriber,
// such as a websocket client watching the node operate.
package events

import (
	"fmt"
	"sync"
)

// Subscribers that fall behind lose messages instead of blocking the
// core. The buffer gives a slow websocket writer room to catch up.
const subscriberBuffer = 100

// Events maintains a set of subscriber channels keyed by a unique id.
type Events struct {
	subscribers map[string]chan string
	mu          sync.RWMutex
}

// New constructs an Events value for subscribing and publishing.
func New() *Events {
	return &Events{
		subscribers: make(map[string]chan string),
	}
}

// Acquire registers the specified id and returns a channel for
// receiving events. Calling Acquire twice with the same id returns
// the same channel.
func (evt *Events) Acquire(id string) chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if ch, exists := evt.subscribers[id]; exists {
		return ch
	}

	evt.subscribers[id] = make(chan string, subscriberBuffer)
	return evt.subscribers[id]
}

// Release closes and removes the channel registered under the id.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.subscribers[id]
	if !exists {
		return fmt.Errorf("subscriber %q does not exist", id)
	}

	delete(evt.subscribers, id)
	close(ch)

	return nil
}

// Send publishes a message to every subscriber. Send never blocks
// waiting for a receiver.
func (evt *Events) Send(format string, args ...any) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	s := fmt.Sprintf(format, args...)

	for _, ch := range evt.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
}

// Shutdown closes and removes every subscriber channel.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.subscribers {
		delete(evt.subscribers, id)
		close(ch)
	}
}
