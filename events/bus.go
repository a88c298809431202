// Package events provides a lightweight pub/sub event bus for call
// observability.
package events

import "sync"

// Listener is a function that handles events.
type Listener func(*Event)

// dispatchBuffer bounds how far publishers can run ahead of delivery.
const dispatchBuffer = 256

// Bus manages event distribution to listeners. Delivery is
// asynchronous but ordered: a single dispatch goroutine drains the
// publish queue, so listeners observe events in publish order across
// types. A call's started event is always seen before its outcome.
type Bus struct {
	mu              sync.RWMutex
	listeners       map[Type][]Listener
	globalListeners []Listener

	queue     chan *Event
	closeOnce sync.Once
}

// NewBus creates a new event bus and starts its dispatch goroutine.
func NewBus() *Bus {
	b := &Bus{
		listeners: make(map[Type][]Listener),
		queue:     make(chan *Event, dispatchBuffer),
	}
	go b.dispatch()
	return b
}

// Subscribe registers a listener for a specific event type.
func (b *Bus) Subscribe(eventType Type, listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners[eventType] = append(b.listeners[eventType], listener)
}

// SubscribeAll registers a listener for all event types.
func (b *Bus) SubscribeAll(listener Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.globalListeners = append(b.globalListeners, listener)
}

// Publish queues an event for delivery. It blocks only when the
// dispatch queue is saturated; listeners for the event's type run
// before global listeners, and a panicking listener never takes down
// the call.
func (b *Bus) Publish(event *Event) {
	b.queue <- event
}

func (b *Bus) dispatch() {
	for event := range b.queue {
		b.mu.RLock()
		typeListeners := b.listeners[event.Type]

		specific := make([]Listener, len(typeListeners))
		copy(specific, typeListeners)

		global := make([]Listener, len(b.globalListeners))
		copy(global, b.globalListeners)
		b.mu.RUnlock()

		for _, listener := range specific {
			safeInvoke(listener, event)
		}
		for _, listener := range global {
			safeInvoke(listener, event)
		}
	}
}

// Close stops the dispatch goroutine. Publishing after Close panics;
// it is meant for teardown once all publishers are done.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.queue) })
}

// Clear removes all listeners (primarily for tests).
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = make(map[Type][]Listener)
	b.globalListeners = nil
}

func safeInvoke(listener Listener, event *Event) {
	defer func() { _ = recover() }()
	listener(event)
}
