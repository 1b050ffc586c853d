// Package events is the post-commit dispatcher that replaces ad-hoc
// signal/receiver wiring. Receivers are registered once at startup and run in
// registration order after the transaction that raised the event committed.
package events

import (
	"sync"

	"go.uber.org/zap"
)

// Type names one event kind.
type Type string

const (
	// MessageReceived fires after an inbound message was marked processed.
	MessageReceived Type = "message_received"
	// MessageSent fires after an outbound message was handed to the transport.
	MessageSent Type = "message_sent"
)

// Event carries the id of the message the event concerns.
type Event struct {
	Type      Type
	MessageID uint
}

// Handler reacts to one event. Handler errors are logged, never propagated;
// an event is a fact, not a request.
type Handler func(Event) error

// Dispatcher fans events out to registered handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[Type][]Handler
	log      *zap.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[Type][]Handler),
		log:      log,
	}
}

// Register appends a handler for the event type. Call during startup wiring
// only; ordering is the registration order.
func (d *Dispatcher) Register(t Type, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = append(d.handlers[t], h)
}

// Dispatch runs all handlers for the event, in order. Call only after the
// originating transaction committed.
func (d *Dispatcher) Dispatch(e Event) {
	d.mu.RLock()
	handlers := d.handlers[e.Type]
	d.mu.RUnlock()

	for _, h := range handlers {
		if err := h(e); err != nil {
			d.log.Warn("event handler failed",
				zap.String("event", string(e.Type)),
				zap.Uint("message_id", e.MessageID),
				zap.Error(err))
		}
	}
}
