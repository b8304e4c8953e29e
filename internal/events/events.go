// Package events fans attribute notifications out to transports.
package events

import (
	"time"

	"github.com/kelindar/event"

	"github.com/sweeney/plant-waterer/internal/attr"
)

// Event type constants for kelindar/event.
const (
	TypeAttributeChanged uint32 = iota + 1
)

// AttributeChanged carries a notified attribute value.
type AttributeChanged struct {
	ID        attr.ID
	Value     uint32
	Timestamp time.Time
}

// Type returns the event type identifier for AttributeChanged.
func (e AttributeChanged) Type() uint32 { return TypeAttributeChanged }

// Payload returns the attribute's wire encoding of the value.
func (e AttributeChanged) Payload() []byte {
	d, ok := attr.ByID(e.ID)
	if !ok {
		return nil
	}
	return d.Encode(e.Value)
}

// Bus wraps a kelindar/event dispatcher. Subscribers run asynchronously,
// each on its own goroutine, in publish order.
type Bus struct {
	dispatcher *event.Dispatcher
	now        func() time.Time
}

// New creates a Bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
		now:        time.Now,
	}
}

// Notify publishes an AttributeChanged event. It implements attr.Notifier.
func (b *Bus) Notify(id attr.ID, value uint32) {
	event.Publish(b.dispatcher, AttributeChanged{ID: id, Value: value, Timestamp: b.now()})
}

// SubscribeAttributes registers handler for attribute changes and returns
// the unsubscribe function.
func (b *Bus) SubscribeAttributes(handler func(AttributeChanged)) func() {
	return event.Subscribe(b.dispatcher, handler)
}

// Close stops delivery to all subscribers.
func (b *Bus) Close() error {
	return b.dispatcher.Close()
}
