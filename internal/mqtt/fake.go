package mqtt

import (
	"errors"
	"sync"
)

// Message is a recorded attribute publish.
type Message struct {
	Name    string
	Payload []byte
}

// FakeClient records published messages for test assertions.
// Safe for use from event bus goroutines.
type FakeClient struct {
	mu sync.Mutex

	// Attributes contains all attribute values that were published.
	Attributes []Message

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// DiscoveryPublished counts PublishDiscovery calls.
	DiscoveryPublished int

	// PublishError, if set, will be returned by PublishAttribute.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	handler WriteHandler
}

// NewFakeClient creates a FakeClient for testing.
func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// PublishAttribute records the attribute value.
func (f *FakeClient) PublishAttribute(name string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Attributes = append(f.Attributes, Message{Name: name, Payload: append([]byte(nil), payload...)})
	return nil
}

// PublishSystem records the system event.
func (f *FakeClient) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// PublishDiscovery counts the call.
func (f *FakeClient) PublishDiscovery() error {
	f.mu.Lock()
	f.DiscoveryPublished++
	f.mu.Unlock()
	return nil
}

// SubscribeWrites stores handler for Deliver.
func (f *FakeClient) SubscribeWrites(handler WriteHandler) error {
	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()
	return nil
}

// Deliver simulates a write arriving on the set topic of name.
func (f *FakeClient) Deliver(name string, payload []byte) error {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h == nil {
		return errors.New("no write handler subscribed")
	}
	return h(name, payload)
}

// Close marks the client as closed.
func (f *FakeClient) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// IsConnected reports whether the fake client is "connected".
func (f *FakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// SetConnected sets the value reported by IsConnected.
func (f *FakeClient) SetConnected(c bool) {
	f.mu.Lock()
	f.Connected = c
	f.mu.Unlock()
}

// AttributeMessages returns a copy of the recorded attribute publishes.
func (f *FakeClient) AttributeMessages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.Attributes...)
}

// SystemEventNames returns the Event field of each recorded system event.
func (f *FakeClient) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Reset clears recorded events.
func (f *FakeClient) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Attributes = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.DiscoveryPublished = 0
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
