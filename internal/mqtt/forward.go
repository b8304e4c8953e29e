package mqtt

import (
	"bytes"
	"log/slog"
	"sync"

	"github.com/sweeney/plant-waterer/internal/events"
)

// ForwardAttributes publishes every attribute notification on bus through
// pub. Values identical to the last one published for the same attribute
// are skipped, since the broker already retains them. Returns the
// unsubscribe function.
func ForwardAttributes(bus *events.Bus, pub Publisher, logger *slog.Logger) func() {
	var mu sync.Mutex
	last := make(map[string][]byte)

	return bus.SubscribeAttributes(func(e events.AttributeChanged) {
		name := e.ID.String()
		payload := e.Payload()
		if payload == nil {
			return
		}

		mu.Lock()
		if prev, ok := last[name]; ok && bytes.Equal(prev, payload) {
			mu.Unlock()
			return
		}
		last[name] = payload
		mu.Unlock()

		if err := pub.PublishAttribute(name, payload); err != nil {
			logger.Warn("attribute publish failed", "attribute", name, "error", err)
			mu.Lock()
			delete(last, name)
			mu.Unlock()
		}
	})
}
