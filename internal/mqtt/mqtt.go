// Package mqtt carries the attribute interface over MQTT: notified values
// are published retained per attribute, writes arrive on per-attribute
// "set" topics, and lifecycle events go to a system topic.
package mqtt

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/sweeney/plant-waterer/internal/attr"
)

// DefaultPrefix is the default topic prefix.
const DefaultPrefix = "garden/plant-waterer"

// Topics derives every topic from a prefix.
type Topics struct {
	Prefix string
}

// Attribute is where notified values of the named attribute are published.
func (t Topics) Attribute(name string) string {
	return t.Prefix + "/attr/" + name
}

// Set is where writes to the named attribute are received.
func (t Topics) Set(name string) string {
	return t.Attribute(name) + "/set"
}

// SetWildcard matches every attribute write topic.
func (t Topics) SetWildcard() string {
	return t.Prefix + "/attr/+/set"
}

// System is the lifecycle event topic.
func (t Topics) System() string {
	return t.Prefix + "/system"
}

// Discovery is where the attribute table is published.
func (t Topics) Discovery() string {
	return t.Prefix + "/attributes"
}

// AttributeFromSet extracts the attribute name from a write topic.
func (t Topics) AttributeFromSet(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, t.Prefix+"/attr/")
	if !ok {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, "/set")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// WriteHandler applies a raw attribute write.
type WriteHandler func(name string, payload []byte) error

// Publisher publishes to the broker.
type Publisher interface {
	// PublishAttribute sends a notified attribute value (retained).
	// Returns error if publishing fails (should not crash the process).
	PublishAttribute(name string, payload []byte) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// PublishDiscovery sends the retained attribute table.
	PublishDiscovery() error

	// Close disconnects from the broker.
	Close() error
}

// Subscriber delivers attribute writes.
type Subscriber interface {
	// SubscribeWrites registers handler for every attribute write topic.
	// The subscription survives reconnects.
	SubscribeWrites(handler WriteHandler) error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Client is the full transport used by the daemon.
type Client interface {
	Publisher
	Subscriber
	ConnectionStatus
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// willPayload is registered with the broker as the last will.
func willPayload() []byte {
	data, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "connection lost"})
	return data
}

// Discovery describes the attribute surface for remote controllers.
type Discovery struct {
	Service    string          `json:"service"`
	Attributes []DiscoveryAttr `json:"attributes"`
}

// DiscoveryAttr is one attribute in the discovery document.
type DiscoveryAttr struct {
	Name   string `json:"name"`
	UUID   string `json:"uuid"`
	Access string `json:"access"`
	Width  int    `json:"width"`
	Topic  string `json:"topic,omitempty"`
	Set    string `json:"set,omitempty"`
}

// FormatDiscovery renders the attribute table with the topics each attribute uses.
func FormatDiscovery(t Topics) ([]byte, error) {
	doc := Discovery{Service: attr.ServiceUUID.String()}
	for _, d := range attr.All() {
		da := DiscoveryAttr{
			Name:   d.Name,
			UUID:   d.UUID.String(),
			Access: d.Access.String(),
			Width:  d.Width,
		}
		if d.Access.CanRead() {
			da.Topic = t.Attribute(d.Name)
		}
		if d.Access.CanWrite() {
			da.Set = t.Set(d.Name)
		}
		doc.Attributes = append(doc.Attributes, da)
	}
	return json.Marshal(doc)
}
