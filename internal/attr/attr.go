// Package attr describes the controller's attribute surface: the identifiers,
// access rights and fixed-width little-endian wire format of each field the
// remote controller can read, write or subscribe to.
package attr

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Attribute errors.
var (
	ErrUnknownAttribute = errors.New("unknown attribute")
	ErrNotWritable      = errors.New("attribute is not writable")
	ErrInvalidLength    = errors.New("invalid payload length")
	ErrOutOfRange       = errors.New("value out of range")
)

// ID identifies an attribute.
type ID uint8

const (
	Mode ID = iota + 1
	Interval
	Amount
	ManualTrigger
	Watering
	TimeSinceLastWatering
	TimeUntilNextWatering
)

// Access flags for attributes.
type Access uint8

const (
	// AccessRead allows reading the attribute.
	AccessRead Access = 1 << iota

	// AccessWrite allows writing the attribute.
	AccessWrite

	// AccessNotify means value changes are pushed to subscribers.
	AccessNotify
)

// CanRead returns true if reading is allowed.
func (a Access) CanRead() bool { return a&AccessRead != 0 }

// CanWrite returns true if writing is allowed.
func (a Access) CanWrite() bool { return a&AccessWrite != 0 }

// CanNotify returns true if changes are notified.
func (a Access) CanNotify() bool { return a&AccessNotify != 0 }

// String returns the access flags as a string.
func (a Access) String() string {
	var s string
	if a.CanRead() {
		s += "R"
	}
	if a.CanWrite() {
		s += "W"
	}
	if a.CanNotify() {
		s += "N"
	}
	if s == "" {
		return "-"
	}
	return s
}

// Def describes one attribute.
type Def struct {
	ID     ID
	Name   string
	UUID   uuid.UUID
	Access Access
	Width  int // bytes on the wire
}

// ServiceUUID identifies the irrigation service.
var ServiceUUID = uuid.MustParse("dead0000-c634-45d2-a209-c636967b81b2")

// characteristic derives an attribute UUID from the service UUID by placing
// n in the low 16 bits of the first group.
func characteristic(n uint16) uuid.UUID {
	u := ServiceUUID
	binary.BigEndian.PutUint16(u[2:4], n)
	return u
}

var defs = []Def{
	{ID: Mode, Name: "mode", UUID: characteristic(1), Access: AccessRead | AccessWrite, Width: 1},
	{ID: Interval, Name: "interval", UUID: characteristic(2), Access: AccessRead | AccessWrite, Width: 2},
	{ID: Amount, Name: "amount", UUID: characteristic(3), Access: AccessRead | AccessWrite, Width: 2},
	{ID: ManualTrigger, Name: "manual_trigger", UUID: characteristic(4), Access: AccessWrite, Width: 1},
	{ID: Watering, Name: "watering", UUID: characteristic(5), Access: AccessRead | AccessNotify, Width: 1},
	{ID: TimeSinceLastWatering, Name: "time_since_last_watering", UUID: characteristic(6), Access: AccessRead | AccessNotify, Width: 4},
	{ID: TimeUntilNextWatering, Name: "time_until_next_watering", UUID: characteristic(7), Access: AccessRead | AccessNotify, Width: 4},
}

var (
	byID   = make(map[ID]Def, len(defs))
	byName = make(map[string]Def, len(defs))
)

func init() {
	for _, d := range defs {
		byID[d.ID] = d
		byName[d.Name] = d
	}
}

// All returns every attribute definition in ID order.
func All() []Def {
	out := make([]Def, len(defs))
	copy(out, defs)
	return out
}

// Lookup returns the definition for name.
func Lookup(name string) (Def, error) {
	d, ok := byName[name]
	if !ok {
		return Def{}, fmt.Errorf("%w: %q", ErrUnknownAttribute, name)
	}
	return d, nil
}

// ByID returns the definition for id.
func ByID(id ID) (Def, bool) {
	d, ok := byID[id]
	return d, ok
}

func (id ID) String() string {
	if d, ok := byID[id]; ok {
		return d.Name
	}
	return fmt.Sprintf("attr(%d)", uint8(id))
}

// Encode renders v as the attribute's little-endian wire value.
// Values wider than the attribute are truncated to its width.
func (d Def) Encode(v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	out := make([]byte, d.Width)
	copy(out, buf[:d.Width])
	return out
}

// Decode parses a wire value, which must be exactly the attribute's width.
func (d Def) Decode(payload []byte) (uint32, error) {
	if len(payload) != d.Width {
		return 0, fmt.Errorf("%w: %s wants %d bytes, got %d", ErrInvalidLength, d.Name, d.Width, len(payload))
	}
	var buf [4]byte
	copy(buf[:], payload)
	return binary.LittleEndian.Uint32(buf[:]), nil
}
