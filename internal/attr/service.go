package attr

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/sweeney/plant-waterer/internal/logging"
	"github.com/sweeney/plant-waterer/internal/logic"
	"github.com/sweeney/plant-waterer/internal/metrics"
	"github.com/sweeney/plant-waterer/internal/settings"
)

// Notifier receives attribute value changes for delivery to subscribers.
type Notifier interface {
	Notify(id ID, value uint32)
}

// Target is the configuration record writes are applied to.
type Target interface {
	SetMode(m logic.Mode) error
	SetInterval(minutes uint16)
	SetAmount(ml uint16)
	RequestWatering()
	Snapshot() settings.Values
}

// Service validates external writes at the boundary and applies accepted
// ones to the configuration record.
type Service struct {
	target   Target
	notifier Notifier
	logger   *slog.Logger
	rejected atomic.Int64
}

// NewService creates a Service. notifier may be nil.
func NewService(target Target, notifier Notifier) *Service {
	return &Service{
		target:   target,
		notifier: notifier,
		logger:   logging.GetLogger("attr"),
	}
}

// Write validates payload for the named attribute and applies it.
// Rejected writes never reach the configuration record.
func (s *Service) Write(name string, payload []byte) error {
	// Names come from the network; only known ones become metric labels.
	label := metrics.AttributeUnknown
	if d, err := Lookup(name); err == nil {
		label = d.Name
	}

	err := s.write(name, payload)
	if err != nil {
		s.rejected.Add(1)
		metrics.AttributeWrite(label, metrics.ResultRejected)
		s.logger.Warn("attribute write rejected", "attribute", name, "len", len(payload), "error", err)
		return err
	}
	metrics.AttributeWrite(label, metrics.ResultAccepted)
	return nil
}

func (s *Service) write(name string, payload []byte) error {
	d, err := Lookup(name)
	if err != nil {
		return err
	}
	if !d.Access.CanWrite() {
		return fmt.Errorf("%w: %s", ErrNotWritable, name)
	}
	v, err := d.Decode(payload)
	if err != nil {
		return err
	}

	switch d.ID {
	case Mode:
		m := logic.Mode(v)
		if !m.Valid() {
			return fmt.Errorf("%w: mode %d", ErrOutOfRange, v)
		}
		if err := s.target.SetMode(m); err != nil {
			return err
		}
		s.logger.Info("mode written", "mode", m)
	case Interval:
		s.target.SetInterval(uint16(v))
		s.logger.Info("interval written", "minutes", v)
	case Amount:
		s.target.SetAmount(uint16(v))
		s.logger.Info("amount written", "ml", v)
	case ManualTrigger:
		if v == 1 {
			s.target.RequestWatering()
			s.logger.Info("manual watering requested")
		}
		return nil
	}

	s.notify(d.ID, v)
	return nil
}

// Read returns the current wire value of a readable configuration attribute.
func (s *Service) Read(name string) ([]byte, error) {
	d, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	v := s.target.Snapshot()
	switch d.ID {
	case Mode:
		return d.Encode(uint32(v.Mode)), nil
	case Interval:
		return d.Encode(uint32(v.IntervalMinutes)), nil
	case Amount:
		return d.Encode(uint32(v.AmountML)), nil
	}
	return nil, fmt.Errorf("%s is not a configuration attribute", name)
}

// PublishConfiguration notifies the current configuration values, so that
// subscribers joining late see them.
func (s *Service) PublishConfiguration() {
	v := s.target.Snapshot()
	s.notify(Mode, uint32(v.Mode))
	s.notify(Interval, uint32(v.IntervalMinutes))
	s.notify(Amount, uint32(v.AmountML))
}

// Rejected returns the number of writes rejected so far.
func (s *Service) Rejected() int {
	return int(s.rejected.Load())
}

func (s *Service) notify(id ID, v uint32) {
	if s.notifier != nil {
		s.notifier.Notify(id, v)
	}
}
