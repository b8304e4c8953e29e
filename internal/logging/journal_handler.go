package logging

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"

	"github.com/coreos/go-systemd/v22/journal"
)

const syslogIdentifier = "plant-waterer"

// JournalHandler is a slog.Handler that writes records to the systemd journal.
type JournalHandler struct {
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
}

// NewJournalHandler creates a journal handler gated by level.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level}
}

// Enabled implements slog.Handler.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := map[string]string{
		"SYSLOG_IDENTIFIER": syslogIdentifier,
	}
	for _, a := range h.attrs {
		addAttrToFields(fields, a, h.groups)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttrToFields(fields, a, h.groups)
		return true
	})

	if err := journal.Send(r.Message, priorityFor(r.Level), fields); err != nil {
		return fmt.Errorf("journal send: %w", err)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &JournalHandler{
		level:  h.level,
		attrs:  append(slices.Clone(h.attrs), attrs...),
		groups: h.groups,
	}
}

// WithGroup implements slog.Handler.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &JournalHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: append(slices.Clone(h.groups), name),
	}
}

func priorityFor(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// addAttrToFields flattens a into upper-case journal fields, joining groups with "_".
func addAttrToFields(fields map[string]string, a slog.Attr, groups []string) {
	if a.Equal(slog.Attr{}) {
		return
	}

	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, "_") + "_" + key
	}
	key = strings.ToUpper(key)

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		inner := append(slices.Clone(groups), a.Key)
		for _, ga := range v.Group() {
			addAttrToFields(fields, ga, inner)
		}
	case slog.KindInt64:
		fields[key] = strconv.FormatInt(v.Int64(), 10)
	case slog.KindUint64:
		fields[key] = strconv.FormatUint(v.Uint64(), 10)
	case slog.KindBool:
		fields[key] = strconv.FormatBool(v.Bool())
	default:
		fields[key] = v.String()
	}
}

// IsJournalAvailable reports whether the systemd journal socket is reachable.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
