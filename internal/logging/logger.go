// Package logging sets up per-module slog loggers for the daemon.
// Records go to stdout and, when running under systemd, to the journal.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	mu             sync.RWMutex
	cfg            Config
	initialized    bool
	moduleLoggers  = make(map[string]*slog.Logger)
	moduleLevels   = make(map[string]*slog.LevelVar)
	moduleHandlers = make(map[string]*atomic.Pointer[slog.Handler])
	globalLevel    = &slog.LevelVar{}

	// output is where the stdout handler writes.
	output io.Writer = os.Stdout
)

// Config selects the log level, output format and per-module overrides.
type Config struct {
	Level   string            `toml:"level"`
	Format  string            `toml:"format"`
	Modules map[string]string `toml:"modules"`
}

// Initialize applies cfg to the default logger and to every module logger
// created so far. Loggers obtained earlier switch to the new format and
// outputs as well as the new level.
func Initialize(c Config) {
	mu.Lock()
	defer mu.Unlock()

	cfg = c
	initialized = true

	level := parseLevel(c.Level, slog.LevelInfo)
	globalLevel.Set(level)

	for module, lv := range moduleLevels {
		lv.Set(moduleLevel(module, level))
		h := createHandler(c.Format, lv)
		moduleHandlers[module].Store(&h)
	}

	slog.SetDefault(slog.New(createHandler(c.Format, globalLevel)))
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	mu.RLock()
	if l, ok := moduleLoggers[module]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := moduleLoggers[module]; ok {
		return l
	}

	lv := &slog.LevelVar{}
	format := "text"
	if initialized {
		lv.Set(moduleLevel(module, parseLevel(cfg.Level, slog.LevelInfo)))
		format = cfg.Format
	} else {
		lv.Set(slog.LevelInfo)
	}

	h := createHandler(format, lv)
	cur := &atomic.Pointer[slog.Handler]{}
	cur.Store(&h)

	l := slog.New(&swapHandler{cur: cur}).With("module", module)
	moduleLoggers[module] = l
	moduleLevels[module] = lv
	moduleHandlers[module] = cur
	return l
}

// swapHandler forwards to the handler currently stored in cur, replaying
// any WithAttrs/WithGroup calls made on the logger, so Initialize can
// replace the output of loggers already handed out.
type swapHandler struct {
	cur    *atomic.Pointer[slog.Handler]
	derive []func(slog.Handler) slog.Handler
}

func (s *swapHandler) handler() slog.Handler {
	h := *s.cur.Load()
	for _, d := range s.derive {
		h = d(h)
	}
	return h
}

func (s *swapHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return s.handler().Enabled(ctx, level)
}

func (s *swapHandler) Handle(ctx context.Context, r slog.Record) error {
	return s.handler().Handle(ctx, r)
}

func (s *swapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return s.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (s *swapHandler) WithGroup(name string) slog.Handler {
	return s.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (s *swapHandler) with(d func(slog.Handler) slog.Handler) *swapHandler {
	derive := make([]func(slog.Handler) slog.Handler, len(s.derive), len(s.derive)+1)
	copy(derive, s.derive)
	return &swapHandler{cur: s.cur, derive: append(derive, d)}
}

// moduleLevel must be called with mu held.
func moduleLevel(module string, fallback slog.Level) slog.Level {
	if s, ok := cfg.Modules[module]; ok {
		return parseLevel(s, fallback)
	}
	return fallback
}

func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(output, opts)
	} else {
		stdout = slog.NewTextHandler(output, opts)
	}

	if !IsJournalAvailable() {
		return stdout
	}
	return NewMultiHandler(stdout, NewJournalHandler(level))
}

func parseLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return fallback
	}
}
