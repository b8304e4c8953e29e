package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in, slog.LevelInfo); got != tt.want {
			t.Errorf("parseLevel(%q): got %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestGetLoggerCachesPerModule(t *testing.T) {
	a := GetLogger("test-cache")
	b := GetLogger("test-cache")
	if a != b {
		t.Error("expected same logger for the same module")
	}
	if GetLogger("test-other") == a {
		t.Error("expected distinct loggers for distinct modules")
	}
}

func TestInitializeAppliesModuleOverride(t *testing.T) {
	GetLogger("test-override")
	Initialize(Config{Level: "info", Format: "text", Modules: map[string]string{"test-override": "error"}})
	defer Initialize(Config{Level: "info", Format: "text"})

	mu.RLock()
	lv := moduleLevels["test-override"]
	mu.RUnlock()
	if lv.Level() != slog.LevelError {
		t.Errorf("module level: got %v, want ERROR", lv.Level())
	}
	if globalLevel.Level() != slog.LevelInfo {
		t.Errorf("global level: got %v, want INFO", globalLevel.Level())
	}
}

func TestMultiHandlerFansOut(t *testing.T) {
	var a, b bytes.Buffer
	h := NewMultiHandler(
		slog.NewTextHandler(&a, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&b, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	l := slog.New(h).With("module", "x")

	l.Info("hello")
	l.Warn("careful")

	if !strings.Contains(a.String(), "hello") || !strings.Contains(a.String(), "careful") {
		t.Errorf("first handler missing records: %q", a.String())
	}
	if strings.Contains(b.String(), "hello") {
		t.Errorf("second handler should filter INFO: %q", b.String())
	}
	if !strings.Contains(b.String(), "module=x") {
		t.Errorf("attrs not propagated: %q", b.String())
	}
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected Enabled(DEBUG) when any handler accepts it")
	}
}

func TestAddAttrToFields(t *testing.T) {
	fields := map[string]string{}
	addAttrToFields(fields, slog.Int("amount_ml", 150), nil)
	addAttrToFields(fields, slog.Bool("ok", true), []string{"pump"})
	addAttrToFields(fields, slog.Group("cycle", slog.String("mode", "MANUAL")), nil)

	want := map[string]string{
		"AMOUNT_ML":  "150",
		"PUMP_OK":    "true",
		"CYCLE_MODE": "MANUAL",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("%s: got %q, want %q", k, fields[k], v)
		}
	}
}

func TestInitializeRetargetsEarlierLoggers(t *testing.T) {
	var buf bytes.Buffer
	mu.Lock()
	output = &buf
	mu.Unlock()
	defer func() {
		mu.Lock()
		output = os.Stdout
		mu.Unlock()
		Initialize(Config{Level: "info", Format: "text"})
	}()

	early := GetLogger("test-early")
	Initialize(Config{Level: "info", Format: "json"})

	early.With("cycle", 1).Info("after init")

	line := strings.TrimSpace(buf.String())
	if !strings.HasPrefix(line, "{") {
		t.Fatalf("logger taken before Initialize should emit JSON, got %q", line)
	}
	for _, want := range []string{`"module":"test-early"`, `"cycle":1`, `"msg":"after init"`} {
		if !strings.Contains(line, want) {
			t.Errorf("missing %s in %q", want, line)
		}
	}
}
