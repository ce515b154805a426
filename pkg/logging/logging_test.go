package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewWriterLogger_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, zapcore.InfoLevel)
	log.Debug("hidden")
	log.Info("remote fetch", zap.String("address", "http://inv"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "remote fetch" || entry["address"] != "http://inv" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, zapcore.DebugLevel)
	ctx := IntoContext(context.Background(), log)
	if FromContext(ctx) != log {
		t.Fatalf("expected the attached logger back")
	}
	if FromContext(context.Background()) == nil {
		t.Fatalf("expected a fallback logger")
	}
}

func TestInitAndSetLevel(t *testing.T) {
	if err := Init(Config{Level: "warn", Format: "json"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if L().Core().Enabled(zapcore.InfoLevel) {
		t.Fatalf("info should be disabled at warn level")
	}
	SetLevel("debug")
	if !L().Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("debug should be enabled after SetLevel")
	}
	SetLevel("nonsense")
	if !L().Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("an unknown level must leave the level unchanged")
	}
	if err := Init(Config{Level: "bogus"}); err != nil {
		t.Fatalf("Init with bad level: %v", err)
	}
	if !L().Core().Enabled(zapcore.InfoLevel) || L().Core().Enabled(zapcore.DebugLevel) {
		t.Fatalf("bad level should fall back to info")
	}
	Sync()
}
