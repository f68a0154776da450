// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package avd

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/embedded"
	"go.opentelemetry.io/otel/log/global"
)

func captureLogs(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	previous, previousLevel := avdLogger, logLevel.Level()
	logLevel.Set(level)
	avdLogger = slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: logLevel}))
	t.Cleanup(func() {
		avdLogger = previous
		logLevel.Set(previousLevel)
	})
	return &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var records []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			t.Fatalf("failed to parse log line %q: %v", line, err)
		}
		records = append(records, record)
	}
	return records
}

func TestLogEventIncludesCorrelationAndTimestamp(t *testing.T) {
	buf := captureLogs(t, slog.LevelInfo)

	env := Env{CorrelationID: "corr-123"}
	LogEvent(env, "test message", "key", "value")

	records := decodeLines(t, buf)
	if len(records) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(records))
	}
	record := records[0]
	if record["correlation_id"] != "corr-123" {
		t.Fatalf("expected correlation_id corr-123, got %#v", record["correlation_id"])
	}
	if _, ok := record["timestamp_ns"]; !ok {
		t.Fatal("expected timestamp_ns field in log record")
	}
	if record["key"] != "value" {
		t.Fatalf("expected key=value, got %#v", record["key"])
	}
}

func TestCommandLogWriterIncludesFields(t *testing.T) {
	buf := captureLogs(t, slog.LevelDebug)

	env := Env{CorrelationID: "corr-456"}
	writer := newCommandLogWriter(env, "adb", []string{"devices"})
	_, _ = writer.Write([]byte("bo"))
	_, _ = writer.Write([]byte("om\n\n"))

	records := decodeLines(t, buf)
	if len(records) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(records))
	}
	record := records[0]
	if record["msg"] != "command stderr" {
		t.Fatalf("expected message 'command stderr', got %#v", record["msg"])
	}
	if record["command"] != "adb" {
		t.Fatalf("expected command adb, got %#v", record["command"])
	}
	if record["args"] != "devices" {
		t.Fatalf("expected args devices, got %#v", record["args"])
	}
	if record["line"] != "boom" {
		t.Fatalf("expected line boom, got %#v", record["line"])
	}
	if record["correlation_id"] != "corr-456" {
		t.Fatalf("expected correlation_id corr-456, got %#v", record["correlation_id"])
	}
}

func TestCommandOutputHiddenAtInfo(t *testing.T) {
	buf := captureLogs(t, slog.LevelInfo)

	writer := newCommandLogWriter(Env{}, "emulator", []string{"-list-avds"})
	_, _ = writer.Write([]byte("INFO | Android emulator version 35.1.4\n"))
	LogWarn(Env{}, "still visible")

	records := decodeLines(t, buf)
	if len(records) != 1 || records[0]["msg"] != "still visible" {
		t.Fatalf("expected only the warning, got %v", records)
	}
}

func TestSetLogLevel(t *testing.T) {
	previous := logLevel.Level()
	t.Cleanup(func() { logLevel.Set(previous) })

	if err := SetLogLevel("debug"); err != nil {
		t.Fatalf("SetLogLevel(debug): %v", err)
	}
	if logLevel.Level() != slog.LevelDebug {
		t.Fatalf("expected debug, got %v", logLevel.Level())
	}
	if err := SetLogLevel("WARN"); err != nil {
		t.Fatalf("SetLogLevel(WARN): %v", err)
	}
	if logLevel.Level() != slog.LevelWarn {
		t.Fatalf("expected warn, got %v", logLevel.Level())
	}
	if err := SetLogLevel("loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

type recordingLoggerProvider struct {
	embedded.LoggerProvider
	logger *recordingLogger
}

func (p *recordingLoggerProvider) Logger(string, ...otellog.LoggerOption) otellog.Logger {
	return p.logger
}

type recordingLogger struct {
	embedded.Logger
	records []otellog.Record
}

func (l *recordingLogger) Emit(_ context.Context, record otellog.Record) {
	l.records = append(l.records, record)
}

func (l *recordingLogger) Enabled(context.Context, otellog.EnabledParameters) bool { return true }

func TestLogsMirroredToOTel(t *testing.T) {
	captureLogs(t, slog.LevelInfo)
	logger := &recordingLogger{}
	previous := global.GetLoggerProvider()
	global.SetLoggerProvider(&recordingLoggerProvider{logger: logger})
	t.Cleanup(func() { global.SetLoggerProvider(previous) })

	LogWarn(Env{CorrelationID: "corr-789"}, "adb start-server failed", "error", "daemon not running")
	logDebug(Env{CorrelationID: "corr-789"}, "filtered out")

	if len(logger.records) != 1 {
		t.Fatalf("expected 1 mirrored record, got %d", len(logger.records))
	}
	record := logger.records[0]
	if record.Body().AsString() != "adb start-server failed" {
		t.Fatalf("unexpected body %q", record.Body().AsString())
	}
	if record.Severity() != otellog.SeverityWarn {
		t.Fatalf("expected warn severity, got %v", record.Severity())
	}
	attrs := map[string]string{}
	record.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	if attrs["correlation_id"] != "corr-789" || attrs["error"] != "daemon not running" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}
