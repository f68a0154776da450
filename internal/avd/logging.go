// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package avd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"golang.org/x/term"
)

var logLevel = new(slog.LevelVar)

// Logs go to stderr: stdout belongs to the dev server.
var avdLogger = newLogger(os.Stderr)

// newLogger picks a text handler for terminals and JSON otherwise.
func newLogger(w *os.File) *slog.Logger {
	options := &slog.HandlerOptions{Level: logLevel}
	if term.IsTerminal(int(w.Fd())) {
		return slog.New(slog.NewTextHandler(w, options))
	}
	return slog.New(slog.NewJSONHandler(w, options))
}

// SetLogLevel accepts debug, info, warn or error.
func SetLogLevel(level string) error {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logLevel.Set(l)
	return nil
}

// LogEvent writes an info record tagged with the invocation's correlation id.
func LogEvent(env Env, message string, fields ...any) {
	logAt(env, slog.LevelInfo, message, fields...)
}

func LogWarn(env Env, message string, fields ...any) {
	logAt(env, slog.LevelWarn, message, fields...)
}

func logDebug(env Env, message string, fields ...any) {
	logAt(env, slog.LevelDebug, message, fields...)
}

func logAt(env Env, level slog.Level, message string, fields ...any) {
	now := time.Now().UTC()
	baseFields := []any{"timestamp_ns", now.UnixNano()}
	if env.CorrelationID != "" {
		baseFields = append(baseFields, "correlation_id", env.CorrelationID)
	}
	allFields := append(baseFields, fields...)
	avdLogger.Log(context.Background(), level, message, allFields...)
	if level >= logLevel.Level() {
		emitOTel(now, level, message, allFields)
	}
}

// emitOTel mirrors a record to the OpenTelemetry logs API. Without an
// installed LoggerProvider this is a no-op.
func emitOTel(at time.Time, level slog.Level, message string, fields []any) {
	var record otellog.Record
	record.SetTimestamp(at)
	record.SetSeverity(otelSeverity(level))
	record.SetSeverityText(level.String())
	record.SetBody(otellog.StringValue(message))
	for i := 0; i+1 < len(fields); i += 2 {
		record.AddAttributes(otellog.String(fmt.Sprint(fields[i]), fmt.Sprint(fields[i+1])))
	}
	global.GetLoggerProvider().Logger("emuready").Emit(context.Background(), record)
}

func otelSeverity(level slog.Level) otellog.Severity {
	switch {
	case level >= slog.LevelError:
		return otellog.SeverityError
	case level >= slog.LevelWarn:
		return otellog.SeverityWarn
	case level >= slog.LevelInfo:
		return otellog.SeverityInfo
	default:
		return otellog.SeverityDebug
	}
}

type lineLogWriter struct {
	env    Env
	fields []any
	buffer []byte
	msg    string
}

func (writer *lineLogWriter) Write(payload []byte) (int, error) {
	writer.buffer = append(writer.buffer, payload...)
	for {
		newlineIndex := bytes.IndexByte(writer.buffer, '\n')
		if newlineIndex == -1 {
			break
		}
		line := strings.TrimSpace(string(writer.buffer[:newlineIndex]))
		writer.buffer = writer.buffer[newlineIndex+1:]
		if line != "" {
			logDebug(writer.env, writer.msg, append(writer.fields, "line", line)...)
		}
	}
	return len(payload), nil
}

func newLineLogWriterWithMessage(env Env, message string, fields ...any) io.Writer {
	return &lineLogWriter{
		env:    env,
		fields: fields,
		msg:    message,
	}
}

func newCommandLogWriter(env Env, command string, args []string) io.Writer {
	fields := []any{"command", command, "stream", "stderr"}
	if len(args) > 0 {
		fields = append(fields, "args", strings.Join(args, " "))
	}
	return newLineLogWriterWithMessage(env, "command stderr", fields...)
}
