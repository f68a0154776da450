// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package avd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// StopBySerial shuts an emulator down via the console and falls back to
// signalling its process. Stopping an emulator that is not running is not
// an error.
func (a *ADB) StopBySerial(ctx context.Context, serial string) error {
	if !emulatorSerial.MatchString(serial) {
		return fmt.Errorf("invalid serial format: %s (expected emulator-XXXX)", serial)
	}
	port, _ := strconv.Atoi(strings.TrimPrefix(serial, "emulator-"))

	ctx, span := StartSpan(
		ctx,
		a.env,
		"avd.StopBySerial",
		attribute.String("serial", serial),
		attribute.Int("port", port),
	)
	defer span.End()
	LogEvent(a.env, "emulator stop requested", "serial", serial, "port", port)

	adbErr := a.Kill(ctx, serial)
	time.Sleep(1 * time.Second)

	pid := findEmulatorPID(port)
	if pid == 0 {
		span.SetAttributes(attribute.Bool("stopped", true))
		LogEvent(a.env, "emulator stopped", "serial", serial, "port", port)
		return nil
	}

	if proc, err := os.FindProcess(pid); err == nil {
		if killErr := proc.Signal(os.Interrupt); killErr == nil {
			time.Sleep(2 * time.Second)
			if findEmulatorPID(port) > 0 {
				_ = proc.Kill()
			}
			span.SetAttributes(attribute.Bool("stopped", true))
			LogEvent(a.env, "emulator stopped", "serial", serial, "port", port, "pid", pid)
			return nil
		}
	}

	if adbErr != nil {
		RecordSpanError(span, adbErr)
		LogWarn(a.env, "emulator stop failed", "serial", serial, "port", port, "pid", pid, "error", adbErr)
		return fmt.Errorf("failed to stop %s via adb: %w\nalso failed to signal PID %d", serial, adbErr, pid)
	}
	return nil
}

// findEmulatorPID looks for "-port <port>" in a qemu/emulator cmdline.
// Linux only; returns 0 elsewhere or when nothing matches.
func findEmulatorPID(port int) int {
	if port == 0 {
		return 0
	}
	entries, _ := filepath.Glob("/proc/[0-9]*/cmdline")
	needle := []byte(fmt.Sprintf("-port%c%d%c", 0, port, 0))
	for _, p := range entries {
		b, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		if !bytes.HasSuffix(b, []byte{0}) {
			b = append(b, 0)
		}
		if bytes.Contains(b, needle) &&
			(bytes.Contains(b, []byte("qemu-system")) || bytes.Contains(b, []byte("emulator"))) {
			base := filepath.Base(filepath.Dir(p))
			if n, err := strconv.Atoi(base); err == nil {
				if _, statErr := os.Stat(filepath.Join("/proc", base, "stat")); statErr == nil {
					return n
				}
			}
		}
	}
	return 0
}

// findEmulatorNameFromPID extracts the AVD name from a process cmdline.
func findEmulatorNameFromPID(pid int) string {
	if pid == 0 {
		return ""
	}
	b, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "cmdline"))
	if err != nil {
		return ""
	}
	// cmdline is NUL separated: [emulator, -avd, name, -port, ...]
	parts := bytes.Split(b, []byte{0})
	for i, part := range parts {
		if string(part) == "-avd" && i+1 < len(parts) {
			return string(parts[i+1])
		}
	}
	return ""
}
