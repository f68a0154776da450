// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package avd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// SDK is the DeviceManager backed by the emulator, avdmanager and
// sdkmanager binaries.
type SDK struct {
	env Env
}

func NewSDK(env Env) *SDK { return &SDK{env: env} }

var avdNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ListAVDs runs `emulator -list-avds`. Diagnostic lines the emulator mixes
// into stdout (e.g. "INFO    | ...") are dropped.
func (s *SDK) ListAVDs(ctx context.Context) ([]string, error) {
	out, err := run(ctx, s.env, nil, s.env.Emulator, "-list-avds")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if avdNamePattern.MatchString(line) {
			names = append(names, line)
		}
	}
	return names, nil
}

// CreateAVD installs the system image if needed, then creates the AVD.
// avdmanager asks whether to create a custom hardware profile; the answer
// is always "no".
func (s *SDK) CreateAVD(ctx context.Context, d Descriptor) error {
	ctx, span := StartSpan(
		ctx,
		s.env,
		"avd.CreateAVD",
		attribute.String("name", d.Name),
		attribute.String("image", d.Image),
		attribute.String("profile", d.Profile),
	)
	defer span.End()
	if d.Name == "" {
		err := errors.New("empty AVD name")
		RecordSpanError(span, err)
		return err
	}
	if s.env.AVDHome != "" {
		if err := os.MkdirAll(s.env.AVDHome, 0o755); err != nil {
			RecordSpanError(span, err)
			return err
		}
	}
	if err := s.ensureSysImg(ctx, d.Image); err != nil {
		RecordSpanError(span, err)
		return fmt.Errorf("failed to ensure system image: %w", err)
	}
	LogEvent(s.env, "avd create start", "name", d.Name, "image", d.Image, "profile", d.Profile)
	if _, err := run(ctx, s.env, strings.NewReader("no\n"), s.env.AvdMgr,
		"create", "avd", "-n", d.Name, "-k", d.Image, "-d", d.Profile); err != nil {
		RecordSpanError(span, err)
		return fmt.Errorf("avdmanager create: %w", err)
	}
	LogEvent(s.env, "avd created", "name", d.Name)
	return nil
}

// ensureSysImg probes $ANDROID_SDK_ROOT/system-images for the package and
// installs it through sdkmanager when missing.
func (s *SDK) ensureSysImg(ctx context.Context, pkg string) error {
	if s.env.SDKRoot == "" {
		// Without an SDK root there is nothing to probe; let avdmanager report it.
		return nil
	}
	parts := strings.Split(pkg, ";")
	if len(parts) >= 4 {
		p := filepath.Join(append([]string{s.env.SDKRoot}, parts...)...)
		if _, err := os.Stat(p); err == nil {
			return nil
		}
	}
	LogEvent(s.env, "system image install", "image", pkg)
	_, _ = run(ctx, s.env, strings.NewReader(strings.Repeat("y\n", 32)), s.env.SdkManager, "--licenses")
	_, err := run(ctx, s.env, nil, s.env.SdkManager, pkg)
	return err
}

// StartDevice launches the emulator detached from this process. Its
// stdout and stderr go straight to logPath so the emulator keeps running
// after the caller exits.
func (s *SDK) StartDevice(ctx context.Context, name, logPath string) error {
	_, span := StartSpan(
		ctx,
		s.env,
		"avd.StartDevice",
		attribute.String("name", name),
		attribute.String("log_path", logPath),
	)
	defer span.End()
	LogEvent(s.env, "emulator start requested", "name", name, "log_path", logPath)

	logFile, err := os.Create(logPath)
	if err != nil {
		RecordSpanError(span, err)
		return fmt.Errorf("open log: %w", err)
	}
	defer logFile.Close()

	args := append([]string{"-avd", name}, s.env.EmulatorArgs...)
	// Not CommandContext: cancelling this invocation must not kill the device.
	cmd := exec.Command(s.env.Emulator, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		RecordSpanError(span, err)
		LogWarn(s.env, "emulator start failed", "name", name, "error", err, "log_path", logPath)
		return fmt.Errorf("emulator start: %w", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	span.SetAttributes(attribute.Int("pid", pid))
	LogEvent(s.env, "emulator started", "name", name, "pid", pid, "log_path", logPath)
	return nil
}
