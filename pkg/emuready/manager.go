// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

// Package emuready provides a Go library for bringing an Android emulator
// to a booted state and running a dev server against it.
package emuready

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/forkbombeu/emuready/internal/avd"
	"github.com/forkbombeu/emuready/internal/ready"
)

// Options tunes one readiness run. Start from DefaultOptions.
type Options = ready.Options

// Result describes how far a run got, including the visited states.
type Result = ready.Result

// Descriptor names the AVD, its system image and its hardware profile.
type Descriptor = avd.Descriptor

// DefaultOptions returns the stock device and timing: 120s to connect,
// 360s to boot, one dev server retry after 2s.
func DefaultOptions() Options { return ready.DefaultOptions() }

// ExitCode maps an error returned by Up or Wait to a process exit status.
func ExitCode(err error) int { return ready.ExitCode(err) }

// Manager provides high-level readiness operations.
type Manager struct {
	env avd.Env
}

// New creates a new Manager with auto-detected environment.
func New() *Manager {
	return &Manager{
		env: avd.Detect(),
	}
}

// NewWithCorrelationID creates a new Manager with a correlation ID for structured logs.
func NewWithCorrelationID(correlationID string) *Manager {
	env := avd.Detect()
	env.CorrelationID = correlationID
	return &Manager{
		env: env,
	}
}

// NewWithEnv creates a new Manager with custom environment configuration.
// Empty binaries fall back to their bare names on PATH.
func NewWithEnv(env Environment) *Manager {
	devCommand := avd.DefaultDevCommand
	if len(env.DevCommand) > 0 {
		devCommand = env.DevCommand
	}
	return &Manager{
		env: avd.Env{
			SDKRoot:       env.SDKRoot,
			AVDHome:       env.AVDHome,
			LogDir:        env.LogDir,
			Emulator:      orDefault(env.EmulatorBin, "emulator"),
			ADB:           orDefault(env.ADBBin, "adb"),
			AvdMgr:        orDefault(env.AvdManagerBin, "avdmanager"),
			SdkManager:    orDefault(env.SdkManagerBin, "sdkmanager"),
			EmulatorArgs:  env.EmulatorArgs,
			DevCommand:    devCommand,
			CorrelationID: env.CorrelationID,
		},
	}
}

// Environment holds configuration for the SDK tools and paths.
type Environment struct {
	SDKRoot       string   // ANDROID_SDK_ROOT
	AVDHome       string   // ANDROID_AVD_HOME (default ~/.android/avd)
	LogDir        string   // Where emulator launch logs go (default os.TempDir())
	EmulatorBin   string   // Path to emulator binary (default: "emulator")
	ADBBin        string   // Path to adb binary (default: "adb")
	AvdManagerBin string   // Path to avdmanager binary (default: "avdmanager")
	SdkManagerBin string   // Path to sdkmanager binary (default: "sdkmanager")
	EmulatorArgs  []string // Extra emulator flags, appended to "-avd NAME"
	DevCommand    []string // Dev server argv (default: dx serve --platform android)
	CorrelationID string   // Correlation ID for log enrichment
}

// DeviceInfo describes one device adb knows about.
type DeviceInfo struct {
	Serial string // e.g. emulator-5554
	State  string // adb state: device, offline, unauthorized...
	Name   string // AVD name, emulators only
	Port   int    // Console port, emulators only
	PID    int    // Emulator process ID when it can be found
	Booted bool   // Whether Android has fully booted
}

// Up creates the AVD if missing, launches it unless a device is already
// connected, waits for connection and boot, then runs the dev server with
// args appended. It blocks for as long as the dev server runs.
func (m *Manager) Up(ctx context.Context, opts Options, args ...string) (Result, error) {
	ctx, span := m.startSpan(ctx, "emuready.Up",
		attribute.String("avd_name", opts.Device.Name),
		attribute.String("dev_args", strings.Join(args, " ")),
	)
	defer span.End()
	res, err := ready.New(m.env).Up(ctx, opts, args)
	avd.RecordSpanError(span, err)
	return res, err
}

// Wait readies the device like Up but returns instead of running the dev
// server. Result.Serial names the booted device.
func (m *Manager) Wait(ctx context.Context, opts Options) (Result, error) {
	ctx, span := m.startSpan(ctx, "emuready.Wait", attribute.String("avd_name", opts.Device.Name))
	defer span.End()
	res, err := ready.New(m.env).Wait(ctx, opts)
	avd.RecordSpanError(span, err)
	return res, err
}

// Devices returns every device adb currently reports.
func (m *Manager) Devices(ctx context.Context) ([]DeviceInfo, error) {
	ctx, span := m.startSpan(ctx, "emuready.Devices")
	defer span.End()
	procs, err := avd.NewADB(m.env).ListRunning(ctx)
	if err != nil {
		avd.RecordSpanError(span, err)
		return nil, err
	}
	result := make([]DeviceInfo, len(procs))
	for i, p := range procs {
		result[i] = DeviceInfo{
			Serial: p.Serial,
			State:  string(p.State),
			Name:   p.Name,
			Port:   p.Port,
			PID:    p.PID,
			Booted: p.Booted,
		}
	}
	return result, nil
}

// Stop stops a running emulator by serial (e.g., "emulator-5554").
func (m *Manager) Stop(ctx context.Context, serial string) error {
	ctx, span := m.startSpan(ctx, "emuready.Stop", attribute.String("serial", serial))
	defer span.End()
	err := avd.NewADB(m.env).StopBySerial(ctx, serial)
	avd.RecordSpanError(span, err)
	return err
}

// StopByName stops a running emulator by AVD name. Stopping an AVD that
// is not running is not an error.
func (m *Manager) StopByName(ctx context.Context, name string) error {
	ctx, span := m.startSpan(ctx, "emuready.StopByName", attribute.String("avd_name", name))
	defer span.End()
	adb := avd.NewADB(m.env)
	procs, err := adb.ListRunning(ctx)
	if err != nil {
		avd.RecordSpanError(span, err)
		return err
	}
	for _, p := range procs {
		if p.Name == name {
			err := adb.StopBySerial(ctx, p.Serial)
			avd.RecordSpanError(span, err)
			return err
		}
	}
	return nil
}

func (m *Manager) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return avd.StartSpan(ctx, m.env, name, attrs...)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
