// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package avd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// ADB is the Bridge backed by the adb binary.
type ADB struct {
	env Env
}

func NewADB(env Env) *ADB { return &ADB{env: env} }

// StartServer starts the adb server (idempotent).
func (a *ADB) StartServer(ctx context.Context) error {
	_, err := run(ctx, a.env, nil, a.env.ADB, "start-server")
	return err
}

func (a *ADB) Devices(ctx context.Context) ([]Endpoint, error) {
	out, err := run(ctx, a.env, nil, a.env.ADB, "devices")
	if err != nil {
		return nil, err
	}
	return ParseDevices(string(out)), nil
}

// GetProp returns the raw property value as printed by the device shell,
// line endings included.
func (a *ADB) GetProp(ctx context.Context, serial, prop string) (string, error) {
	out, err := run(ctx, a.env, nil, a.env.ADB, "-s", serial, "shell", "getprop", prop)
	return string(out), err
}

// AVDName asks the emulator console for the AVD name.
func (a *ADB) AVDName(ctx context.Context, serial string) (string, error) {
	out, err := run(ctx, a.env, nil, a.env.ADB, "-s", serial, "emu", "avd", "name")
	if err != nil {
		return "", err
	}
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if strings.TrimSpace(lines[len(lines)-1]) == "OK" && len(lines) > 1 {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(lines[0]), nil
}

// Kill asks the emulator behind serial to shut down.
func (a *ADB) Kill(ctx context.Context, serial string) error {
	_, err := run(ctx, a.env, nil, a.env.ADB, "-s", serial, "emu", "kill")
	return err
}

type ProcInfo struct {
	Serial string `json:"serial"`
	State  State  `json:"state"`
	Name   string `json:"name"`
	Port   int    `json:"port"`
	PID    int    `json:"pid"`
	Booted bool   `json:"booted"`
}

// ListRunning reports every endpoint adb knows about, enriched with AVD
// name, console port, pid and boot state for emulators.
func (a *ADB) ListRunning(ctx context.Context) ([]ProcInfo, error) {
	ctx, span := StartSpan(ctx, a.env, "avd.ListRunning")
	defer span.End()
	if err := a.StartServer(ctx); err != nil {
		LogWarn(a.env, "adb start-server failed", "error", err)
	}

	endpoints, err := a.Devices(ctx)
	if err != nil {
		RecordSpanError(span, err)
		return nil, err
	}
	procs := make([]ProcInfo, 0, len(endpoints))
	for _, e := range endpoints {
		p := ProcInfo{Serial: e.Serial, State: e.State}
		if e.IsEmulator() {
			p.Port, _ = strconv.Atoi(strings.TrimPrefix(e.Serial, "emulator-"))
			p.PID = findEmulatorPID(p.Port)
			p.Name, _ = a.AVDName(ctx, e.Serial)
			if p.Name == "" && p.PID > 0 {
				p.Name = findEmulatorNameFromPID(p.PID)
			}
		}
		if e.Ready() {
			v, err := a.GetProp(ctx, e.Serial, BootCompletedProp)
			p.Booted = err == nil && BootCompleted(v)
		}
		procs = append(procs, p)
	}
	span.SetAttributes(attribute.Int("count", len(procs)))
	return procs, nil
}

// SerialForName finds the running emulator serial for an AVD name.
func (a *ADB) SerialForName(ctx context.Context, name string) (string, error) {
	procs, err := a.ListRunning(ctx)
	if err != nil {
		return "", err
	}
	for _, p := range procs {
		if p.Name == name {
			return p.Serial, nil
		}
	}
	return "", fmt.Errorf("no running emulator named %s", name)
}
