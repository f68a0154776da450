// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

// Package ready brings an Android virtual device to a connected, booted
// state and runs the application's dev server against it.
//
// The flow is strictly sequential: inventory check, optional create,
// optional launch, connection poll, boot poll, then the dev server with a
// single retry. Any create or launch failure and any poll timeout ends the
// run; nothing is started against a device that was not seen both
// connected and booted.
package ready

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/forkbombeu/emuready/internal/avd"
	"github.com/forkbombeu/emuready/internal/clock"
)

type Orchestrator struct {
	Env       avd.Env
	Bridge    avd.Bridge
	Devices   avd.DeviceManager
	DevServer avd.DevServer
	Clock     clock.Clock
	// Diagnostics receives launch-log tails on failure. Defaults to os.Stderr.
	Diagnostics io.Writer
}

// New wires the orchestrator to the real adb, SDK tools and dev server.
func New(env avd.Env) *Orchestrator {
	return &Orchestrator{
		Env:         env,
		Bridge:      avd.NewADB(env),
		Devices:     avd.NewSDK(env),
		DevServer:   avd.NewDevServer(env),
		Clock:       clock.Real(),
		Diagnostics: os.Stderr,
	}
}

// Up readies the device and runs the dev server with args appended.
func (o *Orchestrator) Up(ctx context.Context, opts Options, args []string) (Result, error) {
	ctx, span := avd.StartSpan(ctx, o.Env, "ready.Up", attribute.String("device", opts.Device.Name))
	defer span.End()

	r := o.newRun(opts, span)
	serial, err := r.prepare(ctx)
	if err == nil {
		err = r.runDevServer(ctx, serial, args)
	}
	return r.finish(err)
}

// Wait readies the device without running the dev server.
func (o *Orchestrator) Wait(ctx context.Context, opts Options) (Result, error) {
	ctx, span := avd.StartSpan(ctx, o.Env, "ready.Wait", attribute.String("device", opts.Device.Name))
	defer span.End()

	r := o.newRun(opts, span)
	_, err := r.prepare(ctx)
	return r.finish(err)
}

// run holds the state of one invocation. Nothing in it outlives the call.
type run struct {
	o       *Orchestrator
	opts    Options
	span    trace.Span
	logPath string
	result  Result
}

func (o *Orchestrator) newRun(opts Options, span trace.Span) *run {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	r := &run{
		o:      o,
		opts:   opts,
		span:   span,
		result: Result{Device: opts.Device.Name},
	}
	r.enter(StateStart, 0)
	return r
}

func (r *run) prepare(ctx context.Context) (string, error) {
	if err := r.opts.Validate(); err != nil {
		return "", &Error{Stage: StageConfig, Err: err}
	}
	logPath, err := r.launchLogPath()
	if err != nil {
		return "", &Error{Stage: StageConfig, Err: err}
	}
	r.logPath = logPath

	if err := r.ensureDevice(ctx); err != nil {
		return "", err
	}
	if err := r.launch(ctx); err != nil {
		return "", err
	}
	serial, err := r.waitConnected(ctx)
	if err != nil {
		return "", err
	}
	if err := r.waitBooted(ctx, serial); err != nil {
		return "", err
	}
	return serial, nil
}

// launchLogPath returns the per-invocation emulator log path. Concurrent
// runs never share one.
func (r *run) launchLogPath() (string, error) {
	if r.opts.LogPath != "" {
		return r.opts.LogPath, nil
	}
	dir := r.opts.LogDir
	if dir == "" {
		dir = r.o.Env.LogDir
	}
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}
	name := fmt.Sprintf("emulator-%s-%s.log", r.opts.Device.Name, uuid.NewString())
	return filepath.Join(dir, name), nil
}

func (r *run) enter(state State, attempt int) {
	t := Transition{State: state, Attempt: attempt, At: r.o.Clock.Now()}
	r.result.Transitions = append(r.result.Transitions, t)
	r.span.AddEvent(t.String())
	avd.LogEvent(r.o.Env, "readiness state", "device", r.opts.Device.Name, "state", t.String())
}

func (r *run) finish(err error) (Result, error) {
	r.result.ExitCode = ExitCode(err)
	r.span.SetAttributes(attribute.Int("exit_code", r.result.ExitCode))
	if err != nil {
		avd.RecordSpanError(r.span, err)
		r.enter(StateFailure, 0)
		avd.LogWarn(r.o.Env, "readiness failed", "device", r.opts.Device.Name, "error", err, "exit_code", r.result.ExitCode)
		return r.result, err
	}
	r.enter(StateSuccess, 0)
	return r.result, nil
}

// sleep waits d on the orchestrator clock unless ctx ends first.
func (r *run) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil || d <= 0 {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-r.o.Clock.After(d):
		return nil
	}
}

func (r *run) diagnostics() io.Writer {
	if r.o.Diagnostics != nil {
		return r.o.Diagnostics
	}
	return os.Stderr
}
