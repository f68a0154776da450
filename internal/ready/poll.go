// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package ready

import (
	"context"
	"fmt"
	"time"

	units "github.com/docker/go-units"
	"go.opentelemetry.io/otel/attribute"

	"github.com/forkbombeu/emuready/internal/avd"
)

const bootProperty = avd.BootCompletedProp

// poll runs check, then waits interval, until check reports done, the
// clock reaches start+timeout, or ctx ends. It returns how many checks ran.
// Check errors are not fatal; the last one is quoted in the timeout error.
func (r *run) poll(ctx context.Context, interval, timeout time.Duration, check func(context.Context) (bool, error)) (int, error) {
	deadline := r.o.Clock.Now().Add(timeout)
	var lastErr error
	for polls := 1; ; polls++ {
		done, err := check(ctx)
		if done {
			return polls, nil
		}
		if err != nil {
			lastErr = err
		}
		if err := r.sleep(ctx, interval); err != nil {
			return polls, err
		}
		if !r.o.Clock.Now().Before(deadline) {
			if lastErr != nil {
				return polls, fmt.Errorf("%w after %s (%d polls, last error: %v)", ErrTimeout, units.HumanDuration(timeout), polls, lastErr)
			}
			return polls, fmt.Errorf("%w after %s (%d polls)", ErrTimeout, units.HumanDuration(timeout), polls)
		}
	}
}

// readyEmulator returns the first emulator-<port> endpoint in device state
// and how many such endpoints there are.
func readyEmulator(endpoints []avd.Endpoint) (string, int) {
	serial, count := "", 0
	for _, e := range endpoints {
		if e.IsEmulator() && e.Ready() {
			if count == 0 {
				serial = e.Serial
			}
			count++
		}
	}
	return serial, count
}

func (r *run) waitConnected(ctx context.Context) (string, error) {
	ctx, span := avd.StartSpan(
		ctx,
		r.o.Env,
		"ready.WaitConnected",
		attribute.String("timeout", r.opts.ConnectTimeout.String()),
		attribute.String("interval", r.opts.ConnectInterval.String()),
	)
	defer span.End()
	r.enter(StateAwaitingConnection, 0)

	var serial string
	var count int
	polls, err := r.poll(ctx, r.opts.ConnectInterval, r.opts.ConnectTimeout, func(ctx context.Context) (bool, error) {
		endpoints, err := r.o.Bridge.Devices(ctx)
		if err != nil {
			return false, err
		}
		serial, count = readyEmulator(endpoints)
		return count > 0, nil
	})
	r.result.ConnectPolls = polls
	span.SetAttributes(attribute.Int("polls", polls))
	if err != nil {
		avd.RecordSpanError(span, err)
		r.printLogTail(fmt.Sprintf("emulator did not connect: %v", err))
		return "", &Error{Stage: StageConnect, Err: err}
	}

	if count > 1 {
		avd.LogWarn(r.o.Env, "several emulators connected, using the first", "serial", serial, "count", count)
	}
	r.result.Serial = serial
	span.SetAttributes(attribute.String("serial", serial))
	avd.LogEvent(r.o.Env, "emulator connected", "serial", serial, "polls", polls)
	r.enter(StateConnected, 0)
	return serial, nil
}

func (r *run) waitBooted(ctx context.Context, serial string) error {
	ctx, span := avd.StartSpan(
		ctx,
		r.o.Env,
		"ready.WaitBooted",
		attribute.String("serial", serial),
		attribute.String("timeout", r.opts.BootTimeout.String()),
		attribute.String("interval", r.opts.BootInterval.String()),
	)
	defer span.End()
	r.enter(StateAwaitingBoot, 0)

	polls, err := r.poll(ctx, r.opts.BootInterval, r.opts.BootTimeout, func(ctx context.Context) (bool, error) {
		value, err := r.o.Bridge.GetProp(ctx, serial, bootProperty)
		if err != nil {
			return false, err
		}
		return avd.BootCompleted(value), nil
	})
	r.result.BootPolls = polls
	span.SetAttributes(attribute.Int("polls", polls))
	if err != nil {
		avd.RecordSpanError(span, err)
		r.printLogTail(fmt.Sprintf("emulator %s did not finish booting: %v", serial, err))
		return &Error{Stage: StageBoot, Err: err}
	}

	span.SetAttributes(attribute.Bool("boot_completed", true))
	avd.LogEvent(r.o.Env, "emulator booted", "serial", serial, "polls", polls)
	r.enter(StateBooted, 0)
	return nil
}
