// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package ready

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/attribute"

	"github.com/forkbombeu/emuready/internal/avd"
)

// launch starts the emulator unless some endpoint is already in the
// device state. A started emulator must produce its log file within the
// settle delay.
func (r *run) launch(ctx context.Context) error {
	ctx, span := avd.StartSpan(ctx, r.o.Env, "ready.Launch", attribute.String("name", r.opts.Device.Name))
	defer span.End()

	if err := r.o.Bridge.StartServer(ctx); err != nil {
		avd.LogWarn(r.o.Env, "adb start-server failed", "error", err)
	}
	endpoints, err := r.o.Bridge.Devices(ctx)
	if err != nil {
		avd.LogWarn(r.o.Env, "device listing failed before launch", "error", err)
	}
	r.enter(StateLaunchChecked, 0)

	for _, e := range endpoints {
		if e.Ready() {
			avd.LogEvent(r.o.Env, "device already connected, skipping launch", "serial", e.Serial)
			span.SetAttributes(attribute.Bool("skipped", true), attribute.String("serial", e.Serial))
			r.enter(StateLaunchSkipped, 0)
			return nil
		}
	}

	if err := r.o.Devices.StartDevice(ctx, r.opts.Device.Name, r.logPath); err != nil {
		avd.RecordSpanError(span, err)
		fmt.Fprintf(r.diagnostics(), "emulator launch failed: %v\n", err)
		return &Error{Stage: StageLaunch, Err: err}
	}
	if err := r.sleep(ctx, r.opts.SettleDelay); err != nil {
		return &Error{Stage: StageLaunch, Err: err}
	}
	if _, err := os.Stat(r.logPath); err != nil {
		err = fmt.Errorf("%w: %s", ErrNoLaunchLog, r.logPath)
		avd.RecordSpanError(span, err)
		fmt.Fprintf(r.diagnostics(), "emulator launch failed: no log at %s after %s\n", r.logPath, r.opts.SettleDelay)
		return &Error{Stage: StageLaunch, Err: err}
	}

	r.result.Launched = true
	r.result.LogPath = r.logPath
	span.SetAttributes(attribute.String("log_path", r.logPath))
	r.enter(StateLaunched, 0)
	return nil
}
