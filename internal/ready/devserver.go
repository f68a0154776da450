// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package ready

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel/attribute"

	"github.com/forkbombeu/emuready/internal/avd"
)

// runDevServer runs the dev server at most twice with a constant delay
// between attempts. The last attempt's exit code is what the caller sees.
func (r *run) runDevServer(ctx context.Context, serial string, args []string) error {
	ctx, span := avd.StartSpan(
		ctx,
		r.o.Env,
		"ready.RunDevServer",
		attribute.String("serial", serial),
		attribute.Int("max_attempts", devServerAttempts),
	)
	defer span.End()

	attempt := 0
	operation := func() (int, error) {
		attempt++
		r.result.Attempts = attempt
		r.enter(StateRunning, attempt)
		code, err := r.o.DevServer.Run(ctx, serial, args)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return code, backoff.Permanent(ctxErr)
		}
		if err == nil && code == 0 {
			return 0, nil
		}
		if code <= 0 {
			code = 1
		}
		avd.LogWarn(r.o.Env, "dev server failed", "serial", serial, "attempt", attempt, "exit_code", code, "error", err)
		return code, &ExitError{Code: code, Attempt: attempt, Err: err}
	}

	_, err := backoff.Retry(
		ctx,
		operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(r.opts.RetryDelay)),
		backoff.WithMaxTries(devServerAttempts),
		// A dev server can run for hours before failing; elapsed time must
		// not cancel the retry.
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			avd.LogEvent(r.o.Env, "dev server retry scheduled", "serial", serial, "delay", next.String(), "error", err)
		}),
	)
	span.SetAttributes(attribute.Int("attempts", attempt))
	if ctxErr := ctx.Err(); ctxErr != nil {
		avd.RecordSpanError(span, ctxErr)
		return &Error{Stage: StageDevServer, Err: ctxErr}
	}
	if err != nil {
		avd.RecordSpanError(span, err)
		return &Error{Stage: StageDevServer, Err: err}
	}
	return nil
}
