// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package ready

import (
	"context"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"github.com/forkbombeu/emuready/internal/avd"
)

// ensureDevice creates the AVD unless one with the exact name exists.
func (r *run) ensureDevice(ctx context.Context) error {
	exists := r.checkInventory(ctx)
	r.enter(StateInventoryChecked, 0)
	if exists {
		avd.LogEvent(r.o.Env, "avd present, skipping create", "name", r.opts.Device.Name)
		r.enter(StateCreateSkipped, 0)
		return nil
	}
	if err := r.create(ctx); err != nil {
		return err
	}
	r.result.Created = true
	r.enter(StateCreated, 0)
	return nil
}

// checkInventory fails open: a listing error counts as "absent" so the
// create step runs and reports the real problem if there is one.
func (r *run) checkInventory(ctx context.Context) bool {
	ctx, span := avd.StartSpan(ctx, r.o.Env, "ready.Inventory", attribute.String("name", r.opts.Device.Name))
	defer span.End()

	names, err := r.o.Devices.ListAVDs(ctx)
	if err != nil {
		avd.RecordSpanError(span, err)
		avd.LogWarn(r.o.Env, "avd inventory failed, assuming absent", "name", r.opts.Device.Name, "error", err)
		return false
	}
	exists := slices.Contains(names, r.opts.Device.Name)
	span.SetAttributes(attribute.Bool("exists", exists), attribute.Int("count", len(names)))
	return exists
}

func (r *run) create(ctx context.Context) error {
	ctx, span := avd.StartSpan(
		ctx,
		r.o.Env,
		"ready.Create",
		attribute.String("name", r.opts.Device.Name),
		attribute.String("image", r.opts.Device.Image),
		attribute.String("profile", r.opts.Device.Profile),
	)
	defer span.End()

	if err := r.o.Devices.CreateAVD(ctx, r.opts.Device); err != nil {
		avd.RecordSpanError(span, err)
		return &Error{Stage: StageCreate, Err: err}
	}
	return nil
}
