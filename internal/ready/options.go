// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package ready

import (
	"errors"
	"fmt"
	"time"

	"github.com/forkbombeu/emuready/internal/avd"
)

// Defaults for the RustySound Android dev loop.
const (
	DefaultName    = "rustysound-api34"
	DefaultImage   = "system-images;android-34;google_apis;x86_64"
	DefaultProfile = "pixel_6"
)

// devServerAttempts is fixed: one run plus exactly one retry.
const devServerAttempts = 2

type Options struct {
	Device avd.Descriptor

	// LogPath overrides the generated per-invocation launch log path.
	LogPath string
	// LogDir is where generated launch logs go.
	LogDir string

	SettleDelay     time.Duration
	ConnectInterval time.Duration
	ConnectTimeout  time.Duration
	BootInterval    time.Duration
	BootTimeout     time.Duration
	RetryDelay      time.Duration

	// LogTailLines is how much of the launch log a timeout prints.
	LogTailLines int
}

func DefaultOptions() Options {
	return Options{
		Device: avd.Descriptor{
			Name:    DefaultName,
			Image:   DefaultImage,
			Profile: DefaultProfile,
		},
		SettleDelay:     3 * time.Second,
		ConnectInterval: 1 * time.Second,
		ConnectTimeout:  2 * time.Minute,
		BootInterval:    2 * time.Second,
		BootTimeout:     6 * time.Minute,
		RetryDelay:      2 * time.Second,
		LogTailLines:    80,
	}
}

func (o Options) Validate() error {
	var errs []error
	if o.Device.Name == "" {
		errs = append(errs, errors.New("device name is required"))
	}
	if o.Device.Image == "" {
		errs = append(errs, errors.New("system image is required"))
	}
	if o.Device.Profile == "" {
		errs = append(errs, errors.New("device profile is required"))
	}
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"connect interval", o.ConnectInterval},
		{"connect timeout", o.ConnectTimeout},
		{"boot interval", o.BootInterval},
		{"boot timeout", o.BootTimeout},
	}
	for _, p := range positive {
		if p.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", p.name, p.d))
		}
	}
	if o.SettleDelay < 0 {
		errs = append(errs, fmt.Errorf("settle delay must not be negative, got %s", o.SettleDelay))
	}
	if o.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry delay must not be negative, got %s", o.RetryDelay))
	}
	if o.LogTailLines < 0 {
		errs = append(errs, fmt.Errorf("log tail lines must not be negative, got %d", o.LogTailLines))
	}
	return errors.Join(errs...)
}
