// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package config

import (
	"time"

	"github.com/spf13/pflag"

	"github.com/forkbombeu/emuready/internal/ready"
)

// Flags are the readiness options exposed on the command line. A flag only
// takes effect when it was set explicitly, so file values survive unset
// flags.
type Flags struct {
	Name    string
	Image   string
	Profile string
	LogFile string
	LogDir  string

	ConnectTimeout time.Duration
	BootTimeout    time.Duration
	SettleDelay    time.Duration
	RetryDelay     time.Duration
}

// Bind registers the flags on fs with the built-in defaults shown in help.
func (f *Flags) Bind(fs *pflag.FlagSet) {
	d := ready.DefaultOptions()
	fs.StringVar(&f.Name, "name", d.Device.Name, "AVD name")
	fs.StringVar(&f.Image, "image", d.Device.Image, "system image package used when the AVD is created")
	fs.StringVar(&f.Profile, "device", d.Device.Profile, "hardware profile used when the AVD is created")
	fs.StringVar(&f.LogFile, "log-file", "", "emulator launch log (default: a fresh file under --log-dir)")
	fs.StringVar(&f.LogDir, "log-dir", "", "directory for generated launch logs (default: $EMUREADY_LOG_DIR or the temp dir)")
	fs.DurationVar(&f.ConnectTimeout, "connect-timeout", d.ConnectTimeout, "how long to wait for the emulator to connect")
	fs.DurationVar(&f.BootTimeout, "boot-timeout", d.BootTimeout, "how long to wait for sys.boot_completed")
	fs.DurationVar(&f.SettleDelay, "settle-delay", d.SettleDelay, "wait after launching before checking the launch log")
	fs.DurationVar(&f.RetryDelay, "retry-delay", d.RetryDelay, "wait before the single dev server retry")
}

// Apply copies the flags that were set on fs over opts.
func (f *Flags) Apply(fs *pflag.FlagSet, opts *ready.Options) {
	changed := func(name string) bool {
		flag := fs.Lookup(name)
		return flag != nil && flag.Changed
	}
	if changed("name") {
		opts.Device.Name = f.Name
	}
	if changed("image") {
		opts.Device.Image = f.Image
	}
	if changed("device") {
		opts.Device.Profile = f.Profile
	}
	if changed("log-file") {
		opts.LogPath = f.LogFile
	}
	if changed("log-dir") {
		opts.LogDir = f.LogDir
	}
	if changed("connect-timeout") {
		opts.ConnectTimeout = f.ConnectTimeout
	}
	if changed("boot-timeout") {
		opts.BootTimeout = f.BootTimeout
	}
	if changed("settle-delay") {
		opts.SettleDelay = f.SettleDelay
	}
	if changed("retry-delay") {
		opts.RetryDelay = f.RetryDelay
	}
}
