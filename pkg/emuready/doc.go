// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

/*
Package emuready brings an Android emulator to a connected, booted state and
runs an application dev server against it.

# Overview

A run is strictly sequential:

 1. Inventory: list the AVDs the emulator knows about.
 2. Create: if the AVD is missing, create it with avdmanager (installing the
    system image through sdkmanager first when it is not on disk).
 3. Launch: if no device is connected, start the emulator in the background
    with its output redirected to a per-run log file.
 4. Connect: poll `adb devices` every second for up to two minutes until an
    emulator is in the "device" state.
 5. Boot: poll `getprop sys.boot_completed` every two seconds for up to six
    minutes until it reports 1.
 6. Dev server: run `dx serve --platform android`, retrying exactly once
    after two seconds if it fails.

A connection or boot timeout prints the tail of the emulator log and fails
the run. Nothing is started against a device that was not seen both
connected and booted.

# Quick Start

	import "github.com/forkbombeu/emuready/pkg/emuready"

	func main() {
		mgr := emuready.New()
		opts := emuready.DefaultOptions()
		opts.Device.Name = "ci-api34"

		_, err := mgr.Up(context.Background(), opts, "--release")
		os.Exit(emuready.ExitCode(err))
	}

# Exit Codes

ExitCode returns 0 on success, the dev server's own exit code when the dev
server is what failed, and 1 for everything else.

# Environment Configuration

By default, the manager auto-detects paths from environment variables:
  - ANDROID_SDK_ROOT (or ANDROID_HOME)
  - ANDROID_AVD_HOME
  - EMUREADY_LOG_DIR
  - EMUREADY_ADB, EMUREADY_EMULATOR, EMUREADY_AVDMANAGER, EMUREADY_SDKMANAGER
  - EMUREADY_EMULATOR_ARGS
  - EMUREADY_DEV_CMD

Use NewWithEnv() to override with custom paths.

# Thread Safety

A Manager holds no mutable state and may be shared. Concurrent Up calls
each get their own launch log, but they race for the same adb server and
will pick the same connected emulator.

# Requirements

  - Android SDK with emulator, adb, avdmanager and sdkmanager
  - The Dioxus CLI (dx) or another configured dev server
  - KVM for hardware acceleration (Linux)

# License

AGPL-3.0-only

Copyright (C) 2025 Forkbomb B.V.
*/
package emuready
