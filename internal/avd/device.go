// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package avd

import (
	"context"
	"regexp"
	"strings"
	"unicode"
)

// Descriptor names a virtual device and the image/profile it is built from.
type Descriptor struct {
	Name    string `json:"name" yaml:"name"`
	Image   string `json:"image" yaml:"image"`
	Profile string `json:"profile" yaml:"profile"`
}

// State is the connection state adb reports for an endpoint.
type State string

const (
	StateDevice        State = "device"
	StateOffline       State = "offline"
	StateUnauthorized  State = "unauthorized"
	StateNoPermissions State = "no permissions"
	StateUnknown       State = "unknown"
)

// Endpoint is one row of `adb devices`.
type Endpoint struct {
	Serial string `json:"serial"`
	State  State  `json:"state"`
}

var emulatorSerial = regexp.MustCompile(`^emulator-[0-9]+$`)

// IsEmulator reports whether the serial has the emulator-<port> form.
func (e Endpoint) IsEmulator() bool { return emulatorSerial.MatchString(e.Serial) }

// Ready reports whether adb can talk to the endpoint.
func (e Endpoint) Ready() bool { return e.State == StateDevice }

// BootCompletedProp is set to "1" by Android once boot has finished.
const BootCompletedProp = "sys.boot_completed"

// BootCompleted reports whether a sys.boot_completed value means the
// device finished booting. Control characters (adb's \r\n) are ignored.
func BootCompleted(value string) bool {
	return strings.Map(func(c rune) rune {
		if unicode.IsControl(c) {
			return -1
		}
		return c
	}, value) == "1"
}

// ParseDevices parses `adb devices` output. Header and daemon chatter lines
// are ignored.
func ParseDevices(out string) []Endpoint {
	var endpoints []Endpoint
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" ||
			strings.HasPrefix(line, "List of devices") ||
			strings.HasPrefix(line, "* ") {
			continue
		}
		serial, state, ok := strings.Cut(line, "\t")
		if !ok {
			f := strings.Fields(line)
			if len(f) < 2 {
				continue
			}
			serial, state = f[0], strings.Join(f[1:], " ")
		}
		state = strings.TrimSpace(state)
		// "no permissions (user in plugdev group; ...)"
		if strings.HasPrefix(state, string(StateNoPermissions)) {
			state = string(StateNoPermissions)
		}
		if state == "" {
			state = string(StateUnknown)
		}
		endpoints = append(endpoints, Endpoint{Serial: strings.TrimSpace(serial), State: State(state)})
	}
	return endpoints
}

// Bridge is the part of adb the readiness flow depends on.
type Bridge interface {
	StartServer(ctx context.Context) error
	Devices(ctx context.Context) ([]Endpoint, error)
	GetProp(ctx context.Context, serial, prop string) (string, error)
}

// DeviceManager enumerates, creates and starts virtual devices.
type DeviceManager interface {
	ListAVDs(ctx context.Context) ([]string, error)
	CreateAVD(ctx context.Context, d Descriptor) error
	// StartDevice starts the named device in the background with its
	// output redirected to logPath. It does not wait for the device.
	StartDevice(ctx context.Context, name, logPath string) error
}

// DevServer runs the application's development server against a device
// and reports the process exit code.
type DevServer interface {
	Run(ctx context.Context, serial string, args []string) (int, error)
}
