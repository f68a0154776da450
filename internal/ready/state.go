// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package ready

import (
	"fmt"
	"time"
)

// State is a step of the readiness state machine.
type State string

const (
	StateStart              State = "START"
	StateInventoryChecked   State = "INVENTORY_CHECKED"
	StateCreated            State = "CREATED"
	StateCreateSkipped      State = "CREATE_SKIPPED"
	StateLaunchChecked      State = "LAUNCH_CHECKED"
	StateLaunched           State = "LAUNCHED"
	StateLaunchSkipped      State = "LAUNCH_SKIPPED"
	StateAwaitingConnection State = "AWAITING_CONNECTION"
	StateConnected          State = "CONNECTED"
	StateAwaitingBoot       State = "AWAITING_BOOT"
	StateBooted             State = "BOOTED"
	StateRunning            State = "RUNNING"
	StateSuccess            State = "SUCCESS"
	StateFailure            State = "FAILURE"
)

// Transition records entry into a state. Attempt is set for StateRunning only.
type Transition struct {
	State   State     `json:"state"`
	Attempt int       `json:"attempt,omitempty"`
	At      time.Time `json:"at"`
}

func (t Transition) String() string {
	if t.State == StateRunning {
		return fmt.Sprintf("%s(%d)", t.State, t.Attempt)
	}
	return string(t.State)
}

// Result describes what one invocation did. It is returned even when the
// invocation fails so callers can report how far it got.
type Result struct {
	Device       string       `json:"device"`
	Serial       string       `json:"serial,omitempty"`
	LogPath      string       `json:"log_path,omitempty"`
	Created      bool         `json:"created"`
	Launched     bool         `json:"launched"`
	ConnectPolls int          `json:"connect_polls"`
	BootPolls    int          `json:"boot_polls"`
	Attempts     int          `json:"attempts"`
	ExitCode     int          `json:"exit_code"`
	Transitions  []Transition `json:"transitions"`
}

// Path lists the visited states, attempts rendered as "RUNNING(n)".
func (r Result) Path() []string {
	out := make([]string, len(r.Transitions))
	for i, t := range r.Transitions {
		out[i] = t.String()
	}
	return out
}

// Final is the last state reached.
func (r Result) Final() State {
	if len(r.Transitions) == 0 {
		return StateStart
	}
	return r.Transitions[len(r.Transitions)-1].State
}
