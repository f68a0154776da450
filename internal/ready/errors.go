// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package ready

import (
	"errors"
	"fmt"
)

// Stage names the step that failed.
type Stage string

const (
	StageConfig    Stage = "config"
	StageCreate    Stage = "create"
	StageLaunch    Stage = "launch"
	StageConnect   Stage = "connect"
	StageBoot      Stage = "boot"
	StageDevServer Stage = "dev-server"
)

// ErrTimeout marks a poller that ran out of time.
var ErrTimeout = errors.New("timed out")

// ErrNoLaunchLog means the emulator never produced its log file.
var ErrNoLaunchLog = errors.New("launch log was not created")

type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// ExitError carries the dev server's exit code out of the orchestrator.
type ExitError struct {
	Code    int
	Attempt int
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dev server attempt %d failed: %v", e.Attempt, e.Err)
	}
	return fmt.Sprintf("dev server attempt %d exited with code %d", e.Attempt, e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps an orchestrator error to a process exit status: 0 for nil,
// the dev server's code when it is what failed, 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) && exitErr.Code > 0 {
		return exitErr.Code
	}
	return 1
}
