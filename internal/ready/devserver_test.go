// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package ready

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestDevServerRetry(t *testing.T) {
	cases := []struct {
		name     string
		codes    []int
		errs     []error
		attempts int
		exit     int
		tail     []string
	}{
		{
			name:     "first attempt succeeds",
			codes:    []int{0},
			attempts: 1,
			exit:     0,
			tail:     []string{"RUNNING(1)", "SUCCESS"},
		},
		{
			name:     "retry succeeds",
			codes:    []int{3, 0},
			attempts: 2,
			exit:     0,
			tail:     []string{"RUNNING(1)", "RUNNING(2)", "SUCCESS"},
		},
		{
			name:     "both attempts fail",
			codes:    []int{3, 7},
			attempts: 2,
			exit:     7,
			tail:     []string{"RUNNING(1)", "RUNNING(2)", "FAILURE"},
		},
		{
			name:     "start failure counts as exit 1",
			codes:    []int{-1, -1},
			errs:     []error{errors.New("exec: \"dx\": executable file not found in $PATH"), errors.New("exec: \"dx\": executable file not found in $PATH")},
			attempts: 2,
			exit:     1,
			tail:     []string{"RUNNING(1)", "RUNNING(2)", "FAILURE"},
		},
		{
			name:     "never a third attempt",
			codes:    []int{1, 1, 0},
			attempts: 2,
			exit:     1,
			tail:     []string{"RUNNING(1)", "RUNNING(2)", "FAILURE"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.server.codes = tc.codes
			h.server.errs = tc.errs

			res, err := h.up(t)
			if got := h.log.count("dev-server"); got != tc.attempts {
				t.Fatalf("expected %d attempts, got %d", tc.attempts, got)
			}
			if res.Attempts != tc.attempts {
				t.Fatalf("result reports %d attempts, want %d", res.Attempts, tc.attempts)
			}
			if res.ExitCode != tc.exit || ExitCode(err) != tc.exit {
				t.Fatalf("expected exit %d, got result %d / err %d (%v)", tc.exit, res.ExitCode, ExitCode(err), err)
			}
			if (err == nil) != (tc.exit == 0) {
				t.Fatalf("unexpected error state: %v", err)
			}
			path := res.Path()
			if got := path[len(path)-len(tc.tail):]; !reflect.DeepEqual(got, tc.tail) {
				t.Fatalf("path tail %v, want %v", got, tc.tail)
			}
			if err != nil {
				var stageErr *Error
				if !errors.As(err, &stageErr) || stageErr.Stage != StageDevServer {
					t.Fatalf("expected dev-server stage, got %v", err)
				}
			}
		})
	}
}

func TestDevServerRetryWaitsDelay(t *testing.T) {
	h := newHarness(t)
	h.opts.RetryDelay = 20 * time.Millisecond
	h.server.codes = []int{2, 0}

	if _, err := h.up(t); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if len(h.server.times) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(h.server.times))
	}
	if gap := h.server.times[1].Sub(h.server.times[0]); gap < h.opts.RetryDelay {
		t.Fatalf("retry started after %v, want at least %v", gap, h.opts.RetryDelay)
	}
}

func TestDevServerGetsSerialAndArgs(t *testing.T) {
	h := newHarness(t)
	h.server.codes = []int{5, 0}

	if _, err := h.up(t, "--hot-reload", "false"); err != nil {
		t.Fatalf("Up: %v", err)
	}
	want := []string{"--hot-reload", "false"}
	for i, args := range h.server.args {
		if !reflect.DeepEqual(args, want) {
			t.Fatalf("attempt %d got args %v, want %v", i+1, args, want)
		}
		if h.server.serials[i] != "emulator-5554" {
			t.Fatalf("attempt %d targeted %q", i+1, h.server.serials[i])
		}
	}
}

func TestDevServerCancelledIsNotRetried(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.o.DevServer = devServerFunc(func(ctx context.Context, serial string, args []string) (int, error) {
		h.log.add("dev-server")
		cancel()
		return -1, errors.New("signal: interrupt")
	})

	res, err := h.o.Up(ctx, h.opts, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := h.log.count("dev-server"); got != 1 {
		t.Fatalf("expected a single attempt, got %d", got)
	}
	if res.ExitCode != 1 {
		t.Fatalf("expected exit 1, got %d", res.ExitCode)
	}
}

type devServerFunc func(ctx context.Context, serial string, args []string) (int, error)

func (f devServerFunc) Run(ctx context.Context, serial string, args []string) (int, error) {
	return f(ctx, serial, args)
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("boom"), 1},
		{&Error{Stage: StageBoot, Err: ErrTimeout}, 1},
		{&Error{Stage: StageDevServer, Err: &ExitError{Code: 42, Attempt: 2}}, 42},
		{&ExitError{Code: 0, Attempt: 1, Err: errors.New("killed")}, 1},
	}
	for _, tc := range cases {
		if got := ExitCode(tc.err); got != tc.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := DefaultOptions().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	opts := DefaultOptions()
	opts.Device.Name = ""
	opts.ConnectTimeout = 0
	opts.RetryDelay = -time.Second
	err := opts.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"device name is required", "connect timeout must be positive", "retry delay"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q missing %q", err, want)
		}
	}
}
