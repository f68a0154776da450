// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package avd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Command is the DevServer that execs Env.DevCommand with the terminal
// attached. Output is passed through untouched.
type Command struct {
	env    Env
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

func NewDevServer(env Env) *Command {
	return &Command{env: env, Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run returns the dev server's exit code. A non-nil error means the process
// could not be started or was killed by a signal; the code is then -1.
func (c *Command) Run(ctx context.Context, serial string, args []string) (int, error) {
	if len(c.env.DevCommand) == 0 {
		return -1, errors.New("no dev server command configured")
	}
	bin := c.env.DevCommand[0]
	argv := append(append([]string{}, c.env.DevCommand[1:]...), args...)

	_, span := StartSpan(
		ctx,
		c.env,
		"avd.DevServer",
		attribute.String("command", bin),
		attribute.String("args", strings.Join(argv, " ")),
		attribute.String("serial", serial),
	)
	defer span.End()

	cmd := exec.CommandContext(ctx, bin, argv...)
	cmd.Stdin = c.Stdin
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	cmd.Env = append(os.Environ(), "ANDROID_SERIAL="+serial)
	err := cmd.Run()
	if err == nil {
		span.SetAttributes(attribute.Int("exit_code", 0))
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		span.SetAttributes(attribute.Int("exit_code", exitErr.ExitCode()))
		return exitErr.ExitCode(), nil
	}
	RecordSpanError(span, err)
	return -1, fmt.Errorf("dev server %s: %w", bin, err)
}
