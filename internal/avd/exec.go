// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package avd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// run executes bin and returns its stdout. On failure the error carries the
// combined output so callers can surface it verbatim.
func run(ctx context.Context, env Env, stdin io.Reader, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = io.MultiWriter(&stderr, newCommandLogWriter(env, bin, args))
	if err := cmd.Run(); err != nil {
		out := strings.TrimSpace(stderr.String() + "\n" + stdout.String())
		if out == "" {
			return stdout.Bytes(), fmt.Errorf("%s %v failed: %w", bin, args, err)
		}
		return stdout.Bytes(), fmt.Errorf("%s %v failed: %w\n%s", bin, args, err, out)
	}
	return stdout.Bytes(), nil
}
