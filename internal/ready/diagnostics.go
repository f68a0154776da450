// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package ready

import (
	"bufio"
	"fmt"
	"os"
)

// printLogTail writes reason followed by the end of the launch log.
func (r *run) printLogTail(reason string) {
	w := r.diagnostics()
	if !r.result.Launched {
		fmt.Fprintf(w, "%s\n(emulator was not started by this run, no launch log)\n", reason)
		return
	}
	lines, err := tailLines(r.logPath, r.opts.LogTailLines)
	if err != nil {
		fmt.Fprintf(w, "%s\n(could not read launch log %s: %v)\n", reason, r.logPath, err)
		return
	}
	fmt.Fprintf(w, "%s\n--- last %d lines of %s ---\n", reason, len(lines), r.logPath)
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

// tailLines returns at most the last n lines of the file at path.
func tailLines(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ring := make([]string, 0, n)
	start := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) < n {
			ring = append(ring, scanner.Text())
			continue
		}
		ring[start] = scanner.Text()
		start = (start + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return append(ring[start:], ring[:start]...), nil
}
