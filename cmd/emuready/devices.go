// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	core "github.com/forkbombeu/emuready/internal/avd"
)

var (
	readyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ADE80"))
	bootingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#64748B"))
)

func deviceStatus(p core.ProcInfo) string {
	switch {
	case p.State != core.StateDevice:
		return offlineStyle.Render(string(p.State))
	case p.Booted:
		return readyStyle.Render("ready")
	default:
		return bootingStyle.Render("booting")
	}
}

func renderDevices(procs []core.ProcInfo) string {
	if len(procs) == 0 {
		return mutedStyle.Render("(no devices)") + "\n"
	}
	var b strings.Builder
	for _, p := range procs {
		name := p.Name
		if name == "" {
			name = "-"
		}
		fmt.Fprintf(&b, "%-20s %-16s port=%-5d pid=%-7d %s\n", name, p.Serial, p.Port, p.PID, deviceStatus(p))
	}
	return b.String()
}
