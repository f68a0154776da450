// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package preflight

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	successColor = lipgloss.Color("#4ADE80")
	errorColor   = lipgloss.Color("#F87171")
	warnColor    = lipgloss.Color("#FBBF24")
	mutedColor   = lipgloss.Color("#64748B")

	nameStyle   = lipgloss.NewStyle().Width(18).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)
	statusStyle = map[Status]lipgloss.Style{
		StatusOK:      lipgloss.NewStyle().Foreground(successColor),
		StatusWarning: lipgloss.NewStyle().Foreground(warnColor),
		StatusError:   lipgloss.NewStyle().Foreground(errorColor).Bold(true),
	}
	statusIcon = map[Status]string{
		StatusOK:      "✓",
		StatusWarning: "!",
		StatusError:   "✗",
	}
)

// Render formats the results as one line per check followed by the summary.
func (r *Results) Render() string {
	var b strings.Builder
	for _, c := range r.Checks {
		style := statusStyle[c.Status]
		b.WriteString(style.Render(statusIcon[c.Status]))
		b.WriteString(" ")
		b.WriteString(nameStyle.Render(c.Name))
		b.WriteString(style.Render(c.Message))
		if c.Path != "" && c.Status == StatusOK {
			b.WriteString(" ")
			b.WriteString(mutedStyle.Render(c.Path))
		}
		b.WriteString("\n")
	}
	summary := statusStyle[StatusOK]
	if r.HasErrors {
		summary = statusStyle[StatusError]
	} else if r.HasWarnings {
		summary = statusStyle[StatusWarning]
	}
	b.WriteString("\n")
	b.WriteString(summary.Render(r.Summary()))
	b.WriteString("\n")
	return b.String()
}
