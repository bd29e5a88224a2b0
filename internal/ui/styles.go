// Package ui holds the terminal styles shared by the careloop commands.
package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Theme is the careloop color scheme.
type Theme struct {
	Primary lipgloss.Color
	Dim     lipgloss.Color
	Success lipgloss.Color
	Warning lipgloss.Color
	Error   lipgloss.Color
}

// Default is the active theme.
var Default = Theme{
	Primary: lipgloss.Color("#7aa2f7"),
	Dim:     lipgloss.Color("#565f89"),
	Success: lipgloss.Color("#9ece6a"),
	Warning: lipgloss.Color("#e0af68"),
	Error:   lipgloss.Color("#f7768e"),
}

var (
	titleStyle   = lipgloss.NewStyle().Foreground(Default.Primary).Bold(true)
	dimStyle     = lipgloss.NewStyle().Foreground(Default.Dim)
	successStyle = lipgloss.NewStyle().Foreground(Default.Success)
	warningStyle = lipgloss.NewStyle().Foreground(Default.Warning)
	errorStyle   = lipgloss.NewStyle().Foreground(Default.Error).Bold(true)
	doneStyle    = lipgloss.NewStyle().Foreground(Default.Dim).Strikethrough(true)
)

// Title renders a command heading.
func Title(s string) string { return titleStyle.Render(s) }

// Dim renders secondary detail like ids and timestamps.
func Dim(s string) string { return dimStyle.Render(s) }

// Success renders a confirmation line.
func Success(s string) string { return successStyle.Render("✓ " + s) }

// Warning renders a non-fatal problem.
func Warning(s string) string { return warningStyle.Render("! " + s) }

// Error renders a failure line.
func Error(err error) string { return errorStyle.Render(fmt.Sprintf("✗ %v", err)) }

// TaskLine renders one task for list output, striking through
// completed entries.
func TaskLine(title, when string, completed bool) string {
	mark := "[ ]"
	line := title
	if completed {
		mark = "[x]"
		line = doneStyle.Render(title)
	}
	if when != "" {
		line += " " + dimStyle.Render("("+when+")")
	}
	return mark + " " + line
}
