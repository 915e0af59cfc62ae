// Package tui renders the deploy pipeline's terminal output: a consistent
// color theme and a step-list spinner that tracks the pipeline stages.
package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette for the Agendai tooling: teal primary with the usual
// green/red/orange status colors.
var (
	ColorPrimary = lipgloss.Color("37")
	ColorSuccess = lipgloss.Color("42")
	ColorError   = lipgloss.Color("196")
	ColorWarning = lipgloss.Color("214")
	ColorMuted   = lipgloss.Color("240")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess).
			Bold(true)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	MutedStyle = lipgloss.NewStyle().
			Foreground(ColorMuted)

	SpinnerStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary)

	URLStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary).
			Underline(true)
)

// RenderTitle renders a pipeline banner, e.g. "Deploying agendai to production".
func RenderTitle(text string) string {
	return TitleStyle.Render(text)
}

// RenderSuccess renders a success line with its marker.
func RenderSuccess(text string) string {
	return SuccessStyle.Render("✓") + " " + text
}

// RenderError renders an error line with its marker.
func RenderError(text string) string {
	return ErrorStyle.Render("✗") + " " + text
}

// RenderWarning renders a warning line with its marker.
func RenderWarning(text string) string {
	return WarningStyle.Render("!") + " " + text
}

// RenderMuted renders secondary text.
func RenderMuted(text string) string {
	return MutedStyle.Render(text)
}

// RenderURL renders a deployment URL.
func RenderURL(url string) string {
	return URLStyle.Render(url)
}
