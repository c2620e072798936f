package util

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

var (
	IsDebug bool

	TitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#38BDF8")).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94A3B8"))

	AccentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F472B6")).
			Bold(true)

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#22C55E")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4757")).
			Bold(true)

	debugErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B")).
			Bold(true).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF4757")).
			Padding(1, 2)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFA726")).
			Bold(true)
)

// SetDebugMode sets the debug mode
func SetDebugMode(debug bool) {
	IsDebug = debug
}

// ErrorHandler returns a styled error message. In debug mode the full
// wrapped chain (including pkg/errors stack traces) is rendered.
func ErrorHandler(err error) string {
	if err == nil {
		return ""
	}

	if IsDebug {
		header := errorStyle.Render("DEBUG ERROR")
		return fmt.Sprintf("%s\n%s", header, debugErrorStyle.Render(fmt.Sprintf("%+v", err)))
	}

	styledError := errorStyle.Render(fmt.Sprintf("✖ %v", err))
	styledHint := warningStyle.Render("run with --debug to see details")
	return fmt.Sprintf("%s\n%s", styledError, styledHint)
}
