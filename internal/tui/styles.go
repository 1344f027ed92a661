package tui

import "github.com/charmbracelet/lipgloss"

// Palette shared across pages.
var (
	ColorNavy   = lipgloss.Color("#1B2B4B")
	ColorBlue   = lipgloss.Color("#4A9EFF")
	ColorGreen  = lipgloss.Color("#44FF44")
	ColorYellow = lipgloss.Color("#FFAA00")
	ColorRed    = lipgloss.Color("#FF4444")
	ColorWhite  = lipgloss.Color("#FFFFFF")
	ColorGray   = lipgloss.Color("#888888")
)

var (
	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorNavy).
			Padding(0, 1)

	sectionTitleStyle = lipgloss.NewStyle().
				Foreground(ColorBlue).
				Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(ColorGray)

	valueStyle = lipgloss.NewStyle().
			Foreground(ColorWhite)

	gainStyle = lipgloss.NewStyle().
			Foreground(ColorGreen)

	lossStyle = lipgloss.NewStyle().
			Foreground(ColorRed)

	warnStyle = lipgloss.NewStyle().
			Foreground(ColorYellow).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(ColorRed).
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(ColorNavy).
			Foreground(ColorWhite)
)

// pnlStyle picks the gain or loss style for a signed lamport amount.
func pnlStyle(lamports int64) lipgloss.Style {
	if lamports < 0 {
		return lossStyle
	}
	return gainStyle
}
