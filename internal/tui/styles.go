package tui

import "github.com/charmbracelet/lipgloss"

// Palette. Adaptive so the browser stays legible on light terminals.
var (
	colorFocus = lipgloss.AdaptiveColor{Light: "#0369A1", Dark: "#38BDF8"}
	colorUp    = lipgloss.AdaptiveColor{Light: "#047857", Dark: "#34D399"}
	colorWarn  = lipgloss.AdaptiveColor{Light: "#B45309", Dark: "#FBBF24"}
	colorDown  = lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#F87171"}
	colorDim   = lipgloss.AdaptiveColor{Light: "#9CA3AF", Dark: "#6B7280"}
	colorText  = lipgloss.AdaptiveColor{Light: "#111827", Dark: "#E5E7EB"}
	colorBar   = lipgloss.AdaptiveColor{Light: "#E5E7EB", Dark: "#1E293B"}
	colorRow   = lipgloss.AdaptiveColor{Light: "#DBEAFE", Dark: "#334155"}
)

var (
	paneStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)

	focusedPaneStyle = paneStyle.BorderForeground(colorFocus)

	paneHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	titleStyle      = lipgloss.NewStyle().Bold(true).Foreground(colorFocus)
)

// Host and table lists.
var (
	selectedItemStyle = lipgloss.NewStyle().Foreground(colorFocus).Bold(true)
	dimItemStyle      = lipgloss.NewStyle().Foreground(colorDim)
	upStyle           = lipgloss.NewStyle().Foreground(colorUp)
	downStyle         = lipgloss.NewStyle().Foreground(colorDown)
	matchStyle        = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
)

// Data pane. The active header marks the column under the cursor or drag.
var (
	tableHeaderStyle       = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(colorText)
	tableActiveHeaderStyle = tableHeaderStyle.Foreground(colorWarn)
	tableCellStyle         = lipgloss.NewStyle().Foreground(colorText)
	tableSelectedRowStyle  = lipgloss.NewStyle().Background(colorRow).Foreground(colorText)
	filterPromptStyle      = lipgloss.NewStyle().Foreground(colorFocus).Bold(true)
)

var (
	statusBarStyle   = lipgloss.NewStyle().Background(colorBar).Foreground(colorText).Padding(0, 1)
	statusKeyStyle   = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	statusValueStyle = lipgloss.NewStyle().Foreground(colorText)
	errorStyle       = lipgloss.NewStyle().Foreground(colorDown).Bold(true)
	successStyle     = lipgloss.NewStyle().Foreground(colorUp)

	adminBadge    = lipgloss.NewStyle().Padding(0, 1).Bold(true).Background(colorFocus).Foreground(lipgloss.Color("#FFFFFF"))
	readOnlyBadge = lipgloss.NewStyle().Padding(0, 1).Background(colorWarn).Foreground(lipgloss.Color("#000000"))
)
