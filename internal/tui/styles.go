// Package tui implements the Bubble Tea terminal host for the chat widget.
package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hay-kot/chatwidget/internal/styles"
)

// Styles used for rendering the widget.
var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(styles.ColorWhite).
			Background(styles.ColorBlue).
			Padding(0, 1)

	onlineStyle = lipgloss.NewStyle().
			Foreground(styles.ColorGreen)

	userBubbleStyle = lipgloss.NewStyle().
			Foreground(styles.ColorWhite).
			Background(styles.ColorBlue).
			Padding(0, 1)

	botBubbleStyle = lipgloss.NewStyle().
			Foreground(styles.ColorWhite).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(styles.ColorGray).
			Padding(0, 1)

	timeStyle = lipgloss.NewStyle().
			Foreground(styles.ColorGray)

	quickLabelStyle = lipgloss.NewStyle().
			Foreground(styles.ColorGray).
			Italic(true)

	quickItemStyle = lipgloss.NewStyle().
			Foreground(styles.ColorBlue)

	typingStyle = lipgloss.NewStyle().
			Foreground(styles.ColorYellow).
			Italic(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(styles.ColorYellow)

	helpStyle = lipgloss.NewStyle().
			Foreground(styles.ColorGray)

	escalateStyle = lipgloss.NewStyle().
			Foreground(styles.ColorGreen).
			Bold(true)
)
