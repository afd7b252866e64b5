package cli

import "github.com/charmbracelet/lipgloss"

// Color Palette
var (
	salmonPink = lipgloss.Color("#FFB3BA") // primary accent
	coralPink  = lipgloss.Color("#FFCCCB") // secondary accent
	mintGreen  = lipgloss.Color("#A8E6CF") // success
	mutedGray  = lipgloss.Color("#6B7280") // secondary text
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(salmonPink).
			Bold(true)

	tipsStyle = lipgloss.NewStyle().
			Foreground(mutedGray)

	promptStyle = lipgloss.NewStyle().
			Foreground(coralPink).
			Bold(true)

	urlStyle = lipgloss.NewStyle().
			Foreground(mintGreen)

	errorStyle = lipgloss.NewStyle().
			Foreground(salmonPink)
)
