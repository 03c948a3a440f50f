package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Semantic colors for status indication
const (
	ColorSuccess lipgloss.Color = "2" // Green
	ColorError   lipgloss.Color = "1" // Red
	ColorWarning lipgloss.Color = "3" // Yellow
	ColorInfo    lipgloss.Color = "6" // Cyan
)

// Text colors for content hierarchy
const (
	ColorPrimary   lipgloss.Color = "7" // White/default
	ColorSecondary lipgloss.Color = "4" // Blue
	ColorMuted     lipgloss.Color = "8" // Gray (bright black)
)

// GradientColors cycle through the spinner frames.
var GradientColors = []lipgloss.Color{"205", "141", "87", "84"}

// DisableColors switches all rendering to plain text (--no-color, NO_COLOR).
func DisableColors() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

// LoadColor picks the color for a utilization value against its limit:
// red above the limit, yellow within 10 points of it, green otherwise.
func LoadColor(percent float64, limit int) lipgloss.Color {
	switch {
	case percent > float64(limit):
		return ColorError
	case percent > float64(limit-10):
		return ColorWarning
	default:
		return ColorSuccess
	}
}
