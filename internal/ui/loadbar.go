package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Bar block characters.
const (
	barFilled = '█'
	barEmpty  = '░'
)

// RenderLoadBar draws a utilization bar colored against limit.
// Output format: CPU [████████░░░░]  67.0% (limit 80%)
func RenderLoadBar(label string, percent float64, limit, width int) string {
	if width <= 0 {
		width = 20
	}

	clamped := percent
	if clamped < 0 {
		clamped = 0
	} else if clamped > 100 {
		clamped = 100
	}
	filled := int((clamped / 100.0) * float64(width))

	var sb strings.Builder
	sb.WriteRune('[')
	sb.WriteString(strings.Repeat(string(barFilled), filled))
	sb.WriteString(strings.Repeat(string(barEmpty), width-filled))
	sb.WriteRune(']')

	style := lipgloss.NewStyle().Foreground(LoadColor(percent, limit))
	limitStr := lipgloss.NewStyle().Foreground(ColorMuted).Render(fmt.Sprintf("(limit %d%%)", limit))

	return fmt.Sprintf("%-4s%s %6.1f%% %s", label, style.Render(sb.String()), percent, limitStr)
}
