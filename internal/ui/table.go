package ui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// HostRow is one line of the host table.
type HostRow struct {
	Host   string
	Live   bool
	CPULim int
	RAMLim int
}

// RenderHostTable renders registered hosts with their thresholds.
func RenderHostTable(rows []HostRow) string {
	if len(rows) == 0 {
		return lipgloss.NewStyle().Foreground(ColorMuted).Render("No servers registered")
	}

	liveStyle := lipgloss.NewStyle().Foreground(ColorSuccess)
	dormantStyle := lipgloss.NewStyle().Foreground(ColorMuted)

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ColorMuted)).
		Headers("", "HOST", "STATUS", "CPU LIMIT", "RAM LIMIT").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Bold(true).Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})

	for _, r := range rows {
		symbol, status := liveStyle.Render(SymbolComplete), "connected"
		if !r.Live {
			symbol, status = dormantStyle.Render(SymbolPending), "unreachable"
		}
		t.Row(symbol, r.Host, status, fmt.Sprintf("%d%%", r.CPULim), fmt.Sprintf("%d%%", r.RAMLim))
	}

	return t.Render()
}
