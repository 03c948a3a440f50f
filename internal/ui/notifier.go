package ui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/rileyhilliard/loadwatch/internal/monitor"
)

// ConsoleNotifier prints alert and error events, one block per event.
// Safe for concurrent use.
type ConsoleNotifier struct {
	mu  sync.Mutex
	out io.Writer

	// Tenant, when set, hides events for other tenants.
	Tenant string
}

// NewConsoleNotifier creates a notifier writing to out.
func NewConsoleNotifier(out io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{out: out}
}

func (n *ConsoleNotifier) OnAlert(_ context.Context, a monitor.Alert) {
	if n.Tenant != "" && a.Tenant != n.Tenant {
		return
	}
	head := lipgloss.NewStyle().Foreground(ColorError).Bold(true).Render(SymbolAlert + " " + firstLine(a.Message()))
	cpu := lipgloss.NewStyle().Foreground(LoadColor(a.Load.CPU, a.Threshold.CPU))
	ram := lipgloss.NewStyle().Foreground(LoadColor(a.Load.RAM, a.Threshold.RAM))

	n.write(fmt.Sprintf("%s %s\n  %s %s\n  %s %s\n",
		head, n.meta(a.Tenant, a.At.Format("15:04:05")),
		cpu.Render(fmt.Sprintf("CPU: %.1f%%", a.Load.CPU)), muted(fmt.Sprintf("(limit %d%%)", a.Threshold.CPU)),
		ram.Render(fmt.Sprintf("RAM: %.2f%%", a.Load.RAM)), muted(fmt.Sprintf("(limit %d%%)", a.Threshold.RAM)),
	))
}

func (n *ConsoleNotifier) OnError(_ context.Context, e monitor.HostError) {
	if n.Tenant != "" && e.Tenant != n.Tenant {
		return
	}
	head := lipgloss.NewStyle().Foreground(ColorWarning).Render(SymbolFail + " " + e.Message())
	n.write(fmt.Sprintf("%s %s\n", head, n.meta(e.Tenant, e.At.Format("15:04:05"))))
}

func (n *ConsoleNotifier) meta(tenant, at string) string {
	if n.Tenant != "" {
		return muted(at)
	}
	return muted(fmt.Sprintf("[%s] %s", tenant, at))
}

func (n *ConsoleNotifier) write(s string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = io.WriteString(n.out, s)
}

func muted(s string) string {
	return lipgloss.NewStyle().Foreground(ColorMuted).Render(s)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i != -1 {
		return s[:i]
	}
	return s
}
