package ui

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/internal/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func TestLoadColor(t *testing.T) {
	tests := []struct {
		percent float64
		limit   int
		want    lipgloss.Color
	}{
		{10, 80, ColorSuccess},
		{70, 80, ColorSuccess},
		{75, 80, ColorWarning},
		{80, 80, ColorWarning},
		{80.5, 80, ColorError},
		{5, 0, ColorError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LoadColor(tt.percent, tt.limit), "%.1f against %d", tt.percent, tt.limit)
	}
}

func TestRenderLoadBar(t *testing.T) {
	bar := RenderLoadBar("CPU", 50, 80, 10)
	assert.Contains(t, bar, "[█████░░░░░]")
	assert.Contains(t, bar, "50.0%")
	assert.Contains(t, bar, "(limit 80%)")

	over := RenderLoadBar("RAM", 150, 80, 4)
	assert.Contains(t, over, "[████]", "bar is clamped")
	assert.Contains(t, over, "150.0%", "value is not")

	assert.Contains(t, RenderLoadBar("CPU", 0, 80, 0), strings.Repeat("░", 20))
}

func TestRenderHostTable(t *testing.T) {
	out := RenderHostTable([]HostRow{
		{Host: "10.0.0.5", Live: true, CPULim: 80, RAMLim: 90},
		{Host: "db.internal", Live: false, CPULim: 40, RAMLim: 80},
	})

	assert.Contains(t, out, "HOST")
	assert.Contains(t, out, "10.0.0.5")
	assert.Contains(t, out, "connected")
	assert.Contains(t, out, "unreachable")
	assert.Contains(t, out, "90%")

	assert.Equal(t, "No servers registered", RenderHostTable(nil))
}

func TestConsoleNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewConsoleNotifier(&buf)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	n.OnAlert(context.Background(), monitor.Alert{
		Tenant: "42", Host: "web-1", At: at,
		Load:      monitor.Load{CPU: 95, RAM: 10.5},
		Threshold: monitor.DefaultThreshold,
	})
	n.OnError(context.Background(), monitor.HostError{
		Tenant: "42", Host: "db-1", At: at,
		Cause: errors.New(errors.ErrSample, "Couldn't read CPU usage", ""),
	})

	out := buf.String()
	assert.Contains(t, out, "Server web-1 exceeds thresholds!")
	assert.Contains(t, out, "CPU: 95.0%")
	assert.Contains(t, out, "RAM: 10.50%")
	assert.Contains(t, out, "[42] 03:04:05")
	assert.Contains(t, out, "Error monitoring server db-1: Couldn't read CPU usage")
}

func TestConsoleNotifier_TenantFilter(t *testing.T) {
	var buf bytes.Buffer
	n := NewConsoleNotifier(&buf)
	n.Tenant = "42"

	n.OnAlert(context.Background(), monitor.Alert{Tenant: "7", Host: "other"})
	n.OnError(context.Background(), monitor.HostError{Tenant: "7", Host: "other", Cause: errors.New(errors.ErrSample, "x", "")})
	assert.Empty(t, buf.String())

	n.OnAlert(context.Background(), monitor.Alert{Tenant: "42", Host: "mine", Threshold: monitor.DefaultThreshold})
	assert.Contains(t, buf.String(), "mine")
	assert.NotContains(t, buf.String(), "[42]")
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConsoleNotifier_Concurrent(t *testing.T) {
	var buf syncBuffer
	n := NewConsoleNotifier(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n.OnAlert(context.Background(), monitor.Alert{Tenant: "1", Host: "h", Threshold: monitor.DefaultThreshold})
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, strings.Count(buf.String(), "exceeds thresholds"))
}

func TestSpinner_NonInteractive(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, "Connecting to web-1", false)
	s.Start()
	s.Success("Connected to web-1")

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, SymbolSuccess+" Connected to web-1"))
	assert.NotContains(t, out, "\r")
}

func TestSpinner_Animated(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, "Connecting", true)
	s.Start()
	time.Sleep(100 * time.Millisecond)
	s.Fail("Couldn't connect")

	out := buf.String()
	require.Contains(t, out, "Connecting...")
	assert.Contains(t, out, SymbolFail+" Couldn't connect")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.05s", formatDuration(50*time.Millisecond))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
}
