package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Spinner animation frames
var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

// Spinner shows an animated label while a blocking call runs, then a final
// status line. When animate is false only the final line is written.
type Spinner struct {
	mu        sync.Mutex
	out       io.Writer
	label     string
	animate   bool
	frame     int
	lastWidth int
	startTime time.Time
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewSpinner creates a spinner writing to out. Pass animate=false when out
// is not a terminal.
func NewSpinner(out io.Writer, label string, animate bool) *Spinner {
	return &Spinner{out: out, label: label, animate: animate}
}

// Start begins the animation.
func (s *Spinner) Start() {
	s.mu.Lock()
	s.startTime = time.Now()
	if !s.animate || s.stopChan != nil {
		s.mu.Unlock()
		return
	}
	stop, done := make(chan struct{}), make(chan struct{})
	s.stopChan, s.doneChan = stop, done
	s.mu.Unlock()

	s.render()
	go s.loop(stop, done)
}

// Success stops the spinner with a check mark.
func (s *Spinner) Success(msg string) {
	s.finish(SymbolSuccess, ColorSuccess, msg)
}

// Fail stops the spinner with a cross.
func (s *Spinner) Fail(msg string) {
	s.finish(SymbolFail, ColorError, msg)
}

func (s *Spinner) stop() {
	s.mu.Lock()
	stop, done := s.stopChan, s.doneChan
	s.stopChan = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
}

func (s *Spinner) loop(stop <-chan struct{}, done chan<- struct{}) {
	ticker := time.NewTicker(80 * time.Millisecond)
	defer ticker.Stop()
	defer close(done)

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			s.frame = (s.frame + 1) % len(spinnerFrames)
			s.mu.Unlock()
			s.render()
		}
	}
}

func (s *Spinner) render() {
	s.mu.Lock()
	defer s.mu.Unlock()

	style := lipgloss.NewStyle().Foreground(GradientColors[(s.frame/2)%len(GradientColors)])
	line := fmt.Sprintf("%s %s...", style.Render(spinnerFrames[s.frame]), s.label)
	s.clearLocked()
	fmt.Fprint(s.out, line)
	s.lastWidth = lipgloss.Width(line)
}

func (s *Spinner) clearLocked() {
	if s.lastWidth > 0 {
		fmt.Fprint(s.out, "\r"+strings.Repeat(" ", s.lastWidth)+"\r")
	}
}

func (s *Spinner) finish(symbol string, color lipgloss.Color, msg string) {
	s.stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg == "" {
		msg = s.label
	}
	s.clearLocked()
	s.lastWidth = 0

	timing := lipgloss.NewStyle().Foreground(ColorMuted).Render(formatDuration(time.Since(s.startTime)))
	fmt.Fprintf(s.out, "%s %s %s\n", lipgloss.NewStyle().Foreground(color).Render(symbol), msg, timing)
}

// formatDuration formats a duration for display (e.g., "0.3s", "1.2s").
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 0.1 {
		return fmt.Sprintf("%.2fs", secs)
	}
	return fmt.Sprintf("%.1fs", secs)
}
