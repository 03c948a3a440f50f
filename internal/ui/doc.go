// Package ui renders loadwatch's terminal output with Lip Gloss.
//
// # Components Overview
//
//	ConsoleNotifier - Prints alert and error events from the monitor loop
//	RenderHostTable - Registered servers with status and thresholds
//	RenderLoadBar   - One utilization bar colored against its limit
//	Spinner         - Animated status line while connecting
//
// # Color Scheme
//
// Colors are ANSI codes for broad terminal compatibility. Load values are
// red above their limit, yellow within 10 points of it and green otherwise
// (see LoadColor).
//
// Use DisableColors() to switch to monochrome output (for --no-color flag).
package ui
