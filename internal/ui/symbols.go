package ui

// Unicode symbols for status indicators.
const (
	SymbolSuccess  = "✓" // Operation succeeded
	SymbolFail     = "✗" // Operation failed
	SymbolPending  = "○" // Dormant host, not connected
	SymbolComplete = "●" // Live host
	SymbolAlert    = "▲" // Threshold exceeded
)
