// Package monitor samples CPU and memory utilization on registered hosts
// and raises alerts when a host exceeds its thresholds.
//
// # Components
//
//	Sampler         - Runs the two metric commands over a session and parses them
//	ThresholdStore  - Per-host CPU/RAM limits, defaulting to 80/80
//	Loop            - Periodic tick that samples every target in parallel
//	Notifier        - Receives Alert and HostError events from a tick
//
// # Tick Flow
//
//  1. Loop.Run waits for the initial delay, then ticks at the configured interval
//  2. Each tick copies the current targets from its TargetSource
//  3. Hosts are sampled in parallel, bounded by Concurrency and HostTimeout
//  4. A load above either threshold produces an Alert; a failure produces a HostError
//
// A failure on one host never stops the other hosts in the same tick. Hosts
// whose session was closed while the tick was running are skipped silently.
package monitor
