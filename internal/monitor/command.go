package monitor

// Commands run on every sampled host. Nothing else is ever executed remotely.
const (
	// CPUCommand prints the summary CPU line from a single batch-mode top run.
	CPUCommand = "top -bn1 | grep 'Cpu(s)'"

	// RAMCommand prints used memory as a percentage of total.
	RAMCommand = "free | awk '/Mem:/ {print $3/$2 * 100.0}'"
)

const cpuMarker = "Cpu(s):"
