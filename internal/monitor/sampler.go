package monitor

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/pkg/sshutil"
)

// Sampler reads CPU and RAM utilization from a remote session.
// The zero value runs CPUCommand and RAMCommand.
type Sampler struct {
	CPUCommand string
	RAMCommand string
}

// NewSampler returns a sampler using the default commands.
func NewSampler() *Sampler {
	return &Sampler{CPUCommand: CPUCommand, RAMCommand: RAMCommand}
}

// Sample runs both metric commands sequentially on session. Transport and
// parse failures are returned as ErrSample errors carrying the cause.
func (s *Sampler) Sample(ctx context.Context, session sshutil.Session) (Load, error) {
	if session == nil {
		return Load{}, errors.New(errors.ErrSample, "No session to sample", "")
	}

	cpuOut, err := session.Run(ctx, orDefault(s.CPUCommand, CPUCommand))
	if err != nil {
		return Load{}, errors.WrapWithCode(err, errors.ErrSample, "Couldn't read CPU usage", "")
	}
	cpu, err := ParseCPU(cpuOut)
	if err != nil {
		return Load{}, err
	}

	ramOut, err := session.Run(ctx, orDefault(s.RAMCommand, RAMCommand))
	if err != nil {
		return Load{}, errors.WrapWithCode(err, errors.ErrSample, "Couldn't read memory usage", "")
	}
	ram, err := ParseRAM(ramOut)
	if err != nil {
		return Load{}, err
	}

	return Load{CPU: cpu, RAM: ram}, nil
}

// ParseCPU extracts the user CPU percentage from a top summary line such as
//
//	%Cpu(s):  3.1 us,  1.0 sy,  0.0 ni, 95.7 id, ...
//	Cpu(s): 10.0%us,  2.0%sy, ...
//
// Empty output yields 0. Without the Cpu(s): marker the second field is used.
func ParseCPU(output string) (float64, error) {
	output = strings.TrimSpace(output)
	if output == "" {
		return 0, nil
	}

	line := output
	for _, l := range strings.Split(output, "\n") {
		if strings.Contains(l, cpuMarker) {
			line = l
			break
		}
	}

	var token string
	if idx := strings.Index(line, cpuMarker); idx != -1 {
		fields := strings.Fields(line[idx+len(cpuMarker):])
		if len(fields) > 0 {
			token = fields[0]
		}
	} else {
		fields := strings.Fields(line)
		if len(fields) > 1 {
			token = fields[1]
		}
	}

	v, ok := parsePercent(token)
	if !ok {
		return 0, errors.New(errors.ErrSample,
			fmt.Sprintf("Couldn't parse CPU usage from %q", truncate(line, 80)),
			"The host's top output isn't in a format loadwatch understands")
	}
	return v, nil
}

// ParseRAM parses the single percentage printed by RAMCommand.
// Empty output yields 0.
func ParseRAM(output string) (float64, error) {
	fields := strings.Fields(output)
	if len(fields) == 0 {
		return 0, nil
	}

	v, ok := parsePercent(fields[0])
	if !ok {
		return 0, errors.New(errors.ErrSample,
			fmt.Sprintf("Couldn't parse memory usage from %q", truncate(output, 80)),
			"Check that 'free' and 'awk' are installed on the host")
	}
	return v, nil
}

// parsePercent reads the leading number of token, accepting a decimal comma
// and ignoring any trailing unit text ("10.0%us," -> 10.0).
func parsePercent(token string) (float64, bool) {
	end := 0
	for end < len(token) {
		c := token[end]
		if (c >= '0' && c <= '9') || c == '.' || c == ',' {
			end++
			continue
		}
		break
	}
	num := strings.TrimRight(token[:end], ",")
	if num == "" {
		return 0, false
	}
	num = strings.Replace(num, ",", ".", 1)

	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
