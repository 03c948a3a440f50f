package monitor

import (
	"context"
	"fmt"
	"testing"

	"github.com/rileyhilliard/loadwatch/internal/errors"
	sshtest "github.com/rileyhilliard/loadwatch/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCPU(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    float64
		wantErr bool
	}{
		{name: "procps-ng", output: "%Cpu(s): 10.0 us,  2.0 sy,  0.0 ni, 88.0 id,  0.0 wa", want: 10.0},
		{name: "old procps", output: "Cpu(s): 10.0%us,  2.0%sy,  0.0%ni, 88.0%id", want: 10.0},
		{name: "no space after marker", output: "%Cpu(s):  3.1 us,  1.0 sy", want: 3.1},
		{name: "decimal comma", output: "%Cpu(s):  7,5 us,  1,0 sy", want: 7.5},
		{name: "trailing comma", output: "%Cpu(s): 42.5, 1.0", want: 42.5},
		{name: "multiple lines", output: "top - 10:00:00 up 1 day\n%Cpu(s): 55.5 us, 1.0 sy", want: 55.5},
		{name: "no marker uses second field", output: "cpu 12.5 us", want: 12.5},
		{name: "empty", output: "", want: 0},
		{name: "whitespace only", output: "  \n ", want: 0},
		{name: "garbage after marker", output: "%Cpu(s): n/a", wantErr: true},
		{name: "marker only", output: "%Cpu(s):", wantErr: true},
		{name: "error text", output: "bash: top: command not found", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCPU(tt.output)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrSample))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func TestParseRAM(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    float64
		wantErr bool
	}{
		{name: "full", output: "100", want: 100.0},
		{name: "fraction", output: "45.1234\n", want: 45.1234},
		{name: "decimal comma", output: "45,5", want: 45.5},
		{name: "empty", output: "", want: 0},
		{name: "not a number", output: "awk: syntax error", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRAM(tt.output)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.ErrSample))
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 0.0001)
		})
	}
}

func newHostSession(host, cpuLine, ram string) *sshtest.MockSession {
	return sshtest.WithOutputs(sshtest.NewMockSession(host), map[string]string{
		CPUCommand: cpuLine,
		RAMCommand: ram,
	})
}

func TestSampler_Sample(t *testing.T) {
	session := newHostSession("web-1", "%Cpu(s): 10.0 us,  2.0 sy", "100")

	load, err := NewSampler().Sample(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, Load{CPU: 10.0, RAM: 100.0}, load)
	assert.Equal(t, []string{CPUCommand, RAMCommand}, session.History())
}

func TestSampler_ZeroValueUsesDefaultCommands(t *testing.T) {
	session := newHostSession("web-1", "%Cpu(s): 1.0 us", "2.5")

	var s Sampler
	load, err := s.Sample(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, Load{CPU: 1.0, RAM: 2.5}, load)
}

func TestSampler_EmptyOutputIsZero(t *testing.T) {
	session := sshtest.NewMockSession("quiet")

	load, err := NewSampler().Sample(context.Background(), session)
	require.NoError(t, err)
	assert.Equal(t, Load{}, load)
}

func TestSampler_TransportFailure(t *testing.T) {
	cause := errors.New(errors.ErrTransport, "Command timed out", "")
	session := sshtest.WithError(sshtest.NewMockSession("down"), cause)

	_, err := NewSampler().Sample(context.Background(), session)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSample))
	assert.True(t, errors.HasCode(err, errors.ErrTransport), "cause is kept")
	assert.Equal(t, []string{CPUCommand}, session.History(), "RAM is not attempted after a CPU failure")
}

func TestSampler_ParseFailure(t *testing.T) {
	session := newHostSession("odd", "%Cpu(s): ??", "50")

	_, err := NewSampler().Sample(context.Background(), session)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSample))
}

func TestSampler_NilSession(t *testing.T) {
	_, err := NewSampler().Sample(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrSample))
}

func ExampleParseCPU() {
	v, _ := ParseCPU("%Cpu(s): 10.0 us,  2.0 sy,  0.0 ni, 88.0 id")
	fmt.Println(v)
	// Output: 10
}
