package monitor

import (
	"context"
	"testing"

	"github.com/rileyhilliard/loadwatch/internal/errors"
	"github.com/rileyhilliard/loadwatch/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiNotifier(t *testing.T) {
	var order []string
	first := NotifierFuncs{
		Alert: func(context.Context, Alert) { order = append(order, "first-alert") },
		Error: func(context.Context, HostError) { order = append(order, "first-error") },
	}
	second := NotifierFuncs{
		Alert: func(context.Context, Alert) { order = append(order, "second-alert") },
	}

	m := MultiNotifier{first, nil, second}
	m.OnAlert(context.Background(), Alert{})
	m.OnError(context.Background(), HostError{})

	assert.Equal(t, []string{"first-alert", "second-alert", "first-error"}, order)
}

func TestLogNotifier(t *testing.T) {
	buf := logger.NewBufferLogger()
	n := NewLogNotifier(buf)

	n.OnAlert(context.Background(), Alert{ID: "a1", Tenant: "42", Host: "web", Load: Load{CPU: 91, RAM: 12}, Threshold: DefaultThreshold})
	n.OnError(context.Background(), HostError{ID: "e1", Tenant: "42", Host: "db", Cause: errors.New(errors.ErrSample, "Couldn't read CPU usage", "")})

	msgs := buf.Snapshot()
	require.Len(t, msgs, 2)
	assert.Equal(t, "warn", msgs[0].Level)
	assert.Contains(t, msgs[0].Message, "web")
	assert.Contains(t, msgs[0].Message, "a1")
	assert.Equal(t, "error", msgs[1].Level)
	assert.Contains(t, msgs[1].Message, "Couldn't read CPU usage")
}
