package monitor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRunChecks(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewMonitor(zap.New(core))

	dbErr := errors.New("connection refused")
	var failing bool
	m.RegisterCheck("database", func(context.Context) error {
		if failing {
			return dbErr
		}
		return nil
	})
	m.RegisterCheck("nats", func(context.Context) error { return nil })

	assert.Equal(t, StatusUnknown, m.GetStatus("database").Status)
	assert.True(t, m.Ready())

	m.RunChecks(context.Background())
	assert.Equal(t, StatusHealthy, m.GetStatus("database").Status)
	assert.True(t, m.Ready())
	assert.Equal(t, 0, logs.Len())

	failing = true
	m.RunChecks(context.Background())
	status := m.GetStatus("database")
	require.NotNil(t, status)
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, "connection refused", status.Message)
	assert.False(t, m.Ready())
	assert.Equal(t, 1, logs.FilterMessage("组件状态异常").Len())

	failing = false
	m.RunChecks(context.Background())
	assert.True(t, m.Ready())
	assert.Equal(t, 1, logs.FilterMessage("组件恢复健康").Len())

	all := m.GetAllStatus()
	require.Len(t, all, 2)
	assert.Equal(t, "database", all[0].Component)
	assert.Equal(t, "nats", all[1].Component)
	assert.Nil(t, m.GetStatus("missing"))
}
