package data

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/agent-bridge/internal/conf"
	"github.com/lk2023060901/agent-bridge/internal/pkg/logger"
)

func TestNewDataMemory(t *testing.T) {
	d, cleanup, err := NewData(&conf.StateConfig{}, logger.NewNop())
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, conf.DriverMemory, d.Driver)
	assert.Nil(t, d.Redis)
	assert.Nil(t, d.DB)
}

func TestNewDataRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := conf.Default().State
	cfg.Driver = conf.DriverRedis
	cfg.Redis.Addr = mr.Addr()

	d, cleanup, err := NewData(&cfg, logger.NewNop())
	require.NoError(t, err)
	defer cleanup()

	require.NotNil(t, d.Redis)
	assert.NoError(t, d.HealthCheck(context.Background()))

	mr.SetError("LOADING dataset in memory")
	assert.Error(t, d.HealthCheck(context.Background()))
}

func TestNewDataUnknownDriver(t *testing.T) {
	_, _, err := NewData(&conf.StateConfig{Driver: "etcd"}, logger.NewNop())
	assert.Error(t, err)
}
