package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/superagent-run/superagent/config"
)

func TestMigrator_SQLiteUpDown(t *testing.T) {
	cfg := config.DatabaseConfig{Driver: "sqlite", Name: ""}

	m, err := NewMigrator(cfg)
	require.NoError(t, err)
	defer m.Close()

	ctx := context.Background()
	require.NoError(t, m.Up(ctx))

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	require.NoError(t, m.Down(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
}

func TestMigrator_UnsupportedDriver(t *testing.T) {
	_, err := NewMigrator(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}
