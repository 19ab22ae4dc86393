package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/eeprom/adapter"
	"github.com/mklimuk/eeprom/memory/cat25"
)

func TestExpanderBusOverMCP2221(t *testing.T) {
	s := &Session{}
	bus, err := s.expanderBus(CSConfig{Driver: CSMCP23017, I2C: "MCP2221", Adapter: 1})
	require.NoError(t, err)
	assert.IsType(t, &adapter.MCP2221{}, bus)
	assert.Empty(t, s.closers)
}

func TestOpenSimulator(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Backend = BackendSim
	cfg.Device = cat25.CAT25040.Name

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, cat25.CAT25040, s.Profile)
	n, err := s.Mem.WriteBlock(ctx, 0xFA, []byte("page split"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	require.NoError(t, s.Close(ctx))
}
