package spi

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gobotspi "gobot.io/x/gobot/v2/drivers/spi"

	"github.com/mklimuk/eeprom"
)

type stubConnection struct {
	gobotspi.Connection
	written [][]byte
	sent    [][]byte
}

func (c *stubConnection) WriteBytes(data []byte) error {
	c.written = append(c.written, append([]byte(nil), data...))
	return nil
}

func (c *stubConnection) ReadCommandData(command []byte, data []byte) error {
	c.sent = append(c.sent, append([]byte(nil), command...))
	for i := range data {
		data[i] = command[i] ^ 0xFF
	}
	return nil
}

type stubConnector struct {
	conn   *stubConnection
	mode   int
	speed  int64
	opened int
}

func (s *stubConnector) GetSpiConnection(busNum, chip, mode, bits int, maxSpeed int64) (gobotspi.Connection, error) {
	s.opened++
	s.mode = mode
	s.speed = maxSpeed
	return s.conn, nil
}

func (s *stubConnector) SpiDefaultBusNumber() int  { return 0 }
func (s *stubConnector) SpiDefaultChipNumber() int { return 0 }
func (s *stubConnector) SpiDefaultMode() int       { return 3 }
func (s *stubConnector) SpiDefaultBitCount() int   { return 8 }
func (s *stubConnector) SpiDefaultMaxSpeed() int64 { return 500_000 }

func TestGobotBusTx(t *testing.T) {
	ctx := context.Background()
	conn := &stubConnection{}
	connector := &stubConnector{conn: conn}
	bus := NewGobotBus(connector, "eeprom")
	require.NoError(t, bus.Start())
	assert.Equal(t, 0, connector.mode)
	assert.Equal(t, int64(4_000_000), connector.speed)

	require.NoError(t, bus.BeginTransaction(ctx, testSettings))
	require.NoError(t, bus.Tx(ctx, []byte{0x03, 0x12, 0x34}, nil))
	r := make([]byte, 2)
	require.NoError(t, bus.Tx(ctx, []byte{0xFF, 0x0F}, r))
	require.NoError(t, bus.Tx(ctx, nil, nil))
	assert.Error(t, bus.Tx(ctx, []byte{0x05, 0xFF}, make([]byte, 1)))
	require.NoError(t, bus.EndTransaction(ctx))

	assert.Equal(t, [][]byte{{0x03, 0x12, 0x34}}, conn.written)
	assert.Equal(t, [][]byte{{0xFF, 0x0F}}, conn.sent)
	assert.Equal(t, []byte{0x00, 0xF0}, r)

	err := bus.Tx(ctx, []byte{0x05}, nil)
	assert.ErrorIs(t, err, ErrNoTransaction)
}

func TestGobotBusRejects(t *testing.T) {
	ctx := context.Background()
	bus := NewGobotBus(&stubConnector{conn: &stubConnection{}}, "eeprom")

	require.NoError(t, bus.BeginTransaction(ctx, testSettings))
	assert.Error(t, bus.Tx(ctx, []byte{0x05}, nil), "not started")
	require.NoError(t, bus.EndTransaction(ctx))

	mode3 := testSettings
	mode3.Mode = eeprom.Mode3
	assert.Error(t, bus.BeginTransaction(ctx, mode3))
	// a rejected transaction leaves the bus free
	require.NoError(t, bus.BeginTransaction(ctx, testSettings))
	require.NoError(t, bus.EndTransaction(ctx))
}
