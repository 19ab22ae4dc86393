package spi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/mklimuk/eeprom"
)

type fakeConn struct {
	maxTx int
	txs   [][]byte
}

func (c *fakeConn) String() string                 { return "fake" }
func (c *fakeConn) Duplex() conn.Duplex            { return conn.Full }
func (c *fakeConn) MaxTxSize() int                 { return c.maxTx }
func (c *fakeConn) TxPackets(p []spi.Packet) error { return nil }

func (c *fakeConn) Tx(w, r []byte) error {
	c.txs = append(c.txs, append([]byte(nil), w...))
	for i := range r {
		r[i] = w[i] ^ 0xFF
	}
	return nil
}

type fakePort struct {
	conn     *fakeConn
	connects int
	freq     physic.Frequency
	mode     spi.Mode
	closed   bool
}

func (p *fakePort) String() string                      { return "fake port" }
func (p *fakePort) LimitSpeed(f physic.Frequency) error { return nil }
func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	p.connects++
	p.freq = f
	p.mode = mode
	return p.conn, nil
}

var testSettings = eeprom.SPISettings{SpeedHz: 1_000_000, Mode: eeprom.Mode0, BitOrder: eeprom.MSBFirst}

func TestPeriphBusConnectsOnce(t *testing.T) {
	port := &fakePort{conn: &fakeConn{maxTx: 16}}
	bus := NewPeriphBusFromPort(port)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, bus.BeginTransaction(ctx, testSettings))
		require.NoError(t, bus.Tx(ctx, []byte{0x05}, nil))
		require.NoError(t, bus.EndTransaction(ctx))
	}
	assert.Equal(t, 1, port.connects)
	assert.Equal(t, physic.MegaHertz, port.freq)
	assert.Equal(t, spi.Mode0|spi.NoCS, port.mode)
	require.NoError(t, bus.Close())
	assert.True(t, port.closed)
}

func TestPeriphBusSplitsLargeTransfers(t *testing.T) {
	fc := &fakeConn{maxTx: 16}
	bus := NewPeriphBusFromPort(&fakePort{conn: fc})
	ctx := context.Background()
	require.NoError(t, bus.BeginTransaction(ctx, testSettings))
	w := make([]byte, 40)
	r := make([]byte, 40)
	require.NoError(t, bus.Tx(ctx, w, r))
	require.NoError(t, bus.EndTransaction(ctx))
	require.Len(t, fc.txs, 3)
	assert.Len(t, fc.txs[0], 16)
	assert.Len(t, fc.txs[1], 16)
	assert.Len(t, fc.txs[2], 8)
	for _, b := range r {
		assert.Equal(t, byte(0xFF), b)
	}
}

func TestPeriphBusTransactionState(t *testing.T) {
	bus := NewPeriphBusFromPort(&fakePort{conn: &fakeConn{maxTx: 16}})
	ctx := context.Background()
	assert.ErrorIs(t, bus.Tx(ctx, []byte{1}, nil), ErrNoTransaction)
	assert.ErrorIs(t, bus.EndTransaction(ctx), ErrNoTransaction)

	require.NoError(t, bus.BeginTransaction(ctx, testSettings))
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.BeginTransaction(waitCtx, testSettings), context.DeadlineExceeded)
	require.NoError(t, bus.EndTransaction(ctx))
	assert.Error(t, bus.Tx(ctx, []byte{1, 2}, make([]byte, 1)))
}
