package spi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"github.com/mklimuk/eeprom"
)

var _ eeprom.SPIBus = &PeriphBus{}

const defaultMaxTxSize = 4096

// PeriphBus is a Linux spidev (or any periph registered) port. The port is
// connected lazily on the first transaction in NoCS mode.
type PeriphBus struct {
	lock      txLock
	port      spi.PortCloser
	conn      spi.Conn
	connected eeprom.SPISettings
	maxTx     int
}

func NewPeriphBus(dev string) (*PeriphBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("periph driver loaded", "driver", driver.String())
	}
	port, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open spi port %s: %w", dev, err)
	}
	return NewPeriphBusFromPort(port), nil
}

func NewPeriphBusFromPort(port spi.PortCloser) *PeriphBus {
	return &PeriphBus{lock: newTxLock(), port: port}
}

func (b *PeriphBus) BeginTransaction(ctx context.Context, settings eeprom.SPISettings) error {
	if err := b.lock.acquire(ctx); err != nil {
		return err
	}
	if b.conn != nil {
		if settings != b.connected {
			slog.Debug("spi port already connected, keeping settings", "connected", b.connected.String(), "requested", settings.String())
		}
		return nil
	}
	mode := spi.Mode(settings.Mode) | spi.NoCS
	if settings.BitOrder == eeprom.LSBFirst {
		mode |= spi.LSBFirst
	}
	c, err := b.port.Connect(physic.Frequency(settings.SpeedHz)*physic.Hertz, mode, 8)
	if err != nil {
		_ = b.lock.release()
		return fmt.Errorf("could not connect spi port: %w", err)
	}
	b.conn = c
	b.connected = settings
	b.maxTx = defaultMaxTxSize
	if l, ok := c.(conn.Limits); ok && l.MaxTxSize() > 0 {
		b.maxTx = l.MaxTxSize()
	}
	return nil
}

func (b *PeriphBus) EndTransaction(ctx context.Context) error {
	return b.lock.release()
}

// Tx splits transfers larger than the driver limit; chip select is held by
// the caller so the device sees one continuous frame.
func (b *PeriphBus) Tx(ctx context.Context, w, r []byte) error {
	if !b.lock.held() || b.conn == nil {
		return ErrNoTransaction
	}
	if r != nil && len(r) < len(w) {
		return errors.New("spi: receive buffer shorter than transmit buffer")
	}
	for offset := 0; offset < len(w); offset += b.maxTx {
		end := offset + b.maxTx
		if end > len(w) {
			end = len(w)
		}
		var rx []byte
		if r != nil {
			rx = r[offset:end]
		}
		if err := b.conn.Tx(w[offset:end], rx); err != nil {
			return fmt.Errorf("spi transfer failed: %w", err)
		}
	}
	return nil
}

func (b *PeriphBus) Close() error {
	return b.port.Close()
}
