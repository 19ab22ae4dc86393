package spi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gobot.io/x/gobot/v2/drivers/spi"

	"github.com/mklimuk/eeprom"
)

var _ eeprom.SPIBus = &GobotBus{}

// GobotBus wraps a gobot SPI driver. Transfers with a receive buffer are full
// duplex (w is clocked out while r is filled), write-only transfers go through
// WriteBytes. The spidev chip select toggles on every transfer, so the EEPROM
// chip select has to be wired to a separate GPIO.
//
// Tested on NanoPi using the Gobot sysfs SPI adaptor:
//
//	bus := spi.NewGobotBus(nanopi.NewNeoAdaptor(), "spi", spi.WithBusNumber(0))
//	if err := bus.Start(); err != nil { log.Fatal(err) }
type GobotBus struct {
	*spi.Driver
	connector spi.Connector
	conn      spi.Connection
	lock      txLock
}

func NewGobotBus(adaptor spi.Connector, name string, opts ...func(spi.Config)) *GobotBus {
	d := spi.NewDriver(adaptor, name, opts...)
	// serial EEPROMs are mode 0 (CPOL=0, CPHA=0) parts
	d.SetMode(0)
	if d.GetSpeedOrDefault(0) == 0 {
		d.SetSpeed(4_000_000)
	}
	return &GobotBus{Driver: d, connector: adaptor, lock: newTxLock()}
}

// Start opens the SPI connection. Driver.Connection returns the adaptor, not
// the device, so the connection is requested from the adaptor here.
func (b *GobotBus) Start() error {
	if err := b.Driver.Start(); err != nil {
		return err
	}
	conn, err := b.connector.GetSpiConnection(
		b.GetBusNumberOrDefault(b.connector.SpiDefaultBusNumber()),
		b.GetChipNumberOrDefault(b.connector.SpiDefaultChipNumber()),
		b.GetModeOrDefault(b.connector.SpiDefaultMode()),
		b.GetBitCountOrDefault(b.connector.SpiDefaultBitCount()),
		b.GetSpeedOrDefault(b.connector.SpiDefaultMaxSpeed()),
	)
	if err != nil {
		return fmt.Errorf("could not get spi connection: %w", err)
	}
	b.conn = conn
	return nil
}

func (b *GobotBus) BeginTransaction(ctx context.Context, settings eeprom.SPISettings) error {
	if err := b.lock.acquire(ctx); err != nil {
		return err
	}
	if configured := b.GetSpeedOrDefault(0); configured != settings.SpeedHz {
		slog.Debug("gobot spi speed is fixed at start", "configured", configured, "requested", settings.SpeedHz)
	}
	if settings.Mode != eeprom.Mode0 || settings.BitOrder != eeprom.MSBFirst {
		_ = b.lock.release()
		return fmt.Errorf("gobot spi bus supports mode 0 MSB first only, got %s", settings)
	}
	return nil
}

func (b *GobotBus) EndTransaction(ctx context.Context) error {
	return b.lock.release()
}

func (b *GobotBus) Tx(ctx context.Context, w, r []byte) error {
	if !b.lock.held() {
		return ErrNoTransaction
	}
	if b.conn == nil {
		return fmt.Errorf("spi driver not started")
	}
	if len(r) == 0 {
		if len(w) == 0 {
			return nil
		}
		return b.conn.WriteBytes(w)
	}
	if len(r) < len(w) {
		return errors.New("spi: receive buffer shorter than transmit buffer")
	}
	return b.conn.ReadCommandData(w, r[:len(w)])
}
