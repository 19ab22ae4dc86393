// Package i2c exposes periph I2C buses as eeprom.I2CBus, which is what the
// MCP23017 chip select expander talks to.
package i2c

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/mklimuk/eeprom"
)

var _ eeprom.I2CBus = &GenericBus{}

type GenericBus struct {
	mx  sync.Mutex
	bus i2c.BusCloser
}

func NewGenericBus(dev string) (*GenericBus, error) {
	state, err := host.Init()
	if err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	for _, driver := range state.Loaded {
		slog.Debug("periph driver loaded", "driver", driver.String())
	}
	bus, err := i2creg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("could not open i2c bus %s: %w", dev, err)
	}
	return NewGenericBusFrom(bus), nil
}

func NewGenericBusFrom(bus i2c.BusCloser) *GenericBus {
	return &GenericBus{bus: bus}
}

func (b *GenericBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := b.bus.Tx(uint16(address), nil, buffer); err != nil {
		return fmt.Errorf("could not read from i2c device %#02x: %w", address, err)
	}
	return nil
}

func (b *GenericBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if err := b.bus.Tx(uint16(address), buffer, nil); err != nil {
		return fmt.Errorf("could not write to i2c device %#02x: %w", address, err)
	}
	return nil
}

// Release is a no-op: the kernel driver never leaves the bus taken.
func (b *GenericBus) Release(ctx context.Context) error {
	return nil
}

func (b *GenericBus) Close() error {
	return b.bus.Close()
}
