package eeprom

import (
	"context"
	"fmt"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

type BitOrder uint8

const (
	MSBFirst BitOrder = iota
	LSBFirst
)

// SPIMode is the clock polarity (high bit) and phase (low bit) combination.
type SPIMode uint8

const (
	Mode0 SPIMode = iota
	Mode1
	Mode2
	Mode3
)

// SPISettings describe a single bus transaction.
type SPISettings struct {
	SpeedHz  int64
	Mode     SPIMode
	BitOrder BitOrder
}

func (s SPISettings) String() string {
	order := "msb"
	if s.BitOrder == LSBFirst {
		order = "lsb"
	}
	return fmt.Sprintf("%dHz/mode%d/%s", s.SpeedHz, s.Mode, order)
}

// SPIBus is a full-duplex SPI transport. BeginTransaction takes the bus for
// exclusive use until EndTransaction is called; Tx clocks w out and, when r is
// not nil, clocks len(w) bytes into r.
type SPIBus interface {
	BeginTransaction(ctx context.Context, settings SPISettings) error
	EndTransaction(ctx context.Context) error
	Tx(ctx context.Context, w, r []byte) error
}

type PinMode uint8

const (
	PinInput PinMode = iota
	PinOutput
)

type Level bool

const (
	Low  Level = false
	High Level = true
)

// Pin is a single digital line, typically used as a chip select.
type Pin interface {
	SetMode(ctx context.Context, mode PinMode) error
	SetLevel(ctx context.Context, level Level) error
}

type BusReader interface {
	Read(ctx context.Context, buffer []byte) error
}

type BusWriter interface {
	Write(ctx context.Context, buffer []byte) error
}

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}
