package gpio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mklimuk/eeprom"
)

type register int

const DefaultMCP23017Address = 0x21

const (
	IODIRA register = iota
	IODIRB
	GPPUA
	GPPUB
	GPIOA
	GPIOB
	OLATA
	OLATB
)

// BankAddr maps registers for IOCON.BANK = 0 and IOCON.BANK = 1.
var BankAddr = []map[register]byte{
	{
		IODIRA: 0x00,
		IODIRB: 0x01,
		GPPUA:  0x0C,
		GPPUB:  0x0D,
		GPIOA:  0x12,
		GPIOB:  0x13,
		OLATA:  0x14,
		OLATB:  0x15,
	},
	{
		IODIRA: 0x00,
		GPPUA:  0x06,
		GPIOA:  0x09,
		OLATA:  0x0A,
		IODIRB: 0x10,
		GPPUB:  0x16,
		GPIOB:  0x19,
		OLATB:  0x1A,
	},
}

// Port selects one of the two 8 bit ports of the expander.
type Port int

const (
	PortA Port = iota
	PortB
)

func (p Port) String() string {
	if p == PortB {
		return "B"
	}
	return "A"
}

func (p Port) direction() register {
	if p == PortB {
		return IODIRB
	}
	return IODIRA
}

func (p Port) latch() register {
	if p == PortB {
		return OLATB
	}
	return OLATA
}

func (p Port) pullUp() register {
	if p == PortB {
		return GPPUB
	}
	return GPPUA
}

func (p Port) values() register {
	if p == PortB {
		return GPIOB
	}
	return GPIOA
}

/*
MCP23017 keeps a shadow copy of the direction and output latch registers so
single pins can be changed with one register write. The shadow matches the
power-on state: all pins are inputs, latches are low.
*/
type MCP23017 struct {
	mx         sync.Mutex
	transport  eeprom.I2CBus
	bank       int
	address    byte
	retryLimit int
	iodir      [2]byte
	olat       [2]byte
}

func NewMCP23017(bus eeprom.I2CBus, address byte) *MCP23017 {
	return &MCP23017{
		retryLimit: 2,
		transport:  bus,
		address:    address,
		iodir:      [2]byte{0xFF, 0xFF},
	}
}

func (m *MCP23017) writeRegister(ctx context.Context, reg register, value byte) error {
	var err error
	for i := m.retryLimit; i > 0; i-- {
		err = m.transport.WriteToAddr(ctx, m.address, []byte{BankAddr[m.bank][reg], value})
		if err == nil {
			return nil
		}
		if !errors.Is(err, eeprom.ErrBusBusy) {
			return err
		}
		// try to release the bus
		_ = m.transport.Release(ctx)
	}
	return fmt.Errorf("retry limit reached: %w", err)
}

func (m *MCP23017) readRegister(ctx context.Context, reg register) (byte, error) {
	var err error
	buf := make([]byte, 1)
	for i := m.retryLimit; i > 0; i-- {
		err = m.transport.WriteToAddr(ctx, m.address, []byte{BankAddr[m.bank][reg]})
		if err == nil {
			err = m.transport.ReadFromAddr(ctx, m.address, buf)
		}
		if err == nil {
			return buf[0], nil
		}
		if !errors.Is(err, eeprom.ErrBusBusy) {
			return 0x00, err
		}
		_ = m.transport.Release(ctx)
	}
	return 0x00, fmt.Errorf("retry limit reached: %w", err)
}

// SetDirection writes the IODIR register of a port; a set bit is an input.
func (m *MCP23017) SetDirection(ctx context.Context, port Port, inputs byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.writeRegister(ctx, port.direction(), inputs); err != nil {
		return fmt.Errorf("could not set direction of port %s: %w", port, err)
	}
	m.iodir[port] = inputs
	return nil
}

// SetOutputs writes the output latch of a port.
func (m *MCP23017) SetOutputs(ctx context.Context, port Port, values byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.writeRegister(ctx, port.latch(), values); err != nil {
		return fmt.Errorf("could not set outputs of port %s: %w", port, err)
	}
	m.olat[port] = values
	return nil
}

// PullUp enables the internal 100k pull-ups of a port.
func (m *MCP23017) PullUp(ctx context.Context, port Port, settings byte) error {
	m.mx.Lock()
	defer m.mx.Unlock()
	if err := m.writeRegister(ctx, port.pullUp(), settings); err != nil {
		return fmt.Errorf("could not set pull-up on port %s: %w", port, err)
	}
	return nil
}

// Read returns the pin levels of both ports.
func (m *MCP23017) Read(ctx context.Context) ([]byte, error) {
	m.mx.Lock()
	defer m.mx.Unlock()
	res := make([]byte, 2)
	for _, port := range []Port{PortA, PortB} {
		v, err := m.readRegister(ctx, port.values())
		if err != nil {
			return nil, fmt.Errorf("could not read port %s: %w", port, err)
		}
		res[port] = v
	}
	return res, nil
}

func (m *MCP23017) updateBit(ctx context.Context, reg register, shadow *byte, bit uint8, set bool) error {
	v := *shadow
	if set {
		v |= 1 << bit
	} else {
		v &^= 1 << bit
	}
	if v == *shadow {
		return nil
	}
	if err := m.writeRegister(ctx, reg, v); err != nil {
		return err
	}
	*shadow = v
	return nil
}

// Pin returns a single expander line usable as a chip select.
func (m *MCP23017) Pin(port Port, bit uint8) *ExpanderPin {
	return &ExpanderPin{dev: m, port: port, bit: bit % 8}
}

var _ eeprom.Pin = &ExpanderPin{}

type ExpanderPin struct {
	dev  *MCP23017
	port Port
	bit  uint8
}

func (p *ExpanderPin) String() string {
	return fmt.Sprintf("MCP23017@%#02x/GP%s%d", p.dev.address, p.port, p.bit)
}

func (p *ExpanderPin) SetMode(ctx context.Context, mode eeprom.PinMode) error {
	m := p.dev
	m.mx.Lock()
	defer m.mx.Unlock()
	err := m.updateBit(ctx, p.port.direction(), &m.iodir[p.port], p.bit, mode == eeprom.PinInput)
	if err != nil {
		return fmt.Errorf("could not set mode of %s: %w", p, err)
	}
	return nil
}

// SetLevel writes the output latch; on an input pin the level is applied
// once the pin becomes an output.
func (p *ExpanderPin) SetLevel(ctx context.Context, level eeprom.Level) error {
	m := p.dev
	m.mx.Lock()
	defer m.mx.Unlock()
	err := m.updateBit(ctx, p.port.latch(), &m.olat[p.port], p.bit, bool(level))
	if err != nil {
		return fmt.Errorf("could not set level of %s: %w", p, err)
	}
	return nil
}
