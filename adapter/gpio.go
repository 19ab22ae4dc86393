package adapter

import (
	"context"
	"fmt"

	"github.com/mklimuk/eeprom"
)

const (
	cmdSetGPIOValues = 0x50
	gpioCount        = 4
)

// SetGPIOValue changes direction and output level of one GP pin. The pin has
// to be configured for GPIO operation (see SetGPIOParameters).
func (d *MCP2221) SetGPIOValue(ctx context.Context, gp int, mode GPIOMode, value byte) error {
	if gp < 0 || gp >= gpioCount {
		return fmt.Errorf("invalid GP pin %d", gp)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.resetBuffers()
	d.request[0] = cmdSetGPIOValues
	// each pin takes four bytes: alter output, output value, alter direction, direction
	base := 2 + gp*4
	d.request[base] = 0x01
	d.request[base+1] = value & 0x01
	d.request[base+2] = 0x01
	if mode == GPIOModeIn {
		d.request[base+3] = 0x01
	}
	err := d.send(ctx, true)
	if err != nil {
		return fmt.Errorf("set GPIO values command write failed: %w", err)
	}
	if d.response[0] != cmdSetGPIOValues || d.response[1] != 0x00 {
		return ErrCommandFailed
	}
	d.outputs[gp] = outputState{value: value & 0x01, output: mode == GPIOModeOut}
	return nil
}

// UseAsGPIO switches GP pin gp to plain GPIO operation as an input, keeping
// the designation of the other pins.
func (d *MCP2221) UseAsGPIO(ctx context.Context, gp int) error {
	params, err := d.GetGPIOParameters(ctx)
	if err != nil {
		return err
	}
	switch gp {
	case 0:
		params.GPIO0Designation, params.GPIO0Mode = GPIOOperation, GPIOModeIn
	case 1:
		params.GPIO1Designation, params.GPIO1Mode = GPIOOperation, GPIOModeIn
	case 2:
		params.GPIO2Designation, params.GPIO2Mode = GPIOOperation, GPIOModeIn
	case 3:
		params.GPIO3Designation, params.GPIO3Mode = GPIOOperation, GPIOModeIn
	default:
		return fmt.Errorf("invalid GP pin %d", gp)
	}
	return d.SetGPIOParameters(ctx, params)
}

// Pin returns GP pin gp as an eeprom.Pin. Every level change is a USB round
// trip so this is only suitable for low speed bring-up work.
func (d *MCP2221) Pin(gp int) *MCP2221Pin {
	return &MCP2221Pin{dev: d, gp: gp}
}

var _ eeprom.Pin = &MCP2221Pin{}

type MCP2221Pin struct {
	dev *MCP2221
	gp  int
}

func (p *MCP2221Pin) String() string {
	return fmt.Sprintf("MCP2221/GP%d", p.gp)
}

func (p *MCP2221Pin) state() outputState {
	p.dev.mx.Lock()
	defer p.dev.mx.Unlock()
	if p.gp < 0 || p.gp >= gpioCount {
		return outputState{}
	}
	return p.dev.outputs[p.gp]
}

func (p *MCP2221Pin) SetMode(ctx context.Context, mode eeprom.PinMode) error {
	st := p.state()
	m := GPIOModeIn
	if mode == eeprom.PinOutput {
		m = GPIOModeOut
	}
	return p.dev.SetGPIOValue(ctx, p.gp, m, st.value)
}

func (p *MCP2221Pin) SetLevel(ctx context.Context, level eeprom.Level) error {
	st := p.state()
	m := GPIOModeIn
	if st.output {
		m = GPIOModeOut
	}
	var v byte
	if level {
		v = 1
	}
	return p.dev.SetGPIOValue(ctx, p.gp, m, v)
}
