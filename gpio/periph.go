package gpio

import (
	"context"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/mklimuk/eeprom"
)

var _ eeprom.Pin = &PeriphPin{}

// PeriphPin drives a host GPIO through periph. periph sets direction and
// level in one call so the level is latched here until the pin is an output.
type PeriphPin struct {
	mx     sync.Mutex
	pin    gpio.PinIO
	level  gpio.Level
	output bool
}

// NewPeriphPin looks a pin up by name ("GPIO8", "P1_24", ...).
func NewPeriphPin(name string) (*PeriphPin, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("gpio pin %s not found", name)
	}
	return NewPeriphPinFrom(p), nil
}

func NewPeriphPinFrom(p gpio.PinIO) *PeriphPin {
	return &PeriphPin{pin: p, level: gpio.High}
}

func (p *PeriphPin) String() string {
	return p.pin.Name()
}

func (p *PeriphPin) SetMode(ctx context.Context, mode eeprom.PinMode) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if mode == eeprom.PinOutput {
		if err := p.pin.Out(p.level); err != nil {
			return fmt.Errorf("could not set %s as output: %w", p.pin.Name(), err)
		}
		p.output = true
		return nil
	}
	if err := p.pin.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return fmt.Errorf("could not set %s as input: %w", p.pin.Name(), err)
	}
	p.output = false
	return nil
}

func (p *PeriphPin) SetLevel(ctx context.Context, level eeprom.Level) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.level = gpio.Level(level)
	if !p.output {
		return nil
	}
	if err := p.pin.Out(p.level); err != nil {
		return fmt.Errorf("could not set level of %s: %w", p.pin.Name(), err)
	}
	return nil
}
