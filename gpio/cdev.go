package gpio

import (
	"context"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"github.com/mklimuk/eeprom"
)

var _ eeprom.Pin = &CdevPin{}

const Consumer = "eeprom-cs"

// cdevLine is the part of *gpiocdev.Line used by CdevPin.
type cdevLine interface {
	SetValue(value int) error
	Reconfigure(options ...gpiocdev.LineConfigOption) error
	Close() error
}

// CdevPin drives a line through the Linux GPIO character device.
type CdevPin struct {
	mx     sync.Mutex
	line   cdevLine
	name   string
	value  int
	output bool
}

// NewCdevPin requests a line, e.g. NewCdevPin("gpiochip0", 8). The line starts
// as an input.
func NewCdevPin(chip string, offset int) (*CdevPin, error) {
	l, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsInput, gpiocdev.WithConsumer(Consumer))
	if err != nil {
		return nil, fmt.Errorf("could not request line %s:%d: %w", chip, offset, err)
	}
	return &CdevPin{line: l, name: fmt.Sprintf("%s:%d", chip, offset), value: 1}, nil
}

func (p *CdevPin) String() string {
	return p.name
}

func (p *CdevPin) SetMode(ctx context.Context, mode eeprom.PinMode) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	var err error
	if mode == eeprom.PinOutput {
		err = p.line.Reconfigure(gpiocdev.AsOutput(p.value))
	} else {
		err = p.line.Reconfigure(gpiocdev.AsInput)
	}
	if err != nil {
		return fmt.Errorf("could not reconfigure line %s: %w", p.name, err)
	}
	p.output = mode == eeprom.PinOutput
	return nil
}

func (p *CdevPin) SetLevel(ctx context.Context, level eeprom.Level) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	p.value = 0
	if level {
		p.value = 1
	}
	if !p.output {
		return nil
	}
	if err := p.line.SetValue(p.value); err != nil {
		return fmt.Errorf("could not set line %s: %w", p.name, err)
	}
	return nil
}

func (p *CdevPin) Close() error {
	return p.line.Close()
}
