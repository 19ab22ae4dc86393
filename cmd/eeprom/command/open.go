package command

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	gobotspi "gobot.io/x/gobot/v2/drivers/spi"
	"gobot.io/x/gobot/v2/platforms/friendlyelec/nanopi"

	"github.com/mklimuk/eeprom"
	"github.com/mklimuk/eeprom/adapter"
	"github.com/mklimuk/eeprom/gpio"
	"github.com/mklimuk/eeprom/i2c"
	"github.com/mklimuk/eeprom/memory/cat25"
	"github.com/mklimuk/eeprom/spi"
)

// Session is an opened and initialized chip together with everything that
// has to be released afterwards.
type Session struct {
	Mem     *cat25.EEPROM
	Profile cat25.Profile
	closers []func() error
}

func (s *Session) onClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

// Close ends the chip session and releases resources in reverse order.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	if s.Mem != nil {
		if err := s.Mem.End(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open builds the transport described by cfg and begins the chip.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	profile, err := cfg.Profile()
	if err != nil {
		return nil, err
	}
	s := &Session{Profile: profile}
	bus, cs, err := s.transport(ctx, cfg, profile)
	if err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	s.Mem = cat25.New(bus, cs, profile)
	if err := s.Mem.Begin(ctx, cfg.Speed); err != nil {
		s.Mem = nil
		_ = s.Close(ctx)
		return nil, fmt.Errorf("could not begin %s: %w", profile.Name, err)
	}
	slog.Debug("device opened", "device", profile.String(), "backend", cfg.Backend, "speed", cfg.Speed)
	return s, nil
}

func (s *Session) transport(ctx context.Context, cfg Config, profile cat25.Profile) (eeprom.SPIBus, eeprom.Pin, error) {
	switch cfg.Backend {
	case BackendSim:
		return s.simulator(cfg, profile)
	case BackendPeriph:
		bus, err := spi.NewPeriphBus(cfg.SPI.Port)
		if err != nil {
			return nil, nil, err
		}
		s.onClose(bus.Close)
		cs, err := s.chipSelect(ctx, cfg.CS)
		return bus, cs, err
	case BackendGobot:
		bus := spi.NewGobotBus(nanopi.NewNeoAdaptor(), "spi",
			gobotspi.WithBusNumber(cfg.SPI.Bus),
			gobotspi.WithChipNumber(cfg.SPI.Chip),
			gobotspi.WithSpeed(cfg.Speed),
		)
		if err := bus.Start(); err != nil {
			return nil, nil, fmt.Errorf("SPI device start error: %w", err)
		}
		s.onClose(bus.Halt)
		cs, err := s.chipSelect(ctx, cfg.CS)
		return bus, cs, err
	}
	return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

func (s *Session) chipSelect(ctx context.Context, cfg CSConfig) (eeprom.Pin, error) {
	switch cfg.Driver {
	case CSPeriph:
		return gpio.NewPeriphPin(cfg.Pin)
	case CSCdev:
		pin, err := gpio.NewCdevPin(cfg.Chip, cfg.Line)
		if err != nil {
			return nil, err
		}
		s.onClose(pin.Close)
		return pin, nil
	case CSMCP23017:
		bus, err := s.expanderBus(cfg)
		if err != nil {
			return nil, err
		}
		address := byte(cfg.Address)
		if address == 0 {
			address = gpio.DefaultMCP23017Address
		}
		port := gpio.PortA
		if strings.EqualFold(cfg.Port, "B") {
			port = gpio.PortB
		}
		return gpio.NewMCP23017(bus, address).Pin(port, uint8(cfg.Bit)), nil
	case CSMCP2221:
		bridge := adapter.NewMCP2221(cfg.Adapter)
		if err := bridge.UseAsGPIO(ctx, cfg.Bit); err != nil {
			return nil, fmt.Errorf("could not configure MCP2221 GP%d: %w", cfg.Bit, err)
		}
		return bridge.Pin(cfg.Bit), nil
	}
	return nil, fmt.Errorf("unknown chip select driver %q", cfg.Driver)
}

func (s *Session) expanderBus(cfg CSConfig) (eeprom.I2CBus, error) {
	if strings.EqualFold(cfg.I2C, I2CMCP2221) {
		return adapter.NewMCP2221(cfg.Adapter), nil
	}
	bus, err := i2c.NewGenericBus(cfg.I2C)
	if err != nil {
		return nil, err
	}
	s.onClose(bus.Close)
	return bus, nil
}

func (s *Session) simulator(cfg Config, profile cat25.Profile) (eeprom.SPIBus, eeprom.Pin, error) {
	sim := cat25.NewSimulator(profile)
	if cfg.Sim.File == "" {
		return sim, sim, nil
	}
	raw, err := os.ReadFile(cfg.Sim.File)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, nil, fmt.Errorf("could not read simulator image: %w", err)
	case len(raw) > int(profile.Capacity):
		return nil, nil, fmt.Errorf("simulator image %s is larger than %s", cfg.Sim.File, profile.Name)
	default:
		sim.Load(0, raw)
	}
	s.onClose(func() error {
		return os.WriteFile(cfg.Sim.File, sim.Memory(), 0o644)
	})
	return sim, sim, nil
}
