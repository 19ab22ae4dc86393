package command

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/mklimuk/eeprom/memory/cat25"
)

const DefaultConfigFile = "eeprom.yaml"

// Backends
const (
	BackendPeriph = "periph"
	BackendGobot  = "gobot"
	BackendSim    = "sim"
)

// Chip select drivers
const (
	CSPeriph   = "periph"
	CSCdev     = "cdev"
	CSMCP23017 = "mcp23017"
	CSMCP2221  = "mcp2221"
)

// I2CMCP2221 as cs.i2c runs the MCP23017 expander through the MCP2221 USB
// bridge selected by cs.adapter instead of a Linux i2c device.
const I2CMCP2221 = "mcp2221"

type Config struct {
	Device   string          `yaml:"device"`
	Backend  string          `yaml:"backend"`
	Speed    int64           `yaml:"speed"`
	SPI      SPIConfig       `yaml:"spi"`
	CS       CSConfig        `yaml:"cs"`
	Sim      SimConfig       `yaml:"sim"`
	Profiles []cat25.Profile `yaml:"profiles"`
}

// SPIConfig names the port for periph ("/dev/spidev0.0", "SPI0.0") and the
// bus and chip numbers for gobot.
type SPIConfig struct {
	Port string `yaml:"port"`
	Bus  int    `yaml:"bus"`
	Chip int    `yaml:"chip"`
}

type CSConfig struct {
	Driver  string `yaml:"driver"`
	Pin     string `yaml:"pin"`
	Chip    string `yaml:"chip"`
	Line    int    `yaml:"line"`
	I2C     string `yaml:"i2c"`
	Address int    `yaml:"address"`
	Port    string `yaml:"port"`
	Bit     int    `yaml:"bit"`
	Adapter int    `yaml:"adapter"`
}

// SimConfig backs the simulated chip with a raw image file so its content
// survives between invocations.
type SimConfig struct {
	File string `yaml:"file"`
}

func DefaultConfig() Config {
	return Config{
		Device:  cat25.CAT25M01.Name,
		Backend: BackendPeriph,
		Speed:   cat25.DefaultClockSpeed,
		SPI:     SPIConfig{Port: "/dev/spidev0.0"},
		CS:      CSConfig{Driver: CSCdev, Chip: "gpiochip0", Line: 8},
	}
}

// LoadConfig reads path over the defaults. A missing file is only an error
// when required is set.
func LoadConfig(path string, required bool) (Config, error) {
	cfg := DefaultConfig()
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) && !required {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("could not read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("could not parse config %s: %w", path, err)
	}
	return cfg, cfg.registerProfiles()
}

func (c Config) registerProfiles() error {
	for _, p := range c.Profiles {
		if err := cat25.RegisterProfile(p); err != nil {
			return err
		}
	}
	return nil
}

func (c Config) Profile() (cat25.Profile, error) {
	p, ok := cat25.LookupProfile(c.Device)
	if !ok {
		return cat25.Profile{}, fmt.Errorf("unknown device %q (see 'eeprom profiles')", c.Device)
	}
	return p, nil
}

// override applies global flags given on the command line.
func (c *Config) override(ctx *cli.Context) {
	if ctx.IsSet("device") {
		c.Device = ctx.String("device")
	}
	if ctx.IsSet("backend") {
		c.Backend = strings.ToLower(ctx.String("backend"))
	}
	if ctx.IsSet("speed") {
		c.Speed = ctx.Int64("speed")
	}
	if ctx.IsSet("spi") {
		c.SPI.Port = ctx.String("spi")
	}
	if ctx.IsSet("sim-file") {
		c.Backend = BackendSim
		c.Sim.File = ctx.String("sim-file")
	}
}

// ConfigFromContext loads the file named by --config and applies flag
// overrides.
func ConfigFromContext(ctx *cli.Context) (Config, error) {
	path := ctx.String("config")
	if path == "" {
		path = DefaultConfigFile
	}
	cfg, err := LoadConfig(path, ctx.IsSet("config"))
	if err != nil {
		return cfg, err
	}
	cfg.override(ctx)
	return cfg, nil
}
