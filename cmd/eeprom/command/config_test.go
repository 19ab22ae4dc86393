package command

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/eeprom/memory/cat25"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
device: board-rom
backend: gobot
speed: 1000000
spi:
  bus: 1
  chip: 0
cs:
  driver: mcp23017
  i2c: /dev/i2c-1
  address: 0x20
  port: B
  bit: 7
profiles:
  - name: board-rom
    capacity: 65536
    page_size: 128
`), 0o644))

	cfg, err := LoadConfig(path, true)
	require.NoError(t, err)
	assert.Equal(t, BackendGobot, cfg.Backend)
	assert.Equal(t, int64(1_000_000), cfg.Speed)
	assert.Equal(t, 1, cfg.SPI.Bus)
	assert.Equal(t, 0, cfg.SPI.Chip)
	assert.Equal(t, CSMCP23017, cfg.CS.Driver)
	assert.Equal(t, "/dev/i2c-1", cfg.CS.I2C)
	assert.Equal(t, 0x20, cfg.CS.Address)
	assert.Equal(t, "B", cfg.CS.Port)
	assert.Equal(t, 7, cfg.CS.Bit)

	p, err := cfg.Profile()
	require.NoError(t, err)
	assert.Equal(t, cat25.Profile{Name: "board-rom", Capacity: 65536, PageSize: 128}, p)
}

func TestLoadConfigMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	cfg, err := LoadConfig(path, false)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = LoadConfig(path, true)
	assert.Error(t, err)
}

func TestLoadConfigInvalidProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eeprom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("profiles:\n  - name: odd\n    capacity: 1000\n    page_size: 24\n"), 0o644))
	_, err := LoadConfig(path, true)
	assert.Error(t, err)
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in      string
		want    []byte
		wantErr bool
	}{
		{in: "01FF23", want: []byte{0x01, 0xFF, 0x23}},
		{in: "0xdead", want: []byte{0xDE, 0xAD}},
		{in: "de:ad be-ef", want: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
		{in: "abc", wantErr: true},
		{in: "zz", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHex(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDump(t *testing.T) {
	data := make([]byte, 24)
	for i := range data {
		data[i] = byte('a' + i)
	}
	out := Dump(0x100, data)
	assert.Contains(t, out, "00000100  61 62 63")
	assert.Contains(t, out, "00000110  75 76 77 78")
	assert.Contains(t, out, "|uvwx|")
}
