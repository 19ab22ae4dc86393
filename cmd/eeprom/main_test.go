package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/mklimuk/eeprom/cmd/eeprom/console"
)

const testConfig = `device: TEST4K
backend: sim
profiles:
  - name: TEST4K
    capacity: 4096
    page_size: 32
`

type cliRunner struct {
	t      *testing.T
	config string
	image  string
	out    *bytes.Buffer
}

func newRunner(t *testing.T) *cliRunner {
	dir := t.TempDir()
	config := filepath.Join(dir, "eeprom.yaml")
	require.NoError(t, os.WriteFile(config, []byte(testConfig), 0o644))
	out := &bytes.Buffer{}
	console.SetOutput(out, out)
	t.Cleanup(func() { console.SetOutput(os.Stdout, os.Stderr) })
	return &cliRunner{t: t, config: config, image: filepath.Join(dir, "chip.bin"), out: out}
}

func (r *cliRunner) run(args ...string) error {
	app := newApp()
	app.ExitErrHandler = func(*cli.Context, error) {}
	full := append([]string{"eeprom", "--yes", "--no-color", "--config", r.config, "--sim-file", r.image}, args...)
	return app.Run(full)
}

func TestWriteThenRead(t *testing.T) {
	r := newRunner(t)
	require.NoError(t, r.run("write", "--address", "0x1e", "--data", "DE AD BE EF"))

	raw, err := os.ReadFile(r.image)
	require.NoError(t, err)
	require.Len(t, raw, 4096)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, raw[0x1e:0x22])
	assert.Equal(t, byte(0xFF), raw[0x22])

	out := filepath.Join(t.TempDir(), "read.bin")
	require.NoError(t, r.run("read", "--address", "30", "--length", "4", "--out", out))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, got)
}

func TestReadHexDump(t *testing.T) {
	r := newRunner(t)
	require.NoError(t, r.run("update", "--address", "0x10", "--data", "414243"))
	r.out.Reset()
	require.NoError(t, r.run("read", "--address", "0x10", "--length", "3"))
	assert.Contains(t, r.out.String(), "00000010  41 42 43")
	assert.Contains(t, r.out.String(), "|ABC|")
}

func TestOutOfRangeExitCode(t *testing.T) {
	r := newRunner(t)
	err := r.run("read", "--address", "4096")
	var exit cli.ExitCoder
	require.ErrorAs(t, err, &exit)
	assert.Equal(t, console.ExitUsage, exit.ExitCode())
}

func TestBackupRestore(t *testing.T) {
	r := newRunner(t)
	require.NoError(t, r.run("write", "--address", "0", "--data", "0102030405"))
	img := filepath.Join(t.TempDir(), "chip.cbor")
	require.NoError(t, r.run("backup", img))

	require.NoError(t, r.run("write", "--address", "0", "--data", "0000000000"))
	require.NoError(t, r.run("restore", img))

	raw, err := os.ReadFile(r.image)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5}, raw[:5])
}

func TestStatusAndProtect(t *testing.T) {
	r := newRunner(t)
	require.NoError(t, r.run("protect", "half"))
	assert.Contains(t, r.out.String(), "BP=half")
	r.out.Reset()
	require.NoError(t, r.run("status"))
	assert.Contains(t, r.out.String(), "device: TEST4K")
	// the simulator keeps only the array between runs
	assert.Contains(t, r.out.String(), "BP: none")
	assert.Contains(t, r.out.String(), "ready: true")
}

func TestProfiles(t *testing.T) {
	r := newRunner(t)
	require.NoError(t, r.run("profiles"))
	assert.Contains(t, r.out.String(), "CAT25M01")
	assert.Contains(t, r.out.String(), "TEST4K")
}
