package backup

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/eeprom/memory/cat25"
)

func newChip(t *testing.T, p cat25.Profile) (*cat25.EEPROM, *cat25.Simulator) {
	t.Helper()
	sim := cat25.NewSimulator(p)
	e := cat25.New(sim, sim, p)
	require.NoError(t, e.Begin(context.Background()))
	return e, sim
}

func TestSaveLoadRestore(t *testing.T) {
	ctx := context.Background()
	src, srcSim := newChip(t, cat25.CAT25M01)
	content := make([]byte, cat25.CAT25M01.Capacity)
	for i := range content {
		content[i] = byte(i * 7)
	}
	srcSim.Load(0, content)

	var buf bytes.Buffer
	img, err := Save(ctx, "CAT25M01", src, &buf)
	require.NoError(t, err)
	assert.Equal(t, content, img.Data)

	loaded, err := Load(&buf)
	require.NoError(t, err)
	assert.Equal(t, img.Checksum, loaded.Checksum)
	assert.Equal(t, "CAT25M01", loaded.Device)

	dst, dstSim := newChip(t, cat25.CAT25M01)
	// half of the target already matches, those pages must not be written
	dstSim.Load(0, content[:0x10000])
	require.NoError(t, Restore(ctx, dst, loaded))
	assert.Equal(t, content, dstSim.Memory())

	pages := 0
	for _, f := range dstSim.Frames() {
		if f.Opcode == 0x02 && !f.Ignored {
			pages++
		}
	}
	assert.Equal(t, 0x10000/256, pages)
}

func TestLoadCorrupted(t *testing.T) {
	ctx := context.Background()
	src, _ := newChip(t, cat25.CAT25010)
	var buf bytes.Buffer
	img, err := Save(ctx, "CAT25010", src, &buf)
	require.NoError(t, err)

	img.Data[3] ^= 0xFF
	assert.ErrorIs(t, img.Verify(), ErrChecksum)

	_, err = Load(bytes.NewReader([]byte{0xFF, 0x00}))
	assert.Error(t, err)
}

func TestRestoreGeometryMismatch(t *testing.T) {
	ctx := context.Background()
	src, _ := newChip(t, cat25.CAT25020)
	img, err := Take(ctx, "CAT25020", src)
	require.NoError(t, err)

	dst, dstSim := newChip(t, cat25.CAT25040)
	assert.ErrorIs(t, Restore(ctx, dst, img), ErrGeometry)
	assert.Empty(t, dstSim.Frames())
}
