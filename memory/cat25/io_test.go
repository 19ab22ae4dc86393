package cat25

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEEPROM_ReaderAtWriterAt(t *testing.T) {
	e, sim := newStarted(t, CAT25010)
	data := randomData(6, 40)

	n, err := e.WriteAt(data, 100)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrOutOfRange)

	n, err = e.WriteAt(data, 88)
	require.NoError(t, err)
	assert.Equal(t, 40, n)
	assert.Equal(t, data, sim.Memory()[88:])

	buf := make([]byte, 64)
	n, err = e.ReadAt(buf, 100)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 28, n)
	assert.Equal(t, data[12:], buf[:28])

	n, err = e.ReadAt(buf, 128)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, io.EOF)

	n, err = e.ReadAt(buf[:10], 0)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	r := io.NewSectionReader(e, 88, 40)
	all, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, all)
}
