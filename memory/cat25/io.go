package cat25

import (
	"context"
	"fmt"
	"io"
)

var _ io.ReaderAt = &EEPROM{}
var _ io.WriterAt = &EEPROM{}

// ReadAt implements io.ReaderAt. Reads running past the end of the array are
// truncated and return io.EOF.
func (e *EEPROM) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrOutOfRange, off)
	}
	capacity := int64(e.Capacity())
	if off >= capacity {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	var eof error
	if off+int64(len(p)) > capacity {
		p = p[:capacity-off]
		eof = io.EOF
	}
	n, err := e.ReadBlock(context.Background(), uint32(off), p)
	if err != nil {
		return n, err
	}
	return n, eof
}

// WriteAt implements io.WriterAt on top of WriteBlock. Writes that do not fit
// are rejected as a whole.
func (e *EEPROM) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(e.Capacity()) {
		return 0, fmt.Errorf("%w: offset %d", ErrOutOfRange, off)
	}
	if len(p) == 0 {
		return 0, nil
	}
	return e.WriteBlock(context.Background(), uint32(off), p)
}
