package cat25

import (
	"context"
	"fmt"
	"log/slog"
)

// UpdateByteAt writes b only if the stored byte differs.
func (e *EEPROM) UpdateByteAt(ctx context.Context, address uint32, b byte) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.started {
		return ErrNotInitialized
	}
	if address >= e.profile.Capacity {
		return fmt.Errorf("%w: %#x", ErrOutOfRange, address)
	}
	_, err := e.updatePage(ctx, address, []byte{b})
	return err
}

// UpdateBlock behaves like WriteBlock but skips page segments whose content
// is already stored. The return value counts requested bytes, written or not.
func (e *EEPROM) UpdateBlock(ctx context.Context, address uint32, data []byte) (int, error) {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.started {
		return 0, ErrNotInitialized
	}
	if err := e.checkRange(address, len(data)); err != nil {
		return 0, err
	}
	return e.forEachPage(ctx, address, data, e.updatePage)
}

// UpdatePage compares data against the page content and writes from the
// first differing byte to the end of data. Bytes after the first difference
// are written even when unchanged.
func (e *EEPROM) UpdatePage(ctx context.Context, address uint32, data []byte) (int, error) {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.started {
		return 0, ErrNotInitialized
	}
	return e.updatePage(ctx, address, data)
}

func (e *EEPROM) updatePage(ctx context.Context, address uint32, data []byte) (int, error) {
	if err := e.checkPage(address, len(data)); err != nil {
		return 0, err
	}
	stored := make([]byte, len(data))
	if _, err := e.readBlock(ctx, address, stored); err != nil {
		return 0, err
	}
	first := firstDifference(stored, data)
	if first == len(data) {
		slog.Debug("cat25 page unchanged", "address", address, "length", len(data))
		return len(data), nil
	}
	if _, err := e.writePage(ctx, address+uint32(first), data[first:]); err != nil {
		return 0, err
	}
	return len(data), nil
}

// firstDifference scans forward and returns the index of the first mismatch,
// or len(want) when everything matches.
func firstDifference(have, want []byte) int {
	for i := range want {
		if have[i] != want[i] {
			return i
		}
	}
	return len(want)
}
