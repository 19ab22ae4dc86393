// Package spi adapts host SPI controllers to eeprom.SPIBus. Chip select is
// never driven by the controller itself; devices on these buses get their
// own eeprom.Pin.
package spi

import (
	"context"
	"errors"
)

var ErrNoTransaction = errors.New("spi: no transaction in progress")

// txLock serializes transactions. It is a one slot semaphore so waiting for
// the bus can be abandoned through the context.
type txLock chan struct{}

func newTxLock() txLock {
	return make(txLock, 1)
}

func (l txLock) acquire(ctx context.Context) error {
	select {
	case l <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l txLock) release() error {
	select {
	case <-l:
		return nil
	default:
		return ErrNoTransaction
	}
}

func (l txLock) held() bool {
	return len(l) == 1
}
