// Package cat25 provides a driver for CAT25 family SPI serial EEPROMs and the
// instruction compatible parts from other vendors (25AA1024, M95Mxx).
// It handles the per-device address encoding, splits writes on page
// boundaries and polls the STATUS register until each write cycle completes.
//
// Chip select is driven through a separate eeprom.Pin so any GPIO source can
// be used (SoC pin, gpiochip line, I2C expander, USB bridge).
//
// Example usage:
//
//	e := cat25.New(bus, csPin, cat25.CAT25256)
//	if err := e.Begin(ctx); err != nil { log.Fatal(err) }
//	defer func() { _ = e.End(ctx) }()
//	_, err := e.WriteBlock(ctx, 0x0010, []byte("hello"))
//	buf := make([]byte, 5)
//	_, err = e.ReadBlock(ctx, 0x0010, buf)
//
// Failed operations always report zero bytes transferred together with an
// error wrapping one of the package sentinel errors.
package cat25

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mklimuk/eeprom"
	"github.com/mklimuk/eeprom/eectx"
)

// --- instruction set ---
const (
	cmdRead  = 0x03 // READ
	cmdWrite = 0x02 // WRITE
	cmdRDSR  = 0x05 // Read STATUS Register
	cmdWRSR  = 0x01 // Write STATUS Register
	cmdWREN  = 0x06 // WREN (Write Enable Latch set)
	cmdWRDI  = 0x04 // WRDI (Write Enable Latch clear)

	// 4 Kbit parts carry A8 in bit 3 of the READ/WRITE instruction.
	cmdReadA8  = 0x0B
	cmdWriteA8 = 0x0A

	dummyByte = 0xFF
)

const (
	// MaxWriteTime is the datasheet maximum internal write cycle time.
	MaxWriteTime        = 5 * time.Millisecond
	DefaultWriteTimeout = MaxWriteTime + time.Millisecond
	DefaultPollInterval = 100 * time.Microsecond
	DefaultClockSpeed   = 4_000_000
)

var (
	ErrOutOfRange     = errors.New("cat25: address out of range")
	ErrPageBoundary   = errors.New("cat25: write crosses page boundary")
	ErrInvalidLength  = errors.New("cat25: invalid length")
	ErrTimeout        = errors.New("cat25: timeout waiting for write cycle completion")
	ErrNotInitialized = errors.New("cat25: controller not initialized")
	ErrInvalidProfile = errors.New("cat25: invalid profile")
)

type Opts struct {
	WriteTimeout time.Duration
	PollInterval time.Duration
	DummyByte    byte
}

type Opt func(*Opts)

// WithWriteTimeout overrides the busy wait limit.
func WithWriteTimeout(timeout time.Duration) Opt {
	return func(o *Opts) {
		o.WriteTimeout = timeout
	}
}

// WithPollInterval sets the pause between two STATUS polls.
func WithPollInterval(interval time.Duration) Opt {
	return func(o *Opts) {
		o.PollInterval = interval
	}
}

// WithDummyByte sets the byte clocked out while reading.
func WithDummyByte(b byte) Opt {
	return func(o *Opts) {
		o.DummyByte = b
	}
}

// EEPROM is a single chip on a shared SPI bus.
type EEPROM struct {
	mx sync.Mutex

	bus     eeprom.SPIBus
	cs      eeprom.Pin
	profile Profile
	config  Opts

	settings eeprom.SPISettings
	started  bool
}

// New binds a chip of the given profile to the bus and chip select pin.
// The chip is not touched until Begin is called.
func New(bus eeprom.SPIBus, cs eeprom.Pin, profile Profile, opts ...Opt) *EEPROM {
	config := Opts{
		WriteTimeout: DefaultWriteTimeout,
		PollInterval: DefaultPollInterval,
		DummyByte:    dummyByte,
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &EEPROM{
		bus:     bus,
		cs:      cs,
		profile: profile,
		config:  config,
	}
}

// Begin drives chip select high and fixes the transaction settings
// (MSB first, mode 0). An optional clock speed in Hz overrides the 4 MHz default.
// A profile that fails Validate is rejected before the pin is touched.
func (e *EEPROM) Begin(ctx context.Context, speedHz ...int64) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if err := e.profile.Validate(); err != nil {
		return err
	}
	speed := int64(DefaultClockSpeed)
	if len(speedHz) > 0 && speedHz[0] > 0 {
		speed = speedHz[0]
	}
	// level first so the line never glitches low when it becomes an output
	if err := e.cs.SetLevel(ctx, eeprom.High); err != nil {
		return fmt.Errorf("cat25: could not deassert chip select: %w", err)
	}
	if err := e.cs.SetMode(ctx, eeprom.PinOutput); err != nil {
		return fmt.Errorf("cat25: could not configure chip select: %w", err)
	}
	e.settings = eeprom.SPISettings{SpeedHz: speed, Mode: eeprom.Mode0, BitOrder: eeprom.MSBFirst}
	e.started = true
	slog.Debug("cat25 initialized", "device", e.profile.Name, "settings", e.settings.String())
	return nil
}

// End releases the chip select line by turning it into an input.
func (e *EEPROM) End(ctx context.Context) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	e.started = false
	if err := e.cs.SetMode(ctx, eeprom.PinInput); err != nil {
		return fmt.Errorf("cat25: could not release chip select: %w", err)
	}
	return nil
}

func (e *EEPROM) Capacity() uint32 { return e.profile.Capacity }

func (e *EEPROM) PageSize() uint32 { return e.profile.PageSize }

func (e *EEPROM) Profile() Profile { return e.profile }

// Status reads the STATUS register.
func (e *EEPROM) Status(ctx context.Context) (Status, error) {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.started {
		return 0, ErrNotInitialized
	}
	return e.readStatus(ctx)
}

// IsReady reports whether no write cycle is in progress.
func (e *EEPROM) IsReady(ctx context.Context) (bool, error) {
	st, err := e.Status(ctx)
	if err != nil {
		return false, err
	}
	return st.Ready(), nil
}

// WaitForReady polls the STATUS register until the chip is ready or the write
// timeout elapses.
func (e *EEPROM) WaitForReady(ctx context.Context) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.started {
		return ErrNotInitialized
	}
	return e.waitForReady(ctx)
}

// EnableWrite sets the write enable latch.
func (e *EEPROM) EnableWrite(ctx context.Context) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.started {
		return ErrNotInitialized
	}
	return e.simpleCommand(ctx, cmdWREN)
}

// DisableWrite clears the write enable latch.
func (e *EEPROM) DisableWrite(ctx context.Context) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.started {
		return ErrNotInitialized
	}
	return e.simpleCommand(ctx, cmdWRDI)
}

// WriteStatus writes the WPEN and BP bits of the STATUS register. The
// identification page bits are never written from here since setting LIP
// locks the page permanently.
func (e *EEPROM) WriteStatus(ctx context.Context, st Status) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.started {
		return ErrNotInitialized
	}
	return e.writeStatus(ctx, st)
}

// SetBlockProtection changes the BP bits, keeping WPEN as it is.
func (e *EEPROM) SetBlockProtection(ctx context.Context, bp BlockProtection) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.started {
		return ErrNotInitialized
	}
	if err := e.waitForReady(ctx); err != nil {
		return err
	}
	st, err := e.readStatus(ctx)
	if err != nil {
		return err
	}
	return e.writeStatus(ctx, st.WithBlockProtection(bp))
}

// ReadByteAt returns the byte stored at address.
func (e *EEPROM) ReadByteAt(ctx context.Context, address uint32) (byte, error) {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.started {
		return 0, ErrNotInitialized
	}
	if address >= e.profile.Capacity {
		return 0, fmt.Errorf("%w: %#x", ErrOutOfRange, address)
	}
	buf := []byte{0}
	if _, err := e.readBlock(ctx, address, buf); err != nil {
		return 0, err
	}
	return buf[0], nil
}

// WriteByteAt stores a single byte. It costs a full write cycle.
func (e *EEPROM) WriteByteAt(ctx context.Context, address uint32, b byte) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.started {
		return ErrNotInitialized
	}
	if address >= e.profile.Capacity {
		return fmt.Errorf("%w: %#x", ErrOutOfRange, address)
	}
	_, err := e.writePage(ctx, address, []byte{b})
	return err
}

// ReadBlock fills buf with the memory content starting at address.
func (e *EEPROM) ReadBlock(ctx context.Context, address uint32, buf []byte) (int, error) {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.started {
		return 0, ErrNotInitialized
	}
	if err := e.checkRange(address, len(buf)); err != nil {
		return 0, err
	}
	return e.readBlock(ctx, address, buf)
}

// WriteBlock writes data starting at address, one page segment at a time.
// If a segment fails the remaining ones are not written and the range is
// left partially updated.
func (e *EEPROM) WriteBlock(ctx context.Context, address uint32, data []byte) (int, error) {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.started {
		return 0, ErrNotInitialized
	}
	if err := e.checkRange(address, len(data)); err != nil {
		return 0, err
	}
	return e.forEachPage(ctx, address, data, e.writePage)
}

// WritePage writes data within a single page.
func (e *EEPROM) WritePage(ctx context.Context, address uint32, data []byte) (int, error) {
	e.mx.Lock()
	defer e.mx.Unlock()
	if !e.started {
		return 0, ErrNotInitialized
	}
	return e.writePage(ctx, address, data)
}

func (e *EEPROM) checkRange(address uint32, length int) error {
	if length <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	if uint64(address)+uint64(length) > uint64(e.profile.Capacity) {
		return fmt.Errorf("%w: %#x+%d exceeds %d bytes", ErrOutOfRange, address, length, e.profile.Capacity)
	}
	return nil
}

func (e *EEPROM) checkPage(address uint32, length int) error {
	if address >= e.profile.Capacity {
		return fmt.Errorf("%w: %#x", ErrOutOfRange, address)
	}
	if length <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	if uint64(length) > uint64(e.profile.PageSize-address%e.profile.PageSize) {
		return fmt.Errorf("%w: %#x+%d", ErrPageBoundary, address, length)
	}
	return nil
}

type pageFunc func(ctx context.Context, address uint32, data []byte) (int, error)

func (e *EEPROM) forEachPage(ctx context.Context, address uint32, data []byte, fn pageFunc) (int, error) {
	for _, seg := range e.profile.Segments(address, len(data)) {
		_, err := fn(ctx, seg.Address, data[seg.Offset:seg.Offset+seg.Length])
		if err != nil {
			return 0, fmt.Errorf("cat25: page segment at %#x failed after %d of %d bytes: %w", seg.Address, seg.Offset, len(data), err)
		}
	}
	return len(data), nil
}

func (e *EEPROM) readBlock(ctx context.Context, address uint32, buf []byte) (int, error) {
	if err := e.waitForReady(ctx); err != nil {
		return 0, err
	}
	if err := e.startCommand(ctx, cmdRead, address); err != nil {
		return 0, err
	}
	tx := make([]byte, len(buf))
	for i := range tx {
		tx[i] = e.config.DummyByte
	}
	err := e.bus.Tx(ctx, tx, buf)
	if endErr := e.endCommand(ctx); err == nil {
		err = endErr
	}
	if err != nil {
		return 0, fmt.Errorf("cat25: read at %#x failed: %w", address, err)
	}
	e.dump(ctx, "read", address, buf)
	return len(buf), nil
}

func (e *EEPROM) writePage(ctx context.Context, address uint32, data []byte) (int, error) {
	if err := e.checkPage(address, len(data)); err != nil {
		return 0, err
	}
	if err := e.waitForReady(ctx); err != nil {
		return 0, err
	}
	if err := e.simpleCommand(ctx, cmdWREN); err != nil {
		return 0, err
	}
	if err := e.startCommand(ctx, cmdWrite, address); err != nil {
		return 0, err
	}
	err := e.bus.Tx(ctx, data, nil)
	if endErr := e.endCommand(ctx); err == nil {
		err = endErr
	}
	if err != nil {
		return 0, fmt.Errorf("cat25: write at %#x failed: %w", address, err)
	}
	slog.Debug("cat25 page written", "address", address, "length", len(data))
	e.dump(ctx, "write", address, data)
	return len(data), nil
}

func (e *EEPROM) readStatus(ctx context.Context) (Status, error) {
	if err := e.startCommand(ctx, cmdRDSR, 0); err != nil {
		return 0, err
	}
	rx := []byte{0}
	err := e.bus.Tx(ctx, []byte{e.config.DummyByte}, rx)
	if endErr := e.endCommand(ctx); err == nil {
		err = endErr
	}
	if err != nil {
		return 0, fmt.Errorf("cat25: status read failed: %w", err)
	}
	return Status(rx[0]), nil
}

func (e *EEPROM) writeStatus(ctx context.Context, st Status) error {
	if err := e.waitForReady(ctx); err != nil {
		return err
	}
	if err := e.simpleCommand(ctx, cmdWREN); err != nil {
		return err
	}
	if err := e.startCommand(ctx, cmdWRSR, 0); err != nil {
		return err
	}
	err := e.bus.Tx(ctx, []byte{byte(st & (statusWPEN | statusBP))}, nil)
	if endErr := e.endCommand(ctx); err == nil {
		err = endErr
	}
	if err != nil {
		return fmt.Errorf("cat25: status write failed: %w", err)
	}
	return nil
}

// waitForReady polls STATUS.RDY, sleeping between polls, until the chip
// finishes its write cycle or the write timeout measured from the first poll
// elapses.
func (e *EEPROM) waitForReady(ctx context.Context) error {
	start := time.Now()
	timer := time.NewTimer(e.config.PollInterval)
	defer timer.Stop()
	for {
		st, err := e.readStatus(ctx)
		if err != nil {
			return err
		}
		if st.Ready() {
			return nil
		}
		if time.Since(start) > e.config.WriteTimeout {
			slog.Warn("cat25 write cycle timeout", "device", e.profile.Name, "status", st.String(), "timeout", e.config.WriteTimeout)
			return ErrTimeout
		}
		timer.Reset(e.config.PollInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *EEPROM) simpleCommand(ctx context.Context, op byte) error {
	if err := e.startCommand(ctx, op, 0); err != nil {
		return err
	}
	return e.endCommand(ctx)
}

// startCommand takes the bus, asserts chip select and sends the instruction
// with its address bytes. On failure the bus is released again.
func (e *EEPROM) startCommand(ctx context.Context, op byte, address uint32) error {
	if err := e.bus.BeginTransaction(ctx, e.settings); err != nil {
		return fmt.Errorf("cat25: could not begin transaction: %w", err)
	}
	if err := e.cs.SetLevel(ctx, eeprom.Low); err != nil {
		_ = e.bus.EndTransaction(ctx)
		return fmt.Errorf("cat25: could not assert chip select: %w", err)
	}
	header := e.profile.command(op, address)
	if eectx.IsVerbose(ctx) {
		slog.Debug("cat25 command", "frame", hex.EncodeToString(header))
	}
	if err := e.bus.Tx(ctx, header, nil); err != nil {
		_ = e.endCommand(ctx)
		return fmt.Errorf("cat25: could not send command 0x%02x: %w", op, err)
	}
	return nil
}

// endCommand deasserts chip select and hands the bus back. Both steps are
// always attempted.
func (e *EEPROM) endCommand(ctx context.Context) error {
	csErr := e.cs.SetLevel(ctx, eeprom.High)
	busErr := e.bus.EndTransaction(ctx)
	if csErr != nil {
		return fmt.Errorf("cat25: could not deassert chip select: %w", csErr)
	}
	if busErr != nil {
		return fmt.Errorf("cat25: could not end transaction: %w", busErr)
	}
	return nil
}

func (e *EEPROM) dump(ctx context.Context, op string, address uint32, data []byte) {
	if eectx.IsVerbose(ctx) {
		slog.Debug("cat25 "+op, "address", fmt.Sprintf("%#06x", address), "data", "\n"+hex.Dump(data))
	}
}

// command encodes the instruction and address bytes for the profile.
// Only READ and WRITE carry an address.
func (p Profile) command(op byte, address uint32) []byte {
	if op != cmdRead && op != cmdWrite {
		return []byte{op}
	}
	if p.ninthBitInOpcode() && address&0x100 != 0 {
		if op == cmdRead {
			op = cmdReadA8
		} else {
			op = cmdWriteA8
		}
	}
	frame := make([]byte, 0, 4)
	frame = append(frame, op)
	if p.Capacity > 0x10000 {
		frame = append(frame, byte(address>>16))
	}
	// 4 Kbit parts send A8 in the opcode, so the middle byte starts at 8 Kbit
	if p.Capacity > 0x200 {
		frame = append(frame, byte(address>>8))
	}
	return append(frame, byte(address))
}

// Segment is one page-bounded piece of a block write.
type Segment struct {
	Address uint32
	Offset  int
	Length  int
}

// Segments splits [address, address+length) into a partial first page, full
// pages and a partial last page.
func (p Profile) Segments(address uint32, length int) []Segment {
	if length <= 0 || p.PageSize == 0 {
		return nil
	}
	var segs []Segment
	page := int(p.PageSize)
	first := page - int(address%p.PageSize)
	if length < first {
		first = length
	}
	segs = append(segs, Segment{Address: address, Offset: 0, Length: first})
	offset := first
	remaining := length - first
	for remaining > page {
		segs = append(segs, Segment{Address: address + uint32(offset), Offset: offset, Length: page})
		offset += page
		remaining -= page
	}
	if remaining > 0 {
		segs = append(segs, Segment{Address: address + uint32(offset), Offset: offset, Length: remaining})
	}
	return segs
}
