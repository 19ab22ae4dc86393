package cat25

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mklimuk/eeprom"
)

var (
	_ eeprom.SPIBus = &Simulator{}
	_ eeprom.Pin    = &Simulator{}
)

var (
	ErrSimTransaction = errors.New("cat25 sim: transaction state violation")
	ErrSimNotSelected = errors.New("cat25 sim: transfer while chip select is deasserted")
)

// Frame is one chip select low period as seen by the simulated chip.
type Frame struct {
	Opcode  byte
	Address uint32
	// Header holds the instruction and address bytes.
	Header []byte
	// Data holds every byte clocked in after the header.
	Data []byte
	// Ignored is set when the chip was busy and discarded the instruction.
	Ignored bool
}

// Simulator is an in-memory CAT25 chip. It implements both the SPI bus and
// the chip select pin so it can be handed to New directly:
//
//	sim := cat25.NewSimulator(cat25.CAT25256)
//	e := cat25.New(sim, sim, cat25.CAT25256)
//
// It models the write enable latch, page wrap-around inside the write
// buffer, block protection and the busy period of the internal write cycle.
type Simulator struct {
	mx sync.Mutex

	profile    Profile
	mem        []byte
	status     Status
	busyUntil  time.Time
	stuck      bool
	writeCycle time.Duration

	csMode   eeprom.PinMode
	csLevel  eeprom.Level
	inTx     bool
	settings eeprom.SPISettings

	frame  *Frame
	need   int
	pos    int
	frames []Frame
}

// NewSimulator returns an erased (0xFF) chip with the given geometry.
func NewSimulator(profile Profile) *Simulator {
	mem := make([]byte, profile.Capacity)
	for i := range mem {
		mem[i] = 0xFF
	}
	return &Simulator{
		profile: profile,
		mem:     mem,
		csMode:  eeprom.PinInput,
		csLevel: eeprom.High,
	}
}

// SetWriteCycle sets how long the chip reports busy after a write.
func (s *Simulator) SetWriteCycle(d time.Duration) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.writeCycle = d
}

// SetStuck makes the chip report busy forever.
func (s *Simulator) SetStuck(stuck bool) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.stuck = stuck
}

// Load stores data directly into the array, bypassing the protocol.
func (s *Simulator) Load(address uint32, data []byte) {
	s.mx.Lock()
	defer s.mx.Unlock()
	copy(s.mem[address:], data)
}

// Memory returns a copy of the array.
func (s *Simulator) Memory() []byte {
	s.mx.Lock()
	defer s.mx.Unlock()
	res := make([]byte, len(s.mem))
	copy(res, s.mem)
	return res
}

// Status returns the register content the chip would report now.
func (s *Simulator) Status() Status {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.currentStatus()
}

// Frames returns all completed frames since the last ResetLog.
func (s *Simulator) Frames() []Frame {
	s.mx.Lock()
	defer s.mx.Unlock()
	res := make([]Frame, len(s.frames))
	copy(res, s.frames)
	return res
}

// Count returns how many accepted frames carried the given instruction.
func (s *Simulator) Count(op byte) int {
	s.mx.Lock()
	defer s.mx.Unlock()
	n := 0
	for _, f := range s.frames {
		if f.Opcode == op && !f.Ignored {
			n++
		}
	}
	return n
}

func (s *Simulator) ResetLog() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.frames = nil
}

// Settings returns the parameters of the last bus transaction.
func (s *Simulator) Settings() eeprom.SPISettings {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.settings
}

// ChipSelect returns the current pin mode and level.
func (s *Simulator) ChipSelect() (eeprom.PinMode, eeprom.Level) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.csMode, s.csLevel
}

func (s *Simulator) BeginTransaction(ctx context.Context, settings eeprom.SPISettings) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.inTx {
		return ErrSimTransaction
	}
	s.inTx = true
	s.settings = settings
	return nil
}

func (s *Simulator) EndTransaction(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if !s.inTx {
		return ErrSimTransaction
	}
	s.inTx = false
	return nil
}

func (s *Simulator) Tx(ctx context.Context, w, r []byte) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if !s.inTx {
		return ErrSimTransaction
	}
	if s.frame == nil {
		return ErrSimNotSelected
	}
	if r != nil && len(r) < len(w) {
		return errors.New("cat25 sim: receive buffer shorter than transmit buffer")
	}
	for i, b := range w {
		out := s.clock(b)
		if r != nil {
			r[i] = out
		}
	}
	return nil
}

func (s *Simulator) SetMode(ctx context.Context, mode eeprom.PinMode) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.csMode = mode
	s.selectChip(s.selected())
	return nil
}

func (s *Simulator) SetLevel(ctx context.Context, level eeprom.Level) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.csLevel = level
	s.selectChip(s.selected())
	return nil
}

// an input pin floats high through the board pull-up
func (s *Simulator) selected() bool {
	return s.csMode == eeprom.PinOutput && s.csLevel == eeprom.Low
}

func (s *Simulator) selectChip(selected bool) {
	switch {
	case selected && s.frame == nil:
		s.frame = &Frame{Ignored: s.busy()}
		s.need = 1
		s.pos = 0
	case !selected && s.frame != nil:
		s.finish(*s.frame)
		s.frame = nil
	}
}

func (s *Simulator) busy() bool {
	return s.stuck || time.Now().Before(s.busyUntil)
}

func (s *Simulator) currentStatus() Status {
	st := s.status
	if s.busy() {
		st |= statusRDY
	}
	return st
}

func (s *Simulator) isRead(op byte) bool {
	return op == cmdRead || (s.profile.ninthBitInOpcode() && op == cmdReadA8)
}

func (s *Simulator) isWrite(op byte) bool {
	return op == cmdWrite || (s.profile.ninthBitInOpcode() && op == cmdWriteA8)
}

// clock shifts one byte in and returns the byte shifted out.
func (s *Simulator) clock(b byte) byte {
	f := s.frame
	if len(f.Header) < s.need {
		f.Header = append(f.Header, b)
		if len(f.Header) == 1 {
			f.Opcode = b
			if f.Opcode == cmdRDSR {
				f.Ignored = false
			}
			if s.isRead(b) || s.isWrite(b) {
				s.need = 1 + s.profile.addressBytes()
			}
		}
		if len(f.Header) == s.need && s.need > 1 {
			var addr uint32
			for _, a := range f.Header[1:] {
				addr = addr<<8 | uint32(a)
			}
			if f.Opcode == cmdReadA8 || f.Opcode == cmdWriteA8 {
				addr |= 0x100
			}
			f.Address = addr % s.profile.Capacity
		}
		return 0xFF
	}
	f.Data = append(f.Data, b)
	if f.Ignored {
		return 0xFF
	}
	switch {
	case f.Opcode == cmdRDSR:
		return byte(s.currentStatus())
	case s.isRead(f.Opcode):
		out := s.mem[(f.Address+uint32(s.pos))%s.profile.Capacity]
		s.pos++
		return out
	}
	return 0xFF
}

func (s *Simulator) finish(f Frame) {
	s.frames = append(s.frames, f)
	if f.Ignored || len(f.Header) == 0 {
		return
	}
	switch {
	case f.Opcode == cmdWREN && len(f.Data) == 0:
		s.status |= statusWEL
	case f.Opcode == cmdWRDI && len(f.Data) == 0:
		s.status &^= statusWEL
	case f.Opcode == cmdWRSR:
		if s.status&statusWEL == 0 || len(f.Data) == 0 {
			return
		}
		s.status = (s.status &^ (statusWPEN | statusBP)) | Status(f.Data[0])&(statusWPEN|statusBP)
		s.startWriteCycle()
	case s.isWrite(f.Opcode):
		if s.status&statusWEL == 0 || len(f.Data) == 0 || len(f.Header) < s.need {
			return
		}
		page := s.profile.PageSize
		base := f.Address &^ (page - 1)
		for i, d := range f.Data {
			addr := base + (f.Address%page+uint32(i))%page
			if s.protected(addr) {
				continue
			}
			s.mem[addr] = d
		}
		s.startWriteCycle()
	}
}

func (s *Simulator) startWriteCycle() {
	s.status &^= statusWEL
	s.busyUntil = time.Now().Add(s.writeCycle)
}

func (s *Simulator) protected(addr uint32) bool {
	c := s.profile.Capacity
	switch s.status.BlockProtection() {
	case ProtectQuarter:
		return addr >= c-c/4
	case ProtectHalf:
		return addr >= c/2
	case ProtectFull:
		return true
	}
	return false
}
