package cat25

import (
	"fmt"
	"strings"
)

// Status is a snapshot of the STATUS register.
//
//	bit 7: WPEN  write protect enable (not on CAT25040/020/010)
//	bit 6: IPL   identification page latch (CAT25512/M01, newer CAT25128/256)
//	bit 5: reserved
//	bit 4: LIP   lock identification page
//	bit 3..2: BP block protection
//	bit 1: WEL   write enable latch
//	bit 0: RDY   0 = ready, 1 = write cycle in progress
type Status byte

const (
	statusWPEN Status = 1 << 7
	statusIPL  Status = 1 << 6
	statusLIP  Status = 1 << 4
	statusBP   Status = 0b11 << 2
	statusWEL  Status = 1 << 1
	statusRDY  Status = 1 << 0

	statusBPPos = 2
)

// BlockProtection selects the protected upper part of the array.
type BlockProtection byte

const (
	ProtectNone BlockProtection = iota
	ProtectQuarter
	ProtectHalf
	ProtectFull
)

func (bp BlockProtection) String() string {
	switch bp {
	case ProtectNone:
		return "none"
	case ProtectQuarter:
		return "quarter"
	case ProtectHalf:
		return "half"
	case ProtectFull:
		return "full"
	default:
		return fmt.Sprintf("BP(%d)", byte(bp))
	}
}

// ParseBlockProtection accepts the names returned by BlockProtection.String.
func ParseBlockProtection(s string) (BlockProtection, error) {
	switch strings.ToLower(s) {
	case "none", "0":
		return ProtectNone, nil
	case "quarter", "1/4":
		return ProtectQuarter, nil
	case "half", "1/2":
		return ProtectHalf, nil
	case "full", "all":
		return ProtectFull, nil
	}
	return 0, fmt.Errorf("cat25: unknown block protection %q", s)
}

func (s Status) WriteProtectEnabled() bool       { return s&statusWPEN != 0 }
func (s Status) IdentificationPageLatched() bool { return s&statusIPL != 0 }
func (s Status) IdentificationPageLocked() bool  { return s&statusLIP != 0 }
func (s Status) WriteEnabled() bool              { return s&statusWEL != 0 }

// Ready is true when no internal write cycle is running.
func (s Status) Ready() bool { return s&statusRDY == 0 }

func (s Status) BlockProtection() BlockProtection {
	return BlockProtection((s & statusBP) >> statusBPPos)
}

// WithBlockProtection returns s with the BP bits replaced.
func (s Status) WithBlockProtection(bp BlockProtection) Status {
	return (s &^ statusBP) | (Status(bp)<<statusBPPos)&statusBP
}

// StatusFields is a decoded status register, suitable for printing.
type StatusFields struct {
	Raw                     string `yaml:"raw"`
	WriteProtectEnable      bool   `yaml:"WPEN"`
	IdentificationPageLatch bool   `yaml:"IPL"`
	LockIdentificationPage  bool   `yaml:"LIP"`
	BlockProtection         string `yaml:"BP"`
	WriteEnableLatch        bool   `yaml:"WEL"`
	Ready                   bool   `yaml:"ready"`
}

func (s Status) Fields() StatusFields {
	return StatusFields{
		Raw:                     fmt.Sprintf("0x%02x", byte(s)),
		WriteProtectEnable:      s.WriteProtectEnabled(),
		IdentificationPageLatch: s.IdentificationPageLatched(),
		LockIdentificationPage:  s.IdentificationPageLocked(),
		BlockProtection:         s.BlockProtection().String(),
		WriteEnableLatch:        s.WriteEnabled(),
		Ready:                   s.Ready(),
	}
}

func (s Status) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "0x%02x", byte(s))
	flags := []struct {
		set  bool
		name string
	}{
		{s.WriteProtectEnabled(), "WPEN"},
		{s.IdentificationPageLatched(), "IPL"},
		{s.IdentificationPageLocked(), "LIP"},
		{s.WriteEnabled(), "WEL"},
		{!s.Ready(), "BUSY"},
	}
	for _, f := range flags {
		if f.set {
			b.WriteString(" ")
			b.WriteString(f.name)
		}
	}
	fmt.Fprintf(&b, " BP=%s", s.BlockProtection())
	return b.String()
}
