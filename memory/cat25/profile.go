package cat25

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Profile describes the geometry of a single chip model.
type Profile struct {
	Name     string `yaml:"name"`
	Capacity uint32 `yaml:"capacity"`
	PageSize uint32 `yaml:"page_size"`
}

// Validate checks that the page size is a power of two not larger than the
// capacity and that the capacity is a whole number of pages.
func (p Profile) Validate() error {
	if p.Capacity == 0 || p.PageSize == 0 {
		return fmt.Errorf("%w %q: capacity and page size must be positive", ErrInvalidProfile, p.Name)
	}
	if p.PageSize&(p.PageSize-1) != 0 {
		return fmt.Errorf("%w %q: page size %d is not a power of two", ErrInvalidProfile, p.Name, p.PageSize)
	}
	if p.PageSize > p.Capacity {
		return fmt.Errorf("%w %q: page size %d exceeds capacity %d", ErrInvalidProfile, p.Name, p.PageSize, p.Capacity)
	}
	if p.Capacity%p.PageSize != 0 {
		return fmt.Errorf("%w %q: capacity %d is not a multiple of page size %d", ErrInvalidProfile, p.Name, p.Capacity, p.PageSize)
	}
	if p.Capacity > maxCapacity {
		return fmt.Errorf("%w %q: capacity %d exceeds 24-bit addressing", ErrInvalidProfile, p.Name, p.Capacity)
	}
	return nil
}

func (p Profile) String() string {
	return fmt.Sprintf("%s (%d bytes, %d byte pages)", p.Name, p.Capacity, p.PageSize)
}

// addressBytes is the number of address bytes following the opcode.
func (p Profile) addressBytes() int {
	switch {
	case p.Capacity > 0x10000:
		return 3
	case p.Capacity > 0x200:
		return 2
	default:
		return 1
	}
}

// ninthBitInOpcode reports whether the device carries address bit 8 in
// bit 3 of the READ/WRITE opcode (4 Kbit parts).
func (p Profile) ninthBitInOpcode() bool {
	return p.Capacity == 0x200
}

const maxCapacity = 1 << 24

// ON Semiconductor CAT25 family
var (
	CAT25M01 = Profile{Name: "CAT25M01", Capacity: 0x20000, PageSize: 256}
	CAT25512 = Profile{Name: "CAT25512", Capacity: 0x10000, PageSize: 128}
	CAT25256 = Profile{Name: "CAT25256", Capacity: 0x8000, PageSize: 64}
	CAT25128 = Profile{Name: "CAT25128", Capacity: 0x4000, PageSize: 64}
	CAT25640 = Profile{Name: "CAT25640", Capacity: 0x2000, PageSize: 64}
	CAT25320 = Profile{Name: "CAT25320", Capacity: 0x1000, PageSize: 32}
	CAT25160 = Profile{Name: "CAT25160", Capacity: 0x800, PageSize: 32}
	CAV25160 = Profile{Name: "CAV25160", Capacity: 0x800, PageSize: 32}
	CAT25080 = Profile{Name: "CAT25080", Capacity: 0x400, PageSize: 32}
	CAV25080 = Profile{Name: "CAV25080", Capacity: 0x400, PageSize: 32}
	CAT25040 = Profile{Name: "CAT25040", Capacity: 0x200, PageSize: 16}
	CAT25020 = Profile{Name: "CAT25020", Capacity: 0x100, PageSize: 16}
	CAT25010 = Profile{Name: "CAT25010", Capacity: 0x80, PageSize: 16}
)

// Instruction compatible parts from other vendors
var (
	MC25AA1024 = Profile{Name: "25AA1024", Capacity: 0x20000, PageSize: 256}
	M95M02     = Profile{Name: "M95M02", Capacity: 0x40000, PageSize: 256}
	M95M04     = Profile{Name: "M95M04", Capacity: 0x80000, PageSize: 512}
)

var (
	profilesMx sync.RWMutex
	profiles   = map[string]Profile{}
)

func init() {
	for _, p := range []Profile{
		CAT25M01, CAT25512, CAT25256, CAT25128, CAT25640, CAT25320, CAT25160,
		CAV25160, CAT25080, CAV25080, CAT25040, CAT25020, CAT25010,
		MC25AA1024, M95M02, M95M04,
	} {
		profiles[strings.ToUpper(p.Name)] = p
	}
}

// LookupProfile finds a profile by its (case insensitive) model name.
func LookupProfile(name string) (Profile, bool) {
	profilesMx.RLock()
	defer profilesMx.RUnlock()
	p, ok := profiles[strings.ToUpper(name)]
	return p, ok
}

// RegisterProfile adds or replaces a profile in the lookup table.
func RegisterProfile(p Profile) error {
	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidProfile)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	profilesMx.Lock()
	defer profilesMx.Unlock()
	profiles[strings.ToUpper(p.Name)] = p
	return nil
}

// Profiles returns all known profiles ordered by capacity, then name.
func Profiles() []Profile {
	profilesMx.RLock()
	res := make([]Profile, 0, len(profiles))
	for _, p := range profiles {
		res = append(res, p)
	}
	profilesMx.RUnlock()
	sort.Slice(res, func(i, j int) bool {
		if res[i].Capacity != res[j].Capacity {
			return res[i].Capacity < res[j].Capacity
		}
		return res[i].Name < res[j].Name
	})
	return res
}
