package cat25

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		valid   bool
	}{
		{"CAT25010", CAT25010, true},
		{"M95M04", M95M04, true},
		{"zero page", Profile{Name: "x", Capacity: 128}, false},
		{"odd page", Profile{Name: "x", Capacity: 960, PageSize: 48}, false},
		{"page above capacity", Profile{Name: "x", Capacity: 16, PageSize: 32}, false},
		{"partial page", Profile{Name: "x", Capacity: 100, PageSize: 32}, false},
		{"too large", Profile{Name: "x", Capacity: 1 << 25, PageSize: 256}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.profile.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidProfile)
			}
		})
	}
}

func TestProfiles_BuiltinsAreValid(t *testing.T) {
	all := Profiles()
	require.NotEmpty(t, all)
	for i, p := range all {
		assert.NoError(t, p.Validate(), p.Name)
		if i > 0 {
			assert.LessOrEqual(t, all[i-1].Capacity, p.Capacity)
		}
	}
	assert.Equal(t, uint32(0x80), all[0].Capacity)
	assert.Equal(t, uint32(0x80000), all[len(all)-1].Capacity)
}

func TestLookupProfile(t *testing.T) {
	p, ok := LookupProfile("cat25256")
	require.True(t, ok)
	assert.Equal(t, CAT25256, p)

	p, ok = LookupProfile("25aa1024")
	require.True(t, ok)
	assert.Equal(t, uint32(256), p.PageSize)

	_, ok = LookupProfile("AT24C02")
	assert.False(t, ok)
}

func TestRegisterProfile(t *testing.T) {
	custom := Profile{Name: "BoardRev2", Capacity: 0x1000, PageSize: 32}
	require.NoError(t, RegisterProfile(custom))
	p, ok := LookupProfile("boardrev2")
	require.True(t, ok)
	assert.Equal(t, custom, p)

	assert.Error(t, RegisterProfile(Profile{Capacity: 0x1000, PageSize: 32}))
	assert.Error(t, RegisterProfile(Profile{Name: "bad", Capacity: 0x1000, PageSize: 24}))
}

func TestProfile_AddressBytes(t *testing.T) {
	assert.Equal(t, 3, CAT25M01.addressBytes())
	assert.Equal(t, 2, CAT25512.addressBytes())
	assert.Equal(t, 2, CAT25080.addressBytes())
	assert.Equal(t, 1, CAT25040.addressBytes())
	assert.True(t, CAT25040.ninthBitInOpcode())
	assert.False(t, CAT25020.ninthBitInOpcode())
}
