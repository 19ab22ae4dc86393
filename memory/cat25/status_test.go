package cat25

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Fields(t *testing.T) {
	tests := []struct {
		given    Status
		expected StatusFields
	}{
		{0x00, StatusFields{Raw: "0x00", BlockProtection: "none", Ready: true}},
		{0x01, StatusFields{Raw: "0x01", BlockProtection: "none", Ready: false}},
		{0x02, StatusFields{Raw: "0x02", BlockProtection: "none", WriteEnableLatch: true, Ready: true}},
		{0x0C, StatusFields{Raw: "0x0c", BlockProtection: "full", Ready: true}},
		{0x04, StatusFields{Raw: "0x04", BlockProtection: "quarter", Ready: true}},
		{0x08, StatusFields{Raw: "0x08", BlockProtection: "half", Ready: true}},
		{0xD3, StatusFields{
			Raw:                     "0xd3",
			WriteProtectEnable:      true,
			IdentificationPageLatch: true,
			LockIdentificationPage:  true,
			BlockProtection:         "none",
			WriteEnableLatch:        true,
			Ready:                   false,
		}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("0x%02x", byte(test.given)), func(t *testing.T) {
			assert.Equal(t, test.expected, test.given.Fields())
		})
	}
}

func TestStatus_WithBlockProtection(t *testing.T) {
	st := Status(0x8E)
	assert.Equal(t, Status(0x86), st.WithBlockProtection(ProtectQuarter))
	assert.Equal(t, Status(0x82), st.WithBlockProtection(ProtectNone))
	assert.Equal(t, ProtectHalf, Status(0).WithBlockProtection(ProtectHalf).BlockProtection())
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "0x83 WPEN WEL BUSY BP=none", Status(0x83).String())
	assert.Equal(t, "0x08 BP=half", Status(0x08).String())
}

func TestParseBlockProtection(t *testing.T) {
	for _, bp := range []BlockProtection{ProtectNone, ProtectQuarter, ProtectHalf, ProtectFull} {
		parsed, err := ParseBlockProtection(bp.String())
		assert.NoError(t, err)
		assert.Equal(t, bp, parsed)
	}
	_, err := ParseBlockProtection("most")
	assert.Error(t, err)
}
