package console

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchConstraint(t *testing.T) {
	constraints := []string{No, Yes}
	tests := []struct {
		in   string
		want string
	}{
		{"", No},
		{"y", Yes},
		{" Y ", Yes},
		{"yes", No},
		{"n", No},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, matchConstraint(tt.in, constraints))
		})
	}
}
