package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/eeprom"
	"github.com/mklimuk/eeprom/gpio"
)

func writes(dev *fakeDevice) [][]byte {
	var res [][]byte
	for _, r := range dev.requests {
		if r[0] == cmdI2CWrite {
			res = append(res, r[:4+int(r[1])])
		}
	}
	return res
}

func TestExpanderChipSelectOverI2CEngine(t *testing.T) {
	dev := &fakeDevice{reply: echo(0x00)}
	a := newTestAdapter(dev)
	cs := gpio.NewMCP23017(a, gpio.DefaultMCP23017Address).Pin(gpio.PortB, 3)
	ctx := context.Background()

	require.NoError(t, cs.SetLevel(ctx, eeprom.High))
	require.NoError(t, cs.SetMode(ctx, eeprom.PinOutput))
	require.NoError(t, cs.SetLevel(ctx, eeprom.Low))

	assert.Equal(t, [][]byte{
		{cmdI2CWrite, 0x02, 0x00, 0x42, 0x15, 0x08},
		{cmdI2CWrite, 0x02, 0x00, 0x42, 0x01, 0xF7},
		{cmdI2CWrite, 0x02, 0x00, 0x42, 0x15, 0x00},
	}, writes(dev))
}

func TestExpanderRetriesOnBusyEngine(t *testing.T) {
	busy := 1
	dev := &fakeDevice{}
	dev.reply = func(req []byte) []byte {
		res := echo(0x00)(req)
		if req[0] == cmdI2CWrite && busy > 0 {
			busy--
			res[1] = 0x01
		}
		return res
	}
	a := newTestAdapter(dev)
	ctx := context.Background()

	require.NoError(t, gpio.NewMCP23017(a, gpio.DefaultMCP23017Address).Pin(gpio.PortA, 7).SetMode(ctx, eeprom.PinOutput))
	var cmds []byte
	for _, r := range dev.requests {
		cmds = append(cmds, r[0])
	}
	// write refused, transfer cancelled, write repeated
	assert.Equal(t, []byte{cmdI2CWrite, cmdStatus, cmdI2CWrite}, cmds)
	assert.Equal(t, byte(0x10), dev.requests[1][2])
}

func TestExpanderReadOverI2CEngine(t *testing.T) {
	ports := map[byte]byte{0x12: 0xA5, 0x13: 0x5A}
	var register byte
	dev := &fakeDevice{}
	dev.reply = func(req []byte) []byte {
		res := echo(0x00)(req)
		switch req[0] {
		case cmdI2CWrite:
			register = req[4]
		case cmdI2CGetData:
			res[3] = 1
			res[4] = ports[register]
		}
		return res
	}
	a := newTestAdapter(dev)

	res, err := gpio.NewMCP23017(a, gpio.DefaultMCP23017Address).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xA5, 0x5A}, res)
	read := dev.requests[1]
	assert.Equal(t, []byte{cmdI2CRead, 0x01, 0x00, 0x43}, read[:4])
}

func TestReadFromAddrFailedTransfer(t *testing.T) {
	dev := &fakeDevice{}
	dev.reply = func(req []byte) []byte {
		res := echo(0x00)(req)
		if req[0] == cmdI2CGetData {
			res[3] = 127
		}
		return res
	}
	a := newTestAdapter(dev)
	buf := make([]byte, 2)
	assert.Error(t, a.ReadFromAddr(context.Background(), 0x21, buf))
	assert.Error(t, a.WriteToAddr(context.Background(), 0x21, make([]byte, i2cMaxTransfer+1)))
	assert.Len(t, dev.requests, 2)
}
