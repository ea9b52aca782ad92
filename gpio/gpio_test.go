package gpio

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/internal/bustest"
)

func TestPCF8574_SetToggle(t *testing.T) {
	bus := bustest.NewLatch(0xFF)
	p := NewPCF8574(bus, DefaultPCF8574Address)
	ctx := context.Background()

	require.NoError(t, p.Set(ctx, 0, false))
	require.NoError(t, p.Toggle(ctx, 7))
	require.NoError(t, p.Set(ctx, 0, true))
	assert.Equal(t, []byte{0xFE, 0x7E, 0x7F}, bus.Writes())

	v, err := p.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, byte(0x7F), v)
}

func TestPCF8574_InvalidPin(t *testing.T) {
	p := NewPCF8574(bustest.NewLatch(0), DefaultPCF8574Address)
	assert.ErrorIs(t, p.Set(context.Background(), 8, true), ErrInvalidPin)
	assert.ErrorIs(t, p.Toggle(context.Background(), -1), ErrInvalidPin)
}

func TestPCF8574_RetryOnBusy(t *testing.T) {
	bus := bustest.NewLatch(0)
	bus.Busy(1)
	p := NewPCF8574(bus, DefaultPCF8574Address)
	require.NoError(t, p.Write(context.Background(), 0x55))
	assert.Equal(t, 1, bus.Releases())
	assert.Equal(t, []byte{0x55}, bus.Writes())

	bus.Busy(2)
	err := p.Write(context.Background(), 0xAA)
	assert.ErrorIs(t, err, nxtsensors.ErrBusBusy)
	assert.Contains(t, err.Error(), "retry limit reached")
}

func TestPCF8574_NoRetryOnOtherErrors(t *testing.T) {
	bus := &bustest.MockI2CBus{}
	boom := errors.New("nack")
	bus.On("ReadFromAddr", mock.Anything, byte(DefaultPCF8574Address), mock.Anything).Return(nil, boom).Once()
	_, err := NewPCF8574(bus, DefaultPCF8574Address).Read(context.Background())
	assert.ErrorIs(t, err, boom)
	bus.AssertExpectations(t)
}

func TestRegisterAddr(t *testing.T) {
	tests := []struct {
		bank int
		port Port
		reg  register
		want byte
	}{
		{0, PortA, IODIR, 0x00},
		{0, PortB, IODIR, 0x01},
		{0, PortA, GPPU, 0x0C},
		{0, PortB, GPIO, 0x13},
		{0, PortB, OLAT, 0x15},
		{1, PortA, GPIO, 0x09},
		{1, PortB, IOCON, 0x15},
		{1, PortB, OLAT, 0x1A},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, registerAddr(tt.bank, tt.port, tt.reg), "bank %d port %s reg %d", tt.bank, tt.port, tt.reg)
	}
}

func TestMCP23017(t *testing.T) {
	regs := bustest.NewRegisters()
	m := NewMCP23017(regs, DefaultMCP23017Address)
	ctx := context.Background()

	require.NoError(t, m.SetDirection(ctx, PortA, 0xFF))
	require.NoError(t, m.PullUp(ctx, PortA, 0x0F))
	require.NoError(t, m.WritePort(ctx, PortB, 0x81))
	assert.Equal(t, [][]byte{{0x00, 0xFF}, {0x0C, 0x0F}, {0x15, 0x81}}, regs.Writes(DefaultMCP23017Address))

	regs.Set(DefaultMCP23017Address, 0x12, 0x0A, 0x0B)
	pins, err := m.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0A, 0x0B}, pins)

	regs.Fail(DefaultMCP23017Address, 1)
	v, err := m.ReadPort(ctx, PortB)
	require.NoError(t, err)
	assert.Equal(t, byte(0x0B), v)
}
