package hitechnic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/nxtsensors/internal/bustest"
)

func TestMotorMux_Run(t *testing.T) {
	regs := bustest.NewRegisters()
	mux := NewMotorMux(regs)
	require.NoError(t, mux.Run(context.Background(), 1, 150, MotorRunConstSpeed))
	require.NoError(t, mux.Run(context.Background(), 1, -150, MotorRunConstPower))
	assert.Equal(t, [][]byte{{0x4E, 100, 0x01}, {0x4E, 0x9C, 0x02}}, regs.Writes(MotorMuxAddress))
}

func TestMotorMux_Encoder(t *testing.T) {
	regs := bustest.NewRegisters()
	regs.Set(MotorMuxAddress, 0x5A, 0xFF, 0xFF, 0xFF, 0x9C)
	mux := NewMotorMux(regs)

	enc, err := mux.Encoder(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, int32(-100), enc)

	require.NoError(t, mux.SetEncoderTarget(context.Background(), 0, 1000))
	assert.Equal(t, [][]byte{{0x40, 0x00, 0x00, 0x03, 0xE8}}, regs.Writes(MotorMuxAddress))
}

func TestMotorMux_Status(t *testing.T) {
	regs := bustest.NewRegisters()
	regs.Set(MotorMuxAddress, 0x63, 0x80)
	status, err := NewMotorMux(regs).Status(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, status.Has(MotorStatusBusy))
	assert.False(t, status.Has(MotorStatusNoBattery))
}

func TestMotorMux_InvalidChannel(t *testing.T) {
	mux := NewMotorMux(bustest.NewRegisters())
	_, err := mux.Motor(4)
	assert.ErrorIs(t, err, ErrInvalidChannel)
	err = mux.Run(context.Background(), -1, 10, MotorRunConstSpeed)
	assert.ErrorIs(t, err, ErrInvalidChannel)
}

func TestMuxMotor_SetPower(t *testing.T) {
	regs := bustest.NewRegisters()
	motor, err := NewMotorMux(regs).Motor(0)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, motor.SetEncoderTarget(ctx, 360))
	require.NoError(t, motor.SetPower(ctx, 50))
	require.NoError(t, motor.SetPower(ctx, 50))
	motor.SetPIDControl(false)
	require.NoError(t, motor.SetPower(ctx, 50))
	require.NoError(t, motor.SetPower(ctx, 0))
	motor.SetBrake(false)
	require.NoError(t, motor.SetPower(ctx, 0))

	assert.Equal(t, [][]byte{
		{0x40, 0x00, 0x00, 0x01, 0x68},
		{0x44, 50, byte(MotorRunToPosition)},
		{0x44, 50, byte(MotorRunConstSpeed)},
		{0x44, 50, byte(MotorRunConstPower)},
		{0x45, byte(MotorBrake)},
		{0x45, byte(MotorFloat)},
	}, regs.Writes(MotorMuxAddress))
}

func TestMuxMotor_Busy(t *testing.T) {
	regs := bustest.NewRegisters()
	regs.Set(MotorMuxAddress, 0x4F, 0x80)
	motor, err := NewMotorMux(regs).Motor(1)
	require.NoError(t, err)
	busy, err := motor.Busy(context.Background())
	require.NoError(t, err)
	assert.True(t, busy)
}
