package dexterind

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/nxtsensors/internal/bustest"
)

func TestIMUGyro_Configure(t *testing.T) {
	regs := bustest.NewRegisters()
	gyro := NewIMUGyro(regs)
	require.NoError(t, gyro.Configure(context.Background(), GyroConfig{Range: GyroRange500, LowPass: true}))
	assert.Equal(t, [][]byte{
		{0x21, 0x00},
		{0x22, 0x08},
		{0x23, 0x90},
		{0x24, 0x02},
		{0x20, 0x0F},
	}, regs.Writes(GyroAddress))
}

func TestIMUGyro_ReadAndCalibrate(t *testing.T) {
	regs := bustest.NewRegisters()
	regs.Set(GyroAddress, 0xA8, 0xE8, 0x03, 0x18, 0xFC, 0x00, 0x00)
	gyro := NewIMUGyro(regs, WithSampleInterval(0))
	ctx := context.Background()
	require.NoError(t, gyro.Configure(ctx, GyroConfig{Range: GyroRange500}))

	r, err := gyro.Read(ctx)
	require.NoError(t, err)
	assert.InDelta(t, -17.5, r.X, 1e-9)
	assert.InDelta(t, 17.5, r.Y, 1e-9)
	assert.InDelta(t, 0, r.Z, 1e-9)

	offset, err := gyro.Calibrate(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 17.5, offset.Y, 1e-9)

	r, err = gyro.Read(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0, r.X, 1e-9)
	assert.InDelta(t, 0, r.Y, 1e-9)
}

func TestIMUAccel_Read(t *testing.T) {
	regs := bustest.NewRegisters()
	regs.Set(AccelAddress, 0x00, 0x40, 0x00, 0xC0, 0xFF, 0x20, 0x00)
	regs.Set(AccelAddress, 0x06, 0x40, 0xC0, 0x20)
	accel := NewIMUAccel(regs)
	ctx := context.Background()
	require.NoError(t, accel.Configure(ctx, AccelConfig{Range: AccelRange2G}))
	assert.Equal(t, [][]byte{{0x16, 0x05}}, regs.Writes(AccelAddress))

	r, err := accel.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, AccelReading{X: 1, Y: -1, Z: 0.5}, r)

	r, err = accel.Read8Bit(ctx)
	require.NoError(t, err)
	assert.Equal(t, AccelReading{X: 1, Y: -1, Z: 0.5}, r)
}

func TestIMUAccel_Calibrate(t *testing.T) {
	regs := bustest.NewRegisters()
	regs.Set(AccelAddress, 0x00, 0x0A, 0x00, 0x00, 0x00, 0x3C, 0x00)
	accel := NewIMUAccel(regs, WithSampleInterval(0))
	require.NoError(t, accel.Calibrate(context.Background()))
	assert.Equal(t, []byte{0xEC, 0xFF, 0x00, 0x00, 0x08, 0x00}, regs.Get(AccelAddress, 0x10, 6))
}
