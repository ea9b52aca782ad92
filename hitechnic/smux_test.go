package hitechnic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/internal/bustest"
)

func init() {
	smuxHaltDelay = 0
	smuxDetectDelay = 0
}

func TestSensorMux_Status(t *testing.T) {
	regs := bustest.NewRegisters()
	regs.Set(SensorMuxAddress, 0x21, 0x05)
	status, err := NewSensorMux(regs).Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Has(SMUXBatteryLow))
	assert.True(t, status.Has(SMUXHalted))
	assert.False(t, status.Has(SMUXBusy))
}

func TestSensorMux_Scan(t *testing.T) {
	regs := bustest.NewRegisters()
	mux := NewSensorMux(regs)
	require.NoError(t, mux.Scan(context.Background()))
	assert.Equal(t, [][]byte{{0x20, 0x00}, {0x20, 0x01}, {0x20, 0x02}}, regs.Writes(SensorMuxAddress))
}

func TestSensorMux_ChannelConfig(t *testing.T) {
	regs := bustest.NewRegisters()
	mux := NewSensorMux(regs)
	require.NoError(t, mux.ConfigureChannel(context.Background(), 2, SMUXIRSeekerConfig))
	assert.Equal(t, []byte{0x01, 0x0A, 13, 0x10, 0x42}, regs.Get(SensorMuxAddress, 0x2C, 5))

	config, err := mux.ChannelConfig(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, SMUXIRSeekerConfig, config)

	typ, err := mux.ChannelType(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, SMUXSensorCustom, typ)

	err = mux.ConfigureChannel(context.Background(), 0, SMUXChannelConfig{Count: 17})
	assert.ErrorIs(t, err, nxtsensors.ErrPayloadTooLarge)
}

func TestSensorMux_CompassBehindChannel(t *testing.T) {
	regs := bustest.NewRegisters()
	// autodetected compass on channel 0
	regs.Set(SensorMuxAddress, 0x22, 0x01, 0x02, 0x02, 0x02, 0x42)
	regs.Set(SensorMuxAddress, 0x40, 90, 1)
	mux := NewSensorMux(regs)
	ch, err := mux.Channel(0)
	require.NoError(t, err)

	r, err := NewCompass(ch).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 181, r.Heading)

	err = NewCompass(ch).StartCalibration(context.Background())
	assert.ErrorIs(t, err, nxtsensors.ErrNotSupported)
}

func TestSensorMux_ConfigureBehindChannel(t *testing.T) {
	ctx := context.Background()
	regs := bustest.NewRegisters()
	mux := NewSensorMux(regs)
	require.NoError(t, mux.ConfigureChannel(ctx, 0, SMUXIRSeekerConfig))
	require.NoError(t, mux.ConfigureChannel(ctx, 1, SMUXColourConfig))
	regs.Set(SensorMuxAddress, 0x40, 5, 10, 20, 30, 40, 50)
	regs.Set(SensorMuxAddress, 0x50, 2, 200, 0, 0)
	writes := len(regs.Writes(SensorMuxAddress))

	ch0, err := mux.Channel(0)
	require.NoError(t, err)
	seeker := NewIRSeeker(ch0)
	require.NoError(t, seeker.Configure(ctx, IRSeekerConfig{Mode: IRSeeker600Hz}))
	r, err := seeker.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, r.DCDirection)

	ch1, err := mux.Channel(1)
	require.NoError(t, err)
	colour := NewColour(ch1)
	require.NoError(t, colour.Configure(ctx, ColourConfig{Mode: ColourModePassive}))
	c, err := colour.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Colour)
	assert.Equal(t, 200, c.Red)

	require.NoError(t, NewPIR(ch1).Configure(ctx, PIRConfig{Deadband: 10}))
	assert.Len(t, regs.Writes(SensorMuxAddress), writes)
}

func TestSensorMux_RegisterOffset(t *testing.T) {
	regs := bustest.NewRegisters()
	mux := NewSensorMux(regs)
	require.NoError(t, mux.ConfigureChannel(context.Background(), 1, SMUXChannelConfig{
		Mode: SMUXModeI2C, Type: SMUXSensorCustom, Count: 8, Address: 0x01, Register: 0x40,
	}))
	regs.Set(SensorMuxAddress, 0x50, 1, 2, 3, 4, 5, 6, 7, 8)
	ch, err := mux.Channel(1)
	require.NoError(t, err)

	require.NoError(t, ch.WriteToAddr(context.Background(), 0x01, []byte{0x43}))
	buf := make([]byte, 2)
	require.NoError(t, ch.ReadFromAddr(context.Background(), 0x01, buf))
	assert.Equal(t, []byte{4, 5}, buf)

	assert.ErrorIs(t, ch.WriteToAddr(context.Background(), 0x01, []byte{0x3F}), nxtsensors.ErrNotSupported)
	assert.ErrorIs(t, ch.ReadFromAddr(context.Background(), 0x02, buf), nxtsensors.ErrNotSupported)
}

func TestSensorMux_AnalogChannel(t *testing.T) {
	regs := bustest.NewRegisters()
	regs.Set(SensorMuxAddress, 0x38, 0x80, 0x02)
	mux := NewSensorMux(regs)
	ch, err := mux.Channel(1)
	require.NoError(t, err)

	v, err := ch.ReadAnalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 514, v)

	require.NoError(t, ch.SetAnalogActive(context.Background(), true))
	assert.Equal(t, byte(SMUXModeDig0), regs.Get(SensorMuxAddress, 0x27, 1)[0])

	eopd := NewEOPD(ch)
	require.NoError(t, eopd.Configure(context.Background(), EOPDConfig{LongRange: false}))
	assert.Equal(t, byte(0), regs.Get(SensorMuxAddress, 0x27, 1)[0])
	writes := regs.Writes(SensorMuxAddress)
	assert.Equal(t, []byte{0x20, 0x02}, writes[len(writes)-1])
}

func TestSensorMux_InvalidChannel(t *testing.T) {
	_, err := NewSensorMux(bustest.NewRegisters()).Channel(4)
	assert.ErrorIs(t, err, ErrInvalidChannel)
}
