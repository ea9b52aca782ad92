package mindsensors

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/nxtsensors/internal/bustest"
)

func TestEV3SMUX_Sensor(t *testing.T) {
	regs := bustest.NewRegisters()
	mux := NewEV3SMUX(regs)

	gyro, err := mux.Sensor(1, EV3GyroAngle)
	require.NoError(t, err)
	require.NoError(t, gyro.Configure(context.Background()))
	regs.Set(0x51, 0x54, 0xF6, 0xFF)
	r, err := gyro.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -10, r.Angle)

	require.NoError(t, gyro.SetMode(context.Background(), EV3GyroRate))
	assert.Equal(t, [][]byte{{0x52, 0x00}, {0x52, 0x01}}, regs.Writes(0x51))
	assert.Equal(t, EV3GyroRate, gyro.Mode())
	r, err = gyro.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -10, r.Rate)
	assert.Zero(t, r.Angle)
}

func TestEV3SMUX_Invalid(t *testing.T) {
	mux := NewEV3SMUX(bustest.NewRegisters())
	_, err := mux.Sensor(3, EV3TouchBump)
	assert.ErrorIs(t, err, ErrInvalidChannel)
	_, err = mux.Sensor(0, EV3Mode(0x33))
	assert.ErrorIs(t, err, ErrInvalidMode)

	s, err := mux.Sensor(0, EV3TouchBump)
	require.NoError(t, err)
	assert.ErrorIs(t, s.SetMode(context.Background(), EV3Mode(0x12)), ErrInvalidMode)
	assert.Equal(t, EV3TouchBump, s.Mode())
}

func TestParseEV3Mode(t *testing.T) {
	m, err := ParseEV3Mode("ir-beacon")
	require.NoError(t, err)
	assert.Equal(t, EV3IRBeacon, m)
	assert.Equal(t, "ir-beacon", m.String())
	_, err = ParseEV3Mode("laser")
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.Equal(t, "mode(0x33)", EV3Mode(0x33).String())
}

func TestDecodeEV3(t *testing.T) {
	tests := []struct {
		mode EV3Mode
		data string
		want EV3Reading
	}{
		{EV3TouchBump, "0103", EV3Reading{Touch: true, BumpCount: 3}},
		{EV3TouchBump, "0000", EV3Reading{}},
		{EV3ColourReflected, "2a00", EV3Reading{Light: 42}},
		{EV3ColourAmbient, "0500", EV3Reading{Light: 5}},
		{EV3ColourMeasure, "0600", EV3Reading{Colour: 6}},
		{EV3GyroRate, "6400", EV3Reading{Rate: 100}},
		{EV3IRProximity, "46", EV3Reading{Distance: 70}},
		{EV3IRBeacon, "0afb000014196480", EV3Reading{BeaconProximity: [4]int{10, 0, 20, 100}, BeaconHeading: [4]int{-5, 0, 25, -128}}},
		{EV3IRRemote, "01000509", EV3Reading{Remote: [4]int{1, 0, 5, 9}}},
		{EV3SonarCM, "ff00", EV3Reading{Distance: 255}},
		{EV3SonarInches, "6400", EV3Reading{Distance: 100}},
		{EV3SonarPresence, "01", EV3Reading{Presence: true}},
	}
	for _, tt := range tests {
		t.Run(tt.mode.String()+"_"+tt.data, func(t *testing.T) {
			data, err := hex.DecodeString(tt.data)
			require.NoError(t, err)
			require.Len(t, data, tt.mode.replyLen())
			tt.want.Mode = tt.mode
			assert.Equal(t, tt.want, decodeEV3(tt.mode, data))
		})
	}
}
