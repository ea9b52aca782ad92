package lego

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/nxtsensors"
	"github.com/mklimuk/nxtsensors/calib"
	"github.com/mklimuk/nxtsensors/internal/bustest"
)

type poweredPort struct {
	*bustest.Analog
	active bool
}

func (p *poweredPort) SetAnalogActive(ctx context.Context, active bool) error {
	p.active = active
	return nil
}

func TestLight_Read(t *testing.T) {
	tests := []struct {
		analog int
		want   LightReading
	}{
		{1023, LightReading{Raw: 0, Normalised: 0}},
		{0, LightReading{Raw: 1023, Normalised: 100}},
		{523, LightReading{Raw: 500, Normalised: 48}},
	}
	for _, tt := range tests {
		r, err := NewLight(bustest.NewAnalog(tt.analog)).Read(context.Background())
		require.NoError(t, err)
		assert.Equal(t, tt.want, r, "analog %d", tt.analog)
	}
}

func TestLight_Calibration(t *testing.T) {
	store := calib.NewStore(t.TempDir())
	input := bustest.NewAnalog(823)
	light := NewLight(input, WithCalibration(store), WithPort("S3"))
	ctx := context.Background()

	low, err := light.CalibrateLow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, low)
	input.Set(223)
	high, err := light.CalibrateHigh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 800, high)

	input.Set(523)
	r, err := light.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, LightReading{Raw: 500, Normalised: 50}, r)

	restored := NewLight(input, WithCalibration(store), WithPort("S3"))
	assert.Equal(t, LightLimits{Low: 200, High: 800}, restored.Limits())
	other := NewLight(input, WithCalibration(store), WithPort("S4"))
	assert.Equal(t, LightLimits{Low: 0, High: 1023}, other.Limits())
}

func TestLight_SetActive(t *testing.T) {
	port := &poweredPort{Analog: bustest.NewAnalog(0)}
	require.NoError(t, NewLight(port).SetActive(context.Background(), true))
	assert.True(t, port.active)

	err := NewLight(bustest.NewAnalog(0)).SetActive(context.Background(), true)
	assert.ErrorIs(t, err, nxtsensors.ErrNotSupported)
}

func TestLight_ReadFailure(t *testing.T) {
	input := bustest.NewAnalog()
	boom := errors.New("adc")
	input.Fail(boom)
	_, err := NewLight(input).Read(context.Background())
	assert.ErrorIs(t, err, boom)
}
