package dexterind

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/nxtsensors/calib"
	"github.com/mklimuk/nxtsensors/internal/bustest"
)

func TestFlex_Uncalibrated(t *testing.T) {
	r, err := NewFlex(bustest.NewAnalog(1023)).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, FlexReading{Raw: 1023, Normalised: 100}, r)
}

func TestFlex_Calibration(t *testing.T) {
	store := calib.NewStore(t.TempDir())
	input := bustest.NewAnalog(200)
	flex := NewFlex(input, WithCalibration(store), WithPort("S2"))
	ctx := context.Background()

	low, err := flex.CalibrateLow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, low)
	input.Set(800)
	high, err := flex.CalibrateHigh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 800, high)

	input.Set(500)
	r, err := flex.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50, r.Normalised)

	restored := NewFlex(input, WithCalibration(store), WithPort("S2"))
	assert.Equal(t, FlexLimits{Low: 200, High: 800}, restored.Limits())
}
