package hitechnic

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

func TestGyro_DefaultOffset(t *testing.T) {
	gyro := NewGyro(bustest.NewAnalog(640))
	r, err := gyro.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, GyroReading{Raw: 640, Offset: DefaultGyroOffset, Rotation: 20}, r)
}

func TestGyro_CalibratePersistsOffset(t *testing.T) {
	store := calib.NewStore(t.TempDir())
	input := bustest.NewAnalog(615)
	gyro := NewGyro(input, WithCalibration(store), WithPort("S1"), WithSampleInterval(0))

	offset, err := gyro.Calibrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 615, offset)
	assert.Equal(t, calibrationSamples, input.Calls())

	input.Set(625)
	r, err := gyro.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, r.Rotation)

	restored := NewGyro(input, WithCalibration(store), WithPort("S1"))
	r, err = restored.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 615, r.Offset)

	other := NewGyro(input, WithCalibration(store), WithPort("S2"))
	r, err = other.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultGyroOffset, r.Offset)
}

func TestGyro_CalibrateFailure(t *testing.T) {
	input := bustest.NewAnalog()
	input.Fail(errors.New("port unplugged"))
	gyro := NewGyro(input, WithSampleInterval(0))
	offset, err := gyro.Calibrate(context.Background())
	assert.Error(t, err)
	assert.Equal(t, DefaultGyroOffset, offset)
}

func TestForce_Read(t *testing.T) {
	r, err := NewForce(bustest.NewAnalog(300)).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ForceReading{Raw: 300, Force: 723}, r)
}

func TestEOPD_Read(t *testing.T) {
	r, err := NewEOPD(bustest.NewAnalog(1013)).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, r.Raw)
	assert.Equal(t, 10, r.Processed)
}

func TestEOPD_RangeNeedsPoweredPort(t *testing.T) {
	err := NewEOPD(bustest.NewAnalog(0)).Configure(context.Background(), EOPDConfig{LongRange: true})
	assert.ErrorIs(t, err, nxtsensors.ErrNotSupported)
}

func TestMagField_Calibrate(t *testing.T) {
	store := calib.NewStore(t.TempDir())
	input := bustest.NewAnalog(500)
	sensor := NewMagField(input, WithCalibration(store), WithSampleInterval(0))

	bias, err := sensor.Calibrate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 500, bias)

	input.Set(530)
	r, err := sensor.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MagFieldReading{Raw: 530, Bias: 500, Strength: 30}, r)

	r, err = NewMagField(input, WithCalibration(store)).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 500, r.Bias)
}

func TestTouchMux_Decode(t *testing.T) {
	tests := []struct {
		name string
		raw  int
		mask byte
	}{
		{"released", 1023, 0x00},
		{"first", 994, 0x01},
		{"all", 709, 0x0F},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := decodeTouchMux(tt.raw)
			assert.Equal(t, tt.mask, r.Mask)
			for i, pressed := range r.Pressed {
				assert.Equal(t, tt.mask&(1<<i) != 0, pressed)
			}
		})
	}
}

func TestAnalog_KeepsLastReading(t *testing.T) {
	ctx := context.Background()
	unplugged := errors.New("port unplugged")

	t.Run("gyro", func(t *testing.T) {
		input := bustest.NewAnalog(640)
		gyro := NewGyro(input)
		want, err := gyro.Read(ctx)
		require.NoError(t, err)
		input.Fail(unplugged)
		r, err := gyro.Read(ctx)
		assert.ErrorIs(t, err, unplugged)
		assert.Equal(t, want, r)
		assert.Equal(t, want, gyro.Last())
	})
	t.Run("force", func(t *testing.T) {
		input := bustest.NewAnalog(300)
		force := NewForce(input)
		assert.Equal(t, ForceReading{}, force.Last())
		want, err := force.Read(ctx)
		require.NoError(t, err)
		input.Fail(unplugged)
		r, err := force.Read(ctx)
		assert.ErrorIs(t, err, unplugged)
		assert.Equal(t, want, r)
		assert.Equal(t, ForceReading{Raw: 300, Force: 723}, force.Last())
	})
	t.Run("eopd", func(t *testing.T) {
		input := bustest.NewAnalog(1013)
		eopd := NewEOPD(input)
		want, err := eopd.Read(ctx)
		require.NoError(t, err)
		input.Fail(unplugged)
		r, err := eopd.Read(ctx)
		assert.ErrorIs(t, err, unplugged)
		assert.Equal(t, want, r)
		assert.Equal(t, want, eopd.Last())
	})
	t.Run("magfield", func(t *testing.T) {
		input := bustest.NewAnalog(530)
		mag := NewMagField(input)
		want, err := mag.Read(ctx)
		require.NoError(t, err)
		input.Fail(unplugged)
		r, err := mag.Read(ctx)
		assert.ErrorIs(t, err, unplugged)
		assert.Equal(t, want, r)
		assert.Equal(t, MagFieldReading{Raw: 530, Bias: DefaultMagFieldBias, Strength: 18}, mag.Last())
	})
	t.Run("touch mux", func(t *testing.T) {
		input := bustest.NewAnalog(709)
		tmux := NewTouchMux(input)
		want, err := tmux.Read(ctx)
		require.NoError(t, err)
		input.Fail(unplugged)
		r, err := tmux.Read(ctx)
		assert.ErrorIs(t, err, unplugged)
		assert.Equal(t, want, r)
		assert.Equal(t, byte(0x0F), tmux.Last().Mask)
	})
}
