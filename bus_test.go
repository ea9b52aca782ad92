package nxtsensors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddr8To7(t *testing.T) {
	assert.Equal(t, byte(0x01), Addr8To7(0x02))
	assert.Equal(t, byte(0x08), Addr8To7(0x10))
	assert.Equal(t, byte(0x1E), Addr8To7(0x3C))
	assert.Equal(t, byte(0x69), Addr8To7(0xD2))
}

func TestClip(t *testing.T) {
	assert.Equal(t, 0, Clip(-5, 0, 100))
	assert.Equal(t, 100, Clip(140, 0, 100))
	assert.Equal(t, 42, Clip(42, 0, 100))
}

func TestSampleAverage(t *testing.T) {
	values := []int{10, 20, 30, 41}
	i := 0
	avg, err := SampleAverage(context.Background(), len(values), 0, func(ctx context.Context) (int, error) {
		v := values[i]
		i++
		return v, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 25, avg)
	assert.Equal(t, 4, i)
}

func TestSampleAverage_Error(t *testing.T) {
	boom := errors.New("boom")
	_, err := SampleAverage(context.Background(), 3, 0, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = SampleAverage(context.Background(), 0, 0, nil)
	assert.Error(t, err)
}

func TestBusStatus_String(t *testing.T) {
	assert.Equal(t, "ready", StatusReady.String())
	assert.Equal(t, "pending", StatusPending.String())
	assert.Equal(t, "error", StatusError.String())
}

func TestNormalise(t *testing.T) {
	assert.Equal(t, 0, Normalise(100, 200, 800))
	assert.Equal(t, 0, Normalise(200, 200, 800))
	assert.Equal(t, 50, Normalise(500, 200, 800))
	assert.Equal(t, 100, Normalise(900, 200, 800))
	assert.Equal(t, 0, Normalise(300, 300, 300))
}
