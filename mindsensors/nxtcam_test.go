package mindsensors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/nxtsensors/internal/bustest"
)

func camRegisters() *bustest.Registers {
	regs := bustest.NewRegisters()
	regs.Set(NXTCamAddress, 0x42, 4,
		1, 10, 10, 30, 30,
		1, 20, 20, 40, 40,
		2, 100, 100, 120, 110,
		1, 50, 50, 60, 60,
	)
	return regs
}

func TestNXTCam_Read(t *testing.T) {
	cam := NewNXTCam(camRegisters())
	r, err := cam.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Blob{
		{Colour: 1, Left: 10, Top: 10, Right: 30, Bottom: 30},
		{Colour: 1, Left: 20, Top: 20, Right: 40, Bottom: 40},
		{Colour: 2, Left: 100, Top: 100, Right: 120, Bottom: 110},
		{Colour: 1, Left: 50, Top: 50, Right: 60, Bottom: 60},
	}, r.Blobs)
}

func TestNXTCam_ConfigureMerge(t *testing.T) {
	regs := camRegisters()
	cam := NewNXTCam(regs)
	require.NoError(t, cam.Configure(context.Background(), NXTCamConfig{Mode: TrackObjects, Merge: true}))
	assert.Equal(t, [][]byte{{0x41, 'D'}, {0x41, 'A'}, {0x41, 'B'}, {0x41, 'E'}}, regs.Writes(NXTCamAddress))

	r, err := cam.Read(context.Background())
	require.NoError(t, err)
	require.Len(t, r.Blobs, 3)
	assert.Equal(t, Blob{Colour: 1, Left: 10, Top: 10, Right: 40, Bottom: 40}, r.Blobs[0])

	x, y, ok := AverageCentre(r.Blobs, 1, 200)
	require.True(t, ok)
	assert.Equal(t, 25, x)
	assert.Equal(t, 25, y)

	_, _, ok = AverageCentre(r.Blobs, 3, 0)
	assert.False(t, ok)
}

func TestNXTCam_LineTracking(t *testing.T) {
	regs := bustest.NewRegisters()
	require.NoError(t, NewNXTCam(regs).Configure(context.Background(), NXTCamConfig{Mode: TrackLines}))
	assert.Equal(t, []byte{0x41, 'L'}, regs.Writes(NXTCamAddress)[2])
}

func TestMergeBlobs(t *testing.T) {
	blobs := []Blob{
		{Colour: 1, Left: 0, Top: 0, Right: 10, Bottom: 10},
		{Colour: 2, Left: 5, Top: 5, Right: 15, Bottom: 15},
		{Colour: 1, Left: 20, Top: 0, Right: 30, Bottom: 10},
		{Colour: 1, Left: 8, Top: 2, Right: 22, Bottom: 4},
	}
	merged := MergeBlobs(blobs)
	assert.Equal(t, []Blob{
		{Colour: 1, Left: 0, Top: 0, Right: 30, Bottom: 10},
		{Colour: 2, Left: 5, Top: 5, Right: 15, Bottom: 15},
	}, merged)
	assert.Len(t, blobs, 4)
}
