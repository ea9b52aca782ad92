package asl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mklimuk/nxtsensors/internal/bustest"
)

func locatorRegisters() *bustest.Registers {
	regs := bustest.NewRegisters()
	regs.Set(DefaultAddress, 0x42, 30)
	regs.Set(DefaultAddress, 0x45, 100)
	regs.Set(DefaultAddress, 0x48, 40, 60, 80)
	return regs
}

func TestLocator_Read(t *testing.T) {
	r, err := New(locatorRegisters()).Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Reading{
		DynamicAngle: 30,
		StaticAngle:  100,
		Mics:         MicLevels{Right: 40, Left: 60, Combined: 80},
	}, r)
}

func TestLocator_Reversed(t *testing.T) {
	l := New(locatorRegisters(), WithReversed(true))
	r, err := l.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Reading{
		DynamicAngle: 150,
		StaticAngle:  80,
		Mics:         MicLevels{Right: 60, Left: 40, Combined: 80},
	}, r)
}

func TestLocator_ThresholdAngle(t *testing.T) {
	l := New(locatorRegisters())
	a, err := l.ThresholdAngle(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 30, a)

	a, err = l.ThresholdAngle(context.Background(), 80)
	require.NoError(t, err)
	assert.Equal(t, NoSound, a)
}

func TestLocator_CalibrateLevel(t *testing.T) {
	bus := &bustest.MockI2CBus{}
	bus.On("WriteToAddr", mock.Anything, DefaultAddress, []byte{0x4A}).Return(nil).Times(100)
	bus.On("ReadFromAddr", mock.Anything, DefaultAddress, mock.Anything).Return([]byte{10}, nil).Times(50)
	bus.On("ReadFromAddr", mock.Anything, DefaultAddress, mock.Anything).Return([]byte{20}, nil).Times(50)

	level, err := New(bus, WithSampleInterval(0)).CalibrateLevel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 15, level)
	bus.AssertExpectations(t)
}
